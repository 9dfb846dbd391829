// Package label decodes an order's tag collection into structured workflow
// facts and re-encodes fact changes back into tags.
package label

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Labels is a normalized tag set: trimmed, no empties, no exact duplicates,
// in first-seen order.
type Labels []string

// Normalize splits a comma-joined tag string into Labels.
func Normalize(raw string) Labels {
	return Of(raw)
}

// Of normalizes a list of tags. Elements may themselves be comma-joined.
func Of(raw ...string) Labels {
	out := make(Labels, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, chunk := range raw {
		for _, part := range strings.Split(chunk, ",") {
			l := strings.TrimSpace(part)
			if l == "" {
				continue
			}
			if _, dup := seen[l]; dup {
				continue
			}
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}

// UnmarshalJSON accepts either a JSON array of strings or one comma-joined
// string, the two shapes the commerce platform sends.
func (l *Labels) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = Labels{}
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err == nil {
		*l = Normalize(joined)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("decode labels: %w", err)
	}
	*l = Of(list...)
	return nil
}

func (l Labels) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// Has reports whether label is present, ignoring case and surrounding space.
func (l Labels) Has(label string) bool {
	want := strings.ToLower(strings.TrimSpace(label))
	for _, v := range l {
		if strings.ToLower(strings.TrimSpace(v)) == want {
			return true
		}
	}
	return false
}

func (l Labels) Clone() Labels {
	if l == nil {
		return nil
	}
	return slices.Clone(l)
}

// String renders the comma-joined wire form.
func (l Labels) String() string {
	return strings.Join(l, ", ")
}
