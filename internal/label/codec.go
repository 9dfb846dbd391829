package label

import (
	"slices"
	"strings"

	"orderdesk/internal/status"
)

// Flag is an independently togglable boolean label.
type Flag string

const (
	Priority                Flag = "priority"
	InstapayPaid            Flag = "instapay_paid"
	OrderReadyConfirmed     Flag = "order_ready_confirmed"
	ConfirmationMessageSent Flag = "confirmation_message_sent"
	ReadyMessageSent        Flag = "ready_message_sent"
	ShippingMessageSent     Flag = "shipping_message_sent"
)

var knownFlags = map[Flag]struct{}{
	Priority:                {},
	InstapayPaid:            {},
	OrderReadyConfirmed:     {},
	ConfirmationMessageSent: {},
	ReadyMessageSent:        {},
	ShippingMessageSent:     {},
}

// Key names a key:value fact. Key prefixes are matched case-sensitively.
type Key string

const (
	CustomDueDate        Key = "custom_due_date"
	CustomStartDate      Key = "custom_start_date"
	FulfillmentDate      Key = "fulfillment_date"
	ShippingDate         Key = "shipping_date"
	ShippingBarcode      Key = "shipping_barcode"
	ShippingStatus       Key = "shipping_status"
	MylerzCityID         Key = "mylerz_city_id"
	MylerzNeighborhoodID Key = "mylerz_neighborhood_id"
	MylerzSubzoneID      Key = "mylerz_subzone_id"
)

var knownKeys = map[Key]struct{}{
	CustomDueDate:        {},
	CustomStartDate:      {},
	FulfillmentDate:      {},
	ShippingDate:         {},
	ShippingBarcode:      {},
	ShippingStatus:       {},
	MylerzCityID:         {},
	MylerzNeighborhoodID: {},
	MylerzSubzoneID:      {},
}

const (
	// Deleted hides an order from every view without removing the record.
	Deleted = "deleted"
	// TransientMarker was written by older dashboards to pin a just-updated
	// order in its view. It is dropped on decode and stripped on every encode.
	TransientMarker = "__status_just_updated"

	null = "null"
)

// Facts is the structured reading of a label set.
type Facts struct {
	Status status.Status
	// Statuses holds every status label present, lowest rank first.
	Statuses []status.Status
	// Labeled is the subset of Statuses spelled with the canonical label.
	Labeled []status.Status
	Flags    map[Flag]bool
	Keyed    map[Key]string
	Deleted  bool
	// Unknown keeps unrecognized labels verbatim, in order.
	Unknown []string
}

func (f Facts) Has(flag Flag) bool {
	return f.Flags[flag]
}

func (f Facts) Fact(key Key) (string, bool) {
	v, ok := f.Keyed[key]
	return v, ok
}

// HasStatusLabel reports whether the canonical label of s is present.
// Display-name aliases do not count. Pending is present when no status
// label of any spelling is.
func (f Facts) HasStatusLabel(s status.Status) bool {
	if s == status.Pending {
		return len(f.Statuses) == 0
	}
	return slices.Contains(f.Labeled, s)
}

// Anomalous reports more than one status label on the same order.
func (f Facts) Anomalous() bool {
	return len(f.Statuses) > 1
}

// Decode never fails: anything it does not recognize ends up in Unknown.
func Decode(labels Labels) Facts {
	f := Facts{
		Status: status.Pending,
		Flags:  make(map[Flag]bool),
		Keyed:  make(map[Key]string),
	}
	for _, raw := range labels {
		l := strings.TrimSpace(raw)
		if l == "" {
			continue
		}
		if st, ok := status.FromLabel(l); ok {
			if !slices.Contains(f.Statuses, st) {
				f.Statuses = append(f.Statuses, st)
			}
			if strings.EqualFold(l, st.Label()) && !slices.Contains(f.Labeled, st) {
				f.Labeled = append(f.Labeled, st)
			}
			continue
		}
		lower := strings.ToLower(l)
		if _, ok := knownFlags[Flag(lower)]; ok {
			f.Flags[Flag(lower)] = true
			continue
		}
		switch lower {
		case Deleted:
			f.Deleted = true
			continue
		case TransientMarker:
			continue
		}
		if k, v, ok := splitFact(l); ok {
			if _, known := knownKeys[k]; known {
				if v == "" || v == null {
					delete(f.Keyed, k)
				} else {
					f.Keyed[k] = v
				}
				continue
			}
		}
		f.Unknown = append(f.Unknown, raw)
	}
	byRank := func(a, b status.Status) int { return a.Rank() - b.Rank() }
	slices.SortStableFunc(f.Statuses, byRank)
	slices.SortStableFunc(f.Labeled, byRank)
	if len(f.Statuses) > 0 {
		f.Status = f.Statuses[0]
	}
	return f
}

func splitFact(l string) (Key, string, bool) {
	k, v, ok := strings.Cut(l, ":")
	if !ok {
		return "", "", false
	}
	return Key(strings.TrimSpace(k)), strings.TrimSpace(v), true
}

type changeKind int

const (
	changeStatus changeKind = iota
	changeFlag
	changeFact
	changeDeleted
)

// Change describes one edit applied by Encode.
type Change struct {
	kind   changeKind
	status status.Status
	flag   Flag
	on     bool
	key    Key
	value  string
}

// SetStatus replaces whatever status labels are present with s.
func SetStatus(s status.Status) Change {
	return Change{kind: changeStatus, status: s}
}

func SetFlag(f Flag, on bool) Change {
	return Change{kind: changeFlag, flag: Flag(strings.ToLower(strings.TrimSpace(string(f)))), on: on}
}

// SetFact replaces every occurrence of key. An empty value or "null" clears it.
func SetFact(k Key, value string) Change {
	return Change{kind: changeFact, key: k, value: strings.TrimSpace(value)}
}

func MarkDeleted(on bool) Change {
	return Change{kind: changeDeleted, on: on}
}

func (c Change) removes(l string) bool {
	switch c.kind {
	case changeStatus:
		_, ok := status.FromLabel(l)
		return ok
	case changeFlag:
		return strings.ToLower(l) == string(c.flag)
	case changeFact:
		k, _, ok := splitFact(l)
		return ok && k == c.key
	case changeDeleted:
		return strings.ToLower(l) == Deleted
	}
	return false
}

func (c Change) render() string {
	switch c.kind {
	case changeStatus:
		return c.status.Label()
	case changeFlag:
		if c.on {
			return string(c.flag)
		}
	case changeFact:
		if c.value != "" && c.value != null {
			return string(c.key) + ":" + c.value
		}
	case changeDeleted:
		if c.on {
			return Deleted
		}
	}
	return ""
}

// Encode applies changes to previous. Labels the changes touch are removed,
// their new representations appended, and every other label kept as-is.
func Encode(previous Labels, changes ...Change) Labels {
	kept := make([]string, 0, len(previous)+len(changes))
	for _, raw := range previous {
		l := strings.TrimSpace(raw)
		if l == "" || strings.EqualFold(l, TransientMarker) {
			continue
		}
		if slices.ContainsFunc(changes, func(c Change) bool { return c.removes(l) }) {
			continue
		}
		kept = append(kept, l)
	}
	for _, c := range changes {
		if r := c.render(); r != "" {
			kept = append(kept, r)
		}
	}
	return Of(kept...)
}
