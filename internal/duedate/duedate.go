// Package duedate derives an order's working window (start and due date).
//
// Every date is a civil date in Zone, a fixed UTC+3 offset without daylight
// saving. Day arithmetic only happens on values floored to midnight in Zone,
// so results do not depend on the caller's local timezone.
package duedate

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"orderdesk/internal/label"
	"orderdesk/internal/model"
)

// DefaultDays is the production window when no line item asks for another one.
const DefaultDays = 7

const (
	secondsPerDay = 24 * 60 * 60
	dateLayout    = "2006-01-02"
	maxDays       = 365
)

var Zone = time.FixedZone("UTC+3", 3*60*60)

var windowPattern = regexp.MustCompile(`(?i)\b(?:rush|handmade)\b.*?(\d+)\s*days?\b`)

var layouts = []string{
	dateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

type Window struct {
	Start time.Time
	Due   time.Time
}

type Resolver struct {
	DefaultDays int
}

var std = Resolver{DefaultDays: DefaultDays}

// Resolve uses the DefaultDays fallback.
func Resolve(o model.Order) Window {
	return std.Resolve(o)
}

// Resolve never fails. If any source yields an unusable date, both ends are
// recomputed from the creation time and the default offset.
func (r Resolver) Resolve(o model.Order) Window {
	facts := o.Facts()

	start, ok := factDate(facts, label.CustomStartDate)
	if !ok && o.CustomStartDate != nil {
		start, ok = Midnight(*o.CustomStartDate), true
	}
	if !ok {
		start = Midnight(o.CreatedAt)
	}

	due, ok := factDate(facts, label.CustomDueDate)
	if !ok && o.CustomDueDate != nil {
		due, ok = Midnight(*o.CustomDueDate), true
	}
	if !ok {
		due = start.AddDate(0, 0, r.windowDays(o))
	}

	if !usable(start) || !usable(due) {
		base := Midnight(o.CreatedAt)
		return Window{Start: base, Due: base.AddDate(0, 0, r.defaultDays())}
	}
	return Window{Start: start, Due: due}
}

func (r Resolver) defaultDays() int {
	if r.DefaultDays <= 0 {
		return DefaultDays
	}
	return r.DefaultDays
}

// windowDays scans items in order and returns the first rush/handmade window.
func (r Resolver) windowDays(o model.Order) int {
	for _, li := range o.LineItems {
		texts := []string{li.Title, li.VariantTitle}
		for _, p := range li.Properties {
			texts = append(texts, p.Name+": "+p.Value)
		}
		for _, s := range texts {
			if n, ok := WindowFromText(s); ok {
				return n
			}
		}
	}
	return r.defaultDays()
}

// WindowFromText extracts k from texts like "Rush order (3 days)" or
// "Handmade, ready in 10 days".
func WindowFromText(s string) (int, bool) {
	m := windowPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n > maxDays {
		return 0, false
	}
	return n, true
}

func factDate(f label.Facts, key label.Key) (time.Time, bool) {
	v, ok := f.Fact(key)
	if !ok {
		return time.Time{}, false
	}
	return ParseDate(v)
}

func usable(t time.Time) bool {
	return !t.IsZero() && t.Year() >= 1970 && t.Year() <= 9999
}

// ParseDate reads a keyed-fact date. "null" and empty values are absent.
// The result is midnight of the civil date in Zone.
func ParseDate(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" || v == "null" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, v, Zone)
		if err == nil {
			return Midnight(t), true
		}
	}
	return time.Time{}, false
}

// Midnight floors t to the start of its civil day in Zone.
func Midnight(t time.Time) time.Time {
	t = t.In(Zone)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Zone)
}

// FormatDate renders the civil date of t in Zone.
func FormatDate(t time.Time) string {
	return t.In(Zone).Format(dateLayout)
}

// DaysRemaining is 0 when due today and negative when overdue.
func DaysRemaining(due, now time.Time) int {
	return int(civilDay(due) - civilDay(now))
}

// civilDay numbers the civil date of t in Zone, counting from 1970-01-01.
// Day numbers span every year time.Time can hold, unlike a time.Duration.
func civilDay(t time.Time) int64 {
	y, m, d := t.In(Zone).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay
}

// Remaining resolves o and counts the days left until its due date.
func (r Resolver) Remaining(o model.Order, now time.Time) int {
	return DaysRemaining(r.Resolve(o).Due, now)
}
