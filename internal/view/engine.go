// Package view filters and orders the cached orders for display.
package view

import (
	"cmp"
	"errors"
	"net/url"
	"slices"
	"strings"
	"time"

	"orderdesk/internal/cache"
	"orderdesk/internal/duedate"
	"orderdesk/internal/label"
	"orderdesk/internal/model"
	"orderdesk/internal/status"
)

var ErrUnknownBucket = errors.New("unknown status bucket")

type View struct {
	Bucket status.Bucket
	Search string
	// Items pins line-item keys ("title" or "title (variant)").
	Items []string
}

// ParseView reads ?status=&q=&items= query parameters. items may repeat or be
// comma-joined.
func ParseView(q url.Values) (View, error) {
	v := View{Bucket: status.BucketAll, Search: strings.TrimSpace(q.Get("q"))}
	if b := strings.TrimSpace(q.Get("status")); b != "" && !strings.EqualFold(b, string(status.BucketAll)) {
		st, err := status.Parse(b)
		if err != nil {
			return View{}, ErrUnknownBucket
		}
		v.Bucket = status.Bucket(st)
	}
	for _, raw := range q["items"] {
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				v.Items = append(v.Items, item)
			}
		}
	}
	return v, nil
}

func (v View) key() string {
	items := slices.Clone(v.Items)
	slices.Sort(items)
	return string(v.Bucket) + "\x00" + strings.ToLower(strings.TrimSpace(v.Search)) + "\x00" + strings.Join(items, "\x00")
}

type Engine struct {
	Resolver duedate.Resolver
	Now      func() time.Time
}

func (e Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// row caches everything the comparator needs so it never decodes labels.
type row struct {
	order     model.Order
	facts     label.Facts
	idx       int
	remaining int
	shipDate  time.Time
	hasShip   bool
}

// Render returns the orders visible under v in display order. The ordering
// is total: ties always fall back to id and then fetch position.
func (e Engine) Render(snap cache.Snapshot, v View) []model.Order {
	now := e.now()
	pinned := make(map[string]struct{}, len(v.Items))
	for _, it := range v.Items {
		pinned[it] = struct{}{}
	}
	search := strings.ToLower(strings.TrimSpace(v.Search))

	rows := make([]row, 0, len(snap.Orders))
	for i, o := range snap.Orders {
		facts := o.Facts()
		if !visible(o, facts, snap.Touched(o.ID), v.Bucket, search, pinned) {
			continue
		}
		r := row{order: o, facts: facts, idx: i, remaining: e.Resolver.Remaining(o, now)}
		if raw, ok := facts.Fact(label.ShippingDate); ok {
			r.shipDate, r.hasShip = duedate.ParseDate(raw)
		}
		rows = append(rows, r)
	}

	slices.SortFunc(rows, compare)

	out := make([]model.Order, len(rows))
	for i, r := range rows {
		out[i] = r.order
	}
	return out
}

func visible(o model.Order, f label.Facts, touched bool, b status.Bucket, search string, pinned map[string]struct{}) bool {
	if f.Deleted {
		return false
	}
	if touched {
		return true
	}
	if !inBucket(f, b) {
		return false
	}
	if search != "" && !matchesSearch(o, search) {
		return false
	}
	if len(pinned) > 0 && !hasPinnedItem(o, pinned) {
		return false
	}
	return true
}

func inBucket(f label.Facts, b status.Bucket) bool {
	if b == "" || b == status.BucketAll {
		return true
	}
	st, ok := b.Status()
	if !ok {
		return false
	}
	return f.HasStatusLabel(st)
}

func matchesSearch(o model.Order, search string) bool {
	fields := []string{o.Name}
	if o.Customer != nil {
		fields = append(fields, o.Customer.FullName(), o.Customer.Phone)
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

func hasPinnedItem(o model.Order, pinned map[string]struct{}) bool {
	for _, li := range o.LineItems {
		if _, ok := pinned[li.Key()]; ok {
			return true
		}
	}
	return false
}

func compare(a, b row) int {
	if c := cmp.Compare(a.facts.Status.Rank(), b.facts.Status.Rank()); c != 0 {
		return c
	}
	if a.facts.Status == status.Shipped && b.facts.Status == status.Shipped {
		switch {
		case a.hasShip && b.hasShip:
			if c := a.shipDate.Compare(b.shipDate); c != 0 {
				return c
			}
		case a.hasShip:
			return -1
		case b.hasShip:
			return 1
		}
	}
	aPending := a.facts.HasStatusLabel(status.Pending)
	bPending := b.facts.HasStatusLabel(status.Pending)
	if aPending && bPending {
		if c := cmp.Compare(a.remaining, b.remaining); c != 0 {
			return c
		}
	}
	if ap, bp := a.facts.Has(label.Priority), b.facts.Has(label.Priority); ap != bp {
		if ap {
			return -1
		}
		return 1
	}
	if !aPending || !bPending {
		if c := cmp.Compare(a.remaining, b.remaining); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(a.order.ID, b.order.ID); c != 0 {
		return c
	}
	return cmp.Compare(a.idx, b.idx)
}

// Counts returns how many visible orders each bucket tab holds.
func Counts(snap cache.Snapshot) map[status.Bucket]int {
	counts := make(map[status.Bucket]int, len(status.All)+1)
	for _, b := range status.Buckets() {
		counts[b] = 0
	}
	for _, o := range snap.Orders {
		f := o.Facts()
		if f.Deleted {
			continue
		}
		counts[status.BucketAll]++
		if len(f.Statuses) == 0 {
			counts[status.Bucket(status.Pending)]++
			continue
		}
		for _, st := range f.Labeled {
			counts[status.Bucket(st)]++
		}
	}
	return counts
}

type ItemCount struct {
	Key    string `json:"key"`
	Orders int    `json:"orders"`
}

// ItemCatalog lists the distinct line-item keys across visible orders, for the
// item-subset picker.
func ItemCatalog(snap cache.Snapshot) []ItemCount {
	counts := make(map[string]int)
	for _, o := range snap.Orders {
		if o.Facts().Deleted {
			continue
		}
		seen := make(map[string]struct{}, len(o.LineItems))
		for _, li := range o.LineItems {
			k := li.Key()
			if _, dup := seen[k]; dup || k == "" {
				continue
			}
			seen[k] = struct{}{}
			counts[k]++
		}
	}
	out := make([]ItemCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, ItemCount{Key: k, Orders: n})
	}
	slices.SortFunc(out, func(a, b ItemCount) int { return cmp.Compare(a.Key, b.Key) })
	return out
}
