package status

import (
	"errors"
	"strings"
)

var ErrUnknown = errors.New("unknown status")

// Status is a canonical workflow state. The zero value is Pending.
type Status string

const (
	Pending     Status = "pending"
	OrderReady  Status = "order-ready"
	Confirmed   Status = "confirmed"
	ReadyToShip Status = "ready-to-ship"
	Shipped     Status = "shipped"
	Fulfilled   Status = "fulfilled"
	Paid        Status = "paid"
	Cancelled   Status = "cancelled"
)

// All lists every status in ascending rank.
var All = []Status{Pending, OrderReady, Confirmed, ReadyToShip, Shipped, Fulfilled, Paid, Cancelled}

var ranks = map[Status]int{
	Pending:     10,
	OrderReady:  15,
	Confirmed:   20,
	ReadyToShip: 30,
	Shipped:     40,
	Fulfilled:   50,
	Paid:        60,
	Cancelled:   70,
}

// canonical labels only differ from the display name for order-ready and confirmed.
var labels = map[Status]string{
	OrderReady:  "order_ready",
	Confirmed:   "customer_confirmed",
	ReadyToShip: "ready-to-ship",
	Shipped:     "shipped",
	Fulfilled:   "fulfilled",
	Paid:        "paid",
	Cancelled:   "cancelled",
}

var byLabel = func() map[string]Status {
	m := make(map[string]Status, len(labels)+2)
	for s, l := range labels {
		m[l] = s
	}
	// display names seen on older orders
	m[string(OrderReady)] = OrderReady
	m[string(Confirmed)] = Confirmed
	return m
}()

func (s Status) String() string {
	if s == "" {
		return string(Pending)
	}
	return string(s)
}

// Rank is the display priority; lower sorts first. Unknown statuses rank with pending.
func (s Status) Rank() int {
	if r, ok := ranks[s]; ok {
		return r
	}
	return ranks[Pending]
}

// Label returns the tag written for s, or "" for pending.
func (s Status) Label() string {
	return labels[s]
}

func (s Status) Valid() bool {
	_, ok := ranks[s]
	return ok
}

// FromLabel reports the status a single label encodes. Matching is
// case-insensitive and ignores surrounding whitespace.
func FromLabel(label string) (Status, bool) {
	s, ok := byLabel[strings.ToLower(strings.TrimSpace(label))]
	return s, ok
}

// Parse accepts a display name or a canonical label.
func Parse(s string) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" || v == string(Pending) {
		return Pending, nil
	}
	if st, ok := byLabel[v]; ok {
		return st, nil
	}
	return "", ErrUnknown
}

// Bucket names a filtered view. Every status is a bucket; All is the extra
// bucket that matches any non-deleted order.
type Bucket string

const BucketAll Bucket = "all"

func (b Bucket) Status() (Status, bool) {
	if b == BucketAll {
		return "", false
	}
	st, err := Parse(string(b))
	if err != nil {
		return "", false
	}
	return st, true
}

// Buckets lists the view tabs in display order.
func Buckets() []Bucket {
	out := make([]Bucket, 0, len(All)+1)
	out = append(out, BucketAll)
	for _, s := range All {
		out = append(out, Bucket(s))
	}
	return out
}
