package cache

import (
	"context"
	"time"
)

// Kind names a mutation type.
type Kind string

const (
	KindNote       Kind = "note"
	KindTags       Kind = "tags"
	KindPriority   Kind = "priority"
	KindStatus     Kind = "status"
	KindDueDate    Kind = "due_date"
	KindStartDate  Kind = "start_date"
	KindDelete     Kind = "delete"
	KindBulkStatus Kind = "bulk_status"
	KindShipment   Kind = "shipment"
)

type Outcome string

const (
	OutcomeCommitted  Outcome = "committed"
	OutcomeRolledBack Outcome = "rolled_back"
)

// Record describes one settled mutation.
type Record struct {
	ID           string
	Kind         Kind
	OrderIDs     []int64
	Actor        string
	Outcome      Outcome
	Error        string
	DispatchedAt time.Time
	SettledAt    time.Time
}

func (r Record) Duration() time.Duration {
	return r.SettledAt.Sub(r.DispatchedAt)
}

// Journal receives every settled mutation. Implementations must not block for
// long; they run on the goroutine that submitted the write.
type Journal interface {
	Record(ctx context.Context, rec Record)
}

// Journals fans a record out to several journals.
type Journals []Journal

func (js Journals) Record(ctx context.Context, rec Record) {
	for _, j := range js {
		if j != nil {
			j.Record(ctx, rec)
		}
	}
}

// Notice is a recoverable, user-visible failure report.
type Notice struct {
	Kind     Kind
	OrderIDs []int64
	Message  string
	Err      error
}

type Notifier interface {
	Notify(n Notice)
}

type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }
