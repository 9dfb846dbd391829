package cache

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"orderdesk/internal/label"
	"orderdesk/internal/model"
	"orderdesk/internal/status"
	"orderdesk/internal/workflow"
)

// applyFunc maps the current record to the next one. It must be pure: a
// failed earlier write replays it on top of a restored snapshot.
type applyFunc func(model.Order) (model.Order, bool)

// entry is one order's share of a dispatched mutation. prev is the record
// exactly as it was before this entry applied.
type entry struct {
	op      *operation
	prev    model.Order
	apply   applyFunc
	settled bool
	// settledAt is the store generation the remote accepted the write at.
	settledAt uint64
}

type operation struct {
	id         string
	kind       Kind
	ids        []int64
	actor      string
	dispatched time.Time
}

type mutation struct {
	kind  Kind
	ids   []int64
	apply applyFunc
	// submit performs the remote write with the optimistic records. A non-nil
	// patch is folded into the cache once the write succeeds.
	submit func(ctx context.Context, next []model.Order) (patch applyFunc, err error)
	// touch pins changed orders in their view for the grace window.
	touch bool
	// reconcile schedules a refetch after a successful write.
	reconcile bool
}

func (s *Store) dispatch(ctx context.Context, m mutation) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	for _, id := range m.ids {
		if _, ok := s.orders[id]; !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: %d", ErrUnknownOrder, id)
		}
	}

	op := &operation{
		id:         uuid.NewString(),
		kind:       m.kind,
		dispatched: time.Now(),
	}
	if s.opts.Actor != nil {
		op.actor = s.opts.Actor(ctx)
	}
	next := make([]model.Order, 0, len(m.ids))
	for _, id := range m.ids {
		prev := s.orders[id]
		cur, changed := m.apply(prev.Clone())
		if !changed {
			continue
		}
		s.orders[id] = cur
		s.pending[id] = append(s.pending[id], &entry{op: op, prev: prev, apply: m.apply})
		op.ids = append(op.ids, id)
		next = append(next, cur.Clone())
		if m.touch {
			s.touchLocked(id)
		}
	}
	if len(op.ids) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.bumpLocked()
	s.wg.Add(1)
	s.mu.Unlock()

	go s.submit(context.WithoutCancel(ctx), op, m, next)
	return nil
}

func (s *Store) submit(ctx context.Context, op *operation, m mutation, next []model.Order) {
	defer s.wg.Done()

	wctx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	patch, err := m.submit(wctx, next)
	cancel()

	rebased := s.settle(op, m, patch, err)

	rec := Record{
		ID:           op.id,
		Kind:         op.kind,
		OrderIDs:     op.ids,
		Actor:        op.actor,
		Outcome:      OutcomeCommitted,
		DispatchedAt: op.dispatched,
		SettledAt:    time.Now(),
	}
	if err != nil {
		rec.Outcome = OutcomeRolledBack
		rec.Error = err.Error()
		slog.Warn("remote write failed, rolled back",
			"kind", op.kind, "orders", op.ids, "rebased", rebased, "error", err)
		if s.opts.Notifier != nil {
			s.opts.Notifier.Notify(Notice{
				Kind:     op.kind,
				OrderIDs: op.ids,
				Message:  noticeMessage(op, err),
				Err:      err,
			})
		}
	}
	if s.opts.Journal != nil {
		s.opts.Journal.Record(ctx, rec)
	}
}

// settle commits or rolls back op's entries. Rolling back restores the
// snapshot taken right before op applied and replays every later entry on
// top of it, so later mutations keep their effect.
func (s *Store) settle(op *operation, m mutation, patch applyFunc, err error) (rebased bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range op.ids {
		log := s.pending[id]
		i := slices.IndexFunc(log, func(e *entry) bool { return e.op == op })
		if i < 0 {
			continue
		}
		if err == nil {
			s.gen++
			log[i].settled = true
			log[i].settledAt = s.gen
			if patch != nil {
				log[i].apply = chain(log[i].apply, patch)
				cur, _ := patch(s.orders[id].Clone())
				s.orders[id] = cur
			}
		} else {
			cur := log[i].prev
			for _, later := range log[i+1:] {
				later.prev = cur
				cur, _ = later.apply(cur.Clone())
				rebased = true
			}
			s.orders[id] = cur
			log = slices.Delete(log, i, i+1)
		}
		s.pending[id] = log
		s.compactLocked(id)
	}
	if err != nil || patch != nil {
		s.bumpLocked()
	}
	// A rebase means the remote may hold a later full value computed on top
	// of the failed one.
	if (err == nil && m.reconcile) || rebased {
		s.scheduleRefetchLocked()
	}
	return rebased
}

func chain(first, then applyFunc) applyFunc {
	return func(o model.Order) (model.Order, bool) {
		o, c1 := first(o)
		o, c2 := then(o)
		return o, c1 || c2
	}
}

func noticeMessage(op *operation, err error) string {
	if len(op.ids) == 1 {
		return fmt.Sprintf("%s update for order %d failed: %v", op.kind, op.ids[0], err)
	}
	return fmt.Sprintf("%s update for %d orders failed: %v", op.kind, len(op.ids), err)
}

func single(next []model.Order) model.Order {
	return next[0]
}

func always(fn func(model.Order) model.Order) applyFunc {
	return func(o model.Order) (model.Order, bool) { return fn(o), true }
}

// UpdateNote replaces the order note.
func (s *Store) UpdateNote(ctx context.Context, id int64, note string) error {
	return s.dispatch(ctx, mutation{
		kind: KindNote,
		ids:  []int64{id},
		apply: always(func(o model.Order) model.Order {
			return workflow.ReplaceNote(o, note)
		}),
		submit: func(ctx context.Context, next []model.Order) (applyFunc, error) {
			return nil, s.remote.ReplaceNote(ctx, id, single(next).Note)
		},
	})
}

// ReplaceTags installs an operator-edited tag list as-is.
func (s *Store) ReplaceTags(ctx context.Context, id int64, tags label.Labels) error {
	return s.dispatch(ctx, mutation{
		kind: KindTags,
		ids:  []int64{id},
		apply: always(func(o model.Order) model.Order {
			return workflow.ReplaceTags(o, tags)
		}),
		submit: func(ctx context.Context, next []model.Order) (applyFunc, error) {
			return nil, s.remote.ReplaceTags(ctx, id, single(next).Tags)
		},
	})
}

func (s *Store) SetPriority(ctx context.Context, id int64, on bool) error {
	return s.dispatch(ctx, mutation{
		kind: KindPriority,
		ids:  []int64{id},
		apply: func(o model.Order) (model.Order, bool) {
			return workflow.SetPriority(o, on)
		},
		submit: func(ctx context.Context, _ []model.Order) (applyFunc, error) {
			return nil, s.remote.SetPriority(ctx, id, on)
		},
	})
}

// SetStatus transitions one order. Requesting the current status is a no-op.
func (s *Store) SetStatus(ctx context.Context, id int64, to status.Status) error {
	return s.dispatch(ctx, mutation{
		kind:  KindStatus,
		ids:   []int64{id},
		apply: s.transition(to),
		submit: func(ctx context.Context, next []model.Order) (applyFunc, error) {
			return nil, s.remote.ReplaceStatus(ctx, id, single(next).Tags)
		},
		touch: true,
	})
}

// BulkSetStatus transitions several orders as one all-or-nothing mutation and
// reconciles with a refetch once the remote accepts it.
func (s *Store) BulkSetStatus(ctx context.Context, ids []int64, to status.Status) error {
	ids = uniqueIDs(ids)
	return s.dispatch(ctx, mutation{
		kind:  KindBulkStatus,
		ids:   ids,
		apply: s.transition(to),
		submit: func(ctx context.Context, next []model.Order) (applyFunc, error) {
			updates := make([]TagUpdate, 0, len(next))
			for _, o := range next {
				updates = append(updates, TagUpdate{OrderID: o.ID, Tags: o.Tags})
			}
			return nil, s.remote.BulkReplaceStatus(ctx, updates)
		},
		touch:     true,
		reconcile: true,
	})
}

func (s *Store) transition(to status.Status) applyFunc {
	now := s.opts.Now()
	return func(o model.Order) (model.Order, bool) {
		tr := workflow.ToStatus(o, to, now)
		return tr.Order, tr.Changed
	}
}

// SetDueDate overrides the due date; nil clears the override.
func (s *Store) SetDueDate(ctx context.Context, id int64, due *time.Time) error {
	return s.dispatch(ctx, mutation{
		kind: KindDueDate,
		ids:  []int64{id},
		apply: always(func(o model.Order) model.Order {
			return workflow.SetDueDate(o, due)
		}),
		submit: s.submitDates(id),
	})
}

// SetStartDate overrides the start date; nil clears the override.
func (s *Store) SetStartDate(ctx context.Context, id int64, start *time.Time) error {
	return s.dispatch(ctx, mutation{
		kind: KindStartDate,
		ids:  []int64{id},
		apply: always(func(o model.Order) model.Order {
			return workflow.SetStartDate(o, start)
		}),
		submit: s.submitDates(id),
	})
}

func (s *Store) submitDates(id int64) func(context.Context, []model.Order) (applyFunc, error) {
	return func(ctx context.Context, next []model.Order) (applyFunc, error) {
		o := single(next)
		return nil, s.remote.ReplaceDates(ctx, id, DateUpdate{
			Start: o.CustomStartDate,
			Due:   o.CustomDueDate,
			Tags:  o.Tags,
		})
	}
}

// Delete hides the order from every view by tagging it deleted.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.dispatch(ctx, mutation{
		kind: KindDelete,
		ids:  []int64{id},
		apply: func(o model.Order) (model.Order, bool) {
			if o.Facts().Deleted {
				return o, false
			}
			return workflow.MarkDeleted(o), true
		},
		submit: func(ctx context.Context, next []model.Order) (applyFunc, error) {
			return nil, s.remote.MarkDeleted(ctx, id, single(next).Tags)
		},
	})
}

// CreateShipment books a courier consignment. The barcode is only known after
// the remote answers, so the record is patched on success and reconciled with
// a refetch for server-side changes.
func (s *Store) CreateShipment(ctx context.Context, id int64, req model.ShipmentRequest) error {
	return s.dispatch(ctx, mutation{
		kind: KindShipment,
		ids:  []int64{id},
		apply: func(o model.Order) (model.Order, bool) {
			return o, true
		},
		submit: func(ctx context.Context, _ []model.Order) (applyFunc, error) {
			shipment, err := s.remote.CreateShipment(ctx, id, req)
			if err != nil {
				return nil, err
			}
			return always(func(o model.Order) model.Order {
				return workflow.ApplyShipment(o, shipment)
			}), nil
		},
		reconcile: true,
	})
}

func uniqueIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
