// Package cache keeps the client-side copy of every order and applies operator
// mutations optimistically: the cache changes at once, the remote write runs
// in the background, and a failed write rolls back only its own effect.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"orderdesk/internal/label"
	"orderdesk/internal/model"
)

var (
	ErrUnknownOrder = errors.New("unknown order")
	ErrClosed       = errors.New("store closed")
)

const (
	DefaultGraceWindow  = 3 * time.Second
	DefaultRefetchDelay = 300 * time.Millisecond
	DefaultWriteTimeout = 15 * time.Second
)

type Options struct {
	// GraceWindow keeps a just-updated order visible in its current view.
	GraceWindow time.Duration
	// RefetchDelay coalesces reconciliation fetches.
	RefetchDelay time.Duration
	WriteTimeout time.Duration
	// Now stamps business dates (fulfillment date).
	Now      func() time.Time
	Notifier Notifier
	Journal  Journal
	// Actor names the operator behind a dispatch context.
	Actor func(ctx context.Context) string
}

func (o Options) withDefaults() Options {
	if o.GraceWindow <= 0 {
		o.GraceWindow = DefaultGraceWindow
	}
	if o.RefetchDelay <= 0 {
		o.RefetchDelay = DefaultRefetchDelay
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type Store struct {
	remote Remote
	opts   Options

	mu      sync.Mutex
	orders  map[int64]model.Order
	seq     []int64
	pending map[int64][]*entry
	touched map[int64]time.Time
	sweeps  map[int64]*time.Timer
	refetch *time.Timer
	version uint64
	closed  bool
	// gen counts accepted writes; inflight holds the gen each running
	// fetch started at.
	gen      uint64
	inflight []uint64

	wg sync.WaitGroup
}

func New(remote Remote, opts Options) *Store {
	return &Store{
		remote:  remote,
		opts:    opts.withDefaults(),
		orders:  make(map[int64]model.Order),
		pending: make(map[int64][]*entry),
		touched: make(map[int64]time.Time),
		sweeps:  make(map[int64]*time.Timer),
	}
}

// Snapshot is a read-only copy of the cache taken under the store lock.
type Snapshot struct {
	Version uint64
	// Orders are in fetch order; a position here is the pre-sort index.
	Orders  []model.Order
	touched map[int64]struct{}
}

// Touched reports whether id is inside its post-update grace window.
func (s Snapshot) Touched(id int64) bool {
	_, ok := s.touched[id]
	return ok
}

// NewSnapshot builds a snapshot outside a store, for renderers and tests.
func NewSnapshot(version uint64, orders []model.Order, touched ...int64) Snapshot {
	t := make(map[int64]struct{}, len(touched))
	for _, id := range touched {
		t[id] = struct{}{}
	}
	return Snapshot{Version: version, Orders: orders, touched: t}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	orders := make([]model.Order, 0, len(s.seq))
	for _, id := range s.seq {
		orders = append(orders, s.orders[id].Clone())
	}
	touched := make(map[int64]struct{}, len(s.touched))
	for id := range s.touched {
		touched[id] = struct{}{}
	}
	return Snapshot{Version: s.version, Orders: orders, touched: touched}
}

func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) Get(id int64) (model.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return o.Clone(), true
}

// Refresh fetches every order from the remote and installs it. Mutations
// the fetch cannot reflect are replayed on top of the fetched records: the
// unsettled ones and those the remote accepted after the fetch started.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	since := s.gen
	s.inflight = append(s.inflight, since)
	s.mu.Unlock()

	orders, err := s.remote.FetchOrders(ctx)
	if err != nil {
		s.mu.Lock()
		s.endFetchLocked(since)
		s.mu.Unlock()
		return fmt.Errorf("fetch orders: %w", err)
	}
	s.install(orders, since)
	return nil
}

func (s *Store) install(fetched []model.Order, since uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := make([]int64, 0, max(len(fetched), len(s.seq)))
	seen := make(map[int64]struct{}, len(fetched))
	for _, o := range fetched {
		if _, dup := seen[o.ID]; dup {
			continue
		}
		seen[o.ID] = struct{}{}
		seq = append(seq, o.ID)

		o.Tags = label.Of(o.Tags...)
		if f := o.Facts(); f.Anomalous() {
			slog.Warn("order carries several status labels", "order", o.ID, "statuses", f.Statuses)
		}

		cur := o
		for _, e := range s.pending[o.ID] {
			if e.settled && e.settledAt <= since {
				continue
			}
			e.prev = cur
			cur, _ = e.apply(cur.Clone())
		}
		s.orders[o.ID] = cur
	}
	// Orders are never dropped from the cache; ones the remote stopped
	// returning keep their relative place after the fetched ones.
	for _, id := range s.seq {
		if _, ok := seen[id]; !ok {
			seq = append(seq, id)
		}
	}
	s.seq = seq
	s.endFetchLocked(since)
	s.bumpLocked()
}

func (s *Store) endFetchLocked(since uint64) {
	if i := slices.Index(s.inflight, since); i >= 0 {
		s.inflight = slices.Delete(s.inflight, i, i+1)
	}
	for id := range s.pending {
		s.compactLocked(id)
	}
}

// compactLocked drops the accepted entries at the head of id's log once
// every running fetch started after they settled.
func (s *Store) compactLocked(id int64) {
	floor, fetching := uint64(0), len(s.inflight) > 0
	if fetching {
		floor = slices.Min(s.inflight)
	}
	log := s.pending[id]
	for len(log) > 0 && log[0].settled && (!fetching || log[0].settledAt <= floor) {
		log = log[1:]
	}
	if len(log) == 0 {
		delete(s.pending, id)
	} else {
		s.pending[id] = log
	}
}

// Close stops the timers and waits for in-flight writes to settle.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	for id, t := range s.sweeps {
		t.Stop()
		delete(s.sweeps, id)
	}
	if s.refetch != nil {
		s.refetch.Stop()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Wait blocks until every dispatched write and scheduled refetch that has
// started has finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

func (s *Store) bumpLocked() {
	s.version++
}

func (s *Store) touchLocked(id int64) {
	if s.closed {
		return
	}
	s.touched[id] = time.Now().Add(s.opts.GraceWindow)
	if t, ok := s.sweeps[id]; ok {
		t.Reset(s.opts.GraceWindow)
		return
	}
	s.sweeps[id] = time.AfterFunc(s.opts.GraceWindow, func() { s.expire(id) })
}

func (s *Store) expire(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := s.touched[id]
	if !ok {
		return
	}
	// A later touch re-armed the timer; its own firing will clear the entry.
	if time.Now().Before(deadline) {
		return
	}
	delete(s.touched, id)
	delete(s.sweeps, id)
	s.bumpLocked()
}

func (s *Store) scheduleRefetchLocked() {
	if s.closed {
		return
	}
	if s.refetch == nil {
		s.refetch = time.AfterFunc(s.opts.RefetchDelay, s.reconcile)
		return
	}
	s.refetch.Reset(s.opts.RefetchDelay)
}

func (s *Store) reconcile() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.WriteTimeout)
	defer cancel()
	if err := s.Refresh(ctx); err != nil {
		slog.Error("reconcile refetch failed", "error", err)
	}
}
