package view

import (
	"sync"

	"orderdesk/internal/cache"
	"orderdesk/internal/duedate"
	"orderdesk/internal/model"
)

// Source is the part of the cache a Live view reads.
type Source interface {
	Snapshot() cache.Snapshot
	Version() uint64
}

// Live is the rendered order sequence exposed to the presentation layer.
// Results are memoized per view and recomputed as soon as the cache version
// or the civil day changes.
type Live struct {
	src    Source
	engine Engine

	mu      sync.Mutex
	version uint64
	day     string
	memo    map[string][]model.Order
}

func NewLive(src Source, engine Engine) *Live {
	return &Live{src: src, engine: engine, memo: make(map[string][]model.Order)}
}

// Orders returns the current sequence for v. Callers must not modify it.
func (l *Live) Orders(v View) []model.Order {
	version := l.src.Version()
	day := duedate.FormatDate(l.engine.now())
	key := v.key()

	l.mu.Lock()
	if version == l.version && day == l.day {
		if out, ok := l.memo[key]; ok {
			l.mu.Unlock()
			return out
		}
	}
	l.mu.Unlock()

	snap := l.src.Snapshot()
	out := l.engine.Render(snap, v)

	l.mu.Lock()
	defer l.mu.Unlock()
	if snap.Version != l.version || day != l.day {
		l.version = snap.Version
		l.day = day
		clear(l.memo)
	}
	l.memo[key] = out
	return out
}

// Snapshot exposes the source snapshot for tab counts and item catalogs.
func (l *Live) Snapshot() cache.Snapshot {
	return l.src.Snapshot()
}
