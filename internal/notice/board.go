// Package notice keeps the recent user-visible failure reports so the UI can
// poll for them.
package notice

import (
	"slices"
	"sync"
	"time"

	"orderdesk/internal/cache"
)

const DefaultCapacity = 50

type Notice struct {
	Seq      uint64    `json:"seq"`
	Kind     string    `json:"kind"`
	OrderIDs []int64   `json:"order_ids"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Board is a fixed-size ring of notices. Sequence numbers start at 1 and
// never repeat, so a client can ask for everything after the last one it saw.
type Board struct {
	mu   sync.Mutex
	ring []Notice
	next int
	full bool
	seq  uint64
	now  func() time.Time
}

var _ cache.Notifier = (*Board)(nil)

func NewBoard(capacity int) *Board {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Board{ring: make([]Notice, capacity), now: time.Now}
}

func (b *Board) Notify(n cache.Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	b.ring[b.next] = Notice{
		Seq:      b.seq,
		Kind:     string(n.Kind),
		OrderIDs: slices.Clone(n.OrderIDs),
		Message:  n.Message,
		At:       b.now(),
	}
	b.next = (b.next + 1) % len(b.ring)
	if b.next == 0 {
		b.full = true
	}
}

// Since returns the retained notices with Seq > seq, oldest first.
func (b *Board) Since(seq uint64) []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ordered []Notice
	if b.full {
		ordered = append(ordered, b.ring[b.next:]...)
	}
	ordered = append(ordered, b.ring[:b.next]...)

	out := make([]Notice, 0, len(ordered))
	for _, n := range ordered {
		if n.Seq > seq {
			out = append(out, n)
		}
	}
	return out
}

// Last is the newest sequence number, 0 before the first notice.
func (b *Board) Last() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}
