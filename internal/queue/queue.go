package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/marketplace-ledger/internal/model"
	"github.com/fairyhunter13/marketplace-ledger/internal/obs"
)

// Queue is an unbounded backlog of committed events in front of a bounded
// hand-off channel read by relay workers. Enqueue never blocks the ledger.
type Queue struct {
	mu      sync.Mutex
	backlog []model.Event
	notify  chan struct{}
	out     chan model.Event
	closed  atomic.Bool

	enqueued  atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

// New creates a Queue whose hand-off channel holds outBuffer events.
func New(outBuffer int) *Queue {
	if outBuffer <= 0 {
		outBuffer = 64
	}
	return &Queue{
		notify: make(chan struct{}, 1),
		out:    make(chan model.Event, outBuffer),
	}
}

// Start runs the broker loop until ctx is done.
func (q *Queue) Start(ctx context.Context, highWatermark int) {
	go q.broker(ctx, highWatermark)
}

func (q *Queue) broker(ctx context.Context, highWatermark int) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	warned := false
	for {
		q.flushOnce()
		if highWatermark > 0 {
			sz := q.BacklogSize()
			switch {
			case sz > highWatermark && !warned:
				obs.Logger.Warn("relay_backlog_high", "backlog_size", sz, "high_watermark", highWatermark)
				warned = true
			case sz <= highWatermark:
				warned = false
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

// flushOnce moves backlog head items into free hand-off slots, preserving
// sequence order.
func (q *Queue) flushOnce() {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for n < len(q.backlog) && len(q.out) < cap(q.out) {
		q.out <- q.backlog[n]
		n++
	}
	if n > 0 {
		q.backlog = append(q.backlog[:0], q.backlog[n:]...)
	}
}

// Enqueue appends ev to the backlog. It reports false once intake is closed.
func (q *Queue) Enqueue(ev model.Event) bool {
	if q.closed.Load() {
		return false
	}
	q.enqueued.Add(1)
	q.mu.Lock()
	q.backlog = append(q.backlog, ev)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Out is read by workers.
func (q *Queue) Out() <-chan model.Event { return q.out }

// BacklogSize returns events not yet handed to workers.
func (q *Queue) BacklogSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Depth returns backlog plus hand-off items.
func (q *Queue) Depth() int {
	q.mu.Lock()
	bl := len(q.backlog)
	q.mu.Unlock()
	return bl + len(q.out)
}

// Done records the outcome of one delivery.
func (q *Queue) Done(ok bool) {
	if ok {
		q.delivered.Add(1)
		return
	}
	q.failed.Add(1)
}

// Stats is a point-in-time view of the queue counters.
type Stats struct {
	Enqueued  uint64 `json:"enqueued"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Backlog   int    `json:"backlog"`
	Depth     int    `json:"depth"`
}

// Settled reports whether every enqueued event has been attempted.
func (s Stats) Settled() bool {
	return s.Depth == 0 && s.Enqueued == s.Delivered+s.Failed
}

func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:  q.enqueued.Load(),
		Delivered: q.delivered.Load(),
		Failed:    q.failed.Load(),
		Backlog:   q.BacklogSize(),
		Depth:     q.Depth(),
	}
}

// CloseIntake rejects further enqueues.
func (q *Queue) CloseIntake() { q.closed.Store(true) }

// Closed reports whether intake has been closed.
func (q *Queue) Closed() bool { return q.closed.Load() }
