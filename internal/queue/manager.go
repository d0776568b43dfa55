// Package queue relays committed ledger events to external sinks through an
// in-memory backlog and an autoscaling worker pool.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/fairyhunter13/marketplace-ledger/internal/config"
	"github.com/fairyhunter13/marketplace-ledger/internal/events"
	"github.com/fairyhunter13/marketplace-ledger/internal/model"
	"github.com/fairyhunter13/marketplace-ledger/internal/obs"
)

// ErrIntakeClosed is returned by Publish after CloseIntake.
var ErrIntakeClosed = errors.New("relay intake closed")

// Manager is an events.Sink that accepts events without blocking and
// delivers them to a downstream sink from a pool of workers. Workers deliver
// concurrently, so consumers reorder by Event.Sequence.
type Manager struct {
	cfg    config.Relay
	q      *Queue
	sink   events.Sink
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	workerCancels []context.CancelFunc
}

// NewManager constructs a Manager delivering from q to sink.
func NewManager(cfg config.Relay, q *Queue, sink events.Sink) *Manager {
	if cfg.PublishAttempts < 1 {
		cfg.PublishAttempts = 1
	}
	return &Manager{cfg: cfg, q: q, sink: sink}
}

// Start begins delivery and autoscaling in the background.
func (m *Manager) Start(parent context.Context) {
	m.ctx, m.cancel = context.WithCancel(parent)
	m.q.Start(m.ctx, m.cfg.QueueHighWatermark)
	m.addWorkers(m.cfg.InitialWorkerCount)
	go m.scaler()
}

// Stop cancels background routines and stops workers.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Lock()
	for _, c := range m.workerCancels {
		c()
	}
	m.workerCancels = nil
	m.mu.Unlock()
}

func (m *Manager) scaler() {
	t := time.NewTicker(m.cfg.ScaleInterval)
	defer t.Stop()
	idleTicks := 0
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-t.C:
			backlog := m.q.BacklogSize()
			wc := m.WorkerCount()
			if backlog > wc*m.cfg.ScaleUpBacklogPerWorker && wc < m.cfg.WorkerMax {
				m.addWorkers(1)
				idleTicks = 0
				continue
			}
			if backlog == 0 {
				idleTicks++
				if idleTicks >= m.cfg.ScaleDownIdleTicks && wc > m.cfg.WorkerMin {
					m.removeWorkers(1)
					idleTicks = 0
				}
			} else {
				idleTicks = 0
			}
		}
	}
}

func (m *Manager) addWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		wctx, cancel := context.WithCancel(m.ctx)
		m.workerCancels = append(m.workerCancels, cancel)
		go m.worker(wctx)
	}
	obs.Logger.Info("relay_workers_scaled", "worker_count", len(m.workerCancels))
}

func (m *Manager) removeWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.workerCancels) {
		n = len(m.workerCancels)
	}
	for i := 0; i < n; i++ {
		c := m.workerCancels[len(m.workerCancels)-1]
		m.workerCancels = m.workerCancels[:len(m.workerCancels)-1]
		c()
	}
	obs.Logger.Info("relay_workers_scaled", "worker_count", len(m.workerCancels))
}

func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.q.Out():
			m.q.Done(m.deliver(ev))
		}
	}
}

// deliver publishes ev with bounded retries. Delivery keeps going after the
// worker is scaled down so an event taken off the queue is never lost.
func (m *Manager) deliver(ev model.Event) bool {
	var err error
	for attempt := 1; attempt <= m.cfg.PublishAttempts; attempt++ {
		if err = m.sink.Publish(context.Background(), ev); err == nil {
			return true
		}
		if attempt < m.cfg.PublishAttempts {
			time.Sleep(m.cfg.RetryBackoff * time.Duration(attempt))
		}
	}
	obs.Logger.Warn("relay_delivery_failed",
		"sequence", ev.Sequence,
		"kind", string(ev.Kind),
		"product_id", ev.ID,
		"attempts", m.cfg.PublishAttempts,
		"error", err,
	)
	return false
}

// Publish enqueues ev for asynchronous delivery.
func (m *Manager) Publish(_ context.Context, ev model.Event) error {
	if !m.q.Enqueue(ev) {
		return ErrIntakeClosed
	}
	return nil
}

// BacklogSize returns events waiting for a worker.
func (m *Manager) BacklogSize() int { return m.q.BacklogSize() }

// WorkerCount returns the current number of workers.
func (m *Manager) WorkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workerCancels)
}

// IsShuttingDown reports whether new events are rejected.
func (m *Manager) IsShuttingDown() bool { return m.q.Closed() }

// CloseIntake rejects future events.
func (m *Manager) CloseIntake() { m.q.CloseIntake() }

// Stats exposes the queue counters.
func (m *Manager) Stats() Stats { return m.q.Stats() }

// DrainUntil blocks until every accepted event has been attempted or ctx is
// done.
func (m *Manager) DrainUntil(ctx context.Context) bool {
	for {
		if m.q.Stats().Settled() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
