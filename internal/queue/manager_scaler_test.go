package queue

import (
	"context"
	"testing"
	"time"

	"github.com/fairyhunter13/marketplace-ledger/internal/events"
	"github.com/fairyhunter13/marketplace-ledger/internal/model"
)

func TestManagerScaler_UpAndDown(t *testing.T) {
	cfg := relayConfig()
	cfg.WorkerMax = 3
	cfg.ScaleUpBacklogPerWorker = 1
	cfg.ScaleDownIdleTicks = 1
	cfg.OutBuffer = 1

	// a slow sink keeps the backlog above the scale-up threshold
	slow := events.SinkFunc(func(context.Context, model.Event) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	mgr := NewManager(cfg, New(cfg.OutBuffer), slow)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.Stop()

	for i := uint64(1); i <= 100; i++ {
		_ = mgr.Publish(ctx, ev(i))
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mgr.WorkerCount() > 1 {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	if wc := mgr.WorkerCount(); wc <= 1 {
		t.Fatalf("expected scale up, worker_count=%d", wc)
	}

	ctxDrain, cancelDrain := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDrain()
	if !mgr.DrainUntil(ctxDrain) {
		t.Fatalf("drain timeout")
	}

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mgr.WorkerCount() == cfg.WorkerMin {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if wc := mgr.WorkerCount(); wc != cfg.WorkerMin {
		t.Fatalf("expected scale down to %d, got %d", cfg.WorkerMin, wc)
	}
}
