package scanrunner

import (
	"context"
	"sync"
	"testing"
	"time"

	"wpfleet/internal/adapters/memory"
	"wpfleet/internal/domain"
)

// slowProcessor blocks inside Process until the run context is cancelled,
// recording which records it saw.
type slowProcessor struct {
	mu      sync.Mutex
	seen    []string
	started chan struct{}
}

func (p *slowProcessor) Process(ctx context.Context, rec domain.ScanRecord) error {
	p.mu.Lock()
	p.seen = append(p.seen, rec.ID)
	p.mu.Unlock()
	select {
	case p.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil
}

func (p *slowProcessor) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.seen))
	copy(out, p.seen)
	return out
}

func TestRunShutdownStopsDispatchingBacklog(t *testing.T) {
	store := memory.NewScanStore()
	for _, id := range []string{"scan-1", "scan-2", "scan-3"} {
		rec := domain.ScanRecord{
			ID:        id,
			SiteID:    "site-1",
			ScanType:  domain.ScanTypeSecurity,
			Status:    domain.ScanStatusPending,
			StartedAt: time.Now(),
		}
		if err := store.Create(context.Background(), rec); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	proc := &slowProcessor{started: make(chan struct{}, 1)}
	ctx, cancel := context.WithCancel(context.Background())

	// One worker: it blocks on scan-1, scan-2 sits in the job buffer and
	// the dispatcher is parked trying to hand off scan-3.
	Run(ctx, store, proc, 1, 10*time.Millisecond)

	select {
	case <-proc.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never started processing")
	}
	time.Sleep(50 * time.Millisecond)

	cancel()
	time.Sleep(100 * time.Millisecond)

	ids := proc.ids()
	for _, id := range ids {
		if id == "scan-3" {
			t.Fatalf("record dispatched after shutdown: %v", ids)
		}
	}
	if len(ids) == 0 || ids[0] != "scan-1" {
		t.Fatalf("expected scan-1 first, got %v", ids)
	}
}
