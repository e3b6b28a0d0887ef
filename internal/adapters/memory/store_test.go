package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wpfleet/internal/domain"
	"wpfleet/internal/ports"
)

func TestSiteStoreListPreservesOrder(t *testing.T) {
	s := NewSiteStore()
	for _, id := range []string{"c", "a", "b"} {
		if err := s.Create(context.Background(), domain.Site{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	list, err := s.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[0].ID != "c" || list[1].ID != "a" || list[2].ID != "b" {
		t.Errorf("list = %+v", list)
	}
}

func TestSiteStoreRecordSyncUnknownSite(t *testing.T) {
	s := NewSiteStore()
	err := s.RecordSync(context.Background(), "ghost", domain.SyncStatusOK, time.Now())
	if !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestScanStoreClaimNextIsExclusive(t *testing.T) {
	s := NewScanStore()
	const n = 20
	for i := 0; i < n; i++ {
		rec := domain.ScanRecord{
			ID:       string(rune('a' + i)),
			SiteID:   "site-1",
			ScanType: domain.ScanTypeSecurity,
			Status:   domain.ScanStatusPending,
		}
		if err := s.Create(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}

	var mu sync.Mutex
	claimed := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				rec, found, err := s.ClaimNext(context.Background())
				if err != nil {
					t.Error(err)
					return
				}
				if !found {
					return
				}
				mu.Lock()
				claimed[rec.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != n {
		t.Errorf("claimed %d records, want %d", len(claimed), n)
	}
	for id, count := range claimed {
		if count != 1 {
			t.Errorf("record %s claimed %d times", id, count)
		}
	}
}

func TestScanStoreStartOnlyClaimsPending(t *testing.T) {
	s := NewScanStore()
	rec := domain.ScanRecord{ID: "r1", SiteID: "s", ScanType: domain.ScanTypeSEO, Status: domain.ScanStatusPending}
	if err := s.Create(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	ok, err := s.Start(context.Background(), "r1")
	if err != nil || !ok {
		t.Fatalf("first Start: ok=%v err=%v", ok, err)
	}
	ok, err = s.Start(context.Background(), "r1")
	if err != nil || ok {
		t.Fatalf("second Start: ok=%v err=%v", ok, err)
	}
}

func TestScanStoreReturnsCopies(t *testing.T) {
	s := NewScanStore()
	rec := domain.ScanRecord{ID: "r1", SiteID: "s", ScanType: domain.ScanTypeSEO, Status: domain.ScanStatusPending}
	if err := s.Create(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Start(context.Background(), "r1"); err != nil {
		t.Fatal(err)
	}
	findings := []domain.Finding{{Category: "x", Severity: domain.SeverityNotice, Description: "d"}}
	if err := s.Complete(context.Background(), "r1", 80, findings, nil, time.Now()); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetByID(context.Background(), "r1")
	if err != nil {
		t.Fatal(err)
	}
	got.Findings[0].Description = "mutated"
	got.OverallScore = 1

	again, _ := s.GetByID(context.Background(), "r1")
	if again.Findings[0].Description != "d" || again.OverallScore != 80 {
		t.Error("stored record was mutated through a returned copy")
	}
}

func TestScanStoreHistoryLimit(t *testing.T) {
	s := NewScanStore()
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		rec := domain.ScanRecord{ID: id, SiteID: "s", ScanType: domain.ScanTypeSecurity, Status: domain.ScanStatusPending}
		if err := s.Create(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Start(context.Background(), id); err != nil {
			t.Fatal(err)
		}
		if err := s.Complete(context.Background(), id, i*10, nil, nil, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatal(err)
		}
	}

	history, err := s.History(context.Background(), "s", domain.ScanTypeSecurity, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d", len(history))
	}
	// Newest first.
	if history[0].ID != "e" || history[1].ID != "d" || history[2].ID != "c" {
		t.Errorf("order = %s %s %s", history[0].ID, history[1].ID, history[2].ID)
	}
}
