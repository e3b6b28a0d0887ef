// Package memory provides in-memory implementations of the repository
// ports. The coordinator and services take repositories by interface, so
// tests inject these instead of touching a database.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"wpfleet/internal/domain"
	"wpfleet/internal/ports"
)

// SiteStore is an in-memory ports.SiteRepository.
type SiteStore struct {
	mu    sync.RWMutex
	sites map[string]domain.Site
	order []string
}

func NewSiteStore() *SiteStore {
	return &SiteStore{sites: make(map[string]domain.Site)}
}

func (s *SiteStore) Create(_ context.Context, site domain.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[site.ID] = site
	s.order = append(s.order, site.ID)
	return nil
}

func (s *SiteStore) GetByID(_ context.Context, id string) (domain.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[id]
	if !ok {
		return domain.Site{}, ports.ErrNotFound
	}
	return site, nil
}

func (s *SiteStore) List(_ context.Context) ([]domain.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Site, 0, len(s.order))
	for _, id := range s.order {
		if site, ok := s.sites[id]; ok {
			out = append(out, site)
		}
	}
	return out, nil
}

func (s *SiteStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sites[id]; !ok {
		return ports.ErrNotFound
	}
	delete(s.sites, id)
	return nil
}

func (s *SiteStore) RecordSync(_ context.Context, id string, status domain.SyncStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[id]
	if !ok {
		return ports.ErrNotFound
	}
	t := at
	site.LastSyncAt = &t
	site.LastSyncStatus = status
	s.sites[id] = site
	return nil
}

// ScanStore is an in-memory ports.ScanRepository with the same append-only
// and immutability guarantees as the Postgres store.
type ScanStore struct {
	mu      sync.Mutex
	records map[string]*domain.ScanRecord
	order   []string // creation order, used by ClaimNext
}

func NewScanStore() *ScanStore {
	return &ScanStore{records: make(map[string]*domain.ScanRecord)}
}

func (s *ScanStore) Create(_ context.Context, rec domain.ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneRecord(rec)
	s.records[rec.ID] = &cp
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *ScanStore) ClaimNext(_ context.Context) (domain.ScanRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		rec := s.records[id]
		if rec != nil && rec.Status == domain.ScanStatusPending {
			rec.Status = domain.ScanStatusRunning
			return cloneRecord(*rec), true, nil
		}
	}
	return domain.ScanRecord{}, false, nil
}

func (s *ScanStore) Start(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.Status != domain.ScanStatusPending {
		return false, nil
	}
	rec.Status = domain.ScanStatusRunning
	return true, nil
}

func (s *ScanStore) Complete(_ context.Context, id string, score int, findings []domain.Finding, raw json.RawMessage, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ports.ErrNotFound
	}
	if rec.Status.Terminal() {
		return ports.ErrRecordTerminal
	}
	rec.Status = domain.ScanStatusCompleted
	rec.OverallScore = score
	rec.Findings = append([]domain.Finding(nil), findings...)
	rec.RawData = append(json.RawMessage(nil), raw...)
	t := completedAt
	rec.CompletedAt = &t
	return nil
}

func (s *ScanStore) Fail(_ context.Context, id string, reason string, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ports.ErrNotFound
	}
	if rec.Status.Terminal() {
		return ports.ErrRecordTerminal
	}
	rec.Status = domain.ScanStatusFailed
	rec.Error = reason
	t := completedAt
	rec.CompletedAt = &t
	return nil
}

func (s *ScanStore) GetByID(_ context.Context, id string) (domain.ScanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.ScanRecord{}, ports.ErrNotFound
	}
	return cloneRecord(*rec), nil
}

func (s *ScanStore) Latest(_ context.Context, siteID string, scanType domain.ScanType) (domain.ScanRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.terminal(siteID, scanType, func(r *domain.ScanRecord) bool {
		return r.Status == domain.ScanStatusCompleted
	})
	if len(recs) == 0 {
		return domain.ScanRecord{}, false, nil
	}
	return recs[0], true, nil
}

func (s *ScanStore) History(_ context.Context, siteID string, scanType domain.ScanType, limit int) ([]domain.ScanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.terminal(siteID, scanType, func(r *domain.ScanRecord) bool {
		return r.Status.Terminal()
	})
	if limit <= 0 {
		limit = 20
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// terminal returns matching records newest first. Callers hold the lock.
func (s *ScanStore) terminal(siteID string, scanType domain.ScanType, match func(*domain.ScanRecord) bool) []domain.ScanRecord {
	out := make([]domain.ScanRecord, 0)
	for _, rec := range s.records {
		if rec.SiteID == siteID && rec.ScanType == scanType && match(rec) {
			out = append(out, cloneRecord(*rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].CompletedAt, out[j].CompletedAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		}
		return ti.After(*tj)
	})
	return out
}

func cloneRecord(rec domain.ScanRecord) domain.ScanRecord {
	cp := rec
	cp.Findings = append([]domain.Finding(nil), rec.Findings...)
	cp.RawData = append(json.RawMessage(nil), rec.RawData...)
	if rec.CompletedAt != nil {
		t := *rec.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}
