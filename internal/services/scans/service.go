// Package scans owns the scan lifecycle: records are created pending,
// claimed to running, and frozen at completed or failed. The background
// workers and the blocking API path share one processor, so a scan behaves
// the same either way.
package scans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wpfleet/internal/domain"
	"wpfleet/internal/logging"
	"wpfleet/internal/normalize"
	"wpfleet/internal/ports"
	"wpfleet/internal/probe"
	"wpfleet/internal/scoring"
	"wpfleet/internal/workers/scanrunner"
	"wpfleet/internal/wpclient"
)

type Service struct {
	sites  ports.SiteRepository
	scans  ports.ScanRepository
	client *wpclient.Client
	prober *probe.Prober
	engine *scoring.Engine

	now   func() time.Time
	newID func() string
}

func New(sites ports.SiteRepository, scans ports.ScanRepository, client *wpclient.Client, prober *probe.Prober, engine *scoring.Engine) *Service {
	return &Service{
		sites:  sites,
		scans:  scans,
		client: client,
		prober: prober,
		engine: engine,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Run creates a pending record for the site. With wait=true the record is
// processed inline and returned in its terminal state; otherwise the
// background workers pick it up.
func (s *Service) Run(ctx context.Context, siteID string, scanType domain.ScanType, wait bool) (domain.ScanRecord, error) {
	if !scanType.Valid() {
		return domain.ScanRecord{}, fmt.Errorf("%w: unknown scan type %q", ErrBadScanType, scanType)
	}
	site, err := s.sites.GetByID(ctx, siteID)
	if err != nil {
		return domain.ScanRecord{}, err
	}

	rec := domain.ScanRecord{
		ID:        s.newID(),
		SiteID:    site.ID,
		ScanType:  scanType,
		Status:    domain.ScanStatusPending,
		StartedAt: s.now(),
	}
	if err := s.scans.Create(ctx, rec); err != nil {
		return domain.ScanRecord{}, err
	}
	if !wait {
		return rec, nil
	}

	if err := scanrunner.ProcessInline(ctx, s.scans, s, rec); err != nil {
		if errors.Is(err, scanrunner.ErrAlreadyClaimed) {
			// A background worker owns the record; wait for it to freeze.
			return s.awaitTerminal(ctx, rec.ID)
		}
		logging.Warn().Err(err).Str("scan_id", rec.ID).Msg("inline scan failed")
	}
	return s.scans.GetByID(ctx, rec.ID)
}

// awaitTerminal polls until the record reaches completed or failed.
func (s *Service) awaitTerminal(ctx context.Context, scanID string) (domain.ScanRecord, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		rec, err := s.scans.GetByID(ctx, scanID)
		if err != nil || rec.Status.Terminal() {
			return rec, err
		}
		select {
		case <-ctx.Done():
			return rec, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) Get(ctx context.Context, scanID string) (domain.ScanRecord, error) {
	return s.scans.GetByID(ctx, scanID)
}

func (s *Service) Latest(ctx context.Context, siteID string, scanType domain.ScanType) (domain.ScanRecord, bool, error) {
	return s.scans.Latest(ctx, siteID, scanType)
}

func (s *Service) History(ctx context.Context, siteID string, scanType domain.ScanType, limit int) ([]domain.ScanRecord, error) {
	return s.scans.History(ctx, siteID, scanType, limit)
}

// Trend compares the two most recent completed records of one type.
func (s *Service) Trend(ctx context.Context, siteID string, scanType domain.ScanType) (domain.ScanTrend, error) {
	trend := domain.ScanTrend{SiteID: siteID, ScanType: scanType}

	history, err := s.scans.History(ctx, siteID, scanType, 10)
	if err != nil {
		return trend, err
	}
	completed := make([]domain.ScanRecord, 0, 2)
	for _, rec := range history {
		if rec.Status == domain.ScanStatusCompleted {
			completed = append(completed, rec)
			if len(completed) == 2 {
				break
			}
		}
	}
	if len(completed) == 0 {
		return trend, ports.ErrNotFound
	}
	trend.LatestScore = completed[0].OverallScore
	trend.LatestAt = completed[0].CompletedAt
	if len(completed) == 2 {
		trend.PreviousScore = completed[1].OverallScore
		trend.PreviousAt = completed[1].CompletedAt
		trend.Delta = trend.LatestScore - trend.PreviousScore
	}
	return trend, nil
}

// ErrBadScanType marks an unknown scan type in a request.
var ErrBadScanType = errString("invalid scan type")

type errString string

func (e errString) Error() string { return string(e) }

// Process executes one claimed scan record through fetch, normalize, probe
// and score, then freezes the record. It implements scanrunner.Processor.
func (s *Service) Process(ctx context.Context, rec domain.ScanRecord) error {
	site, err := s.sites.GetByID(ctx, rec.SiteID)
	if err != nil {
		return s.fail(ctx, rec.ID, domain.ErrKindStore, err)
	}

	normalized, err := s.gather(ctx, site, rec.ScanType)
	if err != nil {
		return s.fail(ctx, rec.ID, classify(err), err)
	}

	score, findings := s.engine.Score(normalized, rec.ScanType)
	raw, err := json.Marshal(normalized)
	if err != nil {
		return s.fail(ctx, rec.ID, domain.ErrKindMalformed, err)
	}

	if err := s.scans.Complete(ctx, rec.ID, score, findings, raw, s.now()); err != nil {
		// A store failure must not leave the record dangling as running.
		logging.Error().Err(err).Str("scan_id", rec.ID).Msg("persist scan result")
		return s.fail(ctx, rec.ID, domain.ErrKindStore, err)
	}

	logging.Info().
		Str("scan_id", rec.ID).
		Str("site_id", rec.SiteID).
		Str("scan_type", string(rec.ScanType)).
		Int("score", score).
		Msg("scan completed")
	return nil
}

// gather assembles the normalized record a scan type needs. Performance and
// SEO scans probe the public front page; security scans rely on the
// management API alone.
func (s *Service) gather(ctx context.Context, site domain.Site, scanType domain.ScanType) (*domain.NormalizedRecord, error) {
	var p normalize.RawPayload
	var err error

	if p.Status, err = s.client.Status(ctx, site); err != nil {
		return nil, err
	}
	if scanType == domain.ScanTypeSecurity {
		if p.Updates, err = s.client.Updates(ctx, site); err != nil {
			return nil, err
		}
		if p.Plugins, err = s.client.Plugins(ctx, site); err != nil {
			return nil, err
		}
		if p.Themes, err = s.client.Themes(ctx, site); err != nil {
			return nil, err
		}
		if p.Users, err = s.client.Users(ctx, site, false); err != nil {
			return nil, err
		}
	}

	rec, err := normalize.Record(p, s.now())
	if err != nil {
		return nil, err
	}

	if scanType == domain.ScanTypePerformance || scanType == domain.ScanTypeSEO {
		page, err := s.prober.FrontPage(ctx, site.BaseURL)
		if err != nil {
			// The probe failing is a finding, not a scan failure; the
			// engine scores the absence.
			logging.Warn().Err(err).Str("site_id", site.ID).Msg("front page probe failed")
		} else {
			rec.Page = &page
		}
	}
	return rec, nil
}

// fail freezes the record as failed; the record carries the error kind so
// the dashboard can distinguish stale keys from outages.
func (s *Service) fail(ctx context.Context, recID string, kind domain.ErrorKind, cause error) error {
	reason := fmt.Sprintf("%s: %v", kind, cause)
	if err := s.scans.Fail(ctx, recID, reason, s.now()); err != nil {
		logging.Error().Err(err).Str("scan_id", recID).Msg("mark scan failed")
	}
	return cause
}

func classify(err error) domain.ErrorKind {
	var ne *normalize.Error
	if errors.As(err, &ne) {
		return domain.ErrKindNormalization
	}
	return wpclient.KindOf(err)
}
