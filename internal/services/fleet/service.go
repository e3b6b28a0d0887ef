// Package fleet coordinates sync attempts across the registered sites:
// bounded-concurrency fan-out, per-site circuit breaking, outcome recording.
// One slow or broken site never stalls the others; its failure is reported
// alongside the successes in the same report.
package fleet

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"wpfleet/internal/circuit"
	"wpfleet/internal/domain"
	"wpfleet/internal/logging"
	"wpfleet/internal/normalize"
	"wpfleet/internal/ports"
	"wpfleet/internal/wpclient"
)

const DefaultWorkers = 10

// Config wires the coordinator's collaborators. Repositories come in by
// interface so tests can inject in-memory fakes.
type Config struct {
	Sites   ports.SiteRepository
	Client  *wpclient.Client
	Breaker *circuit.Breaker
	// Workers bounds concurrent site fetches; DefaultWorkers when zero.
	Workers int
	// RequestsPerSecond paces outbound traffic across all workers;
	// zero means unlimited.
	RequestsPerSecond float64
	Burst             int
}

type Service struct {
	sites   ports.SiteRepository
	client  *wpclient.Client
	breaker *circuit.Breaker
	workers int
	limiter *rate.Limiter
	hosts   *hostLimiter

	now func() time.Time
}

func New(cfg Config) *Service {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Service{
		sites:   cfg.Sites,
		client:  cfg.Client,
		breaker: cfg.Breaker,
		workers: workers,
		limiter: limiter,
		hosts:   newHostLimiter(),
		now:     time.Now,
	}
}

// SyncAll runs one fleet sync and blocks until every scheduled attempt has
// finished. It only reads remote state and writes derived local fields, so
// repeated calls are always safe.
func (s *Service) SyncAll(ctx context.Context) (domain.FleetSyncReport, error) {
	report := domain.FleetSyncReport{StartedAt: s.now()}

	sites, err := s.sites.List(ctx)
	if err != nil {
		return report, err
	}

	for res := range s.Stream(ctx, sites) {
		report.Results = append(report.Results, res)
		switch {
		case res.Skipped:
			report.Skipped++
		case res.Success:
			report.Succeeded++
		default:
			report.Failed++
		}
	}
	report.FinishedAt = s.now()

	logging.Info().
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("fleet sync finished")
	return report, nil
}

// Stream fans the given sites out over the worker pool and emits results as
// they complete, in no particular order. Cancelling ctx stops scheduling
// new attempts; in-flight ones finish or time out on their own deadline.
func (s *Service) Stream(ctx context.Context, sites []domain.Site) <-chan domain.SyncResult {
	jobs := make(chan domain.Site)
	results := make(chan domain.SyncResult, len(sites))

	var wg sync.WaitGroup
	wg.Add(s.workers)
	for i := 0; i < s.workers; i++ {
		go func() {
			defer wg.Done()
			for site := range jobs {
				results <- s.attempt(ctx, site)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, site := range sites {
			if !s.breaker.ShouldAttempt(site.ID) {
				results <- domain.SyncResult{
					SiteID:    site.ID,
					Skipped:   true,
					Timestamp: s.now(),
				}
				continue
			}
			select {
			case jobs <- site:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

// SyncSite syncs one site regardless of its circuit state (a manual sync is
// an implicit "retry now").
func (s *Service) SyncSite(ctx context.Context, siteID string) (domain.SyncResult, error) {
	site, err := s.sites.GetByID(ctx, siteID)
	if err != nil {
		return domain.SyncResult{}, err
	}
	s.breaker.Reset(site.ID)
	return s.attempt(ctx, site), nil
}

// ResetCircuit clears a site's failure streak and skip horizon.
func (s *Service) ResetCircuit(siteID string) {
	s.breaker.Reset(siteID)
}

// attempt performs one site's fetch-and-normalize cycle and folds the
// outcome into the circuit state and the site's last-sync fields.
func (s *Service) attempt(ctx context.Context, site domain.Site) domain.SyncResult {
	start := s.now()

	payload, err := s.collect(ctx, site)

	res := domain.SyncResult{
		SiteID:    site.ID,
		Timestamp: s.now(),
		Duration:  s.now().Sub(start),
	}

	if err == nil {
		res.Payload, err = normalize.Record(payload, res.Timestamp)
	}
	if err != nil {
		res.ErrorKind, res.Detail = classify(err)
	} else {
		res.Success = true
	}

	s.breaker.RecordOutcome(site.ID, res.Success)
	status := domain.SyncStatusOK
	if !res.Success {
		status = domain.SyncStatusError
	}
	if err := s.sites.RecordSync(ctx, site.ID, status, res.Timestamp); err != nil {
		logging.Error().Err(err).Str("site_id", site.ID).Msg("record sync status")
	}

	if !res.Success {
		logging.Warn().
			Str("site_id", site.ID).
			Str("error_kind", string(res.ErrorKind)).
			Str("detail", res.Detail).
			Msg("site sync failed")
	}
	return res
}

// collect fetches the endpoints that make up the local mirror. The first
// failing call aborts this site only. Each request start is paced; pacing
// never blocks on another site's in-flight call.
func (s *Service) collect(ctx context.Context, site domain.Site) (normalize.RawPayload, error) {
	var p normalize.RawPayload
	var err error

	s.pace(ctx, site)
	if p.Status, err = s.client.Status(ctx, site); err != nil {
		return p, err
	}
	s.pace(ctx, site)
	if p.Updates, err = s.client.Updates(ctx, site); err != nil {
		return p, err
	}
	s.pace(ctx, site)
	if p.Plugins, err = s.client.Plugins(ctx, site); err != nil {
		return p, err
	}
	s.pace(ctx, site)
	if p.Themes, err = s.client.Themes(ctx, site); err != nil {
		return p, err
	}
	s.pace(ctx, site)
	if p.Users, err = s.client.Users(ctx, site, true); err != nil {
		return p, err
	}
	return p, nil
}

// pace applies the global and per-host-group start budgets.
func (s *Service) pace(ctx context.Context, site domain.Site) {
	if s.limiter != nil {
		_ = s.limiter.Wait(ctx)
	}
	s.hosts.wait(ctx, site.BaseURL)
}

// classify maps an error to the reporting taxonomy.
func classify(err error) (domain.ErrorKind, string) {
	var ne *normalize.Error
	if errors.As(err, &ne) {
		return domain.ErrKindNormalization, ne.Error()
	}
	return wpclient.KindOf(err), err.Error()
}
