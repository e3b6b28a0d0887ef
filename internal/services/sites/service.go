// Package sites owns the site registry: registration, explicit removal,
// and operator-facing health summaries. Sites are never deleted silently.
package sites

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"wpfleet/internal/circuit"
	"wpfleet/internal/domain"
	"wpfleet/internal/logging"
	"wpfleet/internal/ports"
)

type Service struct {
	repo     ports.SiteRepository
	breaker  *circuit.Breaker
	validate *validator.Validate

	now   func() time.Time
	newID func() string
}

func New(repo ports.SiteRepository, breaker *circuit.Breaker) *Service {
	return &Service{
		repo:     repo,
		breaker:  breaker,
		validate: validator.New(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// ErrInvalidInput wraps validation failures so the HTTP adapter can map
// them to a 400 without inspecting validator internals.
var ErrInvalidInput = fmt.Errorf("invalid input")

// Register adds a site to the fleet. The base URL is stored without a
// trailing slash; the API key is kept verbatim and never exposed.
func (s *Service) Register(ctx context.Context, in ports.RegisterSiteInput) (domain.Site, error) {
	if err := s.validate.Struct(in); err != nil {
		return domain.Site{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	site := domain.Site{
		ID:             s.newID(),
		Name:           strings.TrimSpace(in.Name),
		BaseURL:        strings.TrimRight(in.BaseURL, "/"),
		APIKey:         in.APIKey,
		LastSyncStatus: domain.SyncStatusNever,
		CreatedAt:      s.now(),
	}
	if err := s.repo.Create(ctx, site); err != nil {
		return domain.Site{}, err
	}
	logging.Info().Str("site_id", site.ID).Str("base_url", site.BaseURL).Msg("site registered")
	return site, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Site, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]domain.Site, error) {
	return s.repo.List(ctx)
}

// Remove deletes a site. Its scan history goes with it; removal is the
// operator's explicit decision.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	logging.Info().Str("site_id", id).Msg("site removed")
	return nil
}

// Health summarizes one site's sync state and circuit condition.
func (s *Service) Health(ctx context.Context, id string) (domain.SiteHealth, error) {
	site, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return domain.SiteHealth{}, err
	}
	return domain.SiteHealth{
		SiteID:         site.ID,
		LastSyncAt:     site.LastSyncAt,
		LastSyncStatus: site.LastSyncStatus,
		Circuit:        s.breaker.Snapshot(site.ID),
	}, nil
}
