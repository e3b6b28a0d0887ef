// Package remote proxies operator-triggered actions (updates, maintenance
// mode, plugin/theme toggles) to a site's management plugin. Responses are
// passed through as raw JSON for the dashboard to render; errors keep the
// client's typed kinds so stale keys surface distinctly from outages.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"wpfleet/internal/domain"
	"wpfleet/internal/logging"
	"wpfleet/internal/ports"
	"wpfleet/internal/wpclient"
)

type Service struct {
	repo     ports.SiteRepository
	client   *wpclient.Client
	validate *validator.Validate
}

func New(repo ports.SiteRepository, client *wpclient.Client) *Service {
	return &Service{repo: repo, client: client, validate: validator.New()}
}

// ErrInvalidRequest wraps validation failures so the HTTP adapter can map
// them to a 400.
var ErrInvalidRequest = fmt.Errorf("invalid request")

func (s *Service) PerformUpdates(ctx context.Context, siteID string, req ports.UpdateRequest) (json.RawMessage, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return s.do(ctx, siteID, "perform updates", func(site domain.Site) (json.RawMessage, error) {
		return s.client.PerformUpdates(ctx, site, req.Type, req.Items)
	})
}

func (s *Service) ActivatePlugin(ctx context.Context, siteID, plugin string) (json.RawMessage, error) {
	return s.do(ctx, siteID, "activate plugin", func(site domain.Site) (json.RawMessage, error) {
		return s.client.ActivatePlugin(ctx, site, plugin)
	})
}

func (s *Service) DeactivatePlugin(ctx context.Context, siteID, plugin string) (json.RawMessage, error) {
	return s.do(ctx, siteID, "deactivate plugin", func(site domain.Site) (json.RawMessage, error) {
		return s.client.DeactivatePlugin(ctx, site, plugin)
	})
}

func (s *Service) ActivateTheme(ctx context.Context, siteID, theme string) (json.RawMessage, error) {
	return s.do(ctx, siteID, "activate theme", func(site domain.Site) (json.RawMessage, error) {
		return s.client.ActivateTheme(ctx, site, theme)
	})
}

func (s *Service) MaintenanceStatus(ctx context.Context, siteID string) (json.RawMessage, error) {
	return s.do(ctx, siteID, "maintenance status", func(site domain.Site) (json.RawMessage, error) {
		return s.client.MaintenanceStatus(ctx, site)
	})
}

func (s *Service) EnableMaintenance(ctx context.Context, siteID, message string) (json.RawMessage, error) {
	return s.do(ctx, siteID, "enable maintenance", func(site domain.Site) (json.RawMessage, error) {
		return s.client.EnableMaintenance(ctx, site, message)
	})
}

func (s *Service) DisableMaintenance(ctx context.Context, siteID string) (json.RawMessage, error) {
	return s.do(ctx, siteID, "disable maintenance", func(site domain.Site) (json.RawMessage, error) {
		return s.client.DisableMaintenance(ctx, site)
	})
}

func (s *Service) BackupStatus(ctx context.Context, siteID string) (json.RawMessage, error) {
	return s.do(ctx, siteID, "backup status", func(site domain.Site) (json.RawMessage, error) {
		return s.client.BackupStatus(ctx, site)
	})
}

func (s *Service) do(ctx context.Context, siteID, action string, call func(domain.Site) (json.RawMessage, error)) (json.RawMessage, error) {
	site, err := s.repo.GetByID(ctx, siteID)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	raw, err := call(site)
	if err != nil {
		logging.Warn().Err(err).
			Str("site_id", siteID).
			Str("action", action).
			Msg("remote action failed")
		return nil, err
	}
	logging.Info().
		Str("site_id", siteID).
		Str("action", action).
		Dur("elapsed", time.Since(start)).
		Msg("remote action performed")
	return raw, nil
}
