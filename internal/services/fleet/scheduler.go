package fleet

import (
	"context"
	"time"

	"wpfleet/internal/logging"
)

// RunScheduler triggers a fleet sync on a fixed cadence until ctx is
// cancelled. An initial sync runs at startup so the dashboard is not empty
// until the first tick.
func (s *Service) RunScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	logging.Info().Dur("interval", interval).Msg("fleet sync scheduler started")

	if _, err := s.SyncAll(ctx); err != nil {
		logging.Error().Err(err).Msg("initial fleet sync")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("fleet sync scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.SyncAll(ctx); err != nil {
				logging.Error().Err(err).Msg("scheduled fleet sync")
			}
		}
	}
}
