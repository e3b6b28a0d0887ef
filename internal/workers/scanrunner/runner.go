// Package scanrunner executes pending scan records in the background.
// A dispatcher claims records from the store and hands them to a bounded
// set of workers; the blocking API path reuses the same processor through
// ProcessInline so both paths behave identically.
package scanrunner

import (
	"context"
	"errors"
	"time"

	"wpfleet/internal/domain"
	"wpfleet/internal/logging"
	"wpfleet/internal/ports"
)

// Processor performs the scan work for one claimed record and freezes it
// as completed. Returning an error means the runner marks it failed unless
// the processor already did.
type Processor interface {
	Process(ctx context.Context, rec domain.ScanRecord) error
}

// Run starts worker goroutines that claim pending scan records and process
// them until ctx is cancelled.
func Run(ctx context.Context, repo ports.ScanRepository, processor Processor, concurrency int, pollInterval time.Duration) {
	if concurrency < 1 {
		return
	}
	jobs := make(chan domain.ScanRecord, concurrency)

	// dispatcher loop
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(jobs)
				return
			case <-ticker.C:
				for {
					rec, found, err := repo.ClaimNext(ctx)
					if err != nil {
						logging.Error().Err(err).Msg("scan claim error")
						break
					}
					if !found {
						break
					}
					select {
					case jobs <- rec:
					case <-ctx.Done():
						logging.Warn().Str("scan_id", rec.ID).Msg("claimed scan dropped at shutdown")
						close(jobs)
						return
					}
				}
			}
		}
	}()

	// workers
	for i := 0; i < concurrency; i++ {
		go func(idx int) {
			for rec := range jobs {
				if err := processor.Process(ctx, rec); err != nil {
					logging.Warn().Err(err).
						Int("worker", idx).
						Str("scan_id", rec.ID).
						Msg("scan failed")
				}
			}
		}(i)
	}
}

// ErrAlreadyClaimed reports that a record was claimed by someone else
// before the inline path could take it.
var ErrAlreadyClaimed = errors.New("scan record already claimed")

// ProcessInline claims and processes one specific record synchronously
// using the same processor logic as the background workers.
func ProcessInline(ctx context.Context, repo ports.ScanRepository, processor Processor, rec domain.ScanRecord) error {
	claimed, err := repo.Start(ctx, rec.ID)
	if err != nil {
		return err
	}
	if !claimed {
		// A background worker got there first; it owns the record now.
		return ErrAlreadyClaimed
	}
	rec.Status = domain.ScanStatusRunning
	return processor.Process(ctx, rec)
}
