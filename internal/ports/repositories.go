package ports

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"wpfleet/internal/domain"
)

// ErrNotFound is returned by repositories when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrRecordTerminal is returned when a mutation targets a scan record that
// has already reached completed or failed.
var ErrRecordTerminal = errors.New("scan record is terminal")

// SiteRepository owns the site registry. The coordinator only reads sites
// and writes back the last-sync fields via RecordSync.
type SiteRepository interface {
	Create(ctx context.Context, site domain.Site) error
	GetByID(ctx context.Context, id string) (domain.Site, error)
	List(ctx context.Context) ([]domain.Site, error)
	Delete(ctx context.Context, id string) error
	RecordSync(ctx context.Context, id string, status domain.SyncStatus, at time.Time) error
}

// ScanRepository is the append-only scan history ledger. Create is the only
// way records enter the store; terminal records are immutable and a rescan
// is a new record.
type ScanRepository interface {
	Create(ctx context.Context, rec domain.ScanRecord) error
	// ClaimNext atomically moves the oldest pending record to running and
	// returns it. found is false when nothing is pending.
	ClaimNext(ctx context.Context) (rec domain.ScanRecord, found bool, err error)
	// Start moves one specific pending record to running; claimed is false
	// when the record was already claimed or is terminal.
	Start(ctx context.Context, id string) (claimed bool, err error)
	Complete(ctx context.Context, id string, score int, findings []domain.Finding, raw json.RawMessage, completedAt time.Time) error
	Fail(ctx context.Context, id string, reason string, completedAt time.Time) error
	GetByID(ctx context.Context, id string) (domain.ScanRecord, error)
	// Latest returns the most recent completed record for (siteID, scanType).
	Latest(ctx context.Context, siteID string, scanType domain.ScanType) (rec domain.ScanRecord, found bool, err error)
	// History returns terminal records newest first.
	History(ctx context.Context, siteID string, scanType domain.ScanType, limit int) ([]domain.ScanRecord, error)
}
