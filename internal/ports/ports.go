package ports

import (
	"context"
	"encoding/json"

	"wpfleet/internal/domain"
)

// RegisterSiteInput is the operator-supplied payload for registering a site.
// The remote plugin issues API keys of at least 32 characters.
type RegisterSiteInput struct {
	Name    string `json:"name" validate:"required,max=200"`
	BaseURL string `json:"base_url" validate:"required,http_url"`
	APIKey  string `json:"api_key" validate:"required,min=32"`
}

// Sites is the site registry service.
type Sites interface {
	Register(ctx context.Context, in RegisterSiteInput) (domain.Site, error)
	Get(ctx context.Context, id string) (domain.Site, error)
	List(ctx context.Context) ([]domain.Site, error)
	Remove(ctx context.Context, id string) error
	Health(ctx context.Context, id string) (domain.SiteHealth, error)
}

// Fleet coordinates sync attempts across the registered sites.
type Fleet interface {
	SyncAll(ctx context.Context) (domain.FleetSyncReport, error)
	SyncSite(ctx context.Context, siteID string) (domain.SyncResult, error)
	ResetCircuit(siteID string)
}

// Scans owns the scan lifecycle and history.
type Scans interface {
	// Run creates a pending record. With wait=true it processes the scan
	// inline and returns the terminal record; otherwise the background
	// workers pick it up and the pending record is returned.
	Run(ctx context.Context, siteID string, scanType domain.ScanType, wait bool) (domain.ScanRecord, error)
	Get(ctx context.Context, scanID string) (domain.ScanRecord, error)
	Latest(ctx context.Context, siteID string, scanType domain.ScanType) (domain.ScanRecord, bool, error)
	History(ctx context.Context, siteID string, scanType domain.ScanType, limit int) ([]domain.ScanRecord, error)
	Trend(ctx context.Context, siteID string, scanType domain.ScanType) (domain.ScanTrend, error)
}

// UpdateRequest identifies what a remote site should update.
type UpdateRequest struct {
	Type  string   `json:"type" validate:"required,oneof=wordpress plugin theme"`
	Items []string `json:"items"`
}

// Remote proxies operator-triggered actions to a site's management plugin.
// Responses are passed through as raw JSON for the dashboard to render.
type Remote interface {
	PerformUpdates(ctx context.Context, siteID string, req UpdateRequest) (json.RawMessage, error)
	ActivatePlugin(ctx context.Context, siteID, plugin string) (json.RawMessage, error)
	DeactivatePlugin(ctx context.Context, siteID, plugin string) (json.RawMessage, error)
	ActivateTheme(ctx context.Context, siteID, theme string) (json.RawMessage, error)
	MaintenanceStatus(ctx context.Context, siteID string) (json.RawMessage, error)
	EnableMaintenance(ctx context.Context, siteID, message string) (json.RawMessage, error)
	DisableMaintenance(ctx context.Context, siteID string) (json.RawMessage, error)
	BackupStatus(ctx context.Context, siteID string) (json.RawMessage, error)
}
