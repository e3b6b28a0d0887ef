package domain

import (
	"encoding/json"
	"time"
)

// Core domain models used internally. Transport shapes live in the HTTP
// adapter; keep these decoupled where helpful.

// SyncStatus is the outcome of the most recent sync attempt against a site.
type SyncStatus string

const (
	SyncStatusOK    SyncStatus = "ok"
	SyncStatusError SyncStatus = "error"
	SyncStatusNever SyncStatus = "never"
)

// Site is one managed WordPress installation. The API key is an opaque
// secret understood by the remote management plugin; it is never exposed
// through the dashboard API.
type Site struct {
	ID             string
	Name           string
	BaseURL        string
	APIKey         string
	LastSyncAt     *time.Time
	LastSyncStatus SyncStatus
	CreatedAt      time.Time
}

// ErrorKind classifies a failed interaction with a remote site.
type ErrorKind string

const (
	ErrKindUnreachable   ErrorKind = "unreachable"
	ErrKindAuthRejected  ErrorKind = "auth_rejected"
	ErrKindRemoteError   ErrorKind = "remote_error"
	ErrKindMalformed     ErrorKind = "malformed_response"
	ErrKindNormalization ErrorKind = "normalization_error"
	ErrKindStore         ErrorKind = "store_error"
)

// SyncResult is the ephemeral outcome of one fetch against one site. It is
// folded into persisted state by the coordinator and never stored itself.
type SyncResult struct {
	SiteID    string
	Success   bool
	Skipped   bool
	Payload   *NormalizedRecord
	ErrorKind ErrorKind
	Detail    string
	Duration  time.Duration
	Timestamp time.Time
}

// FleetSyncReport aggregates the per-site results of one fleet sync.
// Skipped counts sites suppressed by the circuit breaker; they are not
// counted as failed because no attempt was made.
type FleetSyncReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Succeeded  int
	Failed     int
	Skipped    int
	Results    []SyncResult
}

// CircuitState is the per-site reliability tracker. SkipUntil is only set
// once ConsecutiveFailures reaches the configured threshold and is cleared
// on the next success.
type CircuitState struct {
	SiteID              string
	ConsecutiveFailures int
	LastSuccessAt       *time.Time
	SkipUntil           *time.Time
}

// SiteHealth is the operator-facing summary for one site.
type SiteHealth struct {
	SiteID         string
	LastSyncAt     *time.Time
	LastSyncStatus SyncStatus
	Circuit        CircuitState
}

type ScanType string

const (
	ScanTypeSecurity    ScanType = "security"
	ScanTypePerformance ScanType = "performance"
	ScanTypeSEO         ScanType = "seo"
)

// Valid reports whether t is one of the known scan types.
func (t ScanType) Valid() bool {
	switch t {
	case ScanTypeSecurity, ScanTypePerformance, ScanTypeSEO:
		return true
	}
	return false
}

type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

// Terminal reports whether the status is final. Terminal records are frozen;
// a corrected rescan is a new record.
func (s ScanStatus) Terminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityNotice   Severity = "notice"
)

// Finding is one issue or observation surfaced by the scoring engine.
type Finding struct {
	Category       string   `json:"category"`
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// ScanRecord is an immutable snapshot of one scan of one site. Ordering
// between records is established by CompletedAt.
type ScanRecord struct {
	ID           string
	SiteID       string
	ScanType     ScanType
	Status       ScanStatus
	StartedAt    time.Time
	CompletedAt  *time.Time
	OverallScore int
	Findings     []Finding
	RawData      json.RawMessage
	Error        string
}

// ScanTrend compares the two most recent completed records of one type.
type ScanTrend struct {
	SiteID        string
	ScanType      ScanType
	LatestScore   int
	PreviousScore int
	Delta         int
	LatestAt      *time.Time
	PreviousAt    *time.Time
}

// Plugin is one installed plugin as reported by the remote site.
type Plugin struct {
	Name            string `json:"name"`
	File            string `json:"file"`
	Version         string `json:"version"`
	Active          bool   `json:"active"`
	UpdateAvailable bool   `json:"update_available"`
	NewVersion      string `json:"new_version,omitempty"`
}

// Theme is one installed theme as reported by the remote site.
type Theme struct {
	Name            string `json:"name"`
	Slug            string `json:"slug"`
	Version         string `json:"version"`
	Active          bool   `json:"active"`
	UpdateAvailable bool   `json:"update_available"`
}

// User is one WordPress account. Email may be empty when the remote plugin
// version does not expose it.
type User struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
}

// UpdateItem is one pending plugin or theme update.
type UpdateItem struct {
	Name           string `json:"name"`
	Slug           string `json:"slug"`
	CurrentVersion string `json:"current_version"`
	NewVersion     string `json:"new_version"`
}

// UpdateSet is the pending-update picture for one site. CoreNewVersion is
// empty when WordPress core is current.
type UpdateSet struct {
	CoreCurrentVersion string       `json:"core_current_version,omitempty"`
	CoreNewVersion     string       `json:"core_new_version,omitempty"`
	Plugins            []UpdateItem `json:"plugins"`
	Themes             []UpdateItem `json:"themes"`
}

// PageMetrics is what the front-page probe observed. It feeds the
// performance and SEO scoring dimensions.
type PageMetrics struct {
	LoadTimeMS      int64  `json:"load_time_ms"`
	PageSizeBytes   int64  `json:"page_size_bytes"`
	GzipEnabled     bool   `json:"gzip_enabled"`
	RequestCount    int    `json:"request_count"`
	Title           string `json:"title,omitempty"`
	MetaDescription string `json:"meta_description,omitempty"`
	H1Count         int    `json:"h1_count"`
	H2Count         int    `json:"h2_count"`
}

// NormalizedRecord is the canonical local mirror of one site's state,
// produced by the normalizer from whatever JSON shape the remote plugin
// version returned.
type NormalizedRecord struct {
	WordPressVersion string       `json:"wordpress_version"`
	PHPVersion       string       `json:"php_version,omitempty"`
	MySQLVersion     string       `json:"mysql_version,omitempty"`
	SSLEnabled       bool         `json:"ssl_enabled"`
	MaintenanceMode  bool         `json:"maintenance_mode"`
	PluginCount      int          `json:"plugin_count"`
	ThemeCount       int          `json:"theme_count"`
	Plugins          []Plugin     `json:"plugins"`
	Themes           []Theme      `json:"themes"`
	Users            []User       `json:"users"`
	Updates          UpdateSet    `json:"updates"`
	Page             *PageMetrics `json:"page,omitempty"`
	CollectedAt      time.Time    `json:"collected_at"`
}
