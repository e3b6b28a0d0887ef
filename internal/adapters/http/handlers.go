package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"wpfleet/internal/domain"
	"wpfleet/internal/ports"
	"wpfleet/internal/services/remote"
	"wpfleet/internal/services/scans"
	"wpfleet/internal/services/sites"
	"wpfleet/internal/wpclient"
)

// siteResponse is the transport shape of a site; the API key never leaves
// the backend.
type siteResponse struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	BaseURL        string            `json:"base_url"`
	LastSyncAt     *time.Time        `json:"last_sync_at"`
	LastSyncStatus domain.SyncStatus `json:"last_sync_status"`
	CreatedAt      time.Time         `json:"created_at"`
}

func toSiteResponse(site domain.Site) siteResponse {
	return siteResponse{
		ID:             site.ID,
		Name:           site.Name,
		BaseURL:        site.BaseURL,
		LastSyncAt:     site.LastSyncAt,
		LastSyncStatus: site.LastSyncStatus,
		CreatedAt:      site.CreatedAt,
	}
}

type syncResultResponse struct {
	SiteID    string           `json:"site_id"`
	Success   bool             `json:"success"`
	Skipped   bool             `json:"skipped,omitempty"`
	ErrorKind domain.ErrorKind `json:"error_kind,omitempty"`
	Detail    string           `json:"detail,omitempty"`
	Duration  int64            `json:"duration_ms"`
	Timestamp time.Time        `json:"timestamp"`
}

type fleetReportResponse struct {
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	Succeeded  int                  `json:"succeeded"`
	Failed     int                  `json:"failed"`
	Skipped    int                  `json:"skipped"`
	Results    []syncResultResponse `json:"results"`
}

func toReportResponse(report domain.FleetSyncReport) fleetReportResponse {
	out := fleetReportResponse{
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Succeeded:  report.Succeeded,
		Failed:     report.Failed,
		Skipped:    report.Skipped,
		Results:    make([]syncResultResponse, 0, len(report.Results)),
	}
	for _, res := range report.Results {
		out.Results = append(out.Results, toSyncResultResponse(res))
	}
	return out
}

func toSyncResultResponse(res domain.SyncResult) syncResultResponse {
	return syncResultResponse{
		SiteID:    res.SiteID,
		Success:   res.Success,
		Skipped:   res.Skipped,
		ErrorKind: res.ErrorKind,
		Detail:    res.Detail,
		Duration:  res.Duration.Milliseconds(),
		Timestamp: res.Timestamp,
	}
}

type scanResponse struct {
	ID           string            `json:"id"`
	SiteID       string            `json:"site_id"`
	ScanType     domain.ScanType   `json:"scan_type"`
	Status       domain.ScanStatus `json:"status"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  *time.Time        `json:"completed_at"`
	OverallScore int               `json:"overall_score"`
	Findings     []domain.Finding  `json:"findings"`
	Error        string            `json:"error,omitempty"`
}

func toScanResponse(rec domain.ScanRecord) scanResponse {
	findings := rec.Findings
	if findings == nil {
		findings = []domain.Finding{}
	}
	return scanResponse{
		ID:           rec.ID,
		SiteID:       rec.SiteID,
		ScanType:     rec.ScanType,
		Status:       rec.Status,
		StartedAt:    rec.StartedAt,
		CompletedAt:  rec.CompletedAt,
		OverallScore: rec.OverallScore,
		Findings:     findings,
		Error:        rec.Error,
	}
}

func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	report, err := s.fleet.SyncAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportResponse(report))
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	list, err := s.sites.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]siteResponse, 0, len(list))
	for _, site := range list {
		out = append(out, toSiteResponse(site))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRegisterSite(w http.ResponseWriter, r *http.Request) {
	var in ports.RegisterSiteInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}
	site, err := s.sites.Register(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSiteResponse(site))
}

func (s *Server) handleRemoveSite(w http.ResponseWriter, r *http.Request) {
	if err := s.sites.Remove(r.Context(), chi.URLParam(r, "siteID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSiteHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.sites.Health(r.Context(), chi.URLParam(r, "siteID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleSyncSite(w http.ResponseWriter, r *http.Request) {
	res, err := s.fleet.SyncSite(r.Context(), chi.URLParam(r, "siteID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSyncResultResponse(res))
}

func (s *Server) handleResetCircuit(w http.ResponseWriter, r *http.Request) {
	s.fleet.ResetCircuit(chi.URLParam(r, "siteID"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRunScan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type domain.ScanType `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}
	wait := r.URL.Query().Get("wait") == "true"

	rec, err := s.scans.Run(r.Context(), chi.URLParam(r, "siteID"), body.Type, wait)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusAccepted
	if wait {
		status = http.StatusOK
	}
	writeJSON(w, status, toScanResponse(rec))
}

func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	rec, err := s.scans.Get(r.Context(), chi.URLParam(r, "scanID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScanResponse(rec))
}

func (s *Server) handleLatestScan(w http.ResponseWriter, r *http.Request) {
	scanType := domain.ScanType(r.URL.Query().Get("type"))
	if !scanType.Valid() {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "unknown scan type")
		return
	}
	rec, found, err := s.scans.Latest(r.Context(), chi.URLParam(r, "siteID"), scanType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		writeErrorCode(w, http.StatusNotFound, "not_found", "no completed scan of that type")
		return
	}
	writeJSON(w, http.StatusOK, toScanResponse(rec))
}

func (s *Server) handleScanHistory(w http.ResponseWriter, r *http.Request) {
	scanType := domain.ScanType(r.URL.Query().Get("type"))
	if !scanType.Valid() {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "unknown scan type")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := s.scans.History(r.Context(), chi.URLParam(r, "siteID"), scanType, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]scanResponse, 0, len(history))
	for _, rec := range history {
		out = append(out, toScanResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleScanTrend(w http.ResponseWriter, r *http.Request) {
	scanType := domain.ScanType(r.URL.Query().Get("type"))
	if !scanType.Valid() {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "unknown scan type")
		return
	}
	trend, err := s.scans.Trend(r.Context(), chi.URLParam(r, "siteID"), scanType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

func (s *Server) handlePerformUpdates(w http.ResponseWriter, r *http.Request) {
	var req ports.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "malformed JSON body")
		return
	}
	s.passthrough(w, r, func() (json.RawMessage, error) {
		return s.remote.PerformUpdates(r.Context(), chi.URLParam(r, "siteID"), req)
	})
}

func (s *Server) handleActivatePlugin(w http.ResponseWriter, r *http.Request) {
	plugin, ok := decodeTarget(w, r, "plugin")
	if !ok {
		return
	}
	s.passthrough(w, r, func() (json.RawMessage, error) {
		return s.remote.ActivatePlugin(r.Context(), chi.URLParam(r, "siteID"), plugin)
	})
}

func (s *Server) handleDeactivatePlugin(w http.ResponseWriter, r *http.Request) {
	plugin, ok := decodeTarget(w, r, "plugin")
	if !ok {
		return
	}
	s.passthrough(w, r, func() (json.RawMessage, error) {
		return s.remote.DeactivatePlugin(r.Context(), chi.URLParam(r, "siteID"), plugin)
	})
}

func (s *Server) handleActivateTheme(w http.ResponseWriter, r *http.Request) {
	theme, ok := decodeTarget(w, r, "theme")
	if !ok {
		return
	}
	s.passthrough(w, r, func() (json.RawMessage, error) {
		return s.remote.ActivateTheme(r.Context(), chi.URLParam(r, "siteID"), theme)
	})
}

func (s *Server) handleMaintenanceStatus(w http.ResponseWriter, r *http.Request) {
	s.passthrough(w, r, func() (json.RawMessage, error) {
		return s.remote.MaintenanceStatus(r.Context(), chi.URLParam(r, "siteID"))
	})
}

func (s *Server) handleEnableMaintenance(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	// An empty body is allowed; the message is optional.
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.passthrough(w, r, func() (json.RawMessage, error) {
		return s.remote.EnableMaintenance(r.Context(), chi.URLParam(r, "siteID"), body.Message)
	})
}

func (s *Server) handleDisableMaintenance(w http.ResponseWriter, r *http.Request) {
	s.passthrough(w, r, func() (json.RawMessage, error) {
		return s.remote.DisableMaintenance(r.Context(), chi.URLParam(r, "siteID"))
	})
}

func (s *Server) handleBackupStatus(w http.ResponseWriter, r *http.Request) {
	s.passthrough(w, r, func() (json.RawMessage, error) {
		return s.remote.BackupStatus(r.Context(), chi.URLParam(r, "siteID"))
	})
}

// decodeTarget reads the single-field body identifying a plugin or theme.
func decodeTarget(w http.ResponseWriter, r *http.Request, field string) (string, bool) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body[field] == "" {
		writeErrorCode(w, http.StatusBadRequest, "bad_request", "missing "+field)
		return "", false
	}
	return body[field], true
}

func (s *Server) passthrough(w http.ResponseWriter, r *http.Request, call func() (json.RawMessage, error)) {
	raw, err := call()
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// writeError maps service errors onto the API's {code, message} shape.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var clientErr *wpclient.Error
	switch {
	case errors.Is(err, ports.ErrNotFound):
		writeErrorCode(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, sites.ErrInvalidInput), errors.Is(err, scans.ErrBadScanType), errors.Is(err, remote.ErrInvalidRequest):
		writeErrorCode(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.As(err, &clientErr):
		// The remote site misbehaved, not this service.
		writeErrorCode(w, http.StatusBadGateway, string(clientErr.Kind), err.Error())
	default:
		writeErrorCode(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
