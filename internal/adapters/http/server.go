// Package httpadapter exposes the core to the dashboard UI. The UI only
// reads state and triggers operations; scan control flow lives server-side.
package httpadapter

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"wpfleet/internal/ports"
)

type Server struct {
	sites  ports.Sites
	fleet  ports.Fleet
	scans  ports.Scans
	remote ports.Remote
}

func New(sites ports.Sites, fleet ports.Fleet, scans ports.Scans, remote ports.Remote) *Server {
	return &Server{sites: sites, fleet: fleet, scans: scans, remote: remote}
}

// Routes returns the chi router for the dashboard API.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(300, time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sync", s.handleSyncAll)
		r.Get("/scans/{scanID}", s.handleGetScan)

		r.Route("/sites", func(r chi.Router) {
			r.Get("/", s.handleListSites)
			r.Post("/", s.handleRegisterSite)

			r.Route("/{siteID}", func(r chi.Router) {
				r.Delete("/", s.handleRemoveSite)
				r.Get("/health", s.handleSiteHealth)
				r.Post("/sync", s.handleSyncSite)
				r.Post("/circuit/reset", s.handleResetCircuit)

				r.Post("/scans", s.handleRunScan)
				r.Get("/scans", s.handleScanHistory)
				r.Get("/scans/latest", s.handleLatestScan)
				r.Get("/trend", s.handleScanTrend)

				r.Post("/updates/perform", s.handlePerformUpdates)
				r.Post("/plugins/activate", s.handleActivatePlugin)
				r.Post("/plugins/deactivate", s.handleDeactivatePlugin)
				r.Post("/themes/activate", s.handleActivateTheme)
				r.Get("/maintenance", s.handleMaintenanceStatus)
				r.Post("/maintenance/enable", s.handleEnableMaintenance)
				r.Post("/maintenance/disable", s.handleDisableMaintenance)
				r.Get("/backup", s.handleBackupStatus)
			})
		})
	})
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
