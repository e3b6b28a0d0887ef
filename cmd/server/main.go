package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	httpadapter "wpfleet/internal/adapters/http"
	pg "wpfleet/internal/adapters/postgres"
	"wpfleet/internal/circuit"
	"wpfleet/internal/config"
	"wpfleet/internal/logging"
	"wpfleet/internal/probe"
	"wpfleet/internal/scoring"
	fleetsvc "wpfleet/internal/services/fleet"
	remotesvc "wpfleet/internal/services/remote"
	scansvc "wpfleet/internal/services/scans"
	sitesvc "wpfleet/internal/services/sites"
	"wpfleet/internal/workers/scanrunner"
	"wpfleet/internal/wpclient"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if cfg.DatabaseURL == "" {
		logging.Fatal().Msg("database_url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pg.Migrate(ctx, cfg.DatabaseURL); err != nil {
		logging.Fatal().Err(err).Msg("migrate database")
	}
	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logging.Fatal().Err(err).Msg("connect database")
	}
	defer db.Close()

	siteRepo := pg.NewSiteStore(db)
	scanRepo := pg.NewScanStore(db)

	breaker := circuit.New(cfg.Circuit.FailureThreshold, cfg.Circuit.BackoffSteps)
	client := wpclient.New(cfg.Sync.ClientTimeout)
	prober := probe.New(cfg.Scan.ProbeTimeout)
	engine := scoring.NewEngine(cfg.Scoring)

	fleet := fleetsvc.New(fleetsvc.Config{
		Sites:             siteRepo,
		Client:            client,
		Breaker:           breaker,
		Workers:           cfg.Sync.Workers,
		RequestsPerSecond: cfg.Sync.RequestsPerSecond,
		Burst:             cfg.Sync.Burst,
	})
	sites := sitesvc.New(siteRepo, breaker)
	scans := scansvc.New(siteRepo, scanRepo, client, prober, engine)
	remote := remotesvc.New(siteRepo, client)

	if cfg.Scan.Workers > 0 {
		go scanrunner.Run(ctx, scanRepo, scans, cfg.Scan.Workers, cfg.Scan.PollInterval)
		logging.Info().Int("workers", cfg.Scan.Workers).Msg("scan workers started")
	}
	go fleet.RunScheduler(ctx, cfg.Sync.Interval)

	srv := httpadapter.New(sites, fleet, scans, remote)
	r := chi.NewRouter()
	r.Mount("/", srv.Routes())

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()
	logging.Info().Str("addr", cfg.ListenAddr).Str("env", cfg.Env).Msg("listening")

	select {
	case <-ctx.Done():
		logging.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("http shutdown")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("http server")
		}
	}
}
