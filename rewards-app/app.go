package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/compose-network/prover-rewards/metrics"
	"github.com/compose-network/prover-rewards/rewards-app/config"
	apisrv "github.com/compose-network/prover-rewards/server/api"
	apimw "github.com/compose-network/prover-rewards/server/api/middleware"
	"github.com/compose-network/prover-rewards/x/rewards/dashboard"
	progresshttp "github.com/compose-network/prover-rewards/x/rewards/progress/http"
)

// pinger is implemented by stores that can check their backend.
type pinger interface {
	Ping(ctx context.Context) error
}

// App represents the rewards service
type App struct {
	cfg        *config.Config
	log        zerolog.Logger
	components *components
	manager    *dashboard.Manager
	startedAt  time.Time

	// API server (HTTP)
	apiServer *apisrv.Server

	cancel context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg:       cfg,
		log:       log.With().Str("component", "app").Logger(),
		startedAt: time.Now(),
	}

	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}
	app.components = c

	return app, nil
}

// initializeAPIServer sets up the HTTP API server with all endpoints
func (a *App) initializeAPIServer() {
	s := apisrv.NewServer(a.cfg.API, a.log)
	s.Use(apimw.Recover(a.log))
	s.Use(apimw.RequestID())
	s.Use(apimw.Logger(a.log))
	if a.cfg.API.CORS {
		s.EnableCORS()
	}

	s.Router.Use(mux.MiddlewareFunc(apimw.Route()))
	if a.cfg.Metrics.Enabled {
		s.Router.Use(mux.MiddlewareFunc(apimw.Metrics(apimw.NewHTTPMetrics())))
		s.Router.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	// Health/readiness/stats
	s.Router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	s.Router.HandleFunc("/ready", a.handleReady).Methods(http.MethodGet)
	s.Router.HandleFunc("/stats", a.handleStats).Methods(http.MethodGet)

	// Checkpoint API
	progresshttp.NewHandler(a.components.store, a.log).RegisterMux(s.Router)

	// Scan sessions API
	dashboard.NewHandler(a.manager, a.cfg.Dashboard, a.log).RegisterMux(s.Router)

	a.apiServer = s
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.manager = dashboard.NewManager(runCtx, a.components.engine, a.cfg.Dashboard.MaxRetained, a.log,
		dashboard.WithDecisionTimeout(a.cfg.Dashboard.DecisionTimeout))
	a.initializeAPIServer()

	errCh := make(chan error, 1)
	go func() {
		if err := a.apiServer.Start(runCtx); err != nil {
			errCh <- err
		}
	}()

	return a.runWithGracefulShutdown(runCtx, errCh)
}

// runWithGracefulShutdown handles shutdown signals.
func (a *App) runWithGracefulShutdown(ctx context.Context, errCh <-chan error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	a.log.Info().Str("listen_addr", a.cfg.API.ListenAddr).Msg("Prover rewards service started")

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case runErr = <-errCh:
		a.log.Error().Err(runErr).Msg("API server error")
	}

	return a.shutdown(runErr)
}

// shutdown stops active scans so they checkpoint, then the HTTP server,
// then closes the store and RPC client.
func (a *App) shutdown(runErr error) error {
	a.log.Info().Msg("Initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.manager.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("Scan sessions did not stop in time")
	}

	if a.cancel != nil {
		a.cancel()
	}

	if err := a.components.Close(); err != nil {
		a.log.Error().Err(err).Msg("Shutdown function error")
	}

	a.log.Info().Msg("Graceful shutdown complete")
	return runErr
}

// handleHealth responds to health check requests.
func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	apisrv.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	if p, ok := a.components.store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			apisrv.WriteError(w, r, http.StatusServiceUnavailable, "store_unavailable", err.Error(), nil)
			return
		}
	}
	apisrv.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *App) handleStats(w http.ResponseWriter, _ *http.Request) {
	apisrv.WriteJSON(w, http.StatusOK, a.GetStats())
}

// GetStats returns application statistics.
func (a *App) GetStats() map[string]any {
	return map[string]any{
		"active_sessions": a.manager.Active(),
		"store":           string(a.cfg.Progress.Store),
		"rpc_endpoint":    a.cfg.RPC.Endpoints[0],
		"uptime_seconds":  time.Since(a.startedAt).Seconds(),
		"app_version":     Version,
		"app_build_time":  BuildTime,
		"app_git_commit":  GitCommit,
	}
}
