package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vizor/fleethealth/pkg/storage"
	"github.com/vizor/fleethealth/server/internal/alerts"
	"github.com/vizor/fleethealth/server/internal/api"
	"github.com/vizor/fleethealth/server/internal/auth"
	"github.com/vizor/fleethealth/server/internal/config"
	"github.com/vizor/fleethealth/server/internal/store"
	"github.com/vizor/fleethealth/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("fleethealth-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"reports_backend", cfg.Server.Reports.Backend,
		"refresh_interval", cfg.Server.RefreshInterval,
		"alert_rules", len(cfg.Server.Alerts.Rules),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bucket, err := storage.Open(ctx, cfg.Server.Reports)
	if err != nil {
		slog.Error("failed to open reports bucket", "err", err)
		os.Exit(1)
	}

	st := store.New(bucket)
	alertEngine := alerts.New(cfg.Server.Alerts)
	hub := ws.New(st, cfg.Server.BroadcastInterval)

	// Every reload is evaluated for alerts and announced to stream clients.
	st.OnUpdate(func(e *store.Entry) {
		alertEngine.Evaluate(e.Snapshot)
		hub.Notify(e)
	})

	go st.Run(ctx, cfg.Server.RefreshInterval)
	go hub.Run(ctx)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           routes(cfg.Server.Auth, st, alertEngine, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("fleethealth-server shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}

// routes mounts the REST API, the WebSocket hub and /metrics on one mux.
// Nothing else is served.
func routes(ac config.AuthConfig, st *store.Store, eng *alerts.Engine, hub *ws.Hub) *http.ServeMux {
	withAuth := func(h http.Handler) http.Handler {
		return auth.APIKeyMiddleware(ac.Mode, ac.EffectiveHeader(), ac.Key(), h)
	}
	mux := http.NewServeMux()
	mux.Handle("/api/", withAuth(api.New(st, eng)))
	mux.Handle("/ws/stream", withAuth(hub))
	mux.Handle("/metrics", promhttp.HandlerFor(newRegistry(st, eng, hub), promhttp.HandlerOpts{}))
	return mux
}
