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

	"github.com/kestrelhpc/kestrel/engine/internal/alerts"
	"github.com/kestrelhpc/kestrel/engine/internal/api"
	"github.com/kestrelhpc/kestrel/engine/internal/auth"
	"github.com/kestrelhpc/kestrel/engine/internal/config"
	"github.com/kestrelhpc/kestrel/engine/internal/cycle"
	"github.com/kestrelhpc/kestrel/engine/internal/derive"
	"github.com/kestrelhpc/kestrel/engine/internal/features"
	"github.com/kestrelhpc/kestrel/engine/internal/ingest"
	"github.com/kestrelhpc/kestrel/engine/internal/layout"
	"github.com/kestrelhpc/kestrel/engine/internal/store"
	"github.com/kestrelhpc/kestrel/engine/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	watch := flag.Bool("watch", true, "hot-reload alert rules when the config file changes")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("kestrel-engine starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	rules, err := cfg.Rules()
	if err != nil {
		slog.Error("failed to build alert rules", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Engine.HTTPPort,
		"cycle_interval", cfg.Engine.CycleInterval,
		"collectors", len(cfg.Engine.Collectors),
		"rules", len(rules),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Sample/job store with background TTL eviction.
	st := store.New(cfg.Engine.SampleTTL)
	go st.Run(ctx)

	// Collector pollers feed the store.
	for _, coll := range cfg.Engine.Collectors {
		go ingest.NewPoller(coll, st).Run(ctx)
	}

	// Alert engine — rules were validated at config load.
	engine, err := alerts.New(rules)
	if err != nil {
		slog.Error("failed to start alert engine", "err", err)
		os.Exit(1)
	}

	// Hot reload swaps the rule set; lifecycle state survives the swap.
	if *watch {
		go func() {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				nextRules, err := next.Rules()
				if err != nil {
					slog.Error("reloaded config has bad rules — keeping previous", "err", err)
					return
				}
				if err := engine.SetRules(nextRules); err != nil {
					slog.Error("rule swap rejected", "err", err)
				}
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	// WebSocket hub — each completed pass is pushed to connected clients.
	hub := ws.New()
	go hub.Run(ctx)

	runner := cycle.NewRunner(st, engine, cycle.Config{
		Analyzer: derive.Analyzer{
			Window:     cfg.Engine.Derive.Window,
			NoiseFloor: cfg.Engine.Derive.NoiseFloor,
		},
		Builder: features.Builder{
			Method:     features.Normalization(cfg.Engine.Features.Normalization),
			MinSources: cfg.Engine.Features.MinSources,
		},
		Weights:   cfg.Engine.Health.Weights,
		Threshold: cfg.Engine.Similarity.Threshold,
		Layout: layout.Config{
			Iterations:  cfg.Engine.Layout.Iterations,
			Cooling:     cfg.Engine.Layout.Cooling,
			Bound:       cfg.Engine.Layout.Bound,
			Epsilon:     cfg.Engine.Layout.Epsilon,
			MaxDuration: cfg.Engine.Layout.MaxDuration,
			Workers:     cfg.Engine.Layout.Workers,
		},
	})
	go runner.Run(ctx, cfg.Engine.CycleInterval, func(res *cycle.PassResult) {
		if len(res.Alerts.Events) > 0 {
			hub.Broadcast("alerts", res.Alerts.Events) //nolint:errcheck
		}
		hub.Broadcast("graph", api.GraphResponse{ //nolint:errcheck
			Positions: res.Analytics.Layout.Positions,
			Edges:     res.Analytics.Edges,
			ZeroNorm:  res.Analytics.ZeroNorm,
			Converged: res.Analytics.Layout.Converged,
			Quality:   res.Analytics.Quality,
		})
	})

	// Combined HTTP server: REST API + WebSocket hub + engine metrics.
	protect := auth.APIKeyMiddleware(
		cfg.Engine.Auth.Mode,
		cfg.Engine.Auth.EffectiveHeader(),
		cfg.Engine.Auth.Key(),
	)
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", protect(api.New(runner, engine)))
	httpMux.Handle("/ws/stream", hub)
	httpMux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Engine.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Engine.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("kestrel-engine shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
