package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vizor/fleethealth/etl/internal/config"
	"github.com/vizor/fleethealth/etl/internal/metrics"
	"github.com/vizor/fleethealth/etl/internal/pipeline"
)

const jobName = "lotes"

func main() {
	configPath := flag.String("config", "", "path to config file (optional; environment alone is enough)")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("fleethealth-etl starting", "config", *configPath)

	if err := config.LoadDotEnv(*envFile); err != nil {
		slog.Error("failed to load env file", "err", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	slog.Info("config loaded",
		"db_host", cfg.ETL.Database.Host,
		"source", cfg.ETL.Source.Bucket+cfg.ETL.Source.Dir,
		"sink", cfg.ETL.Sink.Bucket+cfg.ETL.Sink.Dir,
		"csv_schema_version", cfg.ETL.Aggregate.CSVSchemaVersion,
		"unknown_device_policy", cfg.ETL.Aggregate.UnknownDevicePolicy,
		"interval", cfg.ETL.Interval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.NewRun()

	if cfg.ETL.Interval == 0 {
		if err := runOnce(ctx, cfg, m); err != nil {
			os.Exit(1)
		}
		return
	}

	var current atomic.Pointer[config.Config]
	current.Store(cfg)

	if *configPath != "" {
		go func() {
			if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
				current.Store(updated)
				slog.Info("config hot-reloaded, applies from next run",
					"csv_schema_version", updated.ETL.Aggregate.CSVSchemaVersion,
					"unknown_device_policy", updated.ETL.Aggregate.UnknownDevicePolicy,
				)
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	runOnce(ctx, cfg, m)

	ticker := time.NewTicker(cfg.ETL.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("fleethealth-etl shutting down")
			return
		case <-ticker.C:
			runOnce(ctx, current.Load(), m)
		}
	}
}

// runOnce executes the job in isolation and exports run metrics whatever
// the outcome.
func runOnce(ctx context.Context, cfg *config.Config, m *metrics.Run) error {
	errs := pipeline.RunIsolated(ctx, pipeline.Task{
		Name: jobName,
		Run: func(ctx context.Context) error {
			started := time.Now()
			job, closeDB, err := pipeline.FromConfig(ctx, cfg, m)
			if err != nil {
				m.Finish(started, time.Now(), err)
				return err
			}
			defer closeDB()
			_, err = job.Run(ctx)
			return err
		},
	})
	exportMetrics(ctx, cfg.ETL.Metrics, m)
	return errs[jobName]
}

func exportMetrics(ctx context.Context, mc config.MetricsConfig, m *metrics.Run) {
	if mc.Textfile != "" {
		if err := m.WriteTextfile(mc.Textfile); err != nil {
			slog.Warn("metrics textfile not written", "path", mc.Textfile, "err", err)
		}
	}
	if mc.Pushgateway != "" {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := m.Push(pctx, mc.Pushgateway, mc.Job); err != nil {
			slog.Warn("metrics push failed", "url", mc.Pushgateway, "err", err)
		}
	}
	if summary, err := m.Summary(); err == nil {
		slog.Info("run metrics", metrics.LogArgs(summary)...)
	}
}
