package pipeline

import (
	"context"
	"fmt"

	"github.com/vizor/fleethealth/etl/internal/compute"
	"github.com/vizor/fleethealth/etl/internal/config"
	"github.com/vizor/fleethealth/etl/internal/ingest"
	"github.com/vizor/fleethealth/etl/internal/metrics"
	"github.com/vizor/fleethealth/etl/internal/registry"
	"github.com/vizor/fleethealth/etl/internal/report"
	"github.com/vizor/fleethealth/pkg/storage"
)

// Options converts the aggregate settings into compute options.
func Options(cfg config.AggregateConfig) compute.Options {
	return compute.Options{
		Schema:          compute.Schema(cfg.CSVSchemaVersion),
		UnknownDevice:   compute.UnknownDevicePolicy(cfg.UnknownDevicePolicy),
		MalformedMetric: compute.MalformedMetricPolicy(cfg.MalformedMetricPolicy),
	}
}

// FromConfig connects to the registry database and both buckets and returns
// a ready Job. The returned close function releases the database pool.
func FromConfig(ctx context.Context, cfg *config.Config, m *metrics.Run) (*Job, func() error, error) {
	e := cfg.ETL

	src, err := storage.Open(ctx, e.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: open source: %w", err)
	}
	sink, err := storage.Open(ctx, e.Sink)
	if err != nil {
		return nil, nil, fmt.Errorf("pipeline: open sink: %w", err)
	}

	dctx, cancel := context.WithTimeout(ctx, e.Database.Timeout)
	defer cancel()
	db, err := registry.Connect(dctx, e.Database)
	if err != nil {
		return nil, nil, err
	}

	skip := e.Ingest.SkipOnReadError != nil && *e.Ingest.SkipOnReadError
	job := New(
		registry.NewLoader(db),
		ingest.New(src, ingest.Options{
			Suffix:          e.Ingest.Suffix,
			Workers:         e.Ingest.Workers,
			SkipOnReadError: skip,
		}),
		report.NewWriter(sink, report.Layout(e.Output.Layout)),
		Options(e.Aggregate),
		m,
	)
	return job, db.Close, nil
}
