package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vizor/fleethealth/etl/internal/compute"
	"github.com/vizor/fleethealth/etl/internal/ingest"
	"github.com/vizor/fleethealth/etl/internal/metrics"
	"github.com/vizor/fleethealth/etl/internal/registry"
	"github.com/vizor/fleethealth/etl/internal/report"
	"github.com/vizor/fleethealth/pkg/types"
)

// RegistryLoader loads the device registry.
type RegistryLoader interface {
	Load(ctx context.Context) (registry.Registry, error)
}

// Job is one configured batch health run.
type Job struct {
	registry RegistryLoader
	source   *ingest.Source
	writer   *report.Writer
	opts     compute.Options
	metrics  *metrics.Run
	now      func() time.Time
}

// New returns a Job. m may be nil.
func New(reg RegistryLoader, src *ingest.Source, w *report.Writer, opts compute.Options, m *metrics.Run) *Job {
	return &Job{
		registry: reg,
		source:   src,
		writer:   w,
		opts:     opts,
		metrics:  m,
		now:      time.Now,
	}
}

// Result describes a successful run.
type Result struct {
	Snapshot  types.Snapshot
	Stats     compute.Stats
	Ingest    ingest.Stats
	Devices   int
	Documents int
}

// Run executes the job once. Nothing is written unless aggregation
// succeeded for every file.
func (j *Job) Run(ctx context.Context) (res Result, err error) {
	started := j.now()
	defer func() {
		if j.metrics != nil {
			j.metrics.Finish(started, j.now(), err)
		}
	}()

	reg, keys, err := j.load(ctx)
	if err != nil {
		return Result{}, err
	}
	res.Devices = reg.Len()

	agg, stats, err := j.aggregate(ctx, reg, keys)
	if err != nil {
		return Result{}, err
	}
	res.Stats = agg.Stats()
	res.Ingest = stats

	res.Snapshot = compute.Rollup(agg.Reports())

	n, err := j.writer.Write(ctx, res.Snapshot)
	if j.metrics != nil {
		j.metrics.DocumentsWritten.Add(float64(n))
	}
	if err != nil {
		return Result{}, err
	}
	res.Documents = n

	if j.metrics != nil {
		j.metrics.Batches.Set(float64(len(res.Snapshot.Batches())))
		j.metrics.Companies.Set(float64(len(res.Snapshot.Companies)))
	}
	slog.Info("pipeline: run complete",
		"devices", res.Devices,
		"files", res.Ingest.Read,
		"skipped", res.Ingest.Skipped,
		"rows", res.Stats.Rows,
		"unknown_devices", res.Stats.UnknownDevices,
		"batches", len(res.Snapshot.Batches()),
		"companies", len(res.Snapshot.Companies),
		"documents", res.Documents,
		"elapsed", j.now().Sub(started),
	)
	return res, nil
}

// load fetches the registry and lists telemetry keys concurrently.
func (j *Job) load(ctx context.Context) (registry.Registry, []string, error) {
	var (
		reg  registry.Registry
		keys []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		reg, err = j.registry.Load(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		keys, err = j.source.Discover(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return registry.Registry{}, nil, err
	}

	if j.metrics != nil {
		j.metrics.Devices.Set(float64(reg.Len()))
		j.metrics.FilesDiscovered.Add(float64(len(keys)))
	}
	return reg, keys, nil
}

// aggregate streams every key into per-worker aggregators and merges them.
func (j *Job) aggregate(ctx context.Context, reg registry.Registry, keys []string) (*compute.Aggregator, ingest.Stats, error) {
	workers := make([]*compute.Aggregator, j.source.Workers())
	for i := range workers {
		workers[i] = compute.NewAggregator(reg, j.opts)
	}

	stats, err := j.source.Stream(ctx, keys, func(w int, f ingest.File) error {
		return workers[w].AddFile(f.Key, f.Content)
	})

	merged := workers[0]
	for _, w := range workers[1:] {
		merged.Merge(w)
	}

	if j.metrics != nil {
		s := merged.Stats()
		j.metrics.FilesRead.Add(float64(stats.Read))
		j.metrics.FilesSkipped.Add(float64(stats.Skipped))
		j.metrics.Rows.Add(float64(s.Rows))
		j.metrics.UnknownDevices.Add(float64(s.UnknownDevices))
		j.metrics.MalformedMetrics.Add(float64(s.MalformedMetrics))
	}
	if err != nil {
		return nil, stats, fmt.Errorf("pipeline: aggregate: %w", err)
	}
	return merged, stats, nil
}
