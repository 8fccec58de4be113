package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

const namespace = "fleethealth_etl"

// Run outcome label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Run holds the job's metrics. Counters accumulate across runs of one
// process; gauges describe the latest run.
type Run struct {
	reg *prometheus.Registry

	Runs             *prometheus.CounterVec
	FilesDiscovered  prometheus.Counter
	FilesRead        prometheus.Counter
	FilesSkipped     prometheus.Counter
	Rows             prometheus.Counter
	UnknownDevices   prometheus.Counter
	MalformedMetrics prometheus.Counter
	DocumentsWritten prometheus.Counter

	Devices     prometheus.Gauge
	Batches     prometheus.Gauge
	Companies   prometheus.Gauge
	Duration    prometheus.Gauge
	LastSuccess prometheus.Gauge
}

// NewRun registers every metric on a fresh registry.
func NewRun() *Run {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	r := &Run{
		reg: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed job runs by result.",
		}, []string{"result"}),
		FilesDiscovered:  counter("files_discovered_total", "Telemetry files found under the source prefix."),
		FilesRead:        counter("files_read_total", "Telemetry files read and aggregated."),
		FilesSkipped:     counter("files_skipped_total", "Telemetry files skipped after a read error."),
		Rows:             counter("rows_total", "Telemetry rows parsed."),
		UnknownDevices:   counter("unknown_device_rows_total", "Rows whose device is not in the registry."),
		MalformedMetrics: counter("malformed_metrics_total", "Metric fields that failed to parse."),
		DocumentsWritten: counter("documents_written_total", "Report documents published to the sink."),

		Devices:     gauge("registry_devices", "Devices loaded from the registry in the last run."),
		Batches:     gauge("batches", "Batches scored in the last run."),
		Companies:   gauge("companies", "Companies rolled up in the last run."),
		Duration:    gauge("run_duration_seconds", "Wall time of the last run."),
		LastSuccess: gauge("last_success_timestamp_seconds", "Unix time of the last successful run."),
	}
	r.reg.MustRegister(
		r.Runs, r.FilesDiscovered, r.FilesRead, r.FilesSkipped, r.Rows,
		r.UnknownDevices, r.MalformedMetrics, r.DocumentsWritten,
		r.Devices, r.Batches, r.Companies, r.Duration, r.LastSuccess,
	)
	return r
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (r *Run) Registry() *prometheus.Registry { return r.reg }

// Finish records the outcome and wall time of one run.
func (r *Run) Finish(started, now time.Time, err error) {
	r.Duration.Set(now.Sub(started).Seconds())
	if err != nil {
		r.Runs.WithLabelValues(ResultFailure).Inc()
		return
	}
	r.Runs.WithLabelValues(ResultSuccess).Inc()
	r.LastSuccess.Set(float64(now.Unix()))
}

// WriteTextfile writes all metrics in the Prometheus text format to path.
// The file is replaced atomically so a collector never reads a partial file.
func (r *Run) WriteTextfile(path string) error {
	mfs, err := r.reg.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".fleethealth-*.prom")
	if err != nil {
		return fmt.Errorf("metrics: textfile: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := expfmt.NewEncoder(tmp, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			tmp.Close()
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("metrics: textfile: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("metrics: textfile: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("metrics: textfile: %w", err)
	}
	return nil
}

// Push sends all metrics to the Pushgateway at url under job.
func (r *Run) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(r.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("metrics: push %s: %w", url, err)
	}
	return nil
}

// Summary gathers the registry and returns each family's summed value,
// keyed by metric name, for logging.
func (r *Run) Summary() (map[string]float64, error) {
	mfs, err := r.reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("metrics: gather: %w", err)
	}
	out := make(map[string]float64, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = sumFamily(mf)
	}
	return out, nil
}

// LogArgs flattens a summary into sorted slog key/value pairs.
func LogArgs(summary map[string]float64) []any {
	names := make([]string, 0, len(summary))
	for n := range summary {
		names = append(names, n)
	}
	sort.Strings(names)
	args := make([]any, 0, 2*len(names))
	for _, n := range names {
		args = append(args, n, summary[n])
	}
	return args
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
// Returns 0 if mf is nil.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}
