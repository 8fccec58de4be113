package compute

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/vizor/fleethealth/etl/internal/registry"
	"github.com/vizor/fleethealth/pkg/types"
)

// Failure thresholds. A row counts as a component failure when the metric
// is strictly greater than the threshold.
const (
	CPUFailureThreshold  = 80.0
	RAMFailureThreshold  = 80.0
	DiskFailureThreshold = 90.0
)

// UnknownDevicePolicy decides what happens to rows whose device code is not
// in the registry.
type UnknownDevicePolicy string

const (
	SkipUnknown     UnknownDevicePolicy = "skip"
	FailFastUnknown UnknownDevicePolicy = "failFast"
)

// MalformedMetricPolicy decides what happens to rows with unparsable metrics.
type MalformedMetricPolicy string

const (
	// PermissiveMetrics keeps the row; the bad metric is NaN and never fails.
	PermissiveMetrics MalformedMetricPolicy = "permissive"

	// StrictMetrics aborts aggregation with a *ParseError.
	StrictMetrics MalformedMetricPolicy = "strict"
)

// Options configures an Aggregator.
type Options struct {
	Schema          Schema
	UnknownDevice   UnknownDevicePolicy
	MalformedMetric MalformedMetricPolicy
}

// Resolver maps a device code to its registry record.
type Resolver interface {
	Lookup(code string) (registry.DeviceRecord, bool)
}

// DataIntegrityError reports a telemetry row for a device that is not in the
// registry under the failFast policy.
type DataIntegrityError struct {
	Key        string
	Row        int
	DeviceCode string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("compute: %s row %d: device %q is not registered", e.Key, e.Row, e.DeviceCode)
}

// DeviceSet is a set of device codes.
type DeviceSet map[string]struct{}

// NewDeviceSet returns a set holding codes.
func NewDeviceSet(codes ...string) DeviceSet {
	s := make(DeviceSet, len(codes))
	for _, c := range codes {
		s.Add(c)
	}
	return s
}

// Add inserts code. Adding an existing code is a no-op.
func (s DeviceSet) Add(code string) { s[code] = struct{}{} }

// Has reports whether code is in the set.
func (s DeviceSet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// Len returns the number of distinct codes.
func (s DeviceSet) Len() int { return len(s) }

// Union adds every code of o to s.
func (s DeviceSet) Union(o DeviceSet) {
	for c := range o {
		s[c] = struct{}{}
	}
}

// SubsetOf reports whether every code of s is also in o.
func (s DeviceSet) SubsetOf(o DeviceSet) bool {
	for c := range s {
		if !o.Has(c) {
			return false
		}
	}
	return true
}

// BatchAccumulator collects the devices and failures seen for one batch.
// It only grows.
type BatchAccumulator struct {
	BatchID  string
	Company  string
	Model    string
	Seen     DeviceSet
	Problem  DeviceSet
	Failures types.FailureCounts
}

// NewBatchAccumulator returns an empty accumulator for rec's batch.
func NewBatchAccumulator(rec registry.DeviceRecord) *BatchAccumulator {
	return &BatchAccumulator{
		BatchID: rec.BatchID,
		Company: rec.Company,
		Model:   rec.Model,
		Seen:    make(DeviceSet),
		Problem: make(DeviceSet),
	}
}

// Observe folds one sample into the accumulator.
func (a *BatchAccumulator) Observe(s Sample) {
	a.Seen.Add(s.DeviceCode)
	if s.Status != types.StatusOK {
		a.Problem.Add(s.DeviceCode)
	}
	// NaN compares false, so malformed metrics never count.
	if s.CPU > CPUFailureThreshold {
		a.Failures.CPU++
	}
	if s.RAM > RAMFailureThreshold {
		a.Failures.RAM++
	}
	if s.Disk > DiskFailureThreshold {
		a.Failures.Disk++
	}
}

// Merge adds o's devices and counters into a.
func (a *BatchAccumulator) Merge(o *BatchAccumulator) {
	a.Seen.Union(o.Seen)
	a.Problem.Union(o.Problem)
	a.Failures = a.Failures.Add(o.Failures)
}

// Stats counts what an Aggregator has processed.
type Stats struct {
	Files            int
	Rows             int
	UnknownDevices   int
	MalformedMetrics int
}

func (s Stats) add(o Stats) Stats {
	return Stats{
		Files:            s.Files + o.Files,
		Rows:             s.Rows + o.Rows,
		UnknownDevices:   s.UnknownDevices + o.UnknownDevices,
		MalformedMetrics: s.MalformedMetrics + o.MalformedMetrics,
	}
}

// Aggregator folds telemetry files into per-batch accumulators.
// It is not safe for concurrent use.
type Aggregator struct {
	reg     Resolver
	opts    Options
	layout  layout
	batches map[string]*BatchAccumulator
	stats   Stats
}

// NewAggregator returns an empty Aggregator. Unknown option values fall back
// to the v1 layout, the skip policy and permissive metrics; callers are
// expected to have validated their configuration.
func NewAggregator(reg Resolver, opts Options) *Aggregator {
	l, ok := layouts[opts.Schema]
	if !ok {
		l = layouts[SchemaV1]
	}
	return &Aggregator{
		reg:     reg,
		opts:    opts,
		layout:  l,
		batches: make(map[string]*BatchAccumulator),
	}
}

// AddFile parses one telemetry file and folds every data row.
func (a *Aggregator) AddFile(key string, content []byte) error {
	a.stats.Files++
	err := parseRows(content, a.layout, func(r row) error {
		return a.observe(key, r)
	})
	if err == nil {
		return nil
	}
	switch err.(type) {
	case *DataIntegrityError, *ParseError:
		return err
	}
	// Broken CSV structure; the remaining rows of this file are unreadable.
	if a.opts.MalformedMetric == StrictMetrics {
		return &ParseError{Key: key, Err: err}
	}
	slog.Warn("compute: unreadable csv, ignoring rest of file", "key", key, "err", err)
	return nil
}

func (a *Aggregator) observe(key string, r row) error {
	a.stats.Rows++
	s := r.sample

	rec, ok := a.reg.Lookup(s.DeviceCode)
	if !ok {
		a.stats.UnknownDevices++
		if a.opts.UnknownDevice == FailFastUnknown {
			return &DataIntegrityError{Key: key, Row: r.line, DeviceCode: s.DeviceCode}
		}
		slog.Warn("compute: unknown device, skipping row",
			"key", key, "row", r.line, "device", s.DeviceCode)
		return nil
	}

	if len(r.malformed) > 0 {
		a.stats.MalformedMetrics += len(r.malformed)
		f := r.malformed[0]
		if a.opts.MalformedMetric == StrictMetrics {
			return &ParseError{Key: key, Row: r.line, DeviceCode: s.DeviceCode, Field: f.name, Value: f.value}
		}
		slog.Debug("compute: malformed metric treated as NaN",
			"key", key, "row", r.line, "device", s.DeviceCode, "field", f.name, "value", f.value)
	}

	acc, ok := a.batches[rec.BatchID]
	if !ok {
		acc = NewBatchAccumulator(rec)
		a.batches[rec.BatchID] = acc
	}
	acc.Observe(s)
	return nil
}

// Merge folds o into a. o must not be used afterwards.
func (a *Aggregator) Merge(o *Aggregator) {
	for id, acc := range o.batches {
		if mine, ok := a.batches[id]; ok {
			mine.Merge(acc)
			continue
		}
		a.batches[id] = acc
	}
	a.stats = a.stats.add(o.stats)
}

// Batches returns the accumulators sorted by batch ID.
func (a *Aggregator) Batches() []*BatchAccumulator {
	out := make([]*BatchAccumulator, 0, len(a.batches))
	for _, acc := range a.batches {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchID < out[j].BatchID })
	return out
}

// Reports scores every batch, sorted by batch ID.
func (a *Aggregator) Reports() []types.BatchReport {
	batches := a.Batches()
	out := make([]types.BatchReport, 0, len(batches))
	for _, acc := range batches {
		out = append(out, Score(acc))
	}
	return out
}

// Stats returns the processing counters.
func (a *Aggregator) Stats() Stats { return a.stats }
