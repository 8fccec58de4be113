package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vizor/fleethealth/etl/internal/compute"
	"github.com/vizor/fleethealth/etl/internal/ingest"
	"github.com/vizor/fleethealth/etl/internal/metrics"
	"github.com/vizor/fleethealth/etl/internal/registry"
	"github.com/vizor/fleethealth/etl/internal/report"
	"github.com/vizor/fleethealth/pkg/storage"
	"github.com/vizor/fleethealth/pkg/types"
)

const header = "codigo,ts,cpu,ram,disco,uptime,temp,indoor,status,lat,lon\n"

type staticRegistry struct {
	reg registry.Registry
	err error
}

func (s staticRegistry) Load(context.Context) (registry.Registry, error) { return s.reg, s.err }

func fleet() registry.Registry {
	return registry.New(
		registry.DeviceRecord{Code: "A1", BatchID: "100", Company: "Acme", Model: "X1"},
		registry.DeviceRecord{Code: "A2", BatchID: "100", Company: "Acme", Model: "X1"},
		registry.DeviceRecord{Code: "A3", BatchID: "101", Company: "Acme", Model: "X2"},
		registry.DeviceRecord{Code: "B1", BatchID: "200", Company: "Beta", Model: "Y1"},
		registry.DeviceRecord{Code: "B2", BatchID: "200", Company: "Beta", Model: "Y1"},
	)
}

func row(device string, cpu, ram, disk int, status string) string {
	return fmt.Sprintf("%s,2024-05-01T10:00:00Z,%d,%d,%d,3600,50,1,%s,0,0\n", device, cpu, ram, disk, status)
}

// telemetry seeds one file per device per day, nested like the trusted bucket.
func telemetry(t *testing.T) *storage.Memory {
	t.Helper()
	m := storage.NewMemory(3)
	files := map[string]string{
		"Acme/A1/2024-05-01/a1.csv": header + row("A1", 85, 10, 10, "OK"),
		"Acme/A1/2024-05-02/a1.csv": header + row("A1", 85, 10, 10, "ALERT"),
		"Acme/A1/2024-05-03/a1.csv": header + row("A1", 85, 10, 10, "OK"),
		"Acme/A2/2024-05-01/a2.csv": header + row("A2", 10, 90, 95, "OK"),
		"Acme/A3/2024-05-01/a3.csv": header + row("A3", 10, 10, 10, "FAIL"),
		"Beta/B1/2024-05-01/b1.csv": header + row("B1", 10, 10, 10, "OK"),
		"Beta/B2/2024-05-01/b2.csv": header + row("B2", 10, 10, 10, "OK"),
		"Beta/B2/notes.txt":         "not telemetry",
	}
	for k, v := range files {
		m.PutString(k, v)
	}
	return m
}

func opts(p compute.UnknownDevicePolicy) compute.Options {
	return compute.Options{Schema: compute.SchemaV1, UnknownDevice: p, MalformedMetric: compute.PermissiveMetrics}
}

func newJob(reg RegistryLoader, src storage.Bucket, sink storage.Bucket, skip bool, p compute.UnknownDevicePolicy, m *metrics.Run) *Job {
	return New(
		reg,
		ingest.New(src, ingest.Options{Suffix: ".csv", Workers: 4, SkipOnReadError: skip}),
		report.NewWriter(sink, report.PerCompany),
		opts(p),
		m,
	)
}

func TestRun_EndToEnd(t *testing.T) {
	sink := storage.NewMemory(0)
	res, err := newJob(staticRegistry{reg: fleet()}, telemetry(t), sink, false, compute.FailFastUnknown, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Acme/100/lote.json",
		"Acme/101/lote.json",
		"Acme/dashboard.json",
		"Beta/200/lote.json",
		"Beta/dashboard.json",
		"dashboard.json",
	}, sink.Keys())
	assert.Equal(t, 6, res.Documents)
	assert.Equal(t, int64(7), res.Ingest.Read)

	acme, ok := res.Snapshot.Company("Acme")
	require.True(t, ok)
	b100 := acme.Batches[0]
	assert.Equal(t, "100", b100.BatchID)
	assert.Equal(t, 2, b100.TotalDevices)
	assert.Equal(t, 1, b100.DevicesWithProblem)
	assert.Equal(t, 50, b100.Score)
	assert.Equal(t, types.StatusAlert, b100.Status)
	assert.Equal(t, types.FailureCounts{CPU: 3, RAM: 1, Disk: 1}, b100.FailuresByComponent)
	assert.Equal(t, 5, b100.TotalFailures)

	b101 := acme.Batches[1]
	assert.Equal(t, 0, b101.Score)
	assert.Equal(t, types.StatusCritical, b101.Status)

	assert.Equal(t, types.CompanyDashboard{ProblemBatchCount: 2, HealthyBatchPercentage: 0, MedianScore: 25}, acme.Dashboard)
	assert.Equal(t, types.CompanyDashboard{ProblemBatchCount: 2, HealthyBatchPercentage: 33, MedianScore: 50}, res.Snapshot.Global)
}

func TestRun_ByteIdenticalReruns(t *testing.T) {
	src := telemetry(t)
	first, second := storage.NewMemory(0), storage.NewMemory(0)

	_, err := newJob(staticRegistry{reg: fleet()}, src, first, false, compute.SkipUnknown, nil).Run(context.Background())
	require.NoError(t, err)
	_, err = newJob(staticRegistry{reg: fleet()}, src, second, false, compute.SkipUnknown, nil).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, first.Keys(), second.Keys())
	for _, k := range first.Keys() {
		a, _ := first.Get(context.Background(), k)
		b, _ := second.Get(context.Background(), k)
		assert.True(t, bytes.Equal(a, b), "%s differs between runs", k)
	}
}

func TestRun_ReassignedBatchLeavesNoStaleReport(t *testing.T) {
	src, sink := telemetry(t), storage.NewMemory(0)
	ctx := context.Background()

	_, err := newJob(staticRegistry{reg: fleet()}, src, sink, false, compute.FailFastUnknown, nil).Run(ctx)
	require.NoError(t, err)
	require.Contains(t, sink.Keys(), "Acme/101/lote.json")

	moved := registry.New(
		registry.DeviceRecord{Code: "A1", BatchID: "100", Company: "Acme", Model: "X1"},
		registry.DeviceRecord{Code: "A2", BatchID: "100", Company: "Acme", Model: "X1"},
		registry.DeviceRecord{Code: "A3", BatchID: "100", Company: "Acme", Model: "X2"},
		registry.DeviceRecord{Code: "B1", BatchID: "200", Company: "Beta", Model: "Y1"},
		registry.DeviceRecord{Code: "B2", BatchID: "200", Company: "Beta", Model: "Y1"},
	)
	res, err := newJob(staticRegistry{reg: moved}, src, sink, false, compute.FailFastUnknown, nil).Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Acme/100/lote.json",
		"Acme/dashboard.json",
		"Beta/200/lote.json",
		"Beta/dashboard.json",
		"dashboard.json",
	}, sink.Keys())
	assert.Equal(t, 5, res.Documents)

	acme, ok := res.Snapshot.Company("Acme")
	require.True(t, ok)
	require.Len(t, acme.Batches, 1)
	assert.Equal(t, 3, acme.Batches[0].TotalDevices)
}

func TestRun_UnknownDeviceFailFastPublishesNothing(t *testing.T) {
	src := telemetry(t)
	src.PutString("Ghost/G1/2024-05-01/g1.csv", header+row("G1", 1, 1, 1, "OK"))
	sink := storage.NewMemory(0)

	_, err := newJob(staticRegistry{reg: fleet()}, src, sink, false, compute.FailFastUnknown, nil).Run(context.Background())

	var die *compute.DataIntegrityError
	require.ErrorAs(t, err, &die)
	assert.Equal(t, "G1", die.DeviceCode)
	assert.Empty(t, sink.Keys(), "no partial output may be published")
}

func TestRun_UnknownDeviceSkipCompletes(t *testing.T) {
	src := telemetry(t)
	src.PutString("Ghost/G1/2024-05-01/g1.csv", header+row("G1", 99, 99, 99, "FAIL"))
	m := metrics.NewRun()

	res, err := newJob(staticRegistry{reg: fleet()}, src, storage.NewMemory(0), false, compute.SkipUnknown, m).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.UnknownDevices)
	assert.Len(t, res.Snapshot.Batches(), 3)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.UnknownDevices))
}

func TestRun_RegistryFailurePublishesNothing(t *testing.T) {
	sink := storage.NewMemory(0)
	connErr := &registry.ConnectionError{Op: "ping", Err: errors.New("refused")}
	m := metrics.NewRun()

	_, err := newJob(staticRegistry{err: connErr}, telemetry(t), sink, false, compute.SkipUnknown, m).Run(context.Background())
	var ce *registry.ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Empty(t, sink.Keys())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Runs.WithLabelValues(metrics.ResultFailure)))
}

func TestRun_ReadErrorPolicy(t *testing.T) {
	t.Run("abort", func(t *testing.T) {
		src := telemetry(t)
		src.FailGet("Beta/B1/2024-05-01/b1.csv", errors.New("access denied"))
		sink := storage.NewMemory(0)

		_, err := newJob(staticRegistry{reg: fleet()}, src, sink, false, compute.SkipUnknown, nil).Run(context.Background())
		var ioErr *ingest.IOError
		require.ErrorAs(t, err, &ioErr)
		assert.Empty(t, sink.Keys())
	})

	t.Run("skip", func(t *testing.T) {
		src := telemetry(t)
		src.FailGet("Beta/B1/2024-05-01/b1.csv", errors.New("access denied"))

		res, err := newJob(staticRegistry{reg: fleet()}, src, storage.NewMemory(0), true, compute.SkipUnknown, nil).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Ingest.Skipped)
		beta, ok := res.Snapshot.Company("Beta")
		require.True(t, ok)
		assert.Equal(t, 1, beta.Batches[0].TotalDevices)
	})
}

func TestRun_WriteFailure(t *testing.T) {
	sink := storage.NewMemory(0)
	sink.FailPut(errors.New("bucket gone"))

	_, err := newJob(staticRegistry{reg: fleet()}, telemetry(t), sink, false, compute.SkipUnknown, nil).Run(context.Background())
	var we *report.WriteError
	assert.ErrorAs(t, err, &we)
}

func TestRun_EmptySource(t *testing.T) {
	sink := storage.NewMemory(0)
	res, err := newJob(staticRegistry{reg: fleet()}, storage.NewMemory(0), sink, false, compute.SkipUnknown, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{types.GlobalDashboardKey}, sink.Keys())
	assert.Equal(t, types.CompanyDashboard{}, res.Snapshot.Global)
}

func TestRun_RecordsMetrics(t *testing.T) {
	m := metrics.NewRun()
	_, err := newJob(staticRegistry{reg: fleet()}, telemetry(t), storage.NewMemory(0), false, compute.SkipUnknown, m).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, float64(7), testutil.ToFloat64(m.FilesDiscovered))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.FilesRead))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.Rows))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.Devices))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.Batches))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Companies))
	assert.Equal(t, float64(6), testutil.ToFloat64(m.DocumentsWritten))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Runs.WithLabelValues(metrics.ResultSuccess)))
}

func TestOptions(t *testing.T) {
	assert.Equal(t, compute.Options{
		Schema:          compute.SchemaV2,
		UnknownDevice:   compute.FailFastUnknown,
		MalformedMetric: compute.StrictMetrics,
	}, Options(configAggregate("v2", "failFast", "strict")))
}

func TestRunIsolated(t *testing.T) {
	boom := errors.New("registry unreachable")
	ran := make(chan string, 3)

	errs := RunIsolated(context.Background(),
		Task{Name: "lotes", Run: func(context.Context) error { return boom }},
		Task{Name: "panicky", Run: func(context.Context) error { panic("nil map") }},
		Task{Name: "healthy", Run: func(context.Context) error { ran <- "healthy"; return nil }},
	)

	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs["lotes"], boom)
	assert.Contains(t, errs["panicky"].Error(), "panicked")
	assert.NotContains(t, errs, "healthy")
	assert.Equal(t, "healthy", <-ran)
}
