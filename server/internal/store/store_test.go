package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vizor/fleethealth/pkg/storage"
	"github.com/vizor/fleethealth/pkg/types"
)

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func putJSON(t *testing.T, m *storage.Memory, key string, v any) {
	t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Put(context.Background(), key, data, "application/json"); err != nil {
		t.Fatal(err)
	}
}

func batch(company, id string, score int, status string) types.BatchReport {
	return types.BatchReport{Company: company, BatchID: id, Score: score, Status: status}
}

func perCompanyBucket(t *testing.T) *storage.Memory {
	m := storage.NewMemory(2)
	putJSON(t, m, "dashboard.json", types.CompanyDashboard{ProblemBatchCount: 1, HealthyBatchPercentage: 67, MedianScore: 80})
	putJSON(t, m, "Acme/dashboard.json", types.CompanyDashboard{ProblemBatchCount: 1, HealthyBatchPercentage: 50, MedianScore: 60})
	putJSON(t, m, "Acme/2/lote.json", batch("Acme", "2", 40, types.StatusCritical))
	putJSON(t, m, "Acme/1/lote.json", batch("Acme", "1", 80, types.StatusOK))
	putJSON(t, m, "unassigned/dashboard.json", types.CompanyDashboard{HealthyBatchPercentage: 100, MedianScore: 100})
	putJSON(t, m, "unassigned/unassigned/lote.json", batch("", "", 100, types.StatusOK))
	m.PutString("Acme/readme.txt", "ignored")
	return m
}

func TestLoad_PerCompany(t *testing.T) {
	snap, n, err := Load(context.Background(), perCompanyBucket(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 6 {
		t.Errorf("documents: got %d, want 6", n)
	}
	if snap.Global.MedianScore != 80 {
		t.Errorf("global: got %+v", snap.Global)
	}
	if len(snap.Companies) != 2 {
		t.Fatalf("companies: got %d, want 2", len(snap.Companies))
	}
	if snap.Companies[0].Company != "" || snap.Companies[1].Company != "Acme" {
		t.Errorf("company order: %q, %q", snap.Companies[0].Company, snap.Companies[1].Company)
	}
	acme := snap.Companies[1]
	if len(acme.Batches) != 2 || acme.Batches[0].BatchID != "1" {
		t.Errorf("acme batches: got %+v", acme.Batches)
	}
	if acme.Dashboard.MedianScore != 60 {
		t.Errorf("acme dashboard: got %+v", acme.Dashboard)
	}
}

func TestLoad_Consolidated(t *testing.T) {
	m := storage.NewMemory(0)
	putJSON(t, m, "dashboard.json", types.CompanyDashboard{MedianScore: 70})
	putJSON(t, m, "Beta/report.json", types.CompanyReport{
		Company:   "Beta",
		Dashboard: types.CompanyDashboard{MedianScore: 70, HealthyBatchPercentage: 100},
		Batches:   []types.BatchReport{batch("Beta", "9", 70, types.StatusOK)},
	})

	snap, n, err := Load(context.Background(), m)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 2 {
		t.Errorf("documents: got %d", n)
	}
	beta, ok := snap.Company("Beta")
	if !ok || len(beta.Batches) != 1 || beta.Dashboard.HealthyBatchPercentage != 100 {
		t.Errorf("beta: got %+v", beta)
	}
}

func TestLoad_DotCompaniesKeepTheirNames(t *testing.T) {
	m := storage.NewMemory(0)
	putJSON(t, m, types.GlobalDashboardKey, types.CompanyDashboard{HealthyBatchPercentage: 50, MedianScore: 50})
	putJSON(t, m, types.DashboardKey("."), types.CompanyDashboard{MedianScore: 0})
	putJSON(t, m, types.DashboardKey("a/b"), types.CompanyDashboard{MedianScore: 10})
	putJSON(t, m, types.DashboardKey("Acme"), types.CompanyDashboard{HealthyBatchPercentage: 100, MedianScore: 100})

	snap, n, err := Load(context.Background(), m)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 4 {
		t.Errorf("documents: got %d, want 4", n)
	}
	if snap.Global.HealthyBatchPercentage != 50 || snap.Global.MedianScore != 50 {
		t.Errorf("global: got %+v", snap.Global)
	}
	var names []string
	for _, c := range snap.Companies {
		names = append(names, c.Company)
	}
	if len(names) != 3 || names[0] != "." || names[1] != "Acme" || names[2] != "a/b" {
		t.Errorf("companies: got %q", names)
	}
}

func TestLoad_CorruptDocument(t *testing.T) {
	m := storage.NewMemory(0)
	m.PutString("Acme/dashboard.json", "{not json")
	if _, _, err := Load(context.Background(), m); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestReload_NotifiesListeners(t *testing.T) {
	st := New(perCompanyBucket(t))
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st.now = fixedClock(base)

	var got []*Entry
	st.OnUpdate(func(e *Entry) { got = append(got, e) })

	e, err := st.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !e.LoadedAt.Equal(base) {
		t.Errorf("LoadedAt: got %v", e.LoadedAt)
	}
	if len(got) != 1 || got[0] != e {
		t.Errorf("listener calls: got %d", len(got))
	}
	cur, ok := st.Get()
	if !ok || cur != e {
		t.Error("Get should return the reloaded entry")
	}
}

func TestReload_ErrorKeepsPrevious(t *testing.T) {
	m := perCompanyBucket(t)
	st := New(m)
	first, err := st.Reload(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	m.FailGet("Acme/dashboard.json", errors.New("throttled"))
	if _, err := st.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error")
	}
	cur, _ := st.Get()
	if cur != first {
		t.Error("failed reload must keep the previous snapshot")
	}
}

func TestGet_Empty(t *testing.T) {
	st := New(storage.NewMemory(0))
	if _, ok := st.Get(); ok {
		t.Fatal("Get on empty store: expected false")
	}
	if _, ok := st.Company("Acme"); ok {
		t.Fatal("Company on empty store: expected false")
	}
}

func TestCompany(t *testing.T) {
	st := New(storage.NewMemory(0))
	st.Put(types.Snapshot{Companies: []types.CompanyReport{{Company: "Acme", Batches: []types.BatchReport{batch("Acme", "1", 90, types.StatusOK)}}}}, 1)

	c, ok := st.Company("Acme")
	if !ok || len(c.Batches) != 1 {
		t.Errorf("Company: got %+v, %v", c, ok)
	}
	if _, ok := st.Company("Beta"); ok {
		t.Error("unknown company should not be found")
	}
}

func TestRun_ReloadsUntilCancelled(t *testing.T) {
	st := New(perCompanyBucket(t))
	ctx, cancel := context.WithCancel(context.Background())

	reloaded := make(chan struct{}, 8)
	st.OnUpdate(func(*Entry) {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})

	done := make(chan struct{})
	go func() {
		st.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-reloaded:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for reload")
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConcurrentPutAndGet(t *testing.T) {
	st := New(storage.NewMemory(0))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			st.Put(types.Snapshot{Global: types.CompanyDashboard{ProblemBatchCount: n}}, 1)
		}(i)
		go func() {
			defer wg.Done()
			st.Get()
		}()
	}
	wg.Wait()
	if _, ok := st.Get(); !ok {
		t.Error("expected an entry after concurrent puts")
	}
}
