package ws

import (
	"testing"
	"time"

	"github.com/vizor/fleethealth/pkg/types"
	"github.com/vizor/fleethealth/server/internal/store"
)

func company(name string, score int) types.CompanyReport {
	return types.CompanyReport{
		Company:   name,
		Dashboard: types.CompanyDashboard{MedianScore: float64(score)},
		Batches:   []types.BatchReport{{BatchID: "1", Company: name, Score: score}},
	}
}

func TestDiffReports(t *testing.T) {
	loadedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	prev := types.Snapshot{
		Global:    types.CompanyDashboard{MedianScore: 80},
		Companies: []types.CompanyReport{company("Acme", 100), company("Globex", 60), company("Gone", 10)},
	}
	next := &store.Entry{
		LoadedAt:  loadedAt,
		Documents: 9,
		Snapshot: types.Snapshot{
			Global:    types.CompanyDashboard{MedianScore: 80},
			Companies: []types.CompanyReport{company("Acme", 100), company("Globex", 55), company("New", 90)},
		},
	}

	got := diffReports(prev, next)
	if got.LoadedAt != "2024-05-01T13:00:00Z" || got.Documents != 9 {
		t.Errorf("header: got %+v", got)
	}
	if got.GlobalChanged {
		t.Error("global did not change")
	}
	if len(got.Changed) != 2 || got.Changed[0].Company != "Globex" || got.Changed[1].Company != "New" {
		t.Errorf("changed: got %+v", got.Changed)
	}
	if len(got.Removed) != 1 || got.Removed[0] != "Gone" {
		t.Errorf("removed: got %v", got.Removed)
	}
	if got.Empty() {
		t.Error("Empty: got true")
	}
}

func TestDiffReports_GlobalOnly(t *testing.T) {
	prev := types.Snapshot{Companies: []types.CompanyReport{company("Acme", 100)}}
	next := &store.Entry{Snapshot: types.Snapshot{
		Global:    types.CompanyDashboard{ProblemBatchCount: 1},
		Companies: []types.CompanyReport{company("Acme", 100)},
	}}
	got := diffReports(prev, next)
	if !got.GlobalChanged || len(got.Changed) != 0 || got.Empty() {
		t.Errorf("got %+v", got)
	}
}

func TestDiffReports_Identical(t *testing.T) {
	snap := types.Snapshot{Companies: []types.CompanyReport{company("Acme", 100)}}
	if got := diffReports(snap, &store.Entry{Snapshot: snap}); !got.Empty() {
		t.Errorf("got %+v", got)
	}
}
