package ws

import (
	"reflect"
	"sort"
	"time"

	"github.com/vizor/fleethealth/pkg/types"
	"github.com/vizor/fleethealth/server/internal/api"
	"github.com/vizor/fleethealth/server/internal/store"
)

// Event names carried in Envelope.Event.
const (
	// EventSnapshot carries the full report set. Sent on connect and on
	// every broadcast tick.
	EventSnapshot = "snapshot"

	// EventReportLoaded announces a store reload that changed at least one
	// company report or the global dashboard.
	EventReportLoaded = "report_loaded"
)

// Envelope is the JSON frame written to subscribers.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ReportLoaded is the payload of EventReportLoaded. Changed holds the full
// report of every company that is new or differs from the previous load.
type ReportLoaded struct {
	LoadedAt      string                 `json:"loaded_at"`
	Documents     int                    `json:"documents"`
	Global        types.CompanyDashboard `json:"global"`
	GlobalChanged bool                   `json:"global_changed"`
	Changed       []types.CompanyReport  `json:"changed"`
	Removed       []string               `json:"removed"`
}

// Empty reports whether the reload changed nothing.
func (r ReportLoaded) Empty() bool {
	return !r.GlobalChanged && len(r.Changed) == 0 && len(r.Removed) == 0
}

// diffReports compares the report set announced last with the one just
// loaded. Changed follows next's company order; Removed is sorted.
func diffReports(prev types.Snapshot, next *store.Entry) ReportLoaded {
	out := ReportLoaded{
		LoadedAt:      next.LoadedAt.UTC().Format(time.RFC3339),
		Documents:     next.Documents,
		Global:        next.Snapshot.Global,
		GlobalChanged: prev.Global != next.Snapshot.Global,
		Changed:       []types.CompanyReport{},
		Removed:       []string{},
	}

	before := make(map[string]types.CompanyReport, len(prev.Companies))
	for _, c := range prev.Companies {
		before[c.Company] = c
	}
	for _, c := range next.Snapshot.Companies {
		old, seen := before[c.Company]
		delete(before, c.Company)
		if !seen || !reflect.DeepEqual(old, c) {
			out.Changed = append(out.Changed, c)
		}
	}
	for name := range before {
		out.Removed = append(out.Removed, name)
	}
	sort.Strings(out.Removed)
	return out
}

func snapshotEnvelope(st *store.Store) Envelope {
	return Envelope{Event: EventSnapshot, Data: api.BuildSnapshot(st)}
}
