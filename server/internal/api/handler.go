package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vizor/fleethealth/pkg/types"
	"github.com/vizor/fleethealth/server/internal/alerts"
	"github.com/vizor/fleethealth/server/internal/store"
)

// AlertSource lists the alerts shown by GET /api/v1/alerts.
type AlertSource interface {
	Active() []*alerts.Alert
	Firing() int
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads the published reports from the snapshot store and returns JSON responses.
type Handler struct {
	store  *store.Store
	alerts AlertSource
	mux    *http.ServeMux
}

// New creates a Handler wired to the given snapshot store and registers all
// routes. al may be nil, in which case no alerts are reported.
func New(st *store.Store, al AlertSource) http.Handler {
	h := &Handler{store: st, alerts: al, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/companies", h.listCompanies)
	h.mux.HandleFunc("/api/v1/companies/", h.getCompany) // subtree, extracts {company}
	h.mux.HandleFunc("/api/v1/batches", h.listBatches)
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: load state and per-status batch counts.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{State: "unknown"}
	if h.alerts != nil {
		resp.FiringAlerts = h.alerts.Firing()
	}

	e, ok := h.store.Get()
	if !ok {
		jsonResp(w, http.StatusOK, resp)
		return
	}

	resp.LoadedAt = e.LoadedAt.UTC().Format(time.RFC3339)
	resp.Documents = e.Documents
	resp.CompanyCount = len(e.Snapshot.Companies)
	resp.Global = e.Snapshot.Global
	for _, b := range e.Snapshot.Batches() {
		resp.BatchCount++
		switch b.Status {
		case types.StatusOK:
			resp.OKCount++
		case types.StatusAlert:
			resp.AlertCount++
		case types.StatusCritical:
			resp.CriticalCount++
		}
	}
	if resp.BatchCount > 0 {
		resp.State = statusFromScore(resp.Global.MedianScore)
	}
	jsonResp(w, http.StatusOK, resp)
}

// listCompanies returns GET /api/v1/companies: one dashboard per company.
func (h *Handler) listCompanies(w http.ResponseWriter, _ *http.Request) {
	out := make([]CompanySummary, 0)
	if e, ok := h.store.Get(); ok {
		for _, c := range e.Snapshot.Companies {
			out = append(out, CompanySummary{
				Company:    c.Company,
				Dashboard:  c.Dashboard,
				BatchCount: len(c.Batches),
			})
		}
	}
	jsonResp(w, http.StatusOK, out)
}

// getCompany returns GET /api/v1/companies/{company}: the dashboard and
// annotated batches of one company. "unassigned" names the batches without
// a company.
func (h *Handler) getCompany(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.EscapedPath(), "/api/v1/companies/")
	if raw == "" {
		h.listCompanies(w, r)
		return
	}
	name, err := url.PathUnescape(raw)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid company name")
		return
	}
	if name == types.UnassignedSegment {
		name = ""
	}

	c, ok := h.store.Company(name)
	if !ok {
		jsonErr(w, http.StatusNotFound, "company not found")
		return
	}

	resp := CompanyResponse{
		Company:   c.Company,
		Dashboard: c.Dashboard,
		Batches:   make([]BatchResponse, 0, len(c.Batches)),
	}
	for _, b := range c.Batches {
		resp.Batches = append(resp.Batches, toBatchResponse(b))
	}
	jsonResp(w, http.StatusOK, resp)
}

// listBatches returns GET /api/v1/batches: every batch, optionally filtered
// by ?status=OK|Alert|Critical and ?company=.
func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	switch {
	case status == "",
		strings.EqualFold(status, types.StatusOK),
		strings.EqualFold(status, types.StatusAlert),
		strings.EqualFold(status, types.StatusCritical):
	default:
		jsonErr(w, http.StatusBadRequest, "status must be one of OK, Alert, Critical")
		return
	}
	company, filterCompany := q["company"]

	out := make([]BatchResponse, 0)
	if e, ok := h.store.Get(); ok {
		for _, b := range e.Snapshot.Batches() {
			if status != "" && !strings.EqualFold(b.Status, status) {
				continue
			}
			if filterCompany && b.Company != company[0] {
				continue
			}
			out = append(out, toBatchResponse(b))
		}
	}
	jsonResp(w, http.StatusOK, out)
}

// listAlerts returns GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, _ *http.Request) {
	out := make([]*alerts.Alert, 0)
	if h.alerts != nil {
		out = append(out, h.alerts.Active()...)
	}
	jsonResp(w, http.StatusOK, out)
}

// snapshot returns GET /api/v1/snapshot: the full report set.
func (h *Handler) snapshot(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store))
}

// BuildSnapshot assembles the snapshot payload from the store. It is shared
// with the WebSocket hub so both transports send the same schema.
func BuildSnapshot(st *store.Store) SnapshotResponse {
	resp := SnapshotResponse{
		Companies:   []types.CompanyReport{},
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if e, ok := st.Get(); ok {
		resp.Global = e.Snapshot.Global
		if e.Snapshot.Companies != nil {
			resp.Companies = e.Snapshot.Companies
		}
		resp.LoadedAt = e.LoadedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// statusFromScore converts a 0-100 score to a batch status.
// Mirrors the thresholds the ETL job scores batches with.
func statusFromScore(score float64) string {
	switch {
	case score >= 70:
		return types.StatusOK
	case score >= 50:
		return types.StatusAlert
	default:
		return types.StatusCritical
	}
}

// toBatchResponse annotates a batch report with diagnostics.
func toBatchResponse(b types.BatchReport) BatchResponse {
	return BatchResponse{BatchReport: b, Diagnostics: computeDiagnostics(b)}
}
