package api

import "github.com/vizor/fleethealth/pkg/types"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is "unknown" until the first report set has been loaded, then
	// the status of the global median score.
	State         string                 `json:"state"`
	LoadedAt      string                 `json:"loaded_at,omitempty"` // RFC3339
	Documents     int                    `json:"documents"`
	CompanyCount  int                    `json:"company_count"`
	BatchCount    int                    `json:"batch_count"`
	OKCount       int                    `json:"ok_count"`
	AlertCount    int                    `json:"alert_count"`
	CriticalCount int                    `json:"critical_count"`
	FiringAlerts  int                    `json:"firing_alerts"`
	Global        types.CompanyDashboard `json:"global"`
}

// CompanySummary is one entry in GET /api/v1/companies.
type CompanySummary struct {
	Company    string                 `json:"company"`
	Dashboard  types.CompanyDashboard `json:"dashboard"`
	BatchCount int                    `json:"batch_count"`
}

// CompanyResponse is the payload for GET /api/v1/companies/{company}.
type CompanyResponse struct {
	Company   string                 `json:"company"`
	Dashboard types.CompanyDashboard `json:"dashboard"`
	Batches   []BatchResponse        `json:"batches"`
}

// BatchResponse is a batch report annotated with diagnostic hints.
type BatchResponse struct {
	types.BatchReport
	Diagnostics []DiagnosticHint `json:"diagnostics"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every WebSocket broadcast.
type SnapshotResponse struct {
	Global      types.CompanyDashboard `json:"global"`
	Companies   []types.CompanyReport  `json:"companies"`
	LoadedAt    string                 `json:"loaded_at,omitempty"` // RFC3339
	GeneratedAt string                 `json:"generated_at"`        // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
