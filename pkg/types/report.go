package types

// Batch health states.
const (
	StatusOK       = "OK"
	StatusAlert    = "Alert"
	StatusCritical = "Critical"
)

// FailureCounts holds per-component failure counters for one batch.
// Each counter is incremented once per qualifying telemetry row, not once per
// device.
type FailureCounts struct {
	CPU  int `json:"cpu"`
	RAM  int `json:"ram"`
	Disk int `json:"disk"`
}

// Total returns the sum of all component counters.
func (f FailureCounts) Total() int {
	return f.CPU + f.RAM + f.Disk
}

// Add returns the component-wise sum of f and o.
func (f FailureCounts) Add(o FailureCounts) FailureCounts {
	return FailureCounts{CPU: f.CPU + o.CPU, RAM: f.RAM + o.RAM, Disk: f.Disk + o.Disk}
}

// BatchReport is the scored health report for one deployment batch.
// Published as {company}/{batchId}/lote.json.
type BatchReport struct {
	BatchID             string        `json:"batchId"`
	Company             string        `json:"company"`
	Model               string        `json:"model"`
	TotalDevices        int           `json:"totalDevices"`
	DevicesWithProblem  int           `json:"devicesWithProblem"`
	ProblemPercentage   float64       `json:"problemPercentage"`
	Score               int           `json:"score"`
	Status              string        `json:"status"`
	TotalFailures       int           `json:"totalFailures"`
	FailuresByComponent FailureCounts `json:"failuresByComponent"`
}

// CompanyDashboard is the KPI rollup over a set of batches.
// Published as {company}/dashboard.json, and once globally as dashboard.json.
type CompanyDashboard struct {
	ProblemBatchCount      int     `json:"problemBatchCount"`
	HealthyBatchPercentage int     `json:"healthyBatchPercentage"`
	MedianScore            float64 `json:"medianScore"`

	// CriticalComplaintCount is reserved; nothing feeds it yet.
	CriticalComplaintCount int `json:"criticalComplaintCount"`
}

// CompanyReport is one company's dashboard together with its batches.
// It is also the document shape of the consolidated output layout.
type CompanyReport struct {
	Company   string           `json:"company,omitempty"`
	Dashboard CompanyDashboard `json:"dashboard"`
	Batches   []BatchReport    `json:"batches"`
}

// Snapshot is the complete result of one aggregation run.
// Companies are sorted by name and each company's batches by batch ID.
type Snapshot struct {
	Global    CompanyDashboard `json:"global"`
	Companies []CompanyReport  `json:"companies"`
}

// Batches returns every batch report in the snapshot, in company order.
func (s *Snapshot) Batches() []BatchReport {
	var out []BatchReport
	for _, c := range s.Companies {
		out = append(out, c.Batches...)
	}
	return out
}

// Company returns the report for the named company.
func (s *Snapshot) Company(name string) (*CompanyReport, bool) {
	for i := range s.Companies {
		if s.Companies[i].Company == name {
			return &s.Companies[i], true
		}
	}
	return nil, false
}
