package compute

import (
	"fmt"
	"testing"

	"github.com/vizor/fleethealth/pkg/types"
)

// accWith builds an accumulator with total devices of which problem have a
// non-OK status.
func accWith(total, problem int) *BatchAccumulator {
	acc := &BatchAccumulator{BatchID: "b", Company: "c", Seen: make(DeviceSet), Problem: make(DeviceSet)}
	for i := 0; i < total; i++ {
		code := fmt.Sprintf("d%03d", i)
		acc.Seen.Add(code)
		if i < problem {
			acc.Problem.Add(code)
		}
	}
	return acc
}

func TestStatusFromScore_Boundaries(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{0, types.StatusCritical},
		{49, types.StatusCritical},
		{50, types.StatusAlert},
		{69, types.StatusAlert},
		{70, types.StatusOK},
		{100, types.StatusOK},
	}
	for _, tt := range tests {
		if got := StatusFromScore(tt.score); got != tt.want {
			t.Errorf("StatusFromScore(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		problem    int
		wantPct    float64
		wantScore  int
		wantStatus string
	}{
		{"no devices", 0, 0, 0, 100, types.StatusOK},
		{"all healthy", 4, 0, 0, 100, types.StatusOK},
		{"all broken", 4, 4, 100, 0, types.StatusCritical},
		{"one of three", 3, 1, 33.3, 67, types.StatusAlert},
		{"two of three", 3, 2, 66.7, 33, types.StatusCritical},
		{"half", 2, 1, 50, 50, types.StatusAlert},
		{"thirty percent", 10, 3, 30, 70, types.StatusOK},
		{"fifty-one percent", 100, 51, 51, 49, types.StatusCritical},
		{"one of eight rounds half up", 8, 1, 12.5, 88, types.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Score(accWith(tt.total, tt.problem))
			if r.TotalDevices != tt.total || r.DevicesWithProblem != tt.problem {
				t.Errorf("devices: got %d/%d", r.TotalDevices, r.DevicesWithProblem)
			}
			if r.ProblemPercentage != tt.wantPct {
				t.Errorf("pct: got %v, want %v", r.ProblemPercentage, tt.wantPct)
			}
			if r.Score != tt.wantScore {
				t.Errorf("score: got %d, want %d", r.Score, tt.wantScore)
			}
			if r.Status != tt.wantStatus {
				t.Errorf("status: got %q, want %q", r.Status, tt.wantStatus)
			}
			if r.Score < 0 || r.Score > 100 {
				t.Errorf("score %d out of range", r.Score)
			}
		})
	}
}

func TestScore_CopiesIdentityAndFailures(t *testing.T) {
	acc := accWith(1, 0)
	acc.BatchID, acc.Company, acc.Model = "42", "Acme", "X1"
	acc.Failures = types.FailureCounts{CPU: 3, RAM: 1, Disk: 2}

	r := Score(acc)
	if r.BatchID != "42" || r.Company != "Acme" || r.Model != "X1" {
		t.Errorf("identity: got %+v", r)
	}
	if r.TotalFailures != 6 || r.FailuresByComponent != acc.Failures {
		t.Errorf("failures: got %d %+v", r.TotalFailures, r.FailuresByComponent)
	}
}
