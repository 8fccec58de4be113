package compute

import (
	"math"

	"github.com/vizor/fleethealth/pkg/types"
)

// Thresholds that map a score to a batch status. Both are half-open:
// a score of exactly 50 is Alert and exactly 70 is OK.
const (
	ThresholdOK    = 70
	ThresholdAlert = 50
)

// Score derives the immutable report for a finished accumulator.
//
//	problemPercentage = 100 * |Problem| / |Seen|    (0 when no devices)
//	score             = round(100 - problemPercentage)
//
// The published problemPercentage is rounded to one decimal; the score uses
// the exact value.
func Score(acc *BatchAccumulator) types.BatchReport {
	total := acc.Seen.Len()
	problem := acc.Problem.Len()

	var pct float64
	if total > 0 {
		pct = float64(problem) * 100 / float64(total)
	}
	score := clampScore(int(math.Round(100 - pct)))

	return types.BatchReport{
		BatchID:             acc.BatchID,
		Company:             acc.Company,
		Model:               acc.Model,
		TotalDevices:        total,
		DevicesWithProblem:  problem,
		ProblemPercentage:   math.Round(pct*10) / 10,
		Score:               score,
		Status:              StatusFromScore(score),
		TotalFailures:       acc.Failures.Total(),
		FailuresByComponent: acc.Failures,
	}
}

// StatusFromScore maps a 0-100 score to OK, Alert or Critical.
func StatusFromScore(score int) string {
	switch {
	case score >= ThresholdOK:
		return types.StatusOK
	case score >= ThresholdAlert:
		return types.StatusAlert
	default:
		return types.StatusCritical
	}
}

// clampScore restricts v to [0, 100].
func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
