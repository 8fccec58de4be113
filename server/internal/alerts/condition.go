package alerts

import (
	"strconv"
	"strings"

	"github.com/vizor/fleethealth/pkg/types"
)

// evalCondition evaluates a rule condition string against one batch report.
//
// Supported expressions (field operator value):
//
//	score < 50
//	problem_percentage > 30
//	total_failures > 100
//	failures_cpu > 10
//	failures_ram > 10
//	failures_disk > 10
//	devices_with_problem >= 5
//	total_devices < 3
//	status == Critical
//	status != OK
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, b types.BatchReport) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "status" {
		switch op {
		case "==":
			return strings.EqualFold(b.Status, rhs), float64(b.Score)
		case "!=":
			return !strings.EqualFold(b.Status, rhs), float64(b.Score)
		}
		return false, 0
	}

	v, ok := numericField(field, b)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// numericField maps a field name to its value in the batch report.
func numericField(field string, b types.BatchReport) (float64, bool) {
	switch field {
	case "score":
		return float64(b.Score), true
	case "problem_percentage":
		return b.ProblemPercentage, true
	case "total_failures":
		return float64(b.TotalFailures), true
	case "failures_cpu":
		return float64(b.FailuresByComponent.CPU), true
	case "failures_ram":
		return float64(b.FailuresByComponent.RAM), true
	case "failures_disk":
		return float64(b.FailuresByComponent.Disk), true
	case "devices_with_problem":
		return float64(b.DevicesWithProblem), true
	case "total_devices":
		return float64(b.TotalDevices), true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
