package api

import (
	"fmt"
	"sort"

	"github.com/vizor/fleethealth/pkg/types"
)

// DiagnosticHint is one human-readable insight about a batch's health.
// The UI displays these as chips on the batch card; clicking one shows Detail.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier (used for dedup/ordering).
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip (at most 5 words).
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional numeric value associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// component describes one failure counter and the threshold behind it.
type component struct {
	key       string
	name      string
	threshold string
	count     int
}

// computeDiagnostics derives human-readable diagnostic hints from a batch
// report. Hints are ordered: critical first, then warnings, then info.
func computeDiagnostics(b types.BatchReport) []DiagnosticHint {
	var hints []DiagnosticHint

	// ── Overall status ───────────────────────────────────────────────────────
	pct := b.ProblemPercentage
	switch b.Status {
	case types.StatusCritical:
		hints = append(hints, DiagnosticHint{
			Key:   "status_critical",
			Level: "critical",
			Title: fmt.Sprintf("%.1f%% devices affected", pct),
			Detail: fmt.Sprintf(
				"%d of the %d devices in batch %s reported at least one problem. "+
					"A score of %d is below the alert line of 50. "+
					"Check whether the batch shares a hardware revision or a recent software rollout.",
				b.DevicesWithProblem, b.TotalDevices, b.BatchID, b.Score,
			),
			Value: &pct,
		})
	case types.StatusAlert:
		hints = append(hints, DiagnosticHint{
			Key:   "status_alert",
			Level: "warning",
			Title: fmt.Sprintf("%.1f%% devices affected", pct),
			Detail: fmt.Sprintf(
				"%d of the %d devices in batch %s reported at least one problem. "+
					"The score of %d is between 50 and 69. "+
					"Watch the trend over the next runs before it turns critical.",
				b.DevicesWithProblem, b.TotalDevices, b.BatchID, b.Score,
			),
			Value: &pct,
		})
	}

	// ── Dominant component ───────────────────────────────────────────────────
	comps := []component{
		{"cpu", "CPU", "80%", b.FailuresByComponent.CPU},
		{"ram", "RAM", "80%", b.FailuresByComponent.RAM},
		{"disk", "Disk", "90%", b.FailuresByComponent.Disk},
	}
	if total := b.TotalFailures; total > 0 {
		for _, c := range comps {
			if c.count == 0 {
				continue
			}
			share := float64(c.count) * 100 / float64(total)
			level := "info"
			if share >= 50 {
				level = "warning"
			}
			hints = append(hints, DiagnosticHint{
				Key:   c.key + "_failures",
				Level: level,
				Title: fmt.Sprintf("%s over %s", c.name, c.threshold),
				Detail: fmt.Sprintf(
					"%d telemetry samples reported %s usage above %s, "+
						"%.0f%% of all component failures in this batch. "+
						"Counts are per sample, so one device can contribute many times.",
					c.count, c.name, c.threshold, share,
				),
				Value: &share,
			})
		}
	}

	// ── Problems without component failures ──────────────────────────────────
	if b.DevicesWithProblem > 0 && b.TotalFailures == 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "status_only",
			Level: "info",
			Title: "Status-only problems",
			Detail: "Devices in this batch reported a non-OK status while CPU, RAM and disk " +
				"stayed within limits. Look at the device status field for the cause.",
		})
	}

	// ── All clear ─────────────────────────────────────────────────────────────
	if len(hints) == 0 {
		score := float64(b.Score)
		hints = append(hints, DiagnosticHint{
			Key:   "healthy",
			Level: "ok",
			Title: "All clear",
			Detail: fmt.Sprintf(
				"All %d devices in this batch reported OK with a score of %d/100.",
				b.TotalDevices, b.Score,
			),
			Value: &score,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank[hints[i].Level] < levelRank[hints[j].Level]
	})
	return hints
}
