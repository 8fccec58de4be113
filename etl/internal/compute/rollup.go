package compute

import (
	"math"
	"sort"

	"github.com/vizor/fleethealth/pkg/types"
)

// Median returns the median of scores: 0 for none, the middle value for an
// odd count, the mean of the two middle values for an even count.
// scores is not modified.
func Median(scores []int) float64 {
	n := len(scores)
	if n == 0 {
		return 0
	}
	sorted := append([]int(nil), scores...)
	sort.Ints(sorted)
	m := n / 2
	if n%2 == 1 {
		return float64(sorted[m])
	}
	return float64(sorted[m-1]+sorted[m]) / 2
}

// Dashboard computes the KPIs over a set of batch reports.
func Dashboard(reports []types.BatchReport) types.CompanyDashboard {
	var d types.CompanyDashboard
	if len(reports) == 0 {
		return d
	}

	scores := make([]int, len(reports))
	ok := 0
	for i, r := range reports {
		scores[i] = r.Score
		if r.Status == types.StatusOK {
			ok++
		} else {
			d.ProblemBatchCount++
		}
	}
	d.MedianScore = Median(scores)
	d.HealthyBatchPercentage = int(math.Round(float64(ok) / float64(len(reports)) * 100))
	return d
}

// Rollup groups reports by company and computes each company's dashboard and
// the global one. Companies are sorted by name, batches by batch ID.
func Rollup(reports []types.BatchReport) types.Snapshot {
	byCompany := make(map[string][]types.BatchReport)
	for _, r := range reports {
		byCompany[r.Company] = append(byCompany[r.Company], r)
	}

	names := make([]string, 0, len(byCompany))
	for name := range byCompany {
		names = append(names, name)
	}
	sort.Strings(names)

	snap := types.Snapshot{
		Global:    Dashboard(reports),
		Companies: make([]types.CompanyReport, 0, len(names)),
	}
	for _, name := range names {
		batches := byCompany[name]
		sort.Slice(batches, func(i, j int) bool { return batches[i].BatchID < batches[j].BatchID })
		snap.Companies = append(snap.Companies, types.CompanyReport{
			Company:   name,
			Dashboard: Dashboard(batches),
			Batches:   batches,
		})
	}
	return snap
}
