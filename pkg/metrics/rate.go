// CLAUDE:SUMMARY Region-level metrics: contract counts per region key, contracts per 1,000 inhabitants, population correlation.
package metrics

import (
	"sort"

	"github.com/hazyhaar/secop-dashboard/pkg/clean"
	"github.com/hazyhaar/secop-dashboard/pkg/normalize"
	"github.com/hazyhaar/secop-dashboard/pkg/population"
)

// DefaultTopN is the number of regions shown in the per-capita ranking.
const DefaultTopN = 10

// RegionMetric is the contract rate of one region. Population and
// ContractsPer1000 are nil when the region has no population figure.
type RegionMetric struct {
	RegionKey        string   `json:"region_key"`
	ContractCount    int      `json:"contract_count"`
	Population       *float64 `json:"population"`
	ContractsPer1000 *float64 `json:"contracts_per_1000"`
}

// RateView is the per-capita ranking for one population year.
type RateView struct {
	Year    int            `json:"year"`
	Regions []RegionMetric `json:"regions"`
	// Unmatched counts ranked regions without a population figure.
	Unmatched int `json:"unmatched"`
}

// CountByRegion counts records per region key. Records whose key is empty
// are not counted.
func CountByRegion(records []clean.Record, keyFn normalize.Func) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		key := keyFn(r.DepartmentName)
		if key == "" {
			continue
		}
		counts[key]++
	}
	return counts
}

// RatePerCapita left-joins counts onto populations and ranks regions by
// contracts per 1,000 inhabitants, descending. Regions with no population,
// or a non-positive one, keep a nil rate and sort after every defined rate.
// Ties are broken by region key. topN <= 0 returns every region.
func RatePerCapita(counts map[string]int, populations map[string]float64, topN int) []RegionMetric {
	out := make([]RegionMetric, 0, len(counts))
	for key, n := range counts {
		m := RegionMetric{RegionKey: key, ContractCount: n}
		if p, ok := populations[key]; ok {
			pop := p
			m.Population = &pop
			if p > 0 {
				rate := float64(n) / p * 1000
				m.ContractsPer1000 = &rate
			}
		}
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].ContractsPer1000, out[j].ContractsPer1000
		switch {
		case a != nil && b != nil && *a != *b:
			return *a > *b
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].RegionKey < out[j].RegionKey
	})

	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// PerCapita ranks regions of records against the population of year, or of
// the most recent year in idx when year is 0.
func PerCapita(records []clean.Record, idx *population.Index, year, topN int) RateView {
	if year == 0 {
		year, _ = idx.LatestYear()
	}
	counts := CountByRegion(records, normalize.Region)
	regions := RatePerCapita(counts, idx.ForYear(year), topN)

	view := RateView{Year: year, Regions: regions}
	for _, r := range regions {
		if r.Population == nil {
			view.Unmatched++
		}
	}
	return view
}
