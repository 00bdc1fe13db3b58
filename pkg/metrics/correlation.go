package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/hazyhaar/secop-dashboard/pkg/clean"
	"github.com/hazyhaar/secop-dashboard/pkg/normalize"
	"github.com/hazyhaar/secop-dashboard/pkg/population"
)

// DefaultCorrelationYear is the projection year compared against contract
// volume unless configured otherwise.
const DefaultCorrelationYear = 2035

// Pair is one region observed in both datasets.
type Pair struct {
	RegionKey     string  `json:"region_key"`
	Population    float64 `json:"population"`
	ContractCount int     `json:"contract_count"`
}

// CorrelationView is the population-vs-volume comparison for one year.
// Coefficient is meaningful only when the derivation returned no error.
type CorrelationView struct {
	Year        int     `json:"year"`
	Pairs       []Pair  `json:"pairs"`
	Coefficient float64 `json:"coefficient"`
}

// PairRegions inner-joins counts with populations, sorted by region key.
func PairRegions(counts map[string]int, populations map[string]float64) []Pair {
	pairs := make([]Pair, 0, len(counts))
	for key, n := range counts {
		p, ok := populations[key]
		if !ok {
			continue
		}
		pairs = append(pairs, Pair{RegionKey: key, Population: p, ContractCount: n})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].RegionKey < pairs[j].RegionKey })
	return pairs
}

// Pearson returns the correlation between population and contract count.
// It returns an *InsufficientDataError for fewer than two pairs or when
// either series is constant.
func Pearson(pairs []Pair) (float64, error) {
	if len(pairs) < 2 {
		return 0, &InsufficientDataError{Pairs: len(pairs), Reason: "need at least 2 paired regions"}
	}
	x := make([]float64, len(pairs))
	y := make([]float64, len(pairs))
	for i, p := range pairs {
		x[i] = p.Population
		y[i] = float64(p.ContractCount)
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, &InsufficientDataError{Pairs: len(pairs), Reason: "constant series"}
	}
	return r, nil
}

// Correlation compares contract counts of records with the population of
// year. On insufficient data the view still carries the pairs found.
func Correlation(records []clean.Record, idx *population.Index, year int) (CorrelationView, error) {
	counts := CountByRegion(records, normalize.Region)
	view := CorrelationView{
		Year:  year,
		Pairs: PairRegions(counts, idx.ForYear(year)),
	}
	r, err := Pearson(view.Pairs)
	if err != nil {
		if e, ok := err.(*InsufficientDataError); ok {
			e.Year = year
		}
		return view, err
	}
	view.Coefficient = r
	return view, nil
}
