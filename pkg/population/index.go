package population

import "sort"

// Index sums population per region key and year.
type Index struct {
	byKey map[string]map[int]float64
	years map[int]struct{}
}

// NewIndex groups records under keyFn(RegionName). Records whose key is
// empty are skipped.
func NewIndex(records []Record, keyFn func(string) string) *Index {
	idx := &Index{
		byKey: make(map[string]map[int]float64),
		years: make(map[int]struct{}),
	}
	for _, r := range records {
		idx.years[r.Year] = struct{}{}
		key := keyFn(r.RegionName)
		if key == "" {
			continue
		}
		m, ok := idx.byKey[key]
		if !ok {
			m = make(map[int]float64)
			idx.byKey[key] = m
		}
		m[r.Year] += r.Population
	}
	return idx
}

// Years returns the distinct years, ascending.
func (idx *Index) Years() []int {
	years := make([]int, 0, len(idx.years))
	for y := range idx.years {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// LatestYear returns the most recent year, or false for an empty index.
func (idx *Index) LatestYear() (int, bool) {
	latest, found := 0, false
	for y := range idx.years {
		if !found || y > latest {
			latest, found = y, true
		}
	}
	return latest, found
}

// ForYear returns region key -> summed population for year. Regions without
// a row for that year are absent.
func (idx *Index) ForYear(year int) map[string]float64 {
	out := make(map[string]float64)
	for key, byYear := range idx.byKey {
		if p, ok := byYear[year]; ok {
			out[key] = p
		}
	}
	return out
}

// Len returns the number of distinct region keys.
func (idx *Index) Len() int { return len(idx.byKey) }
