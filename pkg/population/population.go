// CLAUDE:SUMMARY Population reference loader: concurrent reads of tabular sources, "total" scope filter, integer years.
package population

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/secop-dashboard/pkg/normalize"
)

// ScopeTotal is the geographic scope retained by the loader.
const ScopeTotal = "total"

// Record is one population figure for a region and year. RegionName is kept
// as given by the source; callers derive join keys themselves.
type Record struct {
	RegionName string  `json:"region_name"`
	Year       int     `json:"year"`
	Population float64 `json:"population"`
	Scope      string  `json:"geographic_scope"`
}

// Columns names the header cells holding each field. Headers are compared
// after normalize.Column, so "ÁREA GEOGRÁFICA" and "area_geografica" match.
type Columns struct {
	Scope      string `yaml:"scope"`
	Year       string `yaml:"year"`
	Region     string `yaml:"region"`
	Population string `yaml:"population"`
}

// DefaultColumns matches the DANE population projection workbooks.
func DefaultColumns() Columns {
	return Columns{
		Scope:      "ÁREA GEOGRÁFICA",
		Year:       "AÑO",
		Region:     "DPNOM",
		Population: "Población",
	}
}

func (c Columns) withDefaults() Columns {
	d := DefaultColumns()
	if c.Scope == "" {
		c.Scope = d.Scope
	}
	if c.Year == "" {
		c.Year = d.Year
	}
	if c.Region == "" {
		c.Region = d.Region
	}
	if c.Population == "" {
		c.Population = d.Population
	}
	return c
}

// Table is a raw tabular input: a header row followed by data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Parse extracts the retained records of t: scope equal to "total"
// (case-insensitive) and a year present. Unparsable populations count as 0.
func Parse(t Table, cols Columns) ([]Record, error) {
	cols = cols.withDefaults()

	colIdx := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		name := normalize.Column(h)
		if _, dup := colIdx[name]; !dup {
			colIdx[name] = i
		}
	}
	find := func(header string) (int, error) {
		i, ok := colIdx[normalize.Column(header)]
		if !ok {
			return -1, fmt.Errorf("column %q not found in header %v", header, t.Header)
		}
		return i, nil
	}

	scopeCol, err := find(cols.Scope)
	if err != nil {
		return nil, err
	}
	yearCol, err := find(cols.Year)
	if err != nil {
		return nil, err
	}
	regionCol, err := find(cols.Region)
	if err != nil {
		return nil, err
	}
	popCol, err := find(cols.Population)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		scope := strings.TrimSpace(cell(row, scopeCol))
		if !strings.EqualFold(scope, ScopeTotal) {
			continue
		}
		year, ok := parseYear(cell(row, yearCol))
		if !ok {
			continue
		}
		pop, _ := parseNumber(cell(row, popCol))
		records = append(records, Record{
			RegionName: strings.TrimSpace(cell(row, regionCol)),
			Year:       year,
			Population: pop,
			Scope:      scope,
		})
	}
	return records, nil
}

// Loader reads population sources and concatenates their records.
type Loader struct {
	columns Columns
	logger  *slog.Logger
}

// NewLoader creates a Loader. A nil logger falls back to slog.Default().
func NewLoader(cols Columns, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{columns: cols.withDefaults(), logger: logger}
}

// Load reads every source concurrently and returns their retained records
// concatenated in source order. Any failing source fails the load.
func (l *Loader) Load(ctx context.Context, sources ...Source) ([]Record, error) {
	results := make([][]Record, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			t, err := src.Read(gctx)
			if err != nil {
				return fmt.Errorf("read %s: %w", src.ID(), err)
			}
			recs, err := Parse(t, l.columns)
			if err != nil {
				return fmt.Errorf("parse %s: %w", src.ID(), err)
			}
			l.logger.Info("population source read", "source", src.ID(), "rows", len(t.Rows), "kept", len(recs))
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	all := make([]Record, 0, total)
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// parseYear accepts "2020" and spreadsheet renderings such as "2020.0".
func parseYear(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

// parseNumber parses a plain number, falling back to one with comma
// thousands separators ("48,258,494").
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	s = strings.NewReplacer(",", "", " ", "").Replace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
