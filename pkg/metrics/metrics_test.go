package metrics

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/secop-dashboard/pkg/clean"
	"github.com/hazyhaar/secop-dashboard/pkg/normalize"
	"github.com/hazyhaar/secop-dashboard/pkg/population"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func contract(dept, ctype, value, start string) clean.Record {
	r := clean.Record{DepartmentName: dept, ContractType: ctype}
	if value != "" {
		r.ContractValue = decimal.NewNullDecimal(dec(value))
	}
	if start != "" {
		d, err := time.Parse("2006-01-02", start)
		if err != nil {
			panic(err)
		}
		r.ExecutionStartDate = &d
	}
	return r
}

func repeat(n int, r clean.Record) []clean.Record {
	out := make([]clean.Record, n)
	for i := range out {
		out[i] = r
	}
	return out
}

func TestRatePerCapita_LeftJoin(t *testing.T) {
	got := RatePerCapita(map[string]int{"a": 100, "b": 50}, map[string]float64{"a": 100000}, 0)
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2 (no dropped rows)", len(got))
	}
	if got[0].RegionKey != "a" || got[0].ContractsPer1000 == nil || *got[0].ContractsPer1000 != 1.0 {
		t.Errorf("rate(a) = %+v, want 1.0", got[0])
	}
	if got[1].RegionKey != "b" || got[1].ContractsPer1000 != nil || got[1].Population != nil {
		t.Errorf("rate(b) = %+v, want nil", got[1])
	}
}

func TestRatePerCapita_OrderingAndTopN(t *testing.T) {
	counts := map[string]int{"a": 10, "b": 30, "c": 20, "d": 5, "e": 1}
	pops := map[string]float64{"a": 1000, "b": 1000, "c": 1000, "d": 0}
	got := RatePerCapita(counts, pops, 0)
	order := []string{"b", "c", "a", "d", "e"}
	for i, key := range order {
		if got[i].RegionKey != key {
			t.Fatalf("position %d = %s, want %s (%+v)", i, got[i].RegionKey, key, got)
		}
	}
	if got[3].Population == nil || got[3].ContractsPer1000 != nil {
		t.Errorf("zero population should keep population and a nil rate: %+v", got[3])
	}

	top := RatePerCapita(counts, pops, 2)
	if len(top) != 2 || top[0].RegionKey != "b" || top[1].RegionKey != "c" {
		t.Errorf("top 2 = %+v", top)
	}
}

func TestCountByRegion(t *testing.T) {
	records := []clean.Record{
		{DepartmentName: "bogota d.c."},
		{DepartmentName: "bogotá, d.c."},
		{DepartmentName: "BOGOTA D C"},
		{DepartmentName: ""},
		{DepartmentName: "   "},
	}
	got := CountByRegion(records, normalize.Region)
	if len(got) != 2 || got["bogota d c"] != 2 || got["bogota, d c"] != 1 {
		t.Errorf("counts = %v", got)
	}
}

func TestPerCapita_LatestYear(t *testing.T) {
	idx := population.NewIndex([]population.Record{
		{RegionName: "Antioquia", Year: 2020, Population: 1000},
		{RegionName: "ANTIOQUIA", Year: 2035, Population: 2000},
		{RegionName: "Cauca", Year: 2035, Population: 500},
	}, normalize.Region)
	records := append(repeat(4, contract("antioquia", "obra", "", "")), contract("huila", "obra", "", ""))

	view := PerCapita(records, idx, 0, DefaultTopN)
	if view.Year != 2035 {
		t.Errorf("Year = %d, want 2035", view.Year)
	}
	if len(view.Regions) != 2 || *view.Regions[0].ContractsPer1000 != 2 {
		t.Errorf("regions = %+v", view.Regions)
	}
	if view.Unmatched != 1 {
		t.Errorf("Unmatched = %d, want 1", view.Unmatched)
	}

	fixed := PerCapita(records, idx, 2020, DefaultTopN)
	if *fixed.Regions[0].ContractsPer1000 != 4 {
		t.Errorf("rate for 2020 = %v, want 4", *fixed.Regions[0].ContractsPer1000)
	}
}

func TestPearson(t *testing.T) {
	r, err := Pearson([]Pair{
		{RegionKey: "a", Population: 10, ContractCount: 5},
		{RegionKey: "b", Population: 20, ContractCount: 10},
	})
	if err != nil {
		t.Fatalf("Pearson: %v", err)
	}
	if math.Abs(r-1.0) > 1e-9 {
		t.Errorf("r = %v, want 1.0", r)
	}

	neg, err := Pearson([]Pair{{Population: 1, ContractCount: 3}, {Population: 2, ContractCount: 2}, {Population: 3, ContractCount: 1}})
	if err != nil || math.Abs(neg+1.0) > 1e-9 {
		t.Errorf("r = %v, %v, want -1.0", neg, err)
	}
}

func TestPearson_InsufficientData(t *testing.T) {
	cases := map[string][]Pair{
		"none":     nil,
		"one":      {{RegionKey: "a", Population: 10, ContractCount: 5}},
		"constant": {{Population: 10, ContractCount: 5}, {Population: 20, ContractCount: 5}},
	}
	for name, pairs := range cases {
		_, err := Pearson(pairs)
		if !errors.Is(err, ErrInsufficientData) {
			t.Errorf("%s: err = %v, want ErrInsufficientData", name, err)
		}
		var ide *InsufficientDataError
		if !errors.As(err, &ide) || ide.Pairs != len(pairs) {
			t.Errorf("%s: err = %#v", name, err)
		}
	}
}

func TestCorrelation_InnerJoin(t *testing.T) {
	idx := population.NewIndex([]population.Record{
		{RegionName: "Antioquia", Year: 2035, Population: 20},
		{RegionName: "Cauca", Year: 2035, Population: 10},
		{RegionName: "Huila", Year: 2020, Population: 99},
	}, normalize.Region)
	var records []clean.Record
	records = append(records, repeat(10, contract("antioquia", "obra", "", ""))...)
	records = append(records, repeat(5, contract("cauca", "obra", "", ""))...)
	records = append(records, repeat(7, contract("huila", "obra", "", ""))...)

	view, err := Correlation(records, idx, 2035)
	if err != nil {
		t.Fatalf("Correlation: %v", err)
	}
	if len(view.Pairs) != 2 || view.Pairs[0].RegionKey != "antioquia" {
		t.Errorf("pairs = %+v", view.Pairs)
	}
	if math.Abs(view.Coefficient-1.0) > 1e-9 {
		t.Errorf("coefficient = %v", view.Coefficient)
	}

	view, err = Correlation(records, idx, 2020)
	var ide *InsufficientDataError
	if !errors.As(err, &ide) || ide.Year != 2020 || ide.Pairs != 1 {
		t.Fatalf("err = %v, want insufficient data for 2020 with 1 pair", err)
	}
	if len(view.Pairs) != 1 {
		t.Errorf("pairs = %+v", view.Pairs)
	}
}

func TestMonthly_SameMonthSums(t *testing.T) {
	got := Monthly([]clean.Record{
		contract("cauca", "obra", "100", "2021-05-03"),
		contract("cauca", "obra", "200", "2021-05-28"),
	})
	if len(got) != 1 {
		t.Fatalf("buckets = %+v, want 1", got)
	}
	if !got[0].YearMonth.Equal(month(2021, time.May)) || !got[0].TotalValue.Equal(dec("300")) {
		t.Errorf("bucket = %+v, want (2021-05, obra) -> 300", got[0])
	}
}

func TestMonthly_EndToEnd(t *testing.T) {
	records := clean.Clean([]map[string]any{{
		"valor_contrato":         "1.000",
		"fecha_inicio_ejecuci_n": "2020-01-15",
		"departamento_entidad":   "Bogotá D.C.",
		"tipo_de_contrato":       "Prestación de Servicios",
	}})
	got := Monthly(records)
	if len(got) != 1 {
		t.Fatalf("buckets = %+v", got)
	}
	b := got[0]
	if !b.YearMonth.Equal(month(2020, time.January)) || b.ContractType != "prestacion de servicios" || !b.TotalValue.Equal(dec("1000")) {
		t.Errorf("bucket = %+v", b)
	}
}

func TestMonthly_SkipsMissingDatesAndValues(t *testing.T) {
	got := Monthly([]clean.Record{
		contract("cauca", "obra", "100", ""),
		contract("cauca", "suministro", "", "2019-02-01"),
		contract("cauca", "suministro", "50.5", "2019-02-10"),
		contract("cauca", "obra", "10", "2018-12-31"),
	})
	if len(got) != 2 {
		t.Fatalf("buckets = %+v", got)
	}
	if got[0].ContractType != "obra" || !got[0].YearMonth.Equal(month(2018, time.December)) {
		t.Errorf("first bucket = %+v", got[0])
	}
	if !got[1].TotalValue.Equal(dec("50.5")) {
		t.Errorf("suministro = %v, want 50.5", got[1].TotalValue)
	}
}

func TestSinceTotalsPivot(t *testing.T) {
	buckets := []MonthlyTypeValue{
		{YearMonth: month(2017, time.March), ContractType: "obra", TotalValue: dec("1000")},
		{YearMonth: month(2018, time.January), ContractType: "obra", TotalValue: dec("10")},
		{YearMonth: month(2018, time.January), ContractType: "suministro", TotalValue: dec("20")},
		{YearMonth: month(2018, time.February), ContractType: "suministro", TotalValue: dec("5")},
	}

	recent := Since(buckets, 2018)
	if len(recent) != 3 {
		t.Errorf("Since = %d buckets, want 3", len(recent))
	}

	totals := TotalsByType(buckets)
	if len(totals) != 2 || totals[0].ContractType != "obra" || !totals[0].TotalValue.Equal(dec("1010")) {
		t.Errorf("totals = %+v", totals)
	}
	if !totals[1].TotalValue.Equal(dec("25")) {
		t.Errorf("suministro total = %v", totals[1].TotalValue)
	}

	p := PivotTable(recent)
	if len(p.Months) != 2 || len(p.Types) != 2 {
		t.Fatalf("pivot shape = %d x %d", len(p.Months), len(p.Types))
	}
	if p.Types[0] != "obra" || !p.Months[1].Equal(month(2018, time.February)) {
		t.Errorf("pivot axes = %v %v", p.Months, p.Types)
	}
	if !p.Values[1][0].IsZero() {
		t.Errorf("missing combination = %v, want 0", p.Values[1][0])
	}
	if !p.Values[0][1].Equal(dec("20")) || !p.Values[1][1].Equal(dec("5")) {
		t.Errorf("values = %v", p.Values)
	}

	empty := PivotTable(nil)
	if len(empty.Months) != 0 || len(empty.Values) != 0 {
		t.Errorf("empty pivot = %+v", empty)
	}
}
