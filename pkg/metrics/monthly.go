package metrics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/secop-dashboard/pkg/clean"
)

// DefaultMonthlySince is the first year kept in the monthly series.
const DefaultMonthlySince = 2018

// MonthlyTypeValue is the contracted value of one (month, contract type)
// bucket. YearMonth is the first day of the month, UTC.
type MonthlyTypeValue struct {
	YearMonth    time.Time       `json:"year_month"`
	ContractType string          `json:"contract_type"`
	TotalValue   decimal.Decimal `json:"total_value"`
}

// TypeTotal is the contracted value of one contract type over all months.
type TypeTotal struct {
	ContractType string          `json:"contract_type"`
	TotalValue   decimal.Decimal `json:"total_value"`
}

// Pivot is a month x contract type grid; Values[i][j] is the total for
// Months[i] and Types[j], zero where no bucket exists.
type Pivot struct {
	Months []time.Time         `json:"months"`
	Types  []string            `json:"types"`
	Values [][]decimal.Decimal `json:"values"`
}

type bucketKey struct {
	month time.Time
	ctype string
}

// Monthly buckets records with an execution start date by calendar month and
// contract type and sums their contract values. Missing values add nothing.
// Buckets are ordered by month, then type.
func Monthly(records []clean.Record) []MonthlyTypeValue {
	sums := make(map[bucketKey]decimal.Decimal)
	for _, r := range records {
		if r.ExecutionStartDate == nil {
			continue
		}
		d := *r.ExecutionStartDate
		k := bucketKey{
			month: time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC),
			ctype: r.ContractType,
		}
		sum := sums[k]
		if r.ContractValue.Valid {
			sum = sum.Add(r.ContractValue.Decimal)
		}
		sums[k] = sum
	}

	out := make([]MonthlyTypeValue, 0, len(sums))
	for k, v := range sums {
		out = append(out, MonthlyTypeValue{YearMonth: k.month, ContractType: k.ctype, TotalValue: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].YearMonth.Equal(out[j].YearMonth) {
			return out[i].YearMonth.Before(out[j].YearMonth)
		}
		return out[i].ContractType < out[j].ContractType
	})
	return out
}

// Since keeps the buckets from year onward. A year at or below zero keeps
// every bucket.
func Since(buckets []MonthlyTypeValue, year int) []MonthlyTypeValue {
	out := make([]MonthlyTypeValue, 0, len(buckets))
	for _, b := range buckets {
		if b.YearMonth.Year() >= year {
			out = append(out, b)
		}
	}
	return out
}

// TotalsByType sums buckets per contract type, largest first; ties are
// ordered by type.
func TotalsByType(buckets []MonthlyTypeValue) []TypeTotal {
	sums := make(map[string]decimal.Decimal)
	for _, b := range buckets {
		sums[b.ContractType] = sums[b.ContractType].Add(b.TotalValue)
	}
	out := make([]TypeTotal, 0, len(sums))
	for t, v := range sums {
		out = append(out, TypeTotal{ContractType: t, TotalValue: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalValue.Cmp(out[j].TotalValue); c != 0 {
			return c > 0
		}
		return out[i].ContractType < out[j].ContractType
	})
	return out
}

// PivotTable spreads buckets into a month x type grid.
func PivotTable(buckets []MonthlyTypeValue) Pivot {
	monthIdx := make(map[time.Time]int)
	typeIdx := make(map[string]int)
	p := Pivot{Months: []time.Time{}, Types: []string{}}
	for _, b := range buckets {
		if _, ok := monthIdx[b.YearMonth]; !ok {
			monthIdx[b.YearMonth] = 0
			p.Months = append(p.Months, b.YearMonth)
		}
		if _, ok := typeIdx[b.ContractType]; !ok {
			typeIdx[b.ContractType] = 0
			p.Types = append(p.Types, b.ContractType)
		}
	}
	sort.Slice(p.Months, func(i, j int) bool { return p.Months[i].Before(p.Months[j]) })
	sort.Strings(p.Types)
	for i, m := range p.Months {
		monthIdx[m] = i
	}
	for j, t := range p.Types {
		typeIdx[t] = j
	}

	p.Values = make([][]decimal.Decimal, len(p.Months))
	for i := range p.Values {
		row := make([]decimal.Decimal, len(p.Types))
		for j := range row {
			row[j] = decimal.Zero
		}
		p.Values[i] = row
	}
	for _, b := range buckets {
		i, j := monthIdx[b.YearMonth], typeIdx[b.ContractType]
		p.Values[i][j] = p.Values[i][j].Add(b.TotalValue)
	}
	return p
}
