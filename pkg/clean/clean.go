// CLAUDE:SUMMARY Schema cleaner: canonical column names, typed amount/date/id fields, lowercase text, first-wins row deduplication.
package clean

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hazyhaar/secop-dashboard/pkg/normalize"
)

// Canonical names of the designated columns.
const (
	ColContractValue      = "contract_value"
	ColExecutionStartDate = "execution_start_date"
	ColExecutionEndDate   = "execution_end_date"
	ColDepartmentName     = "department_name"
	ColContractType       = "contract_type"
	ColSupplierID         = "supplier_id"
)

// Record is a cleaned procurement contract. Missing dates and ids are nil,
// a missing amount is an invalid NullDecimal.
type Record struct {
	ContractValue      decimal.NullDecimal
	ExecutionStartDate *time.Time
	ExecutionEndDate   *time.Time
	DepartmentName     string
	ContractType       string
	SupplierID         *int64
	// Fields holds every other column, lowercased and trimmed.
	Fields map[string]string
}

// Schema lists, per designated column, the canonical source column names it
// may come from. The first alias present in a record wins.
type Schema struct {
	ContractValue      []string `yaml:"contract_value"`
	ExecutionStartDate []string `yaml:"execution_start_date"`
	ExecutionEndDate   []string `yaml:"execution_end_date"`
	DepartmentName     []string `yaml:"department_name"`
	ContractType       []string `yaml:"contract_type"`
	SupplierID         []string `yaml:"supplier_id"`
}

// DefaultSchema matches the SECOP Integrado column names.
func DefaultSchema() Schema {
	return Schema{
		ContractValue:      []string{"valor_contrato"},
		ExecutionStartDate: []string{"fecha_inicio_ejecucion", "fecha_inicio_ejecuci_n"},
		ExecutionEndDate:   []string{"fecha_fin_ejecucion", "fecha_fin_ejecuci_n"},
		DepartmentName:     []string{"departamento_entidad"},
		ContractType:       []string{"tipo_de_contrato"},
		SupplierID:         []string{"documento_proveedor"},
	}
}

// withDefaults fills empty alias lists from DefaultSchema and canonicalizes
// every alias so configuration may use display names.
func (s Schema) withDefaults() Schema {
	d := DefaultSchema()
	pick := func(got, def []string) []string {
		if len(got) == 0 {
			return def
		}
		out := make([]string, 0, len(got))
		for _, a := range got {
			if c := normalize.Column(a); c != "" {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			return def
		}
		return out
	}
	return Schema{
		ContractValue:      pick(s.ContractValue, d.ContractValue),
		ExecutionStartDate: pick(s.ExecutionStartDate, d.ExecutionStartDate),
		ExecutionEndDate:   pick(s.ExecutionEndDate, d.ExecutionEndDate),
		DepartmentName:     pick(s.DepartmentName, d.DepartmentName),
		ContractType:       pick(s.ContractType, d.ContractType),
		SupplierID:         pick(s.SupplierID, d.SupplierID),
	}
}

// Cleaner turns raw API records into typed records.
type Cleaner struct {
	schema Schema
	logger *slog.Logger
}

// New creates a Cleaner. A nil logger falls back to slog.Default().
func New(schema Schema, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{schema: schema.withDefaults(), logger: logger}
}

// Clean applies DefaultSchema to raw.
func Clean(raw []map[string]any) []Record {
	return New(Schema{}, nil).Clean(raw)
}

// Clean canonicalizes, types and deduplicates raw. It never fails: absent
// columns are skipped and unparsable values become missing. Duplicate rows
// are dropped, keeping the first occurrence in input order.
func (c *Cleaner) Clean(raw []map[string]any) []Record {
	out := make([]Record, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	collisions, duplicates := 0, 0

	for _, row := range raw {
		cols, n := canonicalColumns(row)
		collisions += n

		rec := c.cleanRow(cols)
		fp := rec.Fingerprint()
		if _, dup := seen[fp]; dup {
			duplicates++
			continue
		}
		seen[fp] = struct{}{}
		out = append(out, rec)
	}

	if collisions > 0 {
		c.logger.Warn("column collisions after normalization", "count", collisions)
	}
	c.logger.Debug("records cleaned", "in", len(raw), "out", len(out), "duplicates", duplicates)
	return out
}

// canonicalColumns renames the columns of row. Original names are visited in
// sorted order; when two collapse to the same canonical name the first one
// keeps its value and the collision is counted.
func canonicalColumns(row map[string]any) (map[string]any, int) {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make(map[string]any, len(row))
	collisions := 0
	for _, k := range keys {
		name := normalize.Column(k)
		if _, exists := cols[name]; exists {
			collisions++
			continue
		}
		cols[name] = row[k]
	}
	return cols, collisions
}

func (c *Cleaner) cleanRow(cols map[string]any) Record {
	var rec Record

	if v, ok := take(cols, c.schema.ContractValue); ok {
		rec.ContractValue = parseDecimal(v)
	}
	if v, ok := take(cols, c.schema.ExecutionStartDate); ok {
		rec.ExecutionStartDate = parseDate(v)
	}
	if v, ok := take(cols, c.schema.ExecutionEndDate); ok {
		rec.ExecutionEndDate = parseDate(v)
	}
	if v, ok := take(cols, c.schema.SupplierID); ok {
		rec.SupplierID = parseID(v)
	}
	if v, ok := take(cols, c.schema.DepartmentName); ok {
		rec.DepartmentName = normalize.LowercaseASCII(strings.TrimSpace(text(v)))
	}
	if v, ok := take(cols, c.schema.ContractType); ok {
		rec.ContractType = normalize.LowercaseASCII(strings.TrimSpace(text(v)))
	}

	rec.Fields = make(map[string]string, len(cols))
	for k, v := range cols {
		rec.Fields[k] = strings.ToLower(strings.TrimSpace(text(v)))
	}
	return rec
}

// take removes and returns the value of the first alias present in cols.
// Every alias is removed so that none leaks into Fields.
func take(cols map[string]any, aliases []string) (any, bool) {
	var (
		val   any
		found bool
	)
	for _, a := range aliases {
		v, ok := cols[a]
		if !ok {
			continue
		}
		delete(cols, a)
		if !found {
			val, found = v, true
		}
	}
	return val, found
}

// Fingerprint identifies the record's content. Two records with the same
// fingerprint are duplicates; an empty field and an absent one compare equal.
func (r Record) Fingerprint() string {
	h := sha256.New()
	write := func(k, v string) {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(v))
		h.Write([]byte{0})
	}
	for _, kv := range r.designated() {
		write(kv.name, kv.value)
	}
	keys := make([]string, 0, len(r.Fields))
	for k, v := range r.Fields {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		write("f:"+k, r.Fields[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

type namedValue struct {
	name  string
	value string
}

// designated renders the typed fields as text, "" meaning missing.
func (r Record) designated() []namedValue {
	return []namedValue{
		{ColContractValue, decimalText(r.ContractValue)},
		{ColExecutionStartDate, dateText(r.ExecutionStartDate)},
		{ColExecutionEndDate, dateText(r.ExecutionEndDate)},
		{ColDepartmentName, r.DepartmentName},
		{ColContractType, r.ContractType},
		{ColSupplierID, idText(r.SupplierID)},
	}
}

// Map flattens the record into column name -> value, with nil for missing
// typed values and dates formatted as YYYY-MM-DD.
func (r Record) Map() map[string]any {
	m := make(map[string]any, len(r.Fields)+6)
	for k, v := range r.Fields {
		m[k] = v
	}
	if r.ContractValue.Valid {
		m[ColContractValue] = r.ContractValue.Decimal
	} else {
		m[ColContractValue] = nil
	}
	m[ColExecutionStartDate] = nilIfEmpty(dateText(r.ExecutionStartDate))
	m[ColExecutionEndDate] = nilIfEmpty(dateText(r.ExecutionEndDate))
	m[ColDepartmentName] = r.DepartmentName
	m[ColContractType] = r.ContractType
	if r.SupplierID != nil {
		m[ColSupplierID] = *r.SupplierID
	} else {
		m[ColSupplierID] = nil
	}
	return m
}

// MarshalJSON encodes the flattened record.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Map())
}

// Columns returns the sorted union of column names across records, designated
// columns included.
func Columns(records []Record) []string {
	set := map[string]struct{}{
		ColContractValue:      {},
		ColExecutionStartDate: {},
		ColExecutionEndDate:   {},
		ColDepartmentName:     {},
		ColContractType:       {},
		ColSupplierID:         {},
	}
	for _, r := range records {
		for k := range r.Fields {
			set[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for k := range set {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func decimalText(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func dateText(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func idText(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
