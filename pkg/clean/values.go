package clean

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayouts are tried in order; only the calendar date is kept.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
}

// amountFormatting removes currency signs and blanks.
var amountFormatting = strings.NewReplacer("$", "", " ", "", "\u00a0", "")

// Grouped amounts: "1.234.567,50" (period thousands, comma decimal) and
// "1,234,567.50" (comma thousands, period decimal). A lone separator is a
// decimal point.
var (
	periodGrouped = regexp.MustCompile(`^-?\d{1,3}(\.\d{3})+(,\d+)?$`)
	commaGrouped  = regexp.MustCompile(`^-?\d{1,3}(,\d{3})+(\.\d+)?$`)
)

// unformatAmount rewrites a formatted amount into a plain decimal literal.
func unformatAmount(s string) string {
	s = amountFormatting.Replace(strings.TrimSpace(s))
	switch {
	case periodGrouped.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
		return strings.Replace(s, ",", ".", 1)
	case commaGrouped.MatchString(s):
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") == 1 && !strings.Contains(s, "."):
		return strings.Replace(s, ",", ".", 1)
	default:
		return s
	}
}

// parseDecimal coerces a contract amount. JSON numbers are taken as-is;
// strings such as "$ 1.234.567,50" or "1,234,567.50" are unformatted first,
// and "1234.5" is read as written. Anything that does not parse is missing.
func parseDecimal(v any) decimal.NullDecimal {
	switch t := v.(type) {
	case nil:
		return decimal.NullDecimal{}
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(t))
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(t)))
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(t))
	case string:
		s := unformatAmount(t)
		if s == "" {
			return decimal.NullDecimal{}
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	default:
		return decimal.NullDecimal{}
	}
}

// parseID coerces a supplier document number: periods are dropped and the
// rest must be an integer ("1.234.567" -> 1234567).
func parseID(v any) *int64 {
	if v == nil {
		return nil
	}
	s := strings.ReplaceAll(strings.TrimSpace(text(v)), ".", "")
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// parseDate returns the calendar date of v at midnight UTC, or nil.
func parseDate(v any) *time.Time {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &d
	}
	return nil
}

// text renders an untyped value as a string. Missing values become "".
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
