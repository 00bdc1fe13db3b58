// CLAUDE:SUMMARY Accent-insensitive normalization of region names into join keys and of column headers into canonical names.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Func transforms a raw string into a canonical form.
type Func func(string) string

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// letterFold transliterates Latin letters that carry no combining mark, so
// NFD leaves them intact.
var letterFold = strings.NewReplacer(
	"ø", "o", "Ø", "O",
	"đ", "d", "Đ", "D",
	"ð", "d", "Ð", "D",
	"ł", "l", "Ł", "L",
	"ħ", "h", "Ħ", "H",
	"ı", "i",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ß", "ss", "ẞ", "SS",
	"þ", "th", "Þ", "TH",
)

// separators are folded into a space before whitespace is collapsed.
var separators = strings.NewReplacer("-", " ", "_", " ", ".", " ")

// StripAccents removes diacritics (e.g. Bogotá -> Bogota, Nariño -> Narino)
// and folds letters such as ø, ł and æ to their ASCII spelling.
func StripAccents(s string) string {
	result, _, err := transform.String(stripAccents, s)
	if err != nil {
		result = s
	}
	return letterFold.Replace(result)
}

// LowercaseASCII lowercases and strips accents.
func LowercaseASCII(s string) string {
	return StripAccents(strings.ToLower(s))
}

// Region returns the join key for an administrative region name.
// "  Bogotá, D.C. " and "BOGOTA,  D-C" map to the same key. Empty input yields "".
func Region(name string) string {
	if name == "" {
		return ""
	}
	s := LowercaseASCII(name)
	s = separators.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// RegionValue is Region for untyped record values; nil and non-strings
// other than fmt.Stringer yield "".
func RegionValue(v any) string {
	switch t := v.(type) {
	case string:
		return Region(t)
	case interface{ String() string }:
		return Region(t.String())
	default:
		return ""
	}
}

// Column canonicalizes a column header: trimmed, lowercased, accent-free,
// spaces replaced by underscores ("Fecha Inicio Ejecución" -> "fecha_inicio_ejecucion").
func Column(name string) string {
	s := LowercaseASCII(strings.TrimSpace(name))
	return strings.ReplaceAll(s, " ", "_")
}
