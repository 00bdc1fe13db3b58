package normalize

import (
	"encoding/json"
	"testing"
)

func TestRegion(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"Bogotá D.C.", "bogota d c"},
		{"  BOGOTÁ,   D.C. ", "bogota, d c"},
		{"Nariño", "narino"},
		{"San_Andrés-Providencia", "san andres providencia"},
		{"Valle  del\tCauca", "valle del cauca"},
		{"QUINDÍO", "quindio"},
		{"", ""},
		{"   ", ""},
		{"...", ""},
		{"Øster Vrå", "oster vra"},
		{"Łódź", "lodz"},
		{"Æther-Straße", "aether strasse"},
		{"Đakovo", "dakovo"},
		{"Þórshöfn", "thorshofn"},
	}
	for _, tt := range tests {
		got := Region(tt.input)
		if got != tt.want {
			t.Errorf("Region(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestStripAccents(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"Bogotá", "Bogota"},
		{"Nariño", "Narino"},
		{"Søren Kierkegård", "Soren Kierkegard"},
		{"Łukasz", "Lukasz"},
		{"Œuvre", "OEuvre"},
		{"Mæsk", "Maesk"},
		{"Ðorđe", "Dorde"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := StripAccents(tt.input); got != tt.want {
			t.Errorf("StripAccents(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRegion_EquivalentSpellings(t *testing.T) {
	groups := [][]string{
		{"Bogotá D.C.", "bogota d c", "BOGOTA_D_C", "  bogotá   d-c  ", "Bogota.D.C"},
		{"Norte de Santander", "NORTE DE SANTANDER", "norte-de-santander", "Norte_de   Santander"},
		{"Atlántico", "atlantico", " ATLÁNTICO "},
	}
	for _, group := range groups {
		want := Region(group[0])
		for _, s := range group[1:] {
			if got := Region(s); got != want {
				t.Errorf("Region(%q) = %q, want %q (same as %q)", s, got, want, group[0])
			}
		}
	}
}

func TestRegion_Idempotent(t *testing.T) {
	inputs := []string{
		"Bogotá D.C.", "Archipiélago de San Andrés, Providencia y Santa Catalina",
		"  -_. ", "ÑUÑOA", "Cundinamarca", "", "a..b__c--d",
	}
	for _, s := range inputs {
		once := Region(s)
		if twice := Region(once); twice != once {
			t.Errorf("Region not idempotent for %q: %q then %q", s, once, twice)
		}
	}
}

func TestRegionValue(t *testing.T) {
	tests := []struct {
		input any
		want  string
	}{
		{nil, ""},
		{"Antioquia", "antioquia"},
		{json.Number("11"), "11"},
		{42, ""},
	}
	for _, tt := range tests {
		if got := RegionValue(tt.input); got != tt.want {
			t.Errorf("RegionValue(%#v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestColumn(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"Valor Contrato", "valor_contrato"},
		{" ÁREA GEOGRÁFICA ", "area_geografica"},
		{"AÑO", "ano"},
		{"Población", "poblacion"},
		{"fecha_inicio_ejecuci_n", "fecha_inicio_ejecuci_n"},
		{"DPNOM", "dpnom"},
	}
	for _, tt := range tests {
		if got := Column(tt.input); got != tt.want {
			t.Errorf("Column(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLowercaseASCII(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"Prestación de Servicios", "prestacion de servicios"},
		{"Ñoño", "nono"},
		{"simple", "simple"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := LowercaseASCII(tt.input); got != tt.want {
			t.Errorf("LowercaseASCII(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
