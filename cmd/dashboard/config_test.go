package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/secop-dashboard/pkg/secop"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_MissingFile(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":8421" || cfg.Secop.URL != secop.DefaultURL || cfg.Secop.Limit != secop.DefaultLimit {
		t.Errorf("defaults = %+v", cfg)
	}
	if len(cfg.Population.Sources) != 2 {
		t.Errorf("population sources = %d, want 2", len(cfg.Population.Sources))
	}
	if opts := cfg.options(); opts.Limit != secop.DefaultLimit || opts.CorrelationYear != 2035 || opts.MonthlySince != 2018 || opts.TopN != 10 {
		t.Errorf("options = %+v", opts)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
addr: ":9000"
log_level: debug
check_interval: 15m
tls:
  enabled: true
secop:
  limit: 100
  timeout: 90s
population:
  sources:
    - id: pop
      location: pop.csv
      encoding: windows-1252
metrics:
  top_n: 5
  correlation_year: 2020
schema:
  department_name: [departamento]
`)
	cfg, err := loadConfig(path, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9000" || cfg.LogLevel != "debug" || cfg.CheckInterval != 15*time.Minute || !cfg.TLS.Enabled {
		t.Errorf("top level = %+v", cfg)
	}
	if cfg.Secop.Limit != 100 || cfg.Secop.Timeout != 90*time.Second || cfg.Secop.URL != secop.DefaultURL {
		t.Errorf("secop = %+v", cfg.Secop)
	}
	if len(cfg.Population.Sources) != 1 || cfg.Population.Sources[0].Encoding != "windows-1252" {
		t.Errorf("population = %+v", cfg.Population.Sources)
	}
	if cfg.Population.Columns.Region != "DPNOM" {
		t.Errorf("columns lost defaults: %+v", cfg.Population.Columns)
	}
	opts := cfg.options()
	if opts.TopN != 5 || opts.CorrelationYear != 2020 || opts.MonthlySince != 2018 || opts.Limit != 100 {
		t.Errorf("options = %+v", opts)
	}
	if len(cfg.Schema.DepartmentName) != 1 || len(cfg.Schema.ContractValue) == 0 {
		t.Errorf("schema = %+v", cfg.Schema)
	}
}

func TestLoadConfig_MonthlyAllYears(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", "metrics:\n  monthly_since: -1\n")
	cfg, err := loadConfig(path, quietLogger())
	if err != nil {
		t.Fatalf("monthly_since -1 rejected: %v", err)
	}
	if got := cfg.options().MonthlySince; got != -1 {
		t.Errorf("MonthlySince = %d, want -1", got)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name, yaml, want string
	}{
		{"zero limit", "secop:\n  limit: 0\n", "Limit"},
		{"bad url", "secop:\n  url: not a url\n", "URL"},
		{"bad level", "log_level: loud\n", "LogLevel"},
		{"source without id", "population:\n  sources:\n    - location: x.csv\n", "ID"},
		{"bad format", "population:\n  sources:\n    - id: x\n      location: x.ods\n      format: ods\n", "Format"},
		{"negative year", "metrics:\n  rate_year: -1\n", "RateYear"},
		{"monthly below all years", "metrics:\n  monthly_since: -2\n", "MonthlySince"},
		{"cert without key", "tls:\n  enabled: true\n  cert_file: cert.pem\n", "KeyFile"},
		{"malformed", "addr: [", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "config.yaml", tt.yaml)
			_, err := loadConfig(path, quietLogger())
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseToolArgs(t *testing.T) {
	got, err := parseToolArgs([]string{"year=2035", "top_n=5", "since="})
	if err != nil {
		t.Fatal(err)
	}
	if got["year"] != "2035" || got["top_n"] != "5" || got["since"] != "" {
		t.Errorf("args = %v", got)
	}
	for _, bad := range []string{"year", "=5"} {
		if _, err := parseToolArgs([]string{bad}); err == nil {
			t.Errorf("parseToolArgs(%q): expected error", bad)
		}
	}
}
