package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/secop-dashboard/pkg/clean"
	"github.com/hazyhaar/secop-dashboard/pkg/dashboard"
	"github.com/hazyhaar/secop-dashboard/pkg/population"
	"github.com/hazyhaar/secop-dashboard/pkg/secop"
)

type config struct {
	Addr          string            `yaml:"addr" validate:"required"`
	DataDir       string            `yaml:"data_dir" validate:"required"`
	LogLevel      string            `yaml:"log_level" validate:"oneof=debug info warn error"`
	CheckInterval time.Duration     `yaml:"check_interval" validate:"gte=0"`
	TLS           tlsConfig         `yaml:"tls"`
	Secop         secopConfig       `yaml:"secop"`
	Population    populationConfig  `yaml:"population"`
	Metrics       dashboard.Options `yaml:"metrics"`
	Schema        clean.Schema      `yaml:"schema"`
}

type secopConfig struct {
	URL     string        `yaml:"url" validate:"required,url"`
	Limit   int           `yaml:"limit" validate:"gt=0"` // max records requested per load
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
	License string        `yaml:"license"`
}

// tlsConfig switches serve to the TLS chassis (HTTP/2, HTTP/3 and MCP over
// QUIC). Empty cert and key mean a self-signed development certificate.
type tlsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file" validate:"required_with=KeyFile"`
	KeyFile  string `yaml:"key_file" validate:"required_with=CertFile"`
}

type populationConfig struct {
	Sources []population.SourceConfig `yaml:"sources" validate:"dive"`
	Columns population.Columns        `yaml:"columns"`
}

func defaultConfig() config {
	return config{
		Addr:          ":8421",
		DataDir:       "data",
		LogLevel:      "info",
		CheckInterval: time.Hour,
		Secop: secopConfig{
			URL:     secop.DefaultURL,
			Limit:   secop.DefaultLimit,
			Timeout: secop.DefaultTimeout,
			License: "CC BY-SA 4.0",
		},
		Population: populationConfig{
			Sources: []population.SourceConfig{
				{ID: "dane-poblacion-2005-2019", Location: "data/Info_2005_2019.xlsx", Format: "xlsx"},
				{ID: "dane-poblacion-2020-2035", Location: "data/Info_2020_2035.xlsx", Format: "xlsx"},
			},
			Columns: population.DefaultColumns(),
		},
		Metrics: dashboard.DefaultOptions(),
		Schema:  clean.DefaultSchema(),
	}
}

// loadConfig reads path over the defaults. A missing file means defaults.
func loadConfig(path string, logger *slog.Logger) (config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("no config file, using defaults", "path", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// options returns the view parameters with the configured load limit.
func (c config) options() dashboard.Options {
	opts := c.Metrics
	opts.Limit = c.Secop.Limit
	return opts
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
