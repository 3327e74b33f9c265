// Package config loads the process configuration from YAML with sensible
// defaults when the file is absent.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultWebAddress      = ":8080"
	DefaultCollectorAddr   = ":4317"
	DefaultFlushInterval   = 10 * time.Second
	DefaultCleanupInterval = time.Hour
	DefaultCacheMaxSpans   = 1 << 20
	DefaultShareDir        = "shares"
	DefaultShareTTL        = "24h"
)

type WebConfig struct {
	Address string `yaml:"address"`
}

type CollectorConfig struct {
	Address       string        `yaml:"address"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	CacheMaxSpans int64         `yaml:"cache_max_spans"`
}

type AnalysisConfig struct {
	StripQueryParams       bool `yaml:"strip_query_params"`
	IncludeGatewayServices bool `yaml:"include_gateway_services"`
	IncludeServiceMesh     bool `yaml:"include_service_mesh"`
	Workers                int  `yaml:"workers"`
}

type SharesConfig struct {
	Dir             string        `yaml:"dir"`
	DefaultTTL      string        `yaml:"default_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

type Config struct {
	Web       WebConfig       `yaml:"web"`
	Collector CollectorConfig `yaml:"collector"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Shares    SharesConfig    `yaml:"shares"`
}

func defaultConfig() *Config {
	return &Config{
		Web: WebConfig{Address: DefaultWebAddress},
		Collector: CollectorConfig{
			Address:       DefaultCollectorAddr,
			FlushInterval: DefaultFlushInterval,
			CacheMaxSpans: DefaultCacheMaxSpans,
		},
		Analysis: AnalysisConfig{
			StripQueryParams: true,
		},
		Shares: SharesConfig{
			Dir:             DefaultShareDir,
			DefaultTTL:      DefaultShareTTL,
			CleanupInterval: DefaultCleanupInterval,
		},
	}
}

func (c *Config) validate() {
	if c.Web.Address == "" {
		c.Web.Address = DefaultWebAddress
	}
	if c.Collector.Address == "" {
		c.Collector.Address = DefaultCollectorAddr
	}
	if c.Collector.FlushInterval <= 0 {
		c.Collector.FlushInterval = DefaultFlushInterval
	}
	if c.Collector.CacheMaxSpans <= 0 {
		c.Collector.CacheMaxSpans = DefaultCacheMaxSpans
	}
	if c.Shares.Dir == "" {
		c.Shares.Dir = DefaultShareDir
	}
	if c.Shares.DefaultTTL == "" {
		c.Shares.DefaultTTL = DefaultShareTTL
	}
	if c.Shares.CleanupInterval <= 0 {
		c.Shares.CleanupInterval = DefaultCleanupInterval
	}
}

// Load reads the config file at path. A missing file yields the defaults; a
// present but unreadable or malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.validate()
	return cfg, nil
}
