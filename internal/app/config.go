package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raysh454/stagecheck/internal/checker"
	"github.com/raysh454/stagecheck/internal/probe"
	"github.com/raysh454/stagecheck/internal/scheduler"
	"github.com/raysh454/stagecheck/internal/sitemap"
	"github.com/raysh454/stagecheck/internal/webclient"
)

// Config is the full runtime configuration. Probe holds the per-request
// timeout and user agent shared by the check pool and the sitemap pool.
type Config struct {
	LogLevel string `yaml:"log_level"`

	WebClient webclient.Config `yaml:"webclient"`
	Probe     probe.Config     `yaml:"probe"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	Columns   checker.Config   `yaml:"columns"`
	Sitemap   sitemap.Config   `yaml:"sitemap"`

	// HistoryPath enables the SQLite run ledger when set.
	HistoryPath string `yaml:"history"`

	ServerAddr string `yaml:"server_addr"`
	// JobRetention is how long finished server jobs are kept. Zero keeps them
	// until shutdown.
	JobRetention time.Duration `yaml:"job_retention"`
}

// DefaultConfig returns a Config populated with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:     "info",
		WebClient:    webclient.DefaultConfig(),
		Probe:        probe.DefaultConfig(),
		Scheduler:    scheduler.DefaultConfig(),
		Columns:      checker.DefaultConfig(),
		Sitemap:      sitemap.DefaultConfig(),
		ServerAddr:   "localhost:8080",
		JobRetention: time.Hour,
	}
}

// LoadConfigFile overlays the YAML file at path onto cfg. Unknown keys are
// rejected.
func LoadConfigFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if c.Probe.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.Scheduler.RatePerSecond < 0 || c.Sitemap.RatePerSecond < 0 {
		return fmt.Errorf("rate must not be negative")
	}
	if c.Sitemap.MaxDepth < 0 {
		return fmt.Errorf("max sitemap depth must not be negative")
	}
	return nil
}

// propagate copies the shared probe settings into the pool configs.
func (c *Config) propagate() {
	c.Scheduler.Timeout = c.Probe.Timeout
	c.Scheduler.UserAgent = c.Probe.UserAgent
	c.Sitemap.Timeout = c.Probe.Timeout
	c.Sitemap.UserAgent = c.Probe.UserAgent
}
