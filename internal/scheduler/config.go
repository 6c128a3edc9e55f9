package scheduler

import (
	"time"

	"github.com/raysh454/stagecheck/internal/probe"
)

type Config struct {
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"-"`
	UserAgent   string        `yaml:"-"`

	// RatePerSecond caps probe starts across the pool. Zero disables it.
	RatePerSecond float64 `yaml:"rate_per_second"`
}

func DefaultConfig() Config {
	return Config{
		Concurrency: 20,
		Timeout:     probe.DefaultTimeout,
		UserAgent:   probe.DefaultUserAgent,
	}
}
