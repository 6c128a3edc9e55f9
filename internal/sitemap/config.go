package sitemap

import (
	"time"

	"github.com/raysh454/stagecheck/internal/probe"
)

// DefaultMaxBodyBytes admits the largest sitemap the protocol allows (50 MB).
const DefaultMaxBodyBytes = 50 << 20

type Config struct {
	// MaxDepth caps sitemap-index nesting. The entry document is depth 0.
	MaxDepth  int           `yaml:"max_depth"`
	Timeout   time.Duration `yaml:"-"`
	UserAgent string        `yaml:"-"`

	// MaxBodyBytes caps one fetched sitemap. Larger documents are skipped.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	Precheck            bool    `yaml:"precheck"`
	PrecheckConcurrency int     `yaml:"precheck_concurrency"`
	RatePerSecond       float64 `yaml:"rate_per_second"`
}

func DefaultConfig() Config {
	return Config{
		MaxDepth:            5,
		MaxBodyBytes:        DefaultMaxBodyBytes,
		Timeout:             probe.DefaultTimeout,
		UserAgent:           probe.DefaultUserAgent,
		Precheck:            true,
		PrecheckConcurrency: 20,
	}
}
