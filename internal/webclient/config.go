package webclient

import "time"

type Client string

const (
	ClientNetHTTP  Client = "nethttp"
	ClientChromedp Client = "chromedp"
)

// Config selects and tunes a WebClient backend.
type Config struct {
	Client Client `yaml:"client"`

	// Timeout bounds a whole request on the nethttp backend. Per-call
	// deadlines from the context still apply. Zero means no client-wide bound.
	Timeout time.Duration `yaml:"timeout"`

	// MaxBodyBytes caps how much of a response body is kept (default 10 MiB).
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// MaxRedirects caps redirect following on the nethttp backend (default 10).
	MaxRedirects int `yaml:"max_redirects"`

	// Headless controls the chromedp backend browser window.
	Headless bool `yaml:"headless"`
}

const defaultMaxBodyBytes = 10 << 20

// DefaultConfig returns the nethttp backend with its defaults.
func DefaultConfig() Config {
	return Config{
		Client:       ClientNetHTTP,
		MaxBodyBytes: defaultMaxBodyBytes,
		MaxRedirects: 10,
		Headless:     true,
	}
}
