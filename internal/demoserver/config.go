package demoserver

import "time"

// Config holds configuration for the demo server.
type Config struct {
	// Port is the port on which the demo server listens.
	Port int

	// SlowDelay is how long slow pages wait before answering (default: 15s).
	SlowDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:      9999,
		SlowDelay: 15 * time.Second,
	}
}
