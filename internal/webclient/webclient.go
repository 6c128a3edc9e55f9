package webclient

import "context"

// WebClient is the transport every outbound request goes through. Backends
// return a Response for any status line they receive; only transport faults
// come back as errors.
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	// Get is a convenience method for simple GET requests
	Get(ctx context.Context, url string) (*Response, error)

	Close() error
}
