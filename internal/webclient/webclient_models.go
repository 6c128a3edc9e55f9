package webclient

import (
	"net/http"
	"time"
)

// Request options understood by the backends.
const (
	// OptionBody set to OptionBodyDiscard skips reading the response body.
	OptionBody        = "body"
	OptionBodyDiscard = "discard"

	// OptionMaxBodyBytes overrides Config.MaxBodyBytes for one request,
	// as a decimal byte count.
	OptionMaxBodyBytes = "max_body_bytes"
)

type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
	// Options contains backend-specific options like "body": "discard"
	Options map[string]string
}

type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int
	FetchedAt  time.Time
	// Truncated is set when Body was cut at the body size limit.
	Truncated bool
}

func (r *Request) option(key string) string {
	if r == nil || r.Options == nil {
		return ""
	}
	return r.Options[key]
}
