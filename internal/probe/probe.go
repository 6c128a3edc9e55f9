package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raysh454/stagecheck/internal/logging"
	"github.com/raysh454/stagecheck/internal/webclient"
)

// DefaultUserAgent is sent when the caller supplies none.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15"

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 10 * time.Second

type Config struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

func DefaultConfig() Config {
	return Config{Timeout: DefaultTimeout, UserAgent: DefaultUserAgent}
}

// Checker probes one URL. Implementations never return errors; every
// failure is folded into an Unresolved outcome.
type Checker interface {
	Probe(ctx context.Context, rawURL string, timeout time.Duration, userAgent string) Outcome
}

// Prober issues exactly one GET per call through a webclient.WebClient.
// Redirects are followed by the transport, so the status is that of the
// final response.
type Prober struct {
	wc     webclient.WebClient
	logger logging.Logger
}

func New(wc webclient.WebClient, logger logging.Logger) (*Prober, error) {
	if wc == nil {
		return nil, errors.New("probe: nil webclient")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Prober{
		wc:     wc,
		logger: logger.With(logging.Field{Key: "component", Value: "probe"}),
	}, nil
}

// Probe performs the request. An empty or whitespace-only URL returns
// Unresolved{empty-url} without touching the network.
func (p *Prober) Probe(ctx context.Context, rawURL string, timeout time.Duration, userAgent string) Outcome {
	target := strings.TrimSpace(rawURL)
	if target == "" {
		return UnresolvedWith(ReasonEmptyURL)
	}
	if reason := validateURL(target); reason != "" {
		return UnresolvedWith(reason)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	headers := http.Header{}
	headers.Set("User-Agent", userAgent)

	resp, err := p.wc.Do(reqCtx, &webclient.Request{
		Method:  http.MethodGet,
		URL:     target,
		Headers: headers,
		Options: map[string]string{webclient.OptionBody: webclient.OptionBodyDiscard},
	})
	if err != nil {
		reason := describe(err)
		p.logger.Debug("probe unresolved",
			logging.Field{Key: "url", Value: target},
			logging.Field{Key: "reason", Value: reason})
		return UnresolvedWith(reason)
	}
	return ResolvedWith(resp.StatusCode)
}

func validateURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "malformed-url: " + err.Error()
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("malformed-url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "malformed-url: missing host"
	}
	return ""
}

func describe(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return "timeout"
	}
	return err.Error()
}
