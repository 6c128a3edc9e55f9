// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/raysh454/stagecheck/internal/logging"
	"github.com/raysh454/stagecheck/internal/probe"
	"github.com/raysh454/stagecheck/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// DebugCount returns how many debug messages were recorded.
func (l *DummyLogger) DebugCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Debugs)
}

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient.
// Unknown URLs answer 200 with body "ok:<url>". Statuses and bodies are set
// per URL; Fail forces a transport error and Panic makes Do panic.
type DummyWebClient struct {
	ResponseDelay time.Duration

	mu       sync.Mutex
	statuses map[string]int
	bodies   map[string]string
	failures map[string]string
	panics   map[string]bool
	delays   map[string]time.Duration
	requests []*webclient.Request
	inFlight int
	peak     int
}

func NewDummyWebClient() *DummyWebClient {
	return &DummyWebClient{
		statuses: map[string]int{},
		bodies:   map[string]string{},
		failures: map[string]string{},
		panics:   map[string]bool{},
		delays:   map[string]time.Duration{},
	}
}

func (d *DummyWebClient) SetStatus(url string, code int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statuses[url] = code
}

// SetBody sets the body served for url with status 200 unless a status was set.
func (d *DummyWebClient) SetBody(url, body string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bodies[url] = body
}

func (d *DummyWebClient) Fail(url, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[url] = reason
}

func (d *DummyWebClient) Panic(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.panics[url] = true
}

func (d *DummyWebClient) Delay(url string, delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delays[url] = delay
}

// Requests returns a copy of every request seen, in arrival order.
func (d *DummyWebClient) Requests() []*webclient.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*webclient.Request(nil), d.requests...)
}

// RequestCount returns how many requests were made for url.
func (d *DummyWebClient) RequestCount(url string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, r := range d.requests {
		if r.URL == url {
			n++
		}
	}
	return n
}

// PeakInFlight is the highest number of concurrent Do calls observed.
func (d *DummyWebClient) PeakInFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peak
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.inFlight++
	if d.inFlight > d.peak {
		d.peak = d.inFlight
	}
	delay := d.ResponseDelay
	if v, ok := d.delays[req.URL]; ok {
		delay = v
	}
	failure, failed := d.failures[req.URL]
	shouldPanic := d.panics[req.URL]
	status, hasStatus := d.statuses[req.URL]
	body, hasBody := d.bodies[req.URL]
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.inFlight--
		d.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if shouldPanic {
		panic("dummy panic for " + req.URL)
	}
	if failed {
		return nil, &errString{"dummy fetch fail for " + req.URL + ": " + failure}
	}
	if !hasStatus {
		status = http.StatusOK
	}
	if !hasBody {
		body = "ok:" + req.URL
	}

	return &webclient.Response{
		Request:    req,
		Headers:    http.Header{},
		Body:       []byte(body),
		StatusCode: status,
		FetchedAt:  time.Now(),
	}, nil
}

func (d *DummyWebClient) Get(ctx context.Context, url string) (*webclient.Response, error) {
	return d.Do(ctx, &webclient.Request{Method: "GET", URL: url})
}

func (d *DummyWebClient) Close() error { return nil }

// ─── Checker ───────────────────────────────────────────────────────────

// DummyChecker implements probe.Checker from a fixed outcome table.
// URLs missing from Outcomes resolve to 200.
type DummyChecker struct {
	Outcomes map[string]probe.Outcome
	Panics   map[string]bool
	Delay    time.Duration

	mu    sync.Mutex
	Calls []string
}

func (d *DummyChecker) Probe(ctx context.Context, rawURL string, _ time.Duration, _ string) probe.Outcome {
	d.mu.Lock()
	d.Calls = append(d.Calls, rawURL)
	d.mu.Unlock()

	if d.Delay > 0 {
		select {
		case <-time.After(d.Delay):
		case <-ctx.Done():
			return probe.UnresolvedWith("canceled")
		}
	}
	if d.Panics[rawURL] {
		panic("dummy checker panic for " + rawURL)
	}
	if o, ok := d.Outcomes[rawURL]; ok {
		return o
	}
	return probe.ResolvedWith(http.StatusOK)
}

// CallCount returns how many probes were issued.
func (d *DummyChecker) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Calls)
}

// ─── helpers ───────────────────────────────────────────────────────────

type errString struct{ s string }

func (e *errString) Error() string { return e.s }
