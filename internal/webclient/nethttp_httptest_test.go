package webclient_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/stagecheck/internal/webclient"
)

func newTestClient(t *testing.T, ts *httptest.Server) *webclient.NetHTTPClient {
	t.Helper()
	client, err := webclient.NewNetHTTPClient(webclient.Config{}, &noopLogger{}, ts.Client())
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNetHTTPClient_Do_GET_ReturnsBody(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Custom", "hello")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "response body")
	}))
	defer ts.Close()

	client := newTestClient(t, ts)
	resp, err := client.Do(context.Background(), &webclient.Request{
		Method: "GET",
		URL:    ts.URL + "/test",
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	if resp.StatusCode != 200 {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if string(resp.Body) != "response body" {
		t.Errorf("expected 'response body', got %q", resp.Body)
	}
	if resp.Headers.Get("X-Custom") != "hello" {
		t.Errorf("expected X-Custom header 'hello', got %q", resp.Headers.Get("X-Custom"))
	}
}

func TestNetHTTPClient_Do_NonSuccessStatusIsNotAnError(t *testing.T) {
	t.Parallel()
	for _, code := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusForbidden} {
		code := code
		t.Run(http.StatusText(code), func(t *testing.T) {
			t.Parallel()
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			}))
			defer ts.Close()

			resp, err := newTestClient(t, ts).Get(context.Background(), ts.URL)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if resp.StatusCode != code {
				t.Errorf("expected %d, got %d", code, resp.StatusCode)
			}
		})
	}
}

func TestNetHTTPClient_Do_ForwardsHeaders(t *testing.T) {
	t.Parallel()
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer ts.Close()

	headers := http.Header{}
	headers.Set("User-Agent", "stagecheck-test/1.0")
	_, err := newTestClient(t, ts).Do(context.Background(), &webclient.Request{URL: ts.URL, Headers: headers})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotUA != "stagecheck-test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestNetHTTPClient_Do_FollowsRedirects(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := newTestClient(t, ts).Get(context.Background(), ts.URL+"/old")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected final status 404, got %d", resp.StatusCode)
	}
}

func TestNetHTTPClient_Do_DiscardBody(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 4096))
	}))
	defer ts.Close()

	resp, err := newTestClient(t, ts).Do(context.Background(), &webclient.Request{
		URL:     ts.URL,
		Options: map[string]string{webclient.OptionBody: webclient.OptionBodyDiscard},
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(resp.Body) != 0 {
		t.Errorf("expected discarded body, got %d bytes", len(resp.Body))
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestNetHTTPClient_Do_MaxBodyBytes(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("y", 100))
	}))
	defer ts.Close()

	client, err := webclient.NewNetHTTPClient(webclient.Config{MaxBodyBytes: 10}, &noopLogger{}, ts.Client())
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer client.Close()

	resp, err := client.Get(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(resp.Body) != 10 {
		t.Errorf("expected body capped at 10 bytes, got %d", len(resp.Body))
	}
	if !resp.Truncated {
		t.Error("expected Truncated to be set")
	}
}

func TestNetHTTPClient_Do_MaxBodyBytesOption(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("y", 100))
	}))
	defer ts.Close()

	client, err := webclient.NewNetHTTPClient(webclient.Config{MaxBodyBytes: 10}, &noopLogger{}, ts.Client())
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer client.Close()

	tests := []struct {
		name      string
		limit     string
		wantLen   int
		truncated bool
	}{
		{"raised above body", "1000", 100, false},
		{"exactly body size", "100", 100, false},
		{"lowered", "5", 5, true},
		{"invalid falls back", "abc", 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.Do(context.Background(), &webclient.Request{
				URL:     ts.URL,
				Options: map[string]string{webclient.OptionMaxBodyBytes: tt.limit},
			})
			if err != nil {
				t.Fatalf("Do: %v", err)
			}
			if len(resp.Body) != tt.wantLen || resp.Truncated != tt.truncated {
				t.Errorf("len=%d truncated=%v, want len=%d truncated=%v", len(resp.Body), resp.Truncated, tt.wantLen, tt.truncated)
			}
		})
	}
}

func TestNetHTTPClient_Do_RedirectLoopReturnsLastResponse(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusMovedPermanently)
	}))
	defer ts.Close()

	// nil http.Client so the configured redirect cap applies
	client, err := webclient.NewNetHTTPClient(webclient.Config{MaxRedirects: 3}, &noopLogger{}, nil)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer client.Close()

	resp, err := client.Get(context.Background(), ts.URL+"/loop")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode != http.StatusMovedPermanently {
		t.Errorf("expected last redirect status 301, got %d", resp.StatusCode)
	}
}

func TestNetHTTPClient_Do_ContextDeadline(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(t, ts).Get(ctx, ts.URL)
	if err == nil {
		t.Fatal("expected deadline error, got nil")
	}
}

func TestNetHTTPClient_Do_ConnectionRefused(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	client, err := webclient.NewNetHTTPClient(webclient.Config{Timeout: time.Second}, &noopLogger{}, nil)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer client.Close()

	if _, err := client.Get(context.Background(), url); err == nil {
		t.Fatal("expected error for closed server")
	}
}
