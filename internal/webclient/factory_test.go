package webclient_test

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/raysh454/stagecheck/internal/logging"
	"github.com/raysh454/stagecheck/internal/webclient"
)

// TestNewWebClient_DefaultBackend verifies that empty backend defaults to nethttp
func TestNewWebClient_DefaultBackend(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewWebClient(webclient.Config{}, logging.Nop())
	if err != nil {
		t.Fatalf("Failed to create default client: %v", err)
	}
	defer client.Close()

	if _, ok := client.(*webclient.NetHTTPClient); !ok {
		t.Errorf("expected *NetHTTPClient, got %T", client)
	}
}

func TestNewWebClient_NetHTTP_CaseInsensitive(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewWebClient(webclient.Config{Client: " NetHTTP "}, nil)
	if err != nil {
		t.Fatalf("Failed to create nethttp client: %v", err)
	}
	defer client.Close()
}

func TestNewWebClient_UnknownBackend(t *testing.T) {
	t.Parallel()
	_, err := webclient.NewWebClient(webclient.Config{Client: "carrier-pigeon"}, nil)
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Errorf("error should name the backend, got %v", err)
	}
}

func TestRegisterBackend_ConstructorError(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	webclient.RegisterBackend("always-fails", func(webclient.Config, logging.Logger) (webclient.WebClient, error) {
		return nil, boom
	})

	_, err := webclient.NewWebClient(webclient.Config{Client: "always-fails"}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped constructor error, got %v", err)
	}
}

func TestListBackends_IncludesDefaults(t *testing.T) {
	t.Parallel()
	webclient.RegisterDefaultBackends()
	names := webclient.ListBackends()
	for _, want := range []string{"chromedp", "nethttp"} {
		if !slices.Contains(names, want) {
			t.Errorf("ListBackends() = %v, missing %q", names, want)
		}
	}
	if !slices.IsSorted(names) {
		t.Errorf("ListBackends() not sorted: %v", names)
	}
}

// Chromedp may fail to initialize in headless CI environments
func TestNewWebClient_ChromeDP(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewWebClient(webclient.Config{Client: webclient.ClientChromedp, Headless: true}, nil)
	if err != nil {
		t.Skipf("Skipping chromedp test: %v", err)
	}
	defer client.Close()
}
