package webclient_test

import (
	"context"
	"testing"

	"github.com/raysh454/stagecheck/internal/webclient"
)

func TestNewNetHTTPClient_DefaultsApplied(t *testing.T) {
	t.Parallel()
	cfg := webclient.DefaultConfig()
	client, err := webclient.NewNetHTTPClient(cfg, nil, nil)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer client.Close()

	if client.HTTPClient() == nil {
		t.Fatal("HTTPClient() returned nil")
	}
	if client.HTTPClient().CheckRedirect == nil {
		t.Error("expected redirect limit to be installed")
	}
}

func TestNetHTTPClient_Do_NilRequest(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewNetHTTPClient(webclient.Config{}, &noopLogger{}, nil)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer client.Close()

	if _, err := client.Do(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil request")
	}
}

func TestNetHTTPClient_Do_MalformedURL(t *testing.T) {
	t.Parallel()
	client, err := webclient.NewNetHTTPClient(webclient.Config{}, &noopLogger{}, nil)
	if err != nil {
		t.Fatalf("NewNetHTTPClient: %v", err)
	}
	defer client.Close()

	if _, err := client.Get(context.Background(), "http://[::1"); err == nil {
		t.Fatal("expected error for malformed URL")
	}
}
