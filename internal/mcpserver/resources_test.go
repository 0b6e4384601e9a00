package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func decodeResourceJSON(t *testing.T, result *mcp.ReadResourceResult, out any) {
	t.Helper()
	if result == nil || len(result.Contents) == 0 {
		t.Fatalf("empty resource result: %#v", result)
	}
	if err := json.Unmarshal([]byte(result.Contents[0].Text), out); err != nil {
		t.Fatalf("decode resource json: %v (text=%q)", err, result.Contents[0].Text)
	}
}

func TestConfigResourceRedactsAPIKey(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleConfigResource(context.Background(), nil)
	if err != nil {
		t.Fatalf("read config resource: %v", err)
	}

	if strings.Contains(result.Contents[0].Text, "test-key") {
		t.Fatal("api key leaked into the config resource")
	}

	var cfg struct {
		APIKey    string `json:"api_key"`
		Transport string `json:"transport"`
		Port      int    `json:"port"`
	}
	decodeResourceJSON(t, result, &cfg)
	if cfg.APIKey != "********" {
		t.Fatalf("expected masked key, got %q", cfg.APIKey)
	}
	if cfg.Transport != "sse" || cfg.Port != 6717 {
		t.Fatalf("unexpected config payload: %+v", cfg)
	}

	if result.Contents[0].URI != resourceConfig {
		t.Fatalf("unexpected uri: %q", result.Contents[0].URI)
	}
	if result.Contents[0].MIMEType != "application/json" {
		t.Fatalf("unexpected mime type: %q", result.Contents[0].MIMEType)
	}
}

func TestHealthResourceReportsAPIState(t *testing.T) {
	srv, api := newTestServer(t)
	api.stub("ComprehensiveHealthCheck", `{"data":{"info":{"machineId":"m1"},"array":{"state":"STARTED"}}}`)

	result, err := srv.handleHealthResource(context.Background(), nil)
	if err != nil {
		t.Fatalf("read health resource: %v", err)
	}

	var payload struct {
		APIReachable      bool           `json:"api_reachable"`
		SubscriptionState string         `json:"subscription_state"`
		Version           string         `json:"version"`
		Checks            map[string]any `json:"checks"`
	}
	decodeResourceJSON(t, result, &payload)
	if !payload.APIReachable {
		t.Fatal("expected api_reachable true")
	}
	if payload.SubscriptionState != "disconnected" {
		t.Fatalf("unexpected subscription state: %q", payload.SubscriptionState)
	}
	if payload.Version != "test" {
		t.Fatalf("unexpected version: %q", payload.Version)
	}
	if payload.Checks["array"] == nil {
		t.Fatalf("expected checks payload, got %+v", payload.Checks)
	}
}

func TestHealthResourceWhenAPIDown(t *testing.T) {
	srv, _ := newTestServer(t)
	// No stub: the backend answers every query with a GraphQL error.

	result, err := srv.handleHealthResource(context.Background(), nil)
	if err != nil {
		t.Fatalf("health resource must not fail outright: %v", err)
	}

	var payload struct {
		APIReachable bool   `json:"api_reachable"`
		APIError     string `json:"api_error"`
	}
	decodeResourceJSON(t, result, &payload)
	if payload.APIReachable {
		t.Fatal("expected api_reachable false")
	}
	if payload.APIError == "" {
		t.Fatal("expected api_error to be set")
	}
}

func TestLogsResourceListsFiles(t *testing.T) {
	srv, api := newTestServer(t)
	api.stub("ListLogFiles", `{"data":{"logFiles":[{"name":"syslog","path":"/var/log/syslog","size":1024}]}}`)

	result, err := srv.handleLogsResource(context.Background(), nil)
	if err != nil {
		t.Fatalf("read logs resource: %v", err)
	}

	var files []map[string]any
	decodeResourceJSON(t, result, &files)
	if len(files) != 1 || files[0]["path"] != "/var/log/syslog" {
		t.Fatalf("unexpected files: %+v", files)
	}
	if result.Contents[0].URI != resourceLogs {
		t.Fatalf("unexpected uri: %q", result.Contents[0].URI)
	}
}

func TestResourceResultHonorsRequestURI(t *testing.T) {
	srv, _ := newTestServer(t)

	req := &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: "unraid://config?session=1"}}
	result, err := srv.handleConfigResource(context.Background(), req)
	if err != nil {
		t.Fatalf("read config resource: %v", err)
	}
	if result.Contents[0].URI != "unraid://config?session=1" {
		t.Fatalf("request uri not echoed: %q", result.Contents[0].URI)
	}
}
