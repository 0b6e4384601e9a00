package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Transport != TransportSSE {
		t.Errorf("expected sse, got %s", cfg.Transport)
	}
	if cfg.Port != 6717 {
		t.Errorf("expected 6717, got %d", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected info, got %s", cfg.LogLevel)
	}
	if !cfg.VerifySSL {
		t.Error("expected verify_ssl on by default")
	}
	if cfg.AllowMutations {
		t.Error("mutations must be off by default")
	}
	if cfg.Timeouts.DiskSeconds != 90 {
		t.Errorf("expected 90s disk timeout, got %d", cfg.Timeouts.DiskSeconds)
	}
	if cfg.Subscriptions.MaxRetries != 10 {
		t.Errorf("expected 10 retries, got %d", cfg.Subscriptions.MaxRetries)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(`
api_url: https://tower.local
api_key: file-key
transport: stdio
port: 9090
verify_ssl: false
subscriptions:
  keepalive_seconds: 15
  resubscribe: true
`), 0644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.APIURL != "https://tower.local" {
		t.Errorf("expected tower.local, got %s", cfg.APIURL)
	}
	if cfg.Transport != TransportStdio {
		t.Errorf("expected stdio, got %s", cfg.Transport)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected 9090, got %d", cfg.Port)
	}
	if cfg.VerifySSL {
		t.Error("expected verify_ssl disabled")
	}
	if cfg.Subscriptions.KeepAliveSeconds != 15 {
		t.Errorf("expected 15, got %d", cfg.Subscriptions.KeepAliveSeconds)
	}
	if !cfg.Subscriptions.Resubscribe {
		t.Error("expected resubscribe enabled")
	}
	// Untouched sections keep their defaults.
	if cfg.Timeouts.RequestSeconds != 30 {
		t.Errorf("expected default request timeout, got %d", cfg.Timeouts.RequestSeconds)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("api_url: https://file.local\nport: 9090\n"), 0644)

	t.Setenv("UNRAID_API_URL", "https://env.local")
	t.Setenv("UNRAID_API_KEY", "env-key")
	t.Setenv("UNRAID_MCP_PORT", "7070")
	t.Setenv("UNRAID_VERIFY_SSL", "no")
	t.Setenv("UNRAID_ALLOW_MUTATIONS", "on")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.APIURL != "https://env.local" {
		t.Errorf("env should override file: got %s", cfg.APIURL)
	}
	if cfg.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.APIKey)
	}
	if cfg.Port != 7070 {
		t.Errorf("expected 7070, got %d", cfg.Port)
	}
	if cfg.VerifySSL {
		t.Error("UNRAID_VERIFY_SSL=no should disable verification")
	}
	if !cfg.AllowMutations {
		t.Error("UNRAID_ALLOW_MUTATIONS=on should enable mutations")
	}
}

func TestLoadFromEnvOnly(t *testing.T) {
	t.Setenv("UNRAID_API_URL", "https://env-only.local")
	t.Setenv("UNRAID_MCP_LOG_LEVEL", "debug")
	t.Setenv("UNRAID_MCP_TRANSPORT", "streamable-http")

	cfg := LoadFromEnv()
	if cfg.APIURL != "https://env-only.local" {
		t.Errorf("expected env-only.local, got %s", cfg.APIURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug, got %s", cfg.LogLevel)
	}
	if cfg.Transport != TransportStreamableHTTP {
		t.Errorf("expected streamable-http, got %s", cfg.Transport)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without api_url")
	}

	cfg.APIURL = "https://tower.local"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without api_key")
	}

	cfg.APIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	cfg.Transport = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown transport")
	}

	cfg.Transport = TransportStdio
	cfg.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for port 0")
	}
}

func TestGraphQLEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://tower.local", "https://tower.local/graphql"},
		{"https://tower.local/", "https://tower.local/graphql"},
		{"https://tower.local/graphql", "https://tower.local/graphql"},
		{"http://192.168.1.5:3001/api", "http://192.168.1.5:3001/api"},
	}
	for _, tc := range cases {
		cfg := Config{APIURL: tc.in}
		if got := cfg.GraphQLEndpoint(); got != tc.want {
			t.Errorf("GraphQLEndpoint(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWebSocketEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://tower.local", "wss://tower.local/graphql"},
		{"http://192.168.1.5:3001", "ws://192.168.1.5:3001/graphql"},
	}
	for _, tc := range cases {
		cfg := Config{APIURL: tc.in}
		if got := cfg.WebSocketEndpoint(); got != tc.want {
			t.Errorf("WebSocketEndpoint(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestListenAddr(t *testing.T) {
	cfg := Config{Host: "127.0.0.1", Port: 6717}
	if got := cfg.ListenAddr(); got != "127.0.0.1:6717" {
		t.Errorf("expected 127.0.0.1:6717, got %s", got)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Config{APIKey: "super-secret"}
	if got := cfg.Redacted().APIKey; got != "********" {
		t.Errorf("expected masked key, got %q", got)
	}
	if cfg.APIKey != "super-secret" {
		t.Error("Redacted must not mutate the original")
	}
	if Default().Redacted().APIKey != "" {
		t.Error("empty key should stay empty")
	}
}
