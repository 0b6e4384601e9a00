// Package config provides configuration loading for the Unraid MCP server.
// Configuration sources (in priority order): env vars > config file > defaults.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport names accepted by the server.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// Config holds all server configuration. The json tags mirror the yaml
// ones so the config MCP resource reports the same key names the config
// file uses.
type Config struct {
	// APIURL is the Unraid API base, e.g. https://tower.local/graphql.
	// A bare host URL gets /graphql appended.
	APIURL string `yaml:"api_url" json:"api_url"`
	APIKey string `yaml:"api_key" json:"api_key"`
	// VerifySSL disables TLS verification when false; Unraid boxes
	// commonly run self-signed certificates.
	VerifySSL bool `yaml:"verify_ssl" json:"verify_ssl"`

	// Transport is stdio, sse, or streamable-http.
	Transport string `yaml:"transport" json:"transport"`
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`

	// Log level (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogFile mirrors logs to a file in addition to stderr.
	LogFile string `yaml:"log_file,omitempty" json:"log_file,omitempty"`

	// AllowMutations permits mutation documents through the raw
	// query_unraid_api tool. Off by default.
	AllowMutations bool `yaml:"allow_mutations" json:"allow_mutations"`

	// OTLPEndpoint (host:port of an OTLP gRPC collector) enables tracing.
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty" json:"otlp_endpoint,omitempty"`

	Timeouts      TimeoutConfig      `yaml:"timeouts" json:"timeouts"`
	Subscriptions SubscriptionConfig `yaml:"subscriptions" json:"subscriptions"`
}

// TimeoutConfig sets per-request HTTP deadlines.
type TimeoutConfig struct {
	ConnectSeconds int `yaml:"connect_seconds" json:"connect_seconds"`
	RequestSeconds int `yaml:"request_seconds" json:"request_seconds"`
	// Disk queries can spin up sleeping drives and need a longer window.
	DiskSeconds int `yaml:"disk_seconds" json:"disk_seconds"`
}

func (t TimeoutConfig) Connect() time.Duration {
	return time.Duration(t.ConnectSeconds) * time.Second
}

func (t TimeoutConfig) Request() time.Duration {
	return time.Duration(t.RequestSeconds) * time.Second
}

func (t TimeoutConfig) Disk() time.Duration {
	return time.Duration(t.DiskSeconds) * time.Second
}

// SubscriptionConfig tunes the WebSocket subscription connection.
type SubscriptionConfig struct {
	KeepAliveSeconds        int     `yaml:"keepalive_seconds" json:"keepalive_seconds"`
	PongWaitSeconds         int     `yaml:"pong_wait_seconds" json:"pong_wait_seconds"`
	HandshakeTimeoutSeconds int     `yaml:"handshake_timeout_seconds" json:"handshake_timeout_seconds"`
	MaxRetries              int     `yaml:"max_retries" json:"max_retries"`
	BackoffInitialMS        int     `yaml:"backoff_initial_ms" json:"backoff_initial_ms"`
	BackoffMaxMS            int     `yaml:"backoff_max_ms" json:"backoff_max_ms"`
	BackoffMultiplier       float64 `yaml:"backoff_multiplier" json:"backoff_multiplier"`
	BackoffJitter           float64 `yaml:"backoff_jitter" json:"backoff_jitter"`
	QueueSize               int     `yaml:"queue_size" json:"queue_size"`
	Resubscribe             bool    `yaml:"resubscribe" json:"resubscribe"`
}

func (s SubscriptionConfig) KeepAlive() time.Duration {
	return time.Duration(s.KeepAliveSeconds) * time.Second
}

func (s SubscriptionConfig) PongWait() time.Duration {
	return time.Duration(s.PongWaitSeconds) * time.Second
}

func (s SubscriptionConfig) HandshakeTimeout() time.Duration {
	return time.Duration(s.HandshakeTimeoutSeconds) * time.Second
}

func (s SubscriptionConfig) BackoffInitial() time.Duration {
	return time.Duration(s.BackoffInitialMS) * time.Millisecond
}

func (s SubscriptionConfig) BackoffMax() time.Duration {
	return time.Duration(s.BackoffMaxMS) * time.Millisecond
}

// Default returns configuration with sensible defaults.
func Default() Config {
	return Config{
		VerifySSL: true,
		Transport: TransportSSE,
		Host:      "0.0.0.0",
		Port:      6717,
		LogLevel:  "info",
		Timeouts: TimeoutConfig{
			ConnectSeconds: 5,
			RequestSeconds: 30,
			DiskSeconds:    90,
		},
		Subscriptions: SubscriptionConfig{
			KeepAliveSeconds:        30,
			PongWaitSeconds:         70,
			HandshakeTimeoutSeconds: 10,
			MaxRetries:              10,
			BackoffInitialMS:        1000,
			BackoffMaxMS:            300000,
			BackoffMultiplier:       2.0,
			BackoffJitter:           0.5,
			QueueSize:               64,
		},
	}
}

// Load reads configuration from a file, then overlays environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() Config {
	cfg, _ := Load("")
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("UNRAID_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv("UNRAID_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("UNRAID_VERIFY_SSL"); v != "" {
		cfg.VerifySSL = parseBool(v, cfg.VerifySSL)
	}
	if v := os.Getenv("UNRAID_MCP_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("UNRAID_MCP_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("UNRAID_MCP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("UNRAID_MCP_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FILE_PATH"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("UNRAID_ALLOW_MUTATIONS"); v != "" {
		cfg.AllowMutations = parseBool(v, cfg.AllowMutations)
	}
	if v := os.Getenv("UNRAID_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
}

// parseBool accepts the spellings commonly seen in container env files.
func parseBool(v string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// Validate checks the settings needed before any network activity.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return fmt.Errorf("api_url is required (set UNRAID_API_URL)")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("api_key is required (set UNRAID_API_KEY)")
	}
	switch c.Transport {
	case TransportStdio, TransportSSE, TransportStreamableHTTP:
	default:
		return fmt.Errorf("unknown transport %q (want stdio, sse, or streamable-http)", c.Transport)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

// GraphQLEndpoint returns the HTTP URL of the GraphQL API, appending the
// conventional /graphql path when the configured URL has none.
func (c Config) GraphQLEndpoint() string {
	raw := strings.TrimSpace(c.APIURL)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/graphql"
	}
	return u.String()
}

// WebSocketEndpoint returns the ws:// or wss:// form of the GraphQL URL
// for the subscription connection.
func (c Config) WebSocketEndpoint() string {
	u, err := url.Parse(c.GraphQLEndpoint())
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String()
}

// ListenAddr is the host:port for the HTTP transports.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Redacted returns a copy safe for logging, with the API key masked.
func (c Config) Redacted() Config {
	out := c
	if out.APIKey != "" {
		out.APIKey = "********"
	}
	return out
}
