// Package graphql is the HTTP client for Unraid API queries and
// mutations. The subscription connection lives elsewhere; this client
// only does request/response over POST.
package graphql

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nkissick-del/unraid-mcp/internal/metrics"
	"github.com/nkissick-del/unraid-mcp/internal/telemetry"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxResponseBytes      = 8 << 20
	errorSnippetBytes     = 512
)

// Options configures the client.
type Options struct {
	Endpoint       string
	APIKey         string
	VerifySSL      bool
	RequestTimeout time.Duration
	UserAgent      string
}

// APIError carries GraphQL-level errors returned with a 200 response.
type APIError struct {
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return "graphql request failed"
	}
	return "graphql: " + strings.Join(e.Messages, "; ")
}

// Client issues GraphQL documents against the Unraid API.
type Client struct {
	endpoint  string
	apiKey    string
	userAgent string
	timeout   time.Duration
	httpc     *http.Client
	logger    *zap.Logger
}

// New builds a client. TLS verification follows opts.VerifySSL; Unraid
// boxes often run self-signed certificates.
func New(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "unraid-mcp"
	}

	transport := http.DefaultTransport
	if !opts.VerifySSL {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		transport = t
	}

	return &Client{
		endpoint:  opts.Endpoint,
		apiKey:    opts.APIKey,
		userAgent: opts.UserAgent,
		timeout:   opts.RequestTimeout,
		httpc:     &http.Client{Transport: transport},
		logger:    logger.Named("graphql"),
	}
}

// Endpoint returns the URL this client posts to.
func (c *Client) Endpoint() string { return c.endpoint }

// RequestOption adjusts one request.
type RequestOption func(*requestOptions)

type requestOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the default request deadline. Disk queries take
// longer because drives may need to spin up.
func WithTimeout(d time.Duration) RequestOption {
	return func(o *requestOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// Query executes one GraphQL document and returns the data payload.
// Errors reported by the server come back as *APIError.
func (c *Client) Query(ctx context.Context, query string, variables map[string]any, opts ...RequestOption) (json.RawMessage, error) {
	o := requestOptions{timeout: c.timeout}
	for _, opt := range opts {
		opt(&o)
	}

	op := operationName(query)
	ctx, span := telemetry.StartQuerySpan(ctx, op)
	start := time.Now()
	data, err := c.do(ctx, query, variables, o.timeout)
	telemetry.EndQuerySpan(span, err)

	if err != nil {
		metrics.RecordGraphQLRequest("error", time.Since(start))
		c.logger.Warn("query failed", zap.String("operation", op), zap.Error(err))
		return nil, err
	}
	metrics.RecordGraphQLRequest("ok", time.Since(start))
	c.logger.Debug("query ok", zap.String("operation", op), zap.Duration("took", time.Since(start)))
	return data, nil
}

func (c *Client) do(ctx context.Context, query string, variables map[string]any, timeout time.Duration) (json.RawMessage, error) {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unraid api returned %d: %s", resp.StatusCode, snippet(raw))
	}

	var out gqlResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Errors) > 0 {
		apiErr := &APIError{}
		for _, e := range out.Errors {
			apiErr.Messages = append(apiErr.Messages, e.Message)
		}
		return nil, apiErr
	}
	return out.Data, nil
}

var opNameRe = regexp.MustCompile(`^\s*(?:query|mutation|subscription)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// operationName extracts the document's operation name for logs and spans.
func operationName(query string) string {
	if m := opNameRe.FindStringSubmatch(query); m != nil {
		return m[1]
	}
	return "anonymous"
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > errorSnippetBytes {
		s = s[:errorSnippetBytes] + "..."
	}
	return s
}
