package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/nkissick-del/unraid-mcp/internal/subscribe"
	"github.com/nkissick-del/unraid-mcp/internal/telemetry"
)

const (
	defaultStreamDuration = 30 * time.Second
	maxStreamDuration     = 5 * time.Minute
	defaultMaxChunks      = 50
)

type testSubscriptionInput struct {
	Query          string         `json:"query,omitempty" jsonschema:"subscription document to test; defaults to a syslog streaming probe"`
	Variables      map[string]any `json:"variables,omitempty" jsonschema:"optional variables for the subscription"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty" jsonschema:"how long to wait for the first event (default 15)"`
}

type streamLogInput struct {
	Path            string `json:"path" jsonschema:"absolute path of the log file to stream, as reported by list_log_files"`
	DurationSeconds int    `json:"duration_seconds,omitempty" jsonschema:"how long to stream (default 30, max 300)"`
	MaxChunks       int    `json:"max_chunks,omitempty" jsonschema:"stop after this many chunks (default 50)"`
}

// connectionHealth is the JSON shape reported by get_connection_health.
type connectionHealth struct {
	State                string     `json:"state"`
	Generation           uint64     `json:"generation"`
	PendingSubscriptions int        `json:"pending_subscriptions"`
	ActiveSubscriptions  int        `json:"active_subscriptions"`
	ConsecutiveFailures  int        `json:"consecutive_failures"`
	ConnectedAt          *time.Time `json:"connected_at,omitempty"`
	LastError            string     `json:"last_error,omitempty"`
	Endpoint             string     `json:"graphql_endpoint"`
	Version              string     `json:"server_version"`
}

func (s *Server) registerDiagnosticTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "test_subscription",
		Description: "Probe the GraphQL subscription channel end to end: connect, subscribe, and wait for the first event. Reports handshake status, time to first event, and any failure.",
	}, s.handleTestSubscription)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_connection_health",
		Description: "Current state of the persistent subscription connection: generation, failure counts, and active subscriptions.",
	}, s.handleGetConnectionHealth)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "stream_log_file",
		Description: "Stream a log file live over a GraphQL subscription for a bounded duration, forwarding chunks as progress notifications and returning the collected tail.",
	}, s.handleStreamLogFile)
}

func (s *Server) handleTestSubscription(ctx context.Context, _ *mcp.CallToolRequest, input testSubscriptionInput) (*mcp.CallToolResult, any, error) {
	timeout := time.Duration(input.TimeoutSeconds) * time.Second

	ctx, done := s.observeTool(ctx, "test_subscription")
	report := s.sub.TestSubscription(ctx, input.Query, input.Variables, timeout)
	if report.Error != "" {
		done(errors.New(report.Error))
	} else {
		done(nil)
	}

	return jsonToolResult(report)
}

func (s *Server) handleGetConnectionHealth(_ context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	h := s.sub.Health()

	health := connectionHealth{
		State:                h.State.String(),
		Generation:           h.Generation,
		PendingSubscriptions: h.PendingSubscriptions,
		ActiveSubscriptions:  h.ActiveSubscriptions,
		ConsecutiveFailures:  h.ConsecutiveFailures,
		LastError:            h.LastError,
		Endpoint:             s.gql.Endpoint(),
		Version:              s.version,
	}
	if !h.ConnectedAt.IsZero() {
		t := h.ConnectedAt
		health.ConnectedAt = &t
	}

	return jsonToolResult(health)
}

func (s *Server) handleStreamLogFile(ctx context.Context, req *mcp.CallToolRequest, input streamLogInput) (*mcp.CallToolResult, any, error) {
	path := strings.TrimSpace(input.Path)
	if path == "" {
		return nil, nil, fmt.Errorf("path is required")
	}

	duration := time.Duration(input.DurationSeconds) * time.Second
	if duration <= 0 {
		duration = defaultStreamDuration
	}
	if duration > maxStreamDuration {
		duration = maxStreamDuration
	}
	maxChunks := input.MaxChunks
	if maxChunks <= 0 {
		maxChunks = defaultMaxChunks
	}

	ctx, done := s.observeTool(ctx, "stream_log_file")
	result, err := s.streamLogFile(ctx, req, path, duration, maxChunks)
	done(err)
	if err != nil {
		return nil, nil, err
	}
	return jsonToolResult(result)
}

func (s *Server) streamLogFile(ctx context.Context, req *mcp.CallToolRequest, path string, duration time.Duration, maxChunks int) (map[string]any, error) {
	ctx, span := telemetry.StartStreamSpan(ctx, path)

	stream, err := s.sub.OpenLogStream(ctx, path)
	if err != nil {
		telemetry.EndStreamSpan(span, 0, 0, "subscribe_failed")
		return nil, err
	}
	defer stream.Close()

	streamCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	var chunks []subscribe.LogChunk
	endReason := "duration_elapsed"
	for len(chunks) < maxChunks {
		chunk, err := stream.NextChunk(streamCtx)
		if err != nil {
			var term *subscribe.TerminalError
			switch {
			case errors.As(err, &term):
				endReason = string(term.Reason)
			case errors.Is(err, context.DeadlineExceeded):
				endReason = "duration_elapsed"
			case errors.Is(err, context.Canceled):
				endReason = "canceled"
			default:
				telemetry.EndStreamSpan(span, uint64(len(chunks)), stream.Dropped(), "error")
				return nil, err
			}
			break
		}

		chunks = append(chunks, chunk)
		s.notifyLogChunk(ctx, req, path, len(chunks), chunk)
	}
	if len(chunks) >= maxChunks {
		endReason = "max_chunks"
	}

	telemetry.EndStreamSpan(span, uint64(len(chunks)), stream.Dropped(), endReason)
	s.logger.Debug("log stream finished",
		zap.String("path", path),
		zap.Int("chunks", len(chunks)),
		zap.Uint64("dropped", stream.Dropped()),
		zap.String("end_reason", endReason),
	)

	return map[string]any{
		"path":        path,
		"chunks":      chunks,
		"chunk_count": len(chunks),
		"dropped":     stream.Dropped(),
		"end_reason":  endReason,
	}, nil
}

// notifyLogChunk forwards one streamed chunk to the calling session as a
// progress notification. Failures are logged, never fatal to the stream.
func (s *Server) notifyLogChunk(ctx context.Context, req *mcp.CallToolRequest, path string, seq int, chunk subscribe.LogChunk) {
	if req == nil || req.Session == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := req.Session.NotifyProgress(notifyCtx, &mcp.ProgressNotificationParams{
		ProgressToken: fmt.Sprintf("unraid.logs/%s", path),
		Progress:      float64(seq),
		Message:       chunk.Content,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Debug("progress notification failed", zap.String("path", path), zap.Error(err))
	}
}
