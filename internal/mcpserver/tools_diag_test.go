package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nkissick-del/unraid-mcp/internal/config"
	"github.com/nkissick-del/unraid-mcp/internal/graphql"
	"github.com/nkissick-del/unraid-mcp/internal/subscribe"
)

// newFakeLogAPI runs a graphql-transport-ws endpoint that answers every
// subscribe with the given number of logFile chunks, then optionally a
// complete frame.
func newFakeLogAPI(t *testing.T, chunks int, complete bool) string {
	t.Helper()
	upgrader := websocket.Upgrader{Subprotocols: []string{subscribe.Subprotocol}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		for {
			var msg subscribe.Message
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case subscribe.MsgConnectionInit:
				if err := ws.WriteJSON(subscribe.Message{Type: subscribe.MsgConnectionAck}); err != nil {
					return
				}
			case subscribe.MsgSubscribe:
				for i := 1; i <= chunks; i++ {
					payload := fmt.Sprintf(
						`{"data":{"logFile":{"path":"/var/log/syslog","content":"line %d\n","totalLines":%d}}}`, i, i)
					if err := ws.WriteJSON(subscribe.Message{ID: msg.ID, Type: subscribe.MsgNext, Payload: json.RawMessage(payload)}); err != nil {
						return
					}
				}
				if complete {
					if err := ws.WriteJSON(subscribe.Message{ID: msg.ID, Type: subscribe.MsgComplete}); err != nil {
						return
					}
				}
			}
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newStreamTestServer(t *testing.T, wsURL string) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.APIURL = "http://127.0.0.1:0"
	cfg.APIKey = "test-key"

	gql := graphql.New(graphql.Options{Endpoint: cfg.APIURL, APIKey: "test-key"}, zap.NewNop())
	sub := subscribe.New(subscribe.Config{
		Endpoint:         wsURL,
		APIKey:           "test-key",
		DialTimeout:      2 * time.Second,
		HandshakeTimeout: 2 * time.Second,
		KeepAlive:        time.Minute,
		PongWait:         time.Minute,
	}, zap.NewNop())
	t.Cleanup(func() { _ = sub.Close() })

	return New(cfg, gql, sub, "test", zap.NewNop())
}

type streamResult struct {
	Path       string               `json:"path"`
	Chunks     []subscribe.LogChunk `json:"chunks"`
	ChunkCount int                  `json:"chunk_count"`
	Dropped    uint64               `json:"dropped"`
	EndReason  string               `json:"end_reason"`
}

func TestStreamLogFileStopsAtMaxChunks(t *testing.T) {
	srv := newStreamTestServer(t, newFakeLogAPI(t, 5, false))

	result, _, err := srv.handleStreamLogFile(context.Background(), nil, streamLogInput{
		Path:            "/var/log/syslog",
		DurationSeconds: 5,
		MaxChunks:       2,
	})
	if err != nil {
		t.Fatalf("stream log file: %v", err)
	}

	var payload streamResult
	decodeToolJSON(t, result, &payload)
	if payload.EndReason != "max_chunks" {
		t.Fatalf("expected max_chunks, got %q", payload.EndReason)
	}
	if payload.ChunkCount != 2 || len(payload.Chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %+v", payload)
	}
	if payload.Chunks[0].Content != "line 1\n" {
		t.Fatalf("unexpected first chunk: %+v", payload.Chunks[0])
	}
}

func TestStreamLogFileEndsOnComplete(t *testing.T) {
	srv := newStreamTestServer(t, newFakeLogAPI(t, 1, true))

	result, _, err := srv.handleStreamLogFile(context.Background(), nil, streamLogInput{
		Path:            "/var/log/syslog",
		DurationSeconds: 5,
	})
	if err != nil {
		t.Fatalf("stream log file: %v", err)
	}

	var payload streamResult
	decodeToolJSON(t, result, &payload)
	if payload.EndReason != "complete" {
		t.Fatalf("expected complete, got %q", payload.EndReason)
	}
	if payload.ChunkCount != 1 {
		t.Fatalf("expected 1 chunk, got %+v", payload)
	}
	if payload.Path != "/var/log/syslog" {
		t.Fatalf("unexpected path: %q", payload.Path)
	}
}

func TestStreamLogFileRequiresPath(t *testing.T) {
	srv, _ := newTestServer(t)
	if _, _, err := srv.handleStreamLogFile(context.Background(), nil, streamLogInput{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestTestSubscriptionToolReportsEvent(t *testing.T) {
	srv := newStreamTestServer(t, newFakeLogAPI(t, 1, false))

	result, _, err := srv.handleTestSubscription(context.Background(), nil, testSubscriptionInput{TimeoutSeconds: 5})
	if err != nil {
		t.Fatalf("test subscription: %v", err)
	}

	var report subscribe.Report
	decodeToolJSON(t, result, &report)
	if !report.GotEvent {
		t.Fatalf("expected an event, report: %+v", report)
	}
	if !report.HandshakeOK || report.State != "ready" {
		t.Fatalf("unexpected connection report: %+v", report)
	}
}

func TestGetConnectionHealthTool(t *testing.T) {
	srv, api := newTestServer(t)

	result, _, err := srv.handleGetConnectionHealth(context.Background(), nil, emptyInput{})
	if err != nil {
		t.Fatalf("get connection health: %v", err)
	}

	var health connectionHealth
	decodeToolJSON(t, result, &health)
	if health.State != "disconnected" {
		t.Fatalf("expected disconnected, got %q", health.State)
	}
	if health.Endpoint != api.srv.URL {
		t.Fatalf("unexpected endpoint: %q", health.Endpoint)
	}
	if health.Version != "test" {
		t.Fatalf("unexpected version: %q", health.Version)
	}
	if health.ConnectedAt != nil {
		t.Fatalf("expected no connected_at before first connect, got %v", health.ConnectedAt)
	}
}
