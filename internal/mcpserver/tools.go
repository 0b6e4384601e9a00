package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nkissick-del/unraid-mcp/internal/graphql"
	"github.com/nkissick-del/unraid-mcp/internal/metrics"
	"github.com/nkissick-del/unraid-mcp/internal/telemetry"
)

func (s *Server) registerTools() {
	s.registerSystemTools()
	s.registerStorageTools()
	s.registerDockerTools()
	s.registerVMTools()
	s.registerRCloneTools()
	s.registerAPITools()
	s.registerDiagnosticTools()
}

// emptyInput is the schema for tools that take no arguments.
type emptyInput struct{}

func jsonToolResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return textToolResult(string(data)), nil, nil
}

func textToolResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// rawToolResult passes a GraphQL payload fragment through untouched.
func rawToolResult(data json.RawMessage) (*mcp.CallToolResult, any, error) {
	return textToolResult(string(data)), nil, nil
}

// unwrapField extracts one named root field from a GraphQL data payload.
func unwrapField(data json.RawMessage, field string) (json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	v, ok := m[field]
	if !ok || string(v) == "null" {
		return nil, fmt.Errorf("response missing %q", field)
	}
	return v, nil
}

// queryAndUnwrap runs a query and returns one root field of the result.
func (s *Server) queryAndUnwrap(ctx context.Context, query, field string, variables map[string]any, opts ...graphql.RequestOption) (json.RawMessage, error) {
	data, err := s.gql.Query(ctx, query, variables, opts...)
	if err != nil {
		return nil, err
	}
	return unwrapField(data, field)
}

// observeTool traces one tool invocation and records its outcome. The
// returned func must be called exactly once with the handler's error.
func (s *Server) observeTool(ctx context.Context, tool string) (context.Context, func(error)) {
	ctx, span := telemetry.StartToolSpan(ctx, tool)
	return ctx, func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.RecordToolCall(tool, status)
		telemetry.EndToolSpan(span, err)
	}
}
