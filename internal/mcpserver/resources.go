package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	resourceConfig = "unraid://config"
	resourceHealth = "unraid://health"
	resourceLogs   = "unraid://logs"
)

const healthCheckQuery = `
query ComprehensiveHealthCheck {
  info {
    machineId
    time
    versions { core { unraid } }
    os { uptime }
  }
  array { state }
  notifications {
    overview { unread { alert warning total } }
  }
  docker {
    containers(skipCache: true) { id state status }
  }
}`

func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         resourceConfig,
		Name:        "Server Configuration",
		Description: "Effective unraid-mcp configuration with secrets redacted",
		MIMEType:    "application/json",
	}, s.handleConfigResource)

	s.server.AddResource(&mcp.Resource{
		URI:         resourceHealth,
		Name:        "Server Health",
		Description: "Combined Unraid health check and subscription connection state",
		MIMEType:    "application/json",
	}, s.handleHealthResource)

	s.server.AddResource(&mcp.Resource{
		URI:         resourceLogs,
		Name:        "Log Files",
		Description: "Log files available for reading or streaming",
		MIMEType:    "application/json",
	}, s.handleLogsResource)
}

func (s *Server) handleConfigResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return buildJSONResourceResult(req, resourceConfig, s.cfg.Redacted())
}

func (s *Server) handleHealthResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	payload := map[string]any{
		"subscription_state": s.sub.Health().State.String(),
		"version":            s.version,
	}

	data, err := s.gql.Query(ctx, healthCheckQuery, nil)
	if err != nil {
		payload["api_reachable"] = false
		payload["api_error"] = err.Error()
	} else {
		payload["api_reachable"] = true
		payload["checks"] = json.RawMessage(data)
	}

	return buildJSONResourceResult(req, resourceHealth, payload)
}

func (s *Server) handleLogsResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	files, err := s.queryAndUnwrap(ctx, listLogFilesQuery, "logFiles", nil)
	if err != nil {
		return nil, err
	}
	return buildJSONResourceResult(req, resourceLogs, json.RawMessage(files))
}

func buildJSONResourceResult(req *mcp.ReadResourceRequest, defaultURI string, payload any) (*mcp.ReadResourceResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	uri := defaultURI
	if req != nil && req.Params != nil && req.Params.URI != "" {
		uri = req.Params.URI
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
