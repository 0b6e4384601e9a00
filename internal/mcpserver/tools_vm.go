package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const listVMsQuery = `
query ListVMs {
  vms {
    id
    domains { id name state uuid }
  }
}`

type vmDetailsInput struct {
	VM string `json:"vm" jsonschema:"VM name or UUID"`
}

func (s *Server) registerVMTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_vms",
		Description: "Virtual machines with their current state.",
	}, s.handleListVMs)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_vm_details",
		Description: "Details for one virtual machine, looked up by name or UUID.",
	}, s.handleGetVMDetails)
}

func (s *Server) handleListVMs(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	vms, err := s.queryAndUnwrap(ctx, listVMsQuery, "vms", nil)
	if err != nil {
		return nil, nil, err
	}
	return rawToolResult(vms)
}

func (s *Server) handleGetVMDetails(ctx context.Context, _ *mcp.CallToolRequest, input vmDetailsInput) (*mcp.CallToolResult, any, error) {
	needle := strings.TrimSpace(input.VM)
	if needle == "" {
		return nil, nil, fmt.Errorf("vm is required")
	}

	vms, err := s.queryAndUnwrap(ctx, listVMsQuery, "vms", nil)
	if err != nil {
		return nil, nil, err
	}
	domainsRaw, err := unwrapField(vms, "domains")
	if err != nil {
		return nil, nil, err
	}

	var domains []json.RawMessage
	if err := json.Unmarshal(domainsRaw, &domains); err != nil {
		return nil, nil, fmt.Errorf("decode vm list: %w", err)
	}

	for _, raw := range domains {
		var d struct {
			Name string `json:"name"`
			UUID string `json:"uuid"`
		}
		if err := json.Unmarshal(raw, &d); err != nil {
			continue
		}
		if strings.EqualFold(d.Name, needle) || strings.EqualFold(d.UUID, needle) {
			return rawToolResult(raw)
		}
	}
	return nil, nil, fmt.Errorf("vm %q not found", needle)
}
