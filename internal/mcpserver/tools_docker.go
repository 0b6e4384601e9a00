package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const listContainersQuery = `
query ListDockerContainers {
  docker {
    containers(skipCache: false) { id names image state status autoStart }
  }
}`

const containerDetailsQuery = `
query GetAllContainerDetailsForFiltering {
  docker {
    containers(skipCache: false) {
      id names image imageId command created
      ports { ip privatePort publicPort type }
      sizeRootFs labels state status
      hostConfig { networkMode }
      networkSettings mounts autoStart
    }
  }
}`

type containerDetailsInput struct {
	Name string `json:"name" jsonschema:"container name, with or without the leading slash"`
}

func (s *Server) registerDockerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_docker_containers",
		Description: "Docker containers with image, state, and autostart flag.",
	}, s.handleListDockerContainers)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_docker_container_details",
		Description: "Full details for one Docker container, looked up by name: ports, mounts, labels, and network settings.",
	}, s.handleGetDockerContainerDetails)
}

func (s *Server) handleListDockerContainers(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	docker, err := s.queryAndUnwrap(ctx, listContainersQuery, "docker", nil)
	if err != nil {
		return nil, nil, err
	}
	containers, err := unwrapField(docker, "containers")
	if err != nil {
		return nil, nil, err
	}
	return rawToolResult(containers)
}

func (s *Server) handleGetDockerContainerDetails(ctx context.Context, _ *mcp.CallToolRequest, input containerDetailsInput) (*mcp.CallToolResult, any, error) {
	name := strings.TrimPrefix(strings.TrimSpace(input.Name), "/")
	if name == "" {
		return nil, nil, fmt.Errorf("name is required")
	}

	docker, err := s.queryAndUnwrap(ctx, containerDetailsQuery, "docker", nil)
	if err != nil {
		return nil, nil, err
	}
	containersRaw, err := unwrapField(docker, "containers")
	if err != nil {
		return nil, nil, err
	}

	var containers []json.RawMessage
	if err := json.Unmarshal(containersRaw, &containers); err != nil {
		return nil, nil, fmt.Errorf("decode containers: %w", err)
	}

	// The engine reports names with a leading slash; match either form.
	for _, raw := range containers {
		var c struct {
			Names []string `json:"names"`
		}
		if err := json.Unmarshal(raw, &c); err != nil {
			continue
		}
		for _, n := range c.Names {
			if strings.EqualFold(strings.TrimPrefix(n, "/"), name) {
				return rawToolResult(raw)
			}
		}
	}
	return nil, nil, fmt.Errorf("container %q not found", name)
}
