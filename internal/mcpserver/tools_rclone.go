package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const listRemotesQuery = `
query ListRCloneRemotes {
  rclone {
    remotes { name type parameters config }
  }
}`

const rcloneConfigFormQuery = `
query GetRCloneConfigForm($formOptions: RCloneConfigFormInput) {
  rclone {
    configForm(formOptions: $formOptions) { id dataSchema uiSchema }
  }
}`

const createRemoteMutation = `
mutation CreateRCloneRemote($input: CreateRCloneRemoteInput!) {
  rclone {
    createRCloneRemote(input: $input) { name type parameters }
  }
}`

const deleteRemoteMutation = `
mutation DeleteRCloneRemote($input: DeleteRCloneRemoteInput!) {
  rclone {
    deleteRCloneRemote(input: $input)
  }
}`

type rcloneConfigFormInput struct {
	ProviderType string `json:"provider_type,omitempty" jsonschema:"optional provider type for a provider-specific form (e.g. s3, drive, dropbox)"`
}

type createRemoteInput struct {
	Name         string         `json:"name" jsonschema:"name for the new remote"`
	ProviderType string         `json:"provider_type" jsonschema:"provider type (e.g. s3, drive, dropbox, ftp)"`
	Config       map[string]any `json:"config" jsonschema:"provider-specific configuration parameters"`
}

type deleteRemoteInput struct {
	Name string `json:"name" jsonschema:"name of the remote to delete"`
}

func (s *Server) registerRCloneTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "list_rclone_remotes",
		Description: "Configured rclone remotes with their provider types and parameters.",
	}, s.handleListRCloneRemotes)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_rclone_config_form",
		Description: "JSON schema for configuring a new rclone remote, optionally specialized per provider.",
	}, s.handleGetRCloneConfigForm)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "create_rclone_remote",
		Description: "Create a new rclone remote from a name, provider type, and provider-specific configuration.",
	}, s.handleCreateRCloneRemote)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_rclone_remote",
		Description: "Delete an rclone remote by name.",
	}, s.handleDeleteRCloneRemote)
}

func (s *Server) handleListRCloneRemotes(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	rclone, err := s.queryAndUnwrap(ctx, listRemotesQuery, "rclone", nil)
	if err != nil {
		return nil, nil, err
	}
	remotes, err := unwrapField(rclone, "remotes")
	if err != nil {
		return nil, nil, err
	}
	return rawToolResult(remotes)
}

func (s *Server) handleGetRCloneConfigForm(ctx context.Context, _ *mcp.CallToolRequest, input rcloneConfigFormInput) (*mcp.CallToolResult, any, error) {
	var variables map[string]any
	// The form endpoint rejects provider types with leading slashes.
	if provider := strings.Trim(strings.TrimSpace(input.ProviderType), "/"); provider != "" {
		variables = map[string]any{
			"formOptions": map[string]any{"providerType": provider},
		}
	}

	rclone, err := s.queryAndUnwrap(ctx, rcloneConfigFormQuery, "rclone", variables)
	if err != nil {
		return nil, nil, err
	}
	form, err := unwrapField(rclone, "configForm")
	if err != nil {
		return nil, nil, err
	}
	return rawToolResult(form)
}

func (s *Server) handleCreateRCloneRemote(ctx context.Context, _ *mcp.CallToolRequest, input createRemoteInput) (*mcp.CallToolResult, any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, nil, fmt.Errorf("name is required")
	}
	provider := strings.TrimSpace(input.ProviderType)
	if provider == "" {
		return nil, nil, fmt.Errorf("provider_type is required")
	}

	ctx, done := s.observeTool(ctx, "create_rclone_remote")
	remote, err := func() (json.RawMessage, error) {
		rclone, err := s.queryAndUnwrap(ctx, createRemoteMutation, "rclone", map[string]any{
			"input": map[string]any{
				"name":   name,
				"type":   provider,
				"config": input.Config,
			},
		})
		if err != nil {
			return nil, err
		}
		return unwrapField(rclone, "createRCloneRemote")
	}()
	done(err)
	if err != nil {
		return nil, nil, err
	}

	return jsonToolResult(map[string]any{
		"success": true,
		"message": fmt.Sprintf("rclone remote %q created", name),
		"remote":  remote,
	})
}

func (s *Server) handleDeleteRCloneRemote(ctx context.Context, _ *mcp.CallToolRequest, input deleteRemoteInput) (*mcp.CallToolResult, any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, nil, fmt.Errorf("name is required")
	}

	ctx, done := s.observeTool(ctx, "delete_rclone_remote")
	err := func() error {
		rclone, err := s.queryAndUnwrap(ctx, deleteRemoteMutation, "rclone", map[string]any{
			"input": map[string]any{"name": name},
		})
		if err != nil {
			return err
		}
		deleted, err := unwrapField(rclone, "deleteRCloneRemote")
		if err != nil {
			return err
		}
		if string(deleted) != "true" {
			return fmt.Errorf("delete remote %q: api returned %s", name, deleted)
		}
		return nil
	}()
	done(err)
	if err != nil {
		return nil, nil, err
	}

	return jsonToolResult(map[string]any{
		"success": true,
		"message": fmt.Sprintf("rclone remote %q deleted", name),
	})
}
