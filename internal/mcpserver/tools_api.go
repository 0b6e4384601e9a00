package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nkissick-del/unraid-mcp/internal/graphql"
	"github.com/nkissick-del/unraid-mcp/internal/metrics"
)

const introspectTypeQuery = `
query IntrospectType($name: String!) {
  __type(name: $name) {
    name
    kind
    description
    fields {
      name
      description
      type { name kind ofType { name kind ofType { name kind ofType { name kind } } } }
      args {
        name
        type { name kind ofType { name kind ofType { name kind } } }
        defaultValue
      }
    }
    inputFields {
      name
      type { name kind ofType { name kind ofType { name kind } } }
      defaultValue
    }
    enumValues { name description }
  }
}`

const introspectRootQuery = `
query IntrospectRootFields {
  __schema {
    queryType { fields { name description } }
    mutationType { fields { name description } }
    subscriptionType { fields { name description } }
  }
}`

type introspectInput struct {
	TypeName string `json:"type_name,omitempty" jsonschema:"optional type to describe in detail; omit for the root query/mutation/subscription fields"`
}

type rawQueryInput struct {
	Query     string         `json:"query" jsonschema:"GraphQL document to execute"`
	Variables map[string]any `json:"variables,omitempty" jsonschema:"optional GraphQL variables"`
}

func (s *Server) registerAPITools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "introspect_schema",
		Description: "Explore the Unraid GraphQL schema: root fields by default, or one named type in detail.",
	}, s.handleIntrospectSchema)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query_unraid_api",
		Description: "Execute a raw GraphQL query against the Unraid API. Mutations are blocked unless explicitly enabled in the server configuration.",
	}, s.handleQueryUnraidAPI)
}

func (s *Server) handleIntrospectSchema(ctx context.Context, _ *mcp.CallToolRequest, input introspectInput) (*mcp.CallToolResult, any, error) {
	if name := strings.TrimSpace(input.TypeName); name != "" {
		data, err := s.gql.Query(ctx, introspectTypeQuery, map[string]any{"name": name})
		if err != nil {
			return nil, nil, err
		}
		typeInfo, err := unwrapField(data, "__type")
		if err != nil {
			return nil, nil, fmt.Errorf("type %q not found in schema", name)
		}
		return rawToolResult(typeInfo)
	}

	data, err := s.gql.Query(ctx, introspectRootQuery, nil)
	if err != nil {
		return nil, nil, err
	}

	var schema struct {
		Schema struct {
			QueryType        *struct{ Fields json.RawMessage } `json:"queryType"`
			MutationType     *struct{ Fields json.RawMessage } `json:"mutationType"`
			SubscriptionType *struct{ Fields json.RawMessage } `json:"subscriptionType"`
		} `json:"__schema"`
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, nil, fmt.Errorf("decode schema: %w", err)
	}

	result := map[string]any{}
	if t := schema.Schema.QueryType; t != nil && len(t.Fields) > 0 {
		result["queries"] = t.Fields
	}
	if t := schema.Schema.MutationType; t != nil && len(t.Fields) > 0 {
		result["mutations"] = t.Fields
	}
	if t := schema.Schema.SubscriptionType; t != nil && len(t.Fields) > 0 {
		result["subscriptions"] = t.Fields
	}
	return jsonToolResult(result)
}

func (s *Server) handleQueryUnraidAPI(ctx context.Context, _ *mcp.CallToolRequest, input rawQueryInput) (*mcp.CallToolResult, any, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, nil, fmt.Errorf("query is required")
	}

	if !s.cfg.AllowMutations {
		if err := graphql.CheckReadOnly(query); err != nil {
			metrics.RecordGraphQLRequest("blocked", 0)
			return nil, nil, err
		}
	}
	if err := graphql.ValidateVariables(input.Variables); err != nil {
		return nil, nil, err
	}

	ctx, done := s.observeTool(ctx, "query_unraid_api")
	data, err := s.gql.Query(ctx, query, input.Variables)
	done(err)
	if err != nil {
		return nil, nil, err
	}
	return rawToolResult(data)
}
