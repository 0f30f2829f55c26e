// Package mcptools discovers the tools an MCP server offers and caches the
// result per server.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/ormasoftchile/wfstudio/pkg/mcpconfig"
	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

// DefaultDiscoveryTimeout bounds one connect-initialize-list cycle.
const DefaultDiscoveryTimeout = 20 * time.Second

// ErrToolNotFound is returned when a server does not offer a tool.
var ErrToolNotFound = errors.New("tool not found")

// Discoverer lists the tools of one server.
type Discoverer interface {
	ListTools(ctx context.Context, server mcpconfig.ResolvedServer) ([]workflow.Tool, error)
}

// ClientFactory builds an unstarted mcp-go client for a server.
type ClientFactory func(cfg mcpconfig.ServerConfig) (*client.Client, error)

// ClientDiscoverer connects to the server with mcp-go, lists its tools and
// disconnects.
type ClientDiscoverer struct {
	timeout time.Duration
	factory ClientFactory
	log     zerolog.Logger
	version string
}

// DiscovererOption configures a ClientDiscoverer.
type DiscovererOption func(*ClientDiscoverer)

// WithDiscoveryTimeout bounds each discovery.
func WithDiscoveryTimeout(d time.Duration) DiscovererOption {
	return func(c *ClientDiscoverer) { c.timeout = d }
}

// WithClientFactory replaces the transport-based client construction.
func WithClientFactory(f ClientFactory) DiscovererOption {
	return func(c *ClientDiscoverer) { c.factory = f }
}

// WithDiscovererLogger attaches a logger.
func WithDiscovererLogger(l zerolog.Logger) DiscovererOption {
	return func(c *ClientDiscoverer) { c.log = l }
}

// WithClientVersion sets the version reported in the initialize handshake.
func WithClientVersion(v string) DiscovererOption {
	return func(c *ClientDiscoverer) { c.version = v }
}

// NewClientDiscoverer returns a discoverer using stdio, streamable HTTP or
// SSE transports according to the server type.
func NewClientDiscoverer(opts ...DiscovererOption) *ClientDiscoverer {
	d := &ClientDiscoverer{
		timeout: DefaultDiscoveryTimeout,
		factory: NewClient,
		log:     zerolog.Nop(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewClient builds an mcp-go client for cfg's transport.
func NewClient(cfg mcpconfig.ServerConfig) (*client.Client, error) {
	switch cfg.Type {
	case mcpconfig.TransportStdio:
		env := make([]string, 0, len(cfg.Env))
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		sort.Strings(env)
		return client.NewClient(transport.NewStdio(cfg.Command, env, cfg.Args...)), nil
	case mcpconfig.TransportHTTP:
		t, err := transport.NewStreamableHTTP(cfg.URL, transport.WithHTTPHeaders(cfg.Headers))
		if err != nil {
			return nil, fmt.Errorf("create http transport: %w", err)
		}
		return client.NewClient(t), nil
	case mcpconfig.TransportSSE:
		t, err := transport.NewSSE(cfg.URL, transport.WithHeaders(cfg.Headers))
		if err != nil {
			return nil, fmt.Errorf("create sse transport: %w", err)
		}
		return client.NewClient(t), nil
	default:
		return nil, fmt.Errorf("%w %q", mcpconfig.ErrUnknownType, cfg.Type)
	}
}

// ListTools runs Start, Initialize and paginated ListTools against the
// server, then closes the client.
func (d *ClientDiscoverer) ListTools(ctx context.Context, server mcpconfig.ResolvedServer) ([]workflow.Tool, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	log := d.log.With().Str("server", server.ID).Str("transport", string(server.Config.Type)).Logger()
	started := time.Now()

	c, err := d.factory(server.Config)
	if err != nil {
		return nil, fmt.Errorf("server %s: %w", server.ID, err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Debug().Err(err).Msg("close client")
		}
	}()

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("server %s: start transport: %w", server.ID, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "wfstudio", Version: d.version}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("server %s: initialize: %w", server.ID, err)
	}

	var tools []workflow.Tool
	req := mcp.ListToolsRequest{}
	for {
		res, err := c.ListTools(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("server %s: list tools: %w", server.ID, err)
		}
		for _, t := range res.Tools {
			converted, err := ConvertTool(t)
			if err != nil {
				log.Warn().Err(err).Str("tool", t.Name).Msg("skipping tool with unreadable schema")
				continue
			}
			tools = append(tools, converted)
		}
		if res.NextCursor == "" {
			break
		}
		req.Params.Cursor = res.NextCursor
	}

	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	log.Debug().Int("tools", len(tools)).Dur("took", time.Since(started)).Msg("discovered tools")
	return tools, nil
}

// ConvertTool maps an MCP tool to the workflow representation.
func ConvertTool(t mcp.Tool) (workflow.Tool, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return workflow.Tool{}, fmt.Errorf("marshal tool: %w", err)
	}
	var wire struct {
		InputSchema map[string]interface{} `json:"inputSchema"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return workflow.Tool{}, fmt.Errorf("decode input schema: %w", err)
	}
	return workflow.Tool{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  ParametersFromSchema(wire.InputSchema),
		InputSchema: wire.InputSchema,
	}, nil
}

// ParametersFromSchema lists the top-level properties of a JSON input
// schema, required parameters first, then by name.
func ParametersFromSchema(schema map[string]interface{}) []workflow.ToolParameter {
	props, _ := schema["properties"].(map[string]interface{})
	required := make(map[string]bool)
	if list, ok := schema["required"].([]interface{}); ok {
		for _, r := range list {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	params := make([]workflow.ToolParameter, 0, len(props))
	for name, raw := range props {
		prop, _ := raw.(map[string]interface{})
		p := workflow.ToolParameter{Name: name, Required: required[name]}
		p.Type = schemaType(prop)
		if desc, ok := prop["description"].(string); ok {
			p.Description = desc
		}
		if enum, ok := prop["enum"].([]interface{}); ok {
			p.Enum = enum
		}
		if def, ok := prop["default"]; ok {
			p.Default = def
		}
		params = append(params, p)
	}

	sort.Slice(params, func(i, j int) bool {
		if params[i].Required != params[j].Required {
			return params[i].Required
		}
		return params[i].Name < params[j].Name
	})
	return params
}

// schemaType returns the declared type. For a type list the first non-null
// entry wins; a missing type is reported as string.
func schemaType(prop map[string]interface{}) string {
	switch t := prop["type"].(type) {
	case string:
		return t
	case []interface{}:
		for _, v := range t {
			if s, ok := v.(string); ok && s != "null" {
				return s
			}
		}
	}
	if _, ok := prop["enum"]; ok {
		return "string"
	}
	if _, ok := prop["properties"]; ok {
		return "object"
	}
	if _, ok := prop["items"]; ok {
		return "array"
	}
	return "string"
}

// FindTool returns the named tool.
func FindTool(tools []workflow.Tool, name string) (workflow.Tool, error) {
	for _, t := range tools {
		if t.Name == name {
			return t, nil
		}
	}
	return workflow.Tool{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
}
