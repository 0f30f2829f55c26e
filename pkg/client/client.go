// Package client is the typed UI-side API over a channel.Channel.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ormasoftchile/wfstudio/pkg/channel"
	"github.com/ormasoftchile/wfstudio/pkg/protocol"
	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

// ErrCancelled is returned when the host answers CANCELLED.
var ErrCancelled = errors.New("request cancelled")

// Client issues studio requests to the host.
type Client struct {
	ch            *channel.Channel
	workspace     string
	schemaTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithWorkspace sets the workspace sent with server and tool requests.
func WithWorkspace(dir string) Option {
	return func(c *Client) { c.workspace = dir }
}

// WithSchemaTimeout sets the timeout for GET_MCP_TOOL_SCHEMA, which may start
// a server process.
func WithSchemaTimeout(d time.Duration) Option {
	return func(c *Client) { c.schemaTimeout = d }
}

// New returns a client over ch.
func New(ch *channel.Channel, opts ...Option) *Client {
	c := &Client{ch: ch}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call sends a request and decodes the typed response into out.
func (c *Client) call(ctx context.Context, t protocol.MessageType, payload, out interface{}, opts ...channel.CallOption) error {
	resp, err := c.ch.Send(ctx, t, payload, opts...)
	if err != nil {
		return err
	}
	if resp.Cancelled() {
		return fmt.Errorf("%s: %w", t, ErrCancelled)
	}
	return resp.Decode(out)
}

// ListServers returns every configured MCP server.
func (c *Client) ListServers(ctx context.Context) ([]protocol.ServerInfo, error) {
	var res protocol.ServersResult
	if err := c.call(ctx, protocol.ListMCPServers, protocol.ListServersRequest{Workspace: c.workspace}, &res); err != nil {
		return nil, err
	}
	return res.Servers, nil
}

// Tools returns the tools of one server.
func (c *Client) Tools(ctx context.Context, serverID string) ([]workflow.Tool, error) {
	var res protocol.ToolsResult
	req := protocol.ToolsRequest{ServerID: serverID, Workspace: c.workspace}
	if err := c.call(ctx, protocol.GetMCPTools, req, &res); err != nil {
		return nil, err
	}
	return res.Tools, nil
}

// ToolSchema returns one tool with its parameters.
func (c *Client) ToolSchema(ctx context.Context, serverID, toolName string) (*workflow.Tool, error) {
	var opts []channel.CallOption
	if c.schemaTimeout > 0 {
		opts = append(opts, channel.WithTimeout(c.schemaTimeout))
	}
	var res protocol.ToolSchemaResult
	req := protocol.ToolSchemaRequest{ServerID: serverID, ToolName: toolName, Workspace: c.workspace}
	if err := c.call(ctx, protocol.GetMCPToolSchema, req, &res, opts...); err != nil {
		return nil, err
	}
	if res.Tool == nil {
		return nil, fmt.Errorf("tool %s/%s: empty schema response", serverID, toolName)
	}
	return res.Tool, nil
}

// RefreshCache drops cached tools of one server, or all when serverID is empty.
func (c *Client) RefreshCache(ctx context.Context, serverID string) (int, error) {
	var res protocol.CacheRefreshed
	if err := c.call(ctx, protocol.RefreshMCPCache, protocol.RefreshCacheRequest{ServerID: serverID}, &res); err != nil {
		return 0, err
	}
	return res.Cleared, nil
}

// SaveWorkflow validates and stores a workflow on the host.
func (c *Client) SaveWorkflow(ctx context.Context, w *workflow.Workflow, overwrite bool) (*protocol.SaveResult, error) {
	var res protocol.SaveResult
	if err := c.call(ctx, protocol.SaveWorkflow, protocol.SaveRequest{Workflow: w, Overwrite: overwrite}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// LoadWorkflow reads a stored workflow.
func (c *Client) LoadWorkflow(ctx context.Context, name string) (*workflow.Workflow, error) {
	var res protocol.LoadResult
	if err := c.call(ctx, protocol.LoadWorkflow, protocol.LoadRequest{Name: name}, &res); err != nil {
		return nil, err
	}
	if res.Workflow == nil {
		return nil, fmt.Errorf("load %s: empty workflow", name)
	}
	return res.Workflow, nil
}

// ExportWorkflow renders the workflow as a slash command. With preview set
// nothing is written and only Content is filled in.
func (c *Client) ExportWorkflow(ctx context.Context, w *workflow.Workflow, overwrite, preview bool) (*protocol.ExportResult, error) {
	var res protocol.ExportResult
	req := protocol.ExportRequest{Workflow: w, Overwrite: overwrite, Preview: preview}
	if err := c.call(ctx, protocol.ExportWorkflow, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
