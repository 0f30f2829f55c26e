package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/wfstudio/pkg/host"
	"github.com/ormasoftchile/wfstudio/pkg/protocol"
	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

// Handlers implements the wfstudio MCP tools.
type Handlers struct {
	Resolver    host.Resolver
	Workspace   string
	CommandsDir string
}

// HandleListServers implements the wfstudio/list_servers MCP tool.
func (h *Handlers) HandleListServers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	workspace, _ := args["workspace"].(string)
	if workspace == "" {
		workspace = h.Workspace
	}

	servers := []protocol.ServerInfo{}
	for _, rs := range h.Resolver.ListServers(workspace) {
		servers = append(servers, host.ServerInfo(rs))
	}
	data, err := json.MarshalIndent(servers, "", "  ")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

// HandleValidate implements the wfstudio/validate MCP tool.
func (h *Handlers) HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}

	w, err := workflow.LoadFile(path)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if errs := workflow.Validate(w); workflow.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d nodes, %d connections)", w.Name, len(w.Nodes), len(w.Connections))), nil
}

// HandleExport implements the wfstudio/export MCP tool.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	path, _ := args["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	preview, _ := args["preview"].(bool)
	overwrite, _ := args["overwrite"].(bool)

	w, err := workflow.LoadFile(path)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	if errs := workflow.Validate(w); workflow.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}

	if preview {
		data, err := workflow.RenderSlashCommand(w)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return textResult(string(data)), nil
	}

	out, err := workflow.Export(w, h.CommandsDir, overwrite)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(fmt.Sprintf("✓ exported %s to %s", w.Name, out)), nil
}

// HandleSchema implements the wfstudio/schema MCP tool.
func (h *Handlers) HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	schemaType, _ := args["type"].(string)

	var data []byte
	var err error

	switch schemaType {
	case "workflow":
		data, err = workflow.GenerateJSONSchema()
	case "mcp-node":
		data, err = workflow.GenerateMCPNodeJSONSchema()
	default:
		return errorResult(fmt.Sprintf("unknown schema type %q, use 'workflow' or 'mcp-node'", schemaType)), nil
	}

	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

func formatErrors(errs []*workflow.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity != workflow.SeverityWarning {
			msgs = append(msgs, fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message))
		}
	}
	return strings.Join(msgs, "; ")
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
