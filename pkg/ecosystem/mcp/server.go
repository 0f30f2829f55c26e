// Package mcp exposes workflow studio operations as an MCP server so agents
// can list configured servers and validate or export saved workflows.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates an MCP server with the wfstudio tools registered.
func NewServer(version string, h *Handlers) *server.MCPServer {
	s := server.NewMCPServer(
		"wfstudio",
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("wfstudio/list_servers",
			mcp.WithDescription("List the MCP servers configured for a workspace, with secrets masked"),
			mcp.WithString("workspace", mcp.Description("Workspace directory (defaults to the server's workspace)")),
		),
		h.HandleListServers,
	)

	s.AddTool(
		mcp.NewTool("wfstudio/validate",
			mcp.WithDescription("Validate a saved workflow JSON file"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the workflow JSON file")),
		),
		h.HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("wfstudio/export",
			mcp.WithDescription("Export a saved workflow as a Claude Code slash command"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the workflow JSON file")),
			mcp.WithBoolean("preview", mcp.Description("Return the command markdown without writing it")),
			mcp.WithBoolean("overwrite", mcp.Description("Replace an existing command file")),
		),
		h.HandleExport,
	)

	s.AddTool(
		mcp.NewTool("wfstudio/schema",
			mcp.WithDescription("Export a JSON Schema ('workflow' or 'mcp-node')"),
			mcp.WithString("type", mcp.Required(), mcp.Description("Schema type: 'workflow' or 'mcp-node'")),
		),
		h.HandleSchema,
	)

	return s
}
