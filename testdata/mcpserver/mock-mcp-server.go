// mock-mcp-server is a test helper binary: a small MCP server over stdio
// offering a fixed set of tools for discovery integration tests.
//
//go:build ignore

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func echo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msg, _ := req.GetArguments()["message"].(string)
	return mcp.NewToolResultText(msg), nil
}

func main() {
	s := server.NewMCPServer("mock-mcp-server", "1.0.0", server.WithToolCapabilities(false))
	s.AddTool(
		mcp.NewTool("echo",
			mcp.WithDescription("Echo back the input"),
			mcp.WithString("message", mcp.Required()),
		),
		echo,
	)
	s.AddTool(
		mcp.NewTool("query",
			mcp.WithDescription("Return test data"),
			mcp.WithNumber("count"),
			mcp.WithBoolean("verbose"),
		),
		echo,
	)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "mock-mcp-server: %v\n", err)
		os.Exit(1)
	}
}
