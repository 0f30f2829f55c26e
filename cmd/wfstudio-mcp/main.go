// Package main provides the wfstudio-mcp binary, an MCP server exposing
// workflow studio operations to AI agents over stdio.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/wfstudio/pkg/config"
	smcp "github.com/ormasoftchile/wfstudio/pkg/ecosystem/mcp"
	"github.com/ormasoftchile/wfstudio/pkg/logging"
	"github.com/ormasoftchile/wfstudio/pkg/mcpconfig"
)

var version = "dev"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "  ⚠ .env: %v\n", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	settings, err := config.Discover(cwd)
	if err == nil {
		err = settings.ApplyEnv(os.LookupEnv)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load settings: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the MCP stream
	logger := logging.New(os.Stderr, settings.LogLevel, settings.LogPretty)
	h := &smcp.Handlers{
		Resolver: mcpconfig.NewResolver(
			mcpconfig.WithLegacyPath(settings.LegacyConfigPath),
			mcpconfig.WithLogger(logging.Component(logger, "mcpconfig")),
		),
		Workspace:   settings.Workspace,
		CommandsDir: settings.CommandsPath(),
	}

	s := smcp.NewServer(version, h)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
