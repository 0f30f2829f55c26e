package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/wfstudio/pkg/client"
	"github.com/ormasoftchile/wfstudio/pkg/host"
	"github.com/ormasoftchile/wfstudio/pkg/protocol"
	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

var outputJSON bool

// --- servers ---

var serversCmd = &cobra.Command{
	Use:   "servers",
	Short: "Inspect configured MCP servers",
}

var serversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List MCP servers visible from the workspace (secrets masked)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			servers, err := c.ListServers(ctx)
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(os.Stdout, servers)
			}
			printServers(os.Stdout, servers)
			return nil
		})
	},
}

var serversGetCmd = &cobra.Command{
	Use:   "get <server-id>",
	Short: "Show one MCP server as resolved by scope precedence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, ok := newResolver().Resolve(args[0], settings.Workspace)
		if !ok {
			return fmt.Errorf("MCP server %q is not configured", args[0])
		}
		info := host.ServerInfo(*rs)
		if outputJSON {
			return printJSON(os.Stdout, info)
		}
		printServerDetail(os.Stdout, info)
		return nil
	},
}

func printServers(w io.Writer, servers []protocol.ServerInfo) {
	if len(servers) == 0 {
		fmt.Fprintln(w, "No MCP servers configured.")
		return
	}
	for _, s := range servers {
		target := s.Command
		if target == "" {
			target = s.URL
		}
		fmt.Fprintf(w, "  %-28s %-8s %-6s %s\n", s.ID, s.Scope, s.Type, target)
	}
}

func printServerDetail(w io.Writer, s protocol.ServerInfo) {
	fmt.Fprintf(w, "%s\n", s.ID)
	fmt.Fprintf(w, "  scope:   %s\n", s.Scope)
	fmt.Fprintf(w, "  type:    %s\n", s.Type)
	fmt.Fprintf(w, "  source:  %s\n", s.Source)
	if s.Command != "" {
		fmt.Fprintf(w, "  command: %s %s\n", s.Command, strings.Join(s.Args, " "))
	}
	if s.URL != "" {
		fmt.Fprintf(w, "  url:     %s\n", s.URL)
	}
	if len(s.Env) > 0 {
		keys := make([]string, 0, len(s.Env))
		for k := range s.Env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(w, "  env:\n")
		for _, k := range keys {
			fmt.Fprintf(w, "    %s=%s\n", k, s.Env[k])
		}
	}
}

// --- tools ---

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Discover the tools of an MCP server",
}

var toolsListCmd = &cobra.Command{
	Use:   "list <server-id>",
	Short: "List the tools a server offers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			tools, err := c.Tools(ctx, args[0])
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(os.Stdout, tools)
			}
			printTools(os.Stdout, tools)
			return nil
		})
	},
}

var toolsSchemaCmd = &cobra.Command{
	Use:   "schema <server-id> <tool>",
	Short: "Show a tool's parameters",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
			tool, err := c.ToolSchema(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(os.Stdout, tool)
			}
			printToolDetail(os.Stdout, *tool)
			return nil
		})
	},
}

func printTools(w io.Writer, tools []workflow.Tool) {
	if len(tools) == 0 {
		fmt.Fprintln(w, "No tools.")
		return
	}
	for _, t := range tools {
		fmt.Fprintf(w, "  %-32s %s\n", t.Name, firstLine(t.Description))
	}
}

func printToolDetail(w io.Writer, t workflow.Tool) {
	fmt.Fprintf(w, "%s\n", t.Name)
	if t.Description != "" {
		fmt.Fprintf(w, "  %s\n", firstLine(t.Description))
	}
	if len(t.Parameters) == 0 {
		fmt.Fprintln(w, "  (no parameters)")
		return
	}
	fmt.Fprintln(w, "  parameters:")
	for _, p := range t.Parameters {
		req := ""
		if p.Required {
			req = " (required)"
		}
		fmt.Fprintf(w, "    %s: %s%s", p.Name, p.Type, req)
		if len(p.Enum) > 0 {
			fmt.Fprintf(w, " one of %v", p.Enum)
		}
		if p.Description != "" {
			fmt.Fprintf(w, "  %s", firstLine(p.Description))
		}
		fmt.Fprintln(w)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	serversCmd.AddCommand(serversListCmd)
	serversCmd.AddCommand(serversGetCmd)
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsSchemaCmd)

	for _, c := range []*cobra.Command{serversListCmd, serversGetCmd, toolsListCmd, toolsSchemaCmd} {
		c.Flags().BoolVar(&outputJSON, "json", false, "Output as JSON")
	}
}
