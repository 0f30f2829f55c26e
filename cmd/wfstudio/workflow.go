package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/wfstudio/pkg/client"
	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate <workflow.json>",
	Short: "Validate a workflow file against the schema and domain rules",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	w, err := workflow.LoadFile(args[0])
	if err != nil {
		return err
	}
	errs := workflow.Validate(w)
	if reportProblems(os.Stderr, errs) {
		return fmt.Errorf("validation failed")
	}
	fmt.Printf("✓ %s is valid (%d nodes, %d connections)\n", w.Name, len(w.Nodes), len(w.Connections))
	return nil
}

// reportProblems prints warnings and errors and reports whether any error
// was found.
func reportProblems(out io.Writer, errs []*workflow.ValidationError) bool {
	var failures, warnings []*workflow.ValidationError
	for _, e := range errs {
		if e.Severity == workflow.SeverityWarning {
			warnings = append(warnings, e)
		} else {
			failures = append(failures, e)
		}
	}
	for _, w := range warnings {
		fmt.Fprintf(out, "  ⚠ [%s] %s\n", w.Phase, w.Message)
		if w.Path != "" {
			fmt.Fprintf(out, "    at: %s\n", w.Path)
		}
	}
	if len(failures) == 0 {
		return false
	}
	fmt.Fprintf(out, "Validation failed: %d error(s)\n\n", len(failures))
	for i, e := range failures {
		fmt.Fprintf(out, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
		if e.Path != "" {
			fmt.Fprintf(out, "     at: %s\n", e.Path)
		}
	}
	return true
}

// --- export ---

var (
	exportPreview   bool
	exportOverwrite bool
	exportRaw       bool
)

var exportCmd = &cobra.Command{
	Use:   "export <workflow.json>",
	Short: "Export a workflow as a Claude Code slash command",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	w, err := workflow.LoadFile(args[0])
	if err != nil {
		return err
	}
	if reportProblems(os.Stderr, workflow.Validate(w)) {
		return fmt.Errorf("validation failed")
	}
	return withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
		res, err := c.ExportWorkflow(ctx, w, exportOverwrite, exportPreview)
		if err != nil {
			return err
		}
		if !exportPreview {
			fmt.Printf("✓ exported %s to %s\n", w.Name, res.Path)
			return nil
		}
		if exportRaw {
			fmt.Print(res.Content)
			return nil
		}
		rendered, err := glamour.Render(res.Content, "auto")
		if err != nil {
			fmt.Print(res.Content)
			return nil
		}
		fmt.Print(rendered)
		return nil
	})
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:       "schema [workflow|mcp-node]",
	Short:     "Export JSON Schema to stdout",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"workflow", "mcp-node"},
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := "workflow"
		if len(args) == 1 {
			kind = args[0]
		}
		var data []byte
		var err error
		switch kind {
		case "workflow":
			data, err = workflow.GenerateJSONSchema()
		case "mcp-node":
			data, err = workflow.GenerateMCPNodeJSONSchema()
		default:
			return fmt.Errorf("unknown schema %q, use 'workflow' or 'mcp-node'", kind)
		}
		if err != nil {
			return fmt.Errorf("generate schema: %w", err)
		}
		fmt.Println(string(data))
		return nil
	},
}

// --- trace ---

var traceVars []string

var traceCmd = &cobra.Command{
	Use:   "trace <workflow.json>",
	Short: "Print the node path a run would take for the given variables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := workflow.LoadFile(args[0])
		if err != nil {
			return err
		}
		vars, err := parseVars(traceVars)
		if err != nil {
			return err
		}
		path, err := w.Trace(vars)
		for i, id := range path {
			name := id
			if n, nerr := w.Node(id); nerr == nil {
				name = fmt.Sprintf("%s (%s)", n.Name, n.Type)
			}
			fmt.Printf("  %d. %s\n", i+1, name)
		}
		return err
	},
}

// parseVars turns key=value pairs into trace variables. Values that parse as
// JSON keep their type; anything else is a string.
func parseVars(pairs []string) (map[string]interface{}, error) {
	vars := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --var %q, want key=value", pair)
		}
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		vars[strings.TrimSpace(key)] = v
	}
	return vars, nil
}

func init() {
	exportCmd.Flags().BoolVar(&exportPreview, "preview", false, "Print the command instead of writing it")
	exportCmd.Flags().BoolVar(&exportOverwrite, "overwrite", false, "Replace an existing command file")
	exportCmd.Flags().BoolVar(&exportRaw, "raw", false, "With --preview, print markdown without terminal styling")

	traceCmd.Flags().StringArrayVar(&traceVars, "var", nil, "Set a variable (key=value), repeatable")
}
