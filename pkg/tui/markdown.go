package tui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

// renderMarkdown converts markdown to styled terminal output, falling back to
// the raw text when glamour cannot render it.
func renderMarkdown(md string, width int) string {
	if strings.TrimSpace(md) == "" {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// summaryMarkdown describes a finished node.
func summaryMarkdown(data workflow.MCPNodeData) string {
	var b strings.Builder
	b.WriteString("# MCP node ready\n\n")
	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Server | `%s` |\n", data.Server())
	fmt.Fprintf(&b, "| Mode | %s |\n", data.Mode())

	switch d := data.(type) {
	case workflow.ManualParameterConfig:
		fmt.Fprintf(&b, "| Tool | `%s` |\n", d.ToolName)
		fmt.Fprintf(&b, "| Status | %s |\n", d.ValidationStatus)
		args, _ := json.MarshalIndent(d.ParameterValues, "", "  ")
		b.WriteString("\n**Arguments**\n\n```json\n")
		b.Write(args)
		b.WriteString("\n```\n")
	case workflow.AIParameterConfig:
		fmt.Fprintf(&b, "| Tool | `%s` |\n", d.ToolName)
		b.WriteString("\n**Parameter description**\n\n> ")
		b.WriteString(d.AIParameterConfig.Description)
		b.WriteString("\n")
	case workflow.AIToolSelection:
		fmt.Fprintf(&b, "| Tools offered | %d |\n", len(d.AIToolSelectionConfig.AvailableTools))
		b.WriteString("\n**Task**\n\n> ")
		b.WriteString(d.AIToolSelectionConfig.TaskDescription)
		b.WriteString("\n")
	}
	return b.String()
}
