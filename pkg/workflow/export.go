package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// commandFrontmatter is the YAML header of a Claude Code slash command.
type commandFrontmatter struct {
	Description  string `yaml:"description,omitempty"`
	AllowedTools string `yaml:"allowed-tools,omitempty"`
	Model        string `yaml:"model,omitempty"`
}

// Export renders the workflow as a slash command and writes it to
// <dir>/<name>.md. The workflow must validate without errors.
func Export(w *Workflow, dir string, overwrite bool) (string, error) {
	if errs := ValidateDomain(w); HasErrors(errs) {
		return "", fmt.Errorf("workflow %q is invalid: %w", w.Name, firstError(errs))
	}

	data, err := RenderSlashCommand(w)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, w.Name+".md")
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("%w: %s", ErrExists, path)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create commands dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write slash command: %w", err)
	}
	return path, nil
}

// RenderSlashCommand produces the markdown body of the slash command:
// frontmatter, a mermaid diagram and one instruction section per node.
func RenderSlashCommand(w *Workflow) ([]byte, error) {
	order := executionOrder(w)

	fm := commandFrontmatter{
		Description:  w.Description,
		AllowedTools: strings.Join(allowedTools(w), ", "),
	}
	if fm.Description == "" {
		fm.Description = w.Name
	}
	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("marshal frontmatter: %w", err)
	}

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n\n")

	b.WriteString("```mermaid\n")
	b.WriteString(RenderMermaid(w, order))
	b.WriteString("```\n\n")

	b.WriteString("## Workflow Execution Guide\n\n")
	b.WriteString("Follow the flowchart above. Execute each node in order, taking the branch whose condition holds at each decision point.\n")

	for _, n := range order {
		section, err := nodeInstructions(w, n)
		if err != nil {
			return nil, err
		}
		if section == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(section)
	}
	return b.Bytes(), nil
}

// RenderMermaid draws the workflow as a mermaid flowchart.
func RenderMermaid(w *Workflow, order []*Node) string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	for _, n := range order {
		id := mermaidID(n.ID)
		label := mermaidLabel(n.Name)
		switch n.Type {
		case NodeStart, NodeEnd:
			fmt.Fprintf(&b, "    %s([%s])\n", id, label)
		case NodeIfElse:
			fmt.Fprintf(&b, "    %s{%s}\n", id, label)
		default:
			fmt.Fprintf(&b, "    %s[%s]\n", id, label)
		}
	}
	for _, c := range w.Connections {
		from, to := mermaidID(c.From), mermaidID(c.To)
		if label := branchLabel(w, c); label != "" {
			fmt.Fprintf(&b, "    %s -->|%s| %s\n", from, mermaidLabel(label), to)
		} else {
			fmt.Fprintf(&b, "    %s --> %s\n", from, to)
		}
	}
	return b.String()
}

func nodeInstructions(w *Workflow, n *Node) (string, error) {
	var b strings.Builder
	switch d := n.Data.(type) {
	case PromptData:
		fmt.Fprintf(&b, "### %s\n\n%s\n", n.Name, strings.TrimSpace(d.Prompt))
		if len(d.Variables) > 0 {
			b.WriteString("\nVariables:\n")
			for _, k := range sortedKeys(d.Variables) {
				fmt.Fprintf(&b, "- `%s`: %s\n", k, d.Variables[k])
			}
		}
	case SubAgentData:
		fmt.Fprintf(&b, "### %s\n\nUse the Task tool to launch a sub-agent", n.Name)
		if d.Model != "" {
			fmt.Fprintf(&b, " (model: %s)", d.Model)
		}
		fmt.Fprintf(&b, ".\n\n%s\n\n%s\n", d.Description, strings.TrimSpace(d.Prompt))
		if len(d.Tools) > 0 {
			fmt.Fprintf(&b, "\nAllowed tools: %s\n", strings.Join(d.Tools, ", "))
		}
	case IfElseData:
		fmt.Fprintf(&b, "### %s\n\nEvaluate the conditions and follow the first branch that applies:\n\n", n.Name)
		for _, br := range d.Branches {
			target := "(unconnected)"
			for _, c := range w.Outgoing(n.ID) {
				if c.FromPort == br.ID {
					if t, err := w.Node(c.To); err == nil {
						target = t.Name
					}
				}
			}
			fmt.Fprintf(&b, "- **%s**: %s → %s\n", br.Label, br.Condition, target)
		}
	case ManualParameterConfig:
		args, err := json.MarshalIndent(d.ParameterValues, "", "  ")
		if err != nil {
			return "", fmt.Errorf("node %q: marshal parameter values: %w", n.ID, err)
		}
		fmt.Fprintf(&b, "### %s\n\nCall the MCP tool `%s` on server `%s` with exactly these arguments:\n\n```json\n%s\n```\n",
			n.Name, d.ToolName, d.ServerID, args)
		if d.ToolDescription != "" {
			fmt.Fprintf(&b, "\nTool description: %s\n", d.ToolDescription)
		}
	case AIParameterConfig:
		fmt.Fprintf(&b, "### %s\n\nCall the MCP tool `%s` on server `%s`. Determine the arguments from this description:\n\n> %s\n",
			n.Name, d.ToolName, d.ServerID, d.AIParameterConfig.Description)
		if len(d.Parameters) > 0 {
			b.WriteString("\nParameters:\n")
			writeParameters(&b, d.Parameters)
		}
	case AIToolSelection:
		fmt.Fprintf(&b, "### %s\n\nUsing MCP server `%s`, choose the most appropriate tool and arguments for this task:\n\n> %s\n",
			n.Name, d.ServerID, d.AIToolSelectionConfig.TaskDescription)
		if len(d.AIToolSelectionConfig.AvailableTools) > 0 {
			b.WriteString("\nAvailable tools:\n")
			for _, t := range d.AIToolSelectionConfig.AvailableTools {
				fmt.Fprintf(&b, "- `%s`: %s\n", t.Name, t.Description)
			}
		}
	}
	return b.String(), nil
}

func writeParameters(b *strings.Builder, params []ToolParameter) {
	for _, p := range params {
		req := "optional"
		if p.Required {
			req = "required"
		}
		fmt.Fprintf(b, "- `%s` (%s, %s)", p.Name, p.Type, req)
		if p.Description != "" {
			fmt.Fprintf(b, ": %s", p.Description)
		}
		b.WriteString("\n")
	}
}

// allowedTools lists the tool permissions the exported command needs.
func allowedTools(w *Workflow) []string {
	seen := make(map[string]bool)
	for _, n := range w.Nodes {
		switch d := n.Data.(type) {
		case SubAgentData:
			seen["Task"] = true
		case ManualParameterConfig:
			seen[mcpToolPermission(d.ServerID, d.ToolName)] = true
		case AIParameterConfig:
			seen[mcpToolPermission(d.ServerID, d.ToolName)] = true
		case AIToolSelection:
			seen["mcp__"+d.ServerID] = true
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func mcpToolPermission(server, tool string) string {
	return fmt.Sprintf("mcp__%s__%s", server, tool)
}

// executionOrder is a breadth-first walk from the start node; unreachable
// nodes follow in declaration order.
func executionOrder(w *Workflow) []*Node {
	var order []*Node
	visited := make(map[string]bool)

	var queue []string
	if s := w.Start(); s != nil {
		queue = append(queue, s.ID)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		n, err := w.Node(id)
		if err != nil {
			continue
		}
		visited[id] = true
		order = append(order, n)
		for _, c := range w.Outgoing(id) {
			queue = append(queue, c.To)
		}
	}
	for i := range w.Nodes {
		if !visited[w.Nodes[i].ID] {
			order = append(order, &w.Nodes[i])
		}
	}
	return order
}

func branchLabel(w *Workflow, c Connection) string {
	if c.FromPort == "" {
		return ""
	}
	n, err := w.Node(c.From)
	if err != nil {
		return c.FromPort
	}
	if d, ok := n.Data.(IfElseData); ok {
		for _, br := range d.Branches {
			if br.ID == c.FromPort {
				return br.Label
			}
		}
	}
	return c.FromPort
}

func mermaidID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func mermaidLabel(s string) string {
	s = strings.NewReplacer(`"`, "'", "\n", " ", "|", "/").Replace(s)
	return `"` + s + `"`
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstError(errs []*ValidationError) error {
	for _, e := range errs {
		if e.Severity != SeverityWarning {
			return e
		}
	}
	return nil
}
