// Package workflow models the studio's workflow graph: typed nodes (prompt,
// sub-agent, conditional, MCP tool call), their connections, and the
// operations that persist, validate and export it as a Claude Code slash
// command.
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is written into every saved workflow.
const SchemaVersion = "1.0.0"

// NodeType identifies the kind of a node.
type NodeType string

const (
	NodeStart    NodeType = "start"
	NodeEnd      NodeType = "end"
	NodePrompt   NodeType = "prompt"
	NodeSubAgent NodeType = "subAgent"
	NodeIfElse   NodeType = "ifElse"
	NodeMCP      NodeType = "mcp"
)

// ErrNodeNotFound is returned when a node id is not in the graph.
var ErrNodeNotFound = errors.New("node not found")

// Workflow is a named graph of nodes and connections.
type Workflow struct {
	ID          string       `json:"id"`
	Name        string       `json:"name" jsonschema:"pattern=^[a-zA-Z0-9_-]+$"`
	Description string       `json:"description,omitempty"`
	Version     string       `json:"version"`
	Nodes       []Node       `json:"nodes"`
	Connections []Connection `json:"connections"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Position is a canvas coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one vertex of the graph. Data holds the type-specific payload.
type Node struct {
	ID       string   `json:"id"`
	Type     NodeType `json:"type" jsonschema:"enum=start,enum=end,enum=prompt,enum=subAgent,enum=ifElse,enum=mcp"`
	Name     string   `json:"name"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
}

// Connection is a directed edge. FromPort selects an ifElse branch.
type Connection struct {
	ID       string `json:"id"`
	From     string `json:"from"`
	To       string `json:"to"`
	FromPort string `json:"fromPort,omitempty"`
}

// NodeData is implemented by every node payload.
type NodeData interface {
	Kind() NodeType
}

// StartData is the payload of the single entry node.
type StartData struct{}

// EndData is the payload of a terminal node.
type EndData struct{}

// PromptData is a free-form instruction step.
type PromptData struct {
	Prompt    string            `json:"prompt"`
	Variables map[string]string `json:"variables,omitempty"`
}

// SubAgentData delegates work to a sub-agent.
type SubAgentData struct {
	Description string   `json:"description"`
	Prompt      string   `json:"prompt"`
	Tools       []string `json:"tools,omitempty"`
	Model       string   `json:"model,omitempty"`
}

// IfElseData branches the flow. Each branch is described in natural
// language; When is an optional boolean expression over workflow variables.
type IfElseData struct {
	Branches []Branch `json:"branches"`
}

// Branch is one outgoing path of an ifElse node.
type Branch struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Condition string `json:"condition"`
	When      string `json:"when,omitempty"`
}

func (StartData) Kind() NodeType    { return NodeStart }
func (EndData) Kind() NodeType      { return NodeEnd }
func (PromptData) Kind() NodeType   { return NodePrompt }
func (SubAgentData) Kind() NodeType { return NodeSubAgent }
func (IfElseData) Kind() NodeType   { return NodeIfElse }

// MarshalJSON writes empty node and connection lists as [] rather than null.
func (w Workflow) MarshalJSON() ([]byte, error) {
	type alias Workflow
	a := alias(w)
	if a.Nodes == nil {
		a.Nodes = []Node{}
	}
	if a.Connections == nil {
		a.Connections = []Connection{}
	}
	return json.Marshal(a)
}

// UnmarshalJSON decodes Data according to the node type.
func (n *Node) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID       string          `json:"id"`
		Type     NodeType        `json:"type"`
		Name     string          `json:"name"`
		Position Position        `json:"position"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	n.ID, n.Type, n.Name, n.Position = aux.ID, aux.Type, aux.Name, aux.Position

	raw := aux.Data
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}

	var err error
	switch aux.Type {
	case NodeStart:
		n.Data = StartData{}
	case NodeEnd:
		n.Data = EndData{}
	case NodePrompt:
		var d PromptData
		err = json.Unmarshal(raw, &d)
		n.Data = d
	case NodeSubAgent:
		var d SubAgentData
		err = json.Unmarshal(raw, &d)
		n.Data = d
	case NodeIfElse:
		var d IfElseData
		err = json.Unmarshal(raw, &d)
		n.Data = d
	case NodeMCP:
		n.Data, err = DecodeMCPNodeData(raw)
	default:
		return fmt.Errorf("node %q: unknown type %q", aux.ID, aux.Type)
	}
	if err != nil {
		return fmt.Errorf("node %q: %w", aux.ID, err)
	}
	return nil
}

// New creates an empty workflow containing a start and an end node.
func New(name, description string, now time.Time) *Workflow {
	w := &Workflow{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Version:     SchemaVersion,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	w.Nodes = []Node{
		{ID: "start", Type: NodeStart, Name: "Start", Position: Position{X: 100, Y: 200}, Data: StartData{}},
		{ID: "end", Type: NodeEnd, Name: "End", Position: Position{X: 1000, Y: 200}, Data: EndData{}},
	}
	return w
}

// Node returns the node with the given id.
func (w *Workflow) Node(id string) (*Node, error) {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
}

// AddNode appends a node. An empty ID gets a generated one; a zero position
// gets a collision-free one.
func (w *Workflow) AddNode(n Node) (*Node, error) {
	if n.Data == nil {
		return nil, fmt.Errorf("node %q has no data", n.Name)
	}
	if n.Type == "" {
		n.Type = n.Data.Kind()
	}
	if n.Type != n.Data.Kind() {
		return nil, fmt.Errorf("node %q: type %q does not match data %q", n.Name, n.Type, n.Data.Kind())
	}
	if n.ID == "" {
		n.ID = fmt.Sprintf("%s-%s", n.Type, uuid.NewString()[:8])
	}
	if _, err := w.Node(n.ID); err == nil {
		return nil, fmt.Errorf("duplicate node id %q", n.ID)
	}
	if n.Position == (Position{}) {
		n.Position = FindPosition(w.Nodes)
	}
	w.Nodes = append(w.Nodes, n)
	return &w.Nodes[len(w.Nodes)-1], nil
}

// AddMCPNode places a new MCP node built by the wizard.
func (w *Workflow) AddMCPNode(name string, data MCPNodeData) (*Node, error) {
	if name == "" {
		name = DefaultMCPNodeName(data)
	}
	return w.AddNode(Node{Type: NodeMCP, Name: name, Data: data})
}

// UpdateMCPNode replaces the data of an existing MCP node after re-running
// the variant's validation. The node keeps its id, name and position.
func (w *Workflow) UpdateMCPNode(id string, data MCPNodeData) error {
	n, err := w.Node(id)
	if err != nil {
		return err
	}
	if n.Type != NodeMCP {
		return fmt.Errorf("node %q is a %s node, not mcp", id, n.Type)
	}
	data, errs := CheckMCPNodeData(data)
	if len(errs) > 0 {
		return fmt.Errorf("node %q: %w", id, errs[0])
	}
	n.Data = data
	return nil
}

// RemoveNode deletes a node and every connection touching it.
func (w *Workflow) RemoveNode(id string) error {
	idx := -1
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	w.Nodes = append(w.Nodes[:idx], w.Nodes[idx+1:]...)

	kept := w.Connections[:0]
	for _, c := range w.Connections {
		if c.From != id && c.To != id {
			kept = append(kept, c)
		}
	}
	w.Connections = kept
	return nil
}

// Connect adds an edge between two existing nodes.
func (w *Workflow) Connect(from, to, port string) (*Connection, error) {
	if _, err := w.Node(from); err != nil {
		return nil, err
	}
	if _, err := w.Node(to); err != nil {
		return nil, err
	}
	c := Connection{
		ID:       fmt.Sprintf("conn-%s", uuid.NewString()[:8]),
		From:     from,
		To:       to,
		FromPort: port,
	}
	w.Connections = append(w.Connections, c)
	return &w.Connections[len(w.Connections)-1], nil
}

// Outgoing returns the connections leaving a node, in insertion order.
func (w *Workflow) Outgoing(id string) []Connection {
	var out []Connection
	for _, c := range w.Connections {
		if c.From == id {
			out = append(out, c)
		}
	}
	return out
}

// Start returns the start node, if any.
func (w *Workflow) Start() *Node {
	for i := range w.Nodes {
		if w.Nodes[i].Type == NodeStart {
			return &w.Nodes[i]
		}
	}
	return nil
}
