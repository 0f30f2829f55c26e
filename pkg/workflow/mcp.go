package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MCPMode is the discriminator of the MCP node variants.
type MCPMode string

const (
	ModeManualParameterConfig MCPMode = "manualParameterConfig"
	ModeAIParameterConfig     MCPMode = "aiParameterConfig"
	ModeAIToolSelection       MCPMode = "aiToolSelection"
)

// ValidationStatus records the outcome of checking manual parameter values.
type ValidationStatus string

const (
	StatusValid      ValidationStatus = "valid"
	StatusInvalid    ValidationStatus = "invalid"
	StatusIncomplete ValidationStatus = "incomplete"
)

// ToolParameter describes one argument of an MCP tool, derived from its
// JSON input schema.
type ToolParameter struct {
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Description string        `json:"description,omitempty"`
	Required    bool          `json:"required"`
	Enum        []interface{} `json:"enum,omitempty"`
	Default     interface{}   `json:"default,omitempty"`
}

// Tool is an MCP tool as offered by a server.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  []ToolParameter        `json:"parameters"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

// MCPNodeData is the payload of an MCP node: one of ManualParameterConfig,
// AIParameterConfig or AIToolSelection.
type MCPNodeData interface {
	NodeData
	Mode() MCPMode
	Server() string
	isMCPNodeData()
}

// ManualParameterConfig calls a fixed tool with user-entered values.
type ManualParameterConfig struct {
	ServerID         string                 `json:"serverId"`
	ToolName         string                 `json:"toolName"`
	ToolDescription  string                 `json:"toolDescription"`
	Parameters       []ToolParameter        `json:"parameters"`
	ParameterValues  map[string]interface{} `json:"parameterValues"`
	ValidationStatus ValidationStatus       `json:"validationStatus"`
}

// AIParameterConfig calls a fixed tool whose arguments the agent derives from
// a natural language description.
type AIParameterConfig struct {
	ServerID          string          `json:"serverId"`
	ToolName          string          `json:"toolName"`
	ToolDescription   string          `json:"toolDescription"`
	Parameters        []ToolParameter `json:"parameters"`
	AIParameterConfig AIParameterSpec `json:"aiParameterConfig"`
}

// AIParameterSpec is the natural language parameter description.
type AIParameterSpec struct {
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// AIToolSelection lets the agent pick the tool and its arguments from a task
// description.
type AIToolSelection struct {
	ServerID              string              `json:"serverId"`
	AIToolSelectionConfig AIToolSelectionSpec `json:"aiToolSelectionConfig"`
}

// AIToolSelectionSpec is the task description plus the tools offered at
// creation time.
type AIToolSelectionSpec struct {
	TaskDescription string    `json:"taskDescription"`
	AvailableTools  []Tool    `json:"availableTools"`
	Timestamp       time.Time `json:"timestamp"`
}

func (ManualParameterConfig) Kind() NodeType { return NodeMCP }
func (AIParameterConfig) Kind() NodeType     { return NodeMCP }
func (AIToolSelection) Kind() NodeType       { return NodeMCP }

func (ManualParameterConfig) Mode() MCPMode { return ModeManualParameterConfig }
func (AIParameterConfig) Mode() MCPMode     { return ModeAIParameterConfig }
func (AIToolSelection) Mode() MCPMode       { return ModeAIToolSelection }

func (d ManualParameterConfig) Server() string { return d.ServerID }
func (d AIParameterConfig) Server() string     { return d.ServerID }
func (d AIToolSelection) Server() string       { return d.ServerID }

func (ManualParameterConfig) isMCPNodeData() {}
func (AIParameterConfig) isMCPNodeData()     {}
func (AIToolSelection) isMCPNodeData()       {}

// MarshalJSON writes the variant with its mode discriminator.
func (d ManualParameterConfig) MarshalJSON() ([]byte, error) {
	type alias ManualParameterConfig
	return json.Marshal(struct {
		Mode MCPMode `json:"mode"`
		alias
	}{d.Mode(), alias(d)})
}

// MarshalJSON writes the variant with its mode discriminator.
func (d AIParameterConfig) MarshalJSON() ([]byte, error) {
	type alias AIParameterConfig
	return json.Marshal(struct {
		Mode MCPMode `json:"mode"`
		alias
	}{d.Mode(), alias(d)})
}

// MarshalJSON writes the variant with its mode discriminator.
func (d AIToolSelection) MarshalJSON() ([]byte, error) {
	type alias AIToolSelection
	return json.Marshal(struct {
		Mode MCPMode `json:"mode"`
		alias
	}{d.Mode(), alias(d)})
}

// DecodeMCPNodeData decodes an MCP node payload, dispatching on "mode".
func DecodeMCPNodeData(data []byte) (MCPNodeData, error) {
	var peek struct {
		Mode MCPMode `json:"mode"`
	}
	if err := json.Unmarshal(data, &peek); err != nil {
		return nil, fmt.Errorf("decode mcp node: %w", err)
	}

	switch peek.Mode {
	case ModeManualParameterConfig:
		var d ManualParameterConfig
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", peek.Mode, err)
		}
		return d, nil
	case ModeAIParameterConfig:
		var d AIParameterConfig
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", peek.Mode, err)
		}
		return d, nil
	case ModeAIToolSelection:
		var d AIToolSelection
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", peek.Mode, err)
		}
		return d, nil
	case "":
		return nil, fmt.Errorf("decode mcp node: missing mode")
	default:
		return nil, fmt.Errorf("decode mcp node: unknown mode %q", peek.Mode)
	}
}

// CheckMCPNodeData runs the variant's required-field checks. For manual
// parameter nodes it also validates the values and returns the data with an
// updated ValidationStatus.
func CheckMCPNodeData(data MCPNodeData) (MCPNodeData, []*ValidationError) {
	var errs []*ValidationError
	require := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, &ValidationError{
				Phase:    PhaseDomain,
				Path:     "data." + field,
				Message:  field + " is required",
				Severity: SeverityError,
			})
		}
	}

	switch d := data.(type) {
	case ManualParameterConfig:
		require("serverId", d.ServerID)
		require("toolName", d.ToolName)
		if d.ParameterValues == nil {
			d.ParameterValues = map[string]interface{}{}
		}
		status, valueErrs := ValidateParameterValues(d.Parameters, d.ParameterValues)
		d.ValidationStatus = status
		for _, e := range valueErrs {
			e.Severity = SeverityWarning
		}
		errs = append(errs, valueErrs...)
		return d, onlyErrors(errs)
	case AIParameterConfig:
		require("serverId", d.ServerID)
		require("toolName", d.ToolName)
		require("aiParameterConfig.description", d.AIParameterConfig.Description)
		return d, errs
	case AIToolSelection:
		require("serverId", d.ServerID)
		require("aiToolSelectionConfig.taskDescription", d.AIToolSelectionConfig.TaskDescription)
		return d, errs
	case nil:
		return nil, []*ValidationError{{Phase: PhaseDomain, Path: "data", Message: "mcp node has no data", Severity: SeverityError}}
	default:
		return data, []*ValidationError{{Phase: PhaseDomain, Path: "data", Message: fmt.Sprintf("unsupported mcp data %T", data), Severity: SeverityError}}
	}
}

// DefaultMCPNodeName is the canvas label for a new MCP node.
func DefaultMCPNodeName(data MCPNodeData) string {
	switch d := data.(type) {
	case ManualParameterConfig:
		return d.ServerID + "/" + d.ToolName
	case AIParameterConfig:
		return d.ServerID + "/" + d.ToolName
	case AIToolSelection:
		return d.ServerID + " (auto)"
	}
	return "mcp"
}

func onlyErrors(errs []*ValidationError) []*ValidationError {
	var out []*ValidationError
	for _, e := range errs {
		if e.Severity == SeverityError {
			out = append(out, e)
		}
	}
	return out
}
