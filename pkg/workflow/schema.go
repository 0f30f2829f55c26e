package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from the
// Go Workflow struct using invopop/jsonschema.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Workflow{})
	s.ID = "https://github.com/ormasoftchile/wfstudio/schemas/workflow-v1.json"
	s.Title = "Workflow Studio workflow v1"
	s.Description = "Schema for saved workflow documents (.vscode/workflows/*.json)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

// GenerateMCPNodeJSONSchema produces the schema of the three MCP node variants
// as a oneOf keyed by mode.
func GenerateMCPNodeJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true
	r.Anonymous = true

	variants := []struct {
		mode MCPMode
		v    interface{}
	}{
		{ModeManualParameterConfig, &ManualParameterConfig{}},
		{ModeAIParameterConfig, &AIParameterConfig{}},
		{ModeAIToolSelection, &AIToolSelection{}},
	}

	root := &jsonschema.Schema{
		Version:     jsonschema.Version,
		ID:          "https://github.com/ormasoftchile/wfstudio/schemas/mcp-node-v1.json",
		Title:       "Workflow Studio MCP node data",
		Description: "Payload of an mcp node, discriminated by mode",
	}
	for _, variant := range variants {
		s := r.Reflect(variant.v)
		s.Version = ""
		s.Properties.Set("mode", &jsonschema.Schema{Const: string(variant.mode)})
		s.Required = append(s.Required, "mode")
		root.OneOf = append(root.OneOf, s)
	}

	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal mcp node schema: %w", err)
	}
	return data, nil
}
