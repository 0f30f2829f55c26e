package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// Validation phases and severities.
const (
	PhaseSemantic = "semantic"
	PhaseDomain   = "domain"

	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidationError represents a single validation problem with location context.
type ValidationError struct {
	Phase    string `json:"phase"`
	Path     string `json:"path"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// HasErrors reports whether any entry has error severity.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity != SeverityWarning {
			return true
		}
	}
	return false
}

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate runs semantic (JSON Schema) and domain validation.
func Validate(w *Workflow) []*ValidationError {
	errs := validateSemantic(w)
	errs = append(errs, ValidateDomain(w)...)
	return errs
}

// validateSemantic validates the workflow against the generated JSON Schema.
func validateSemantic(w *Workflow) []*ValidationError {
	fail := func(format string, args ...interface{}) []*ValidationError {
		return []*ValidationError{{
			Phase:    PhaseSemantic,
			Message:  fmt.Sprintf(format, args...),
			Severity: SeverityError,
		}}
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return fail("generate schema: %v", err)
	}
	sch, err := compileSchema("workflow-v1.json", schemaJSON)
	if err != nil {
		return fail("compile schema: %v", err)
	}

	data, err := json.Marshal(w)
	if err != nil {
		return fail("marshal for schema validation: %v", err)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fail("unmarshal document: %v", err)
	}

	return schemaErrors(sch.Validate(doc), PhaseSemantic, "")
}

// ValidateDomain checks graph rules the schema cannot express.
func ValidateDomain(w *Workflow) []*ValidationError {
	var errs []*ValidationError
	add := func(path, format string, args ...interface{}) {
		errs = append(errs, &ValidationError{
			Phase:    PhaseDomain,
			Path:     path,
			Message:  fmt.Sprintf(format, args...),
			Severity: SeverityError,
		})
	}

	if !namePattern.MatchString(w.Name) {
		add("name", "name %q must contain only letters, digits, '-' or '_'", w.Name)
	}

	ids := make(map[string]bool, len(w.Nodes))
	starts, ends := 0, 0
	for i, n := range w.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)
		if n.ID == "" {
			add(path+".id", "node id is required")
		} else if ids[n.ID] {
			add(path+".id", "duplicate node id %q", n.ID)
		}
		ids[n.ID] = true

		if n.Data == nil {
			add(path+".data", "node %q has no data", n.ID)
			continue
		}
		if n.Data.Kind() != n.Type {
			add(path+".data", "node %q: data is %s, type is %s", n.ID, n.Data.Kind(), n.Type)
			continue
		}

		switch d := n.Data.(type) {
		case StartData:
			starts++
		case EndData:
			ends++
		case PromptData:
			if strings.TrimSpace(d.Prompt) == "" {
				add(path+".data.prompt", "prompt node %q has an empty prompt", n.ID)
			}
		case SubAgentData:
			if strings.TrimSpace(d.Prompt) == "" {
				add(path+".data.prompt", "sub-agent node %q has an empty prompt", n.ID)
			}
		case IfElseData:
			errs = append(errs, validateBranches(path, n.ID, d)...)
		case MCPNodeData:
			_, mcpErrs := CheckMCPNodeData(d)
			for _, e := range mcpErrs {
				e.Path = path + "." + e.Path
			}
			errs = append(errs, mcpErrs...)
		}
	}

	if starts != 1 {
		add("nodes", "workflow must have exactly one start node, found %d", starts)
	}
	if ends == 0 {
		add("nodes", "workflow must have at least one end node")
	}

	for i, c := range w.Connections {
		path := fmt.Sprintf("connections[%d]", i)
		if !ids[c.From] {
			add(path+".from", "unknown node %q", c.From)
		}
		if !ids[c.To] {
			add(path+".to", "unknown node %q", c.To)
		}
		if c.From == c.To && c.From != "" {
			add(path, "node %q is connected to itself", c.From)
		}
	}
	return errs
}

func validateBranches(path, id string, d IfElseData) []*ValidationError {
	var errs []*ValidationError
	if len(d.Branches) < 2 {
		errs = append(errs, &ValidationError{
			Phase:    PhaseDomain,
			Path:     path + ".data.branches",
			Message:  fmt.Sprintf("ifElse node %q needs at least two branches", id),
			Severity: SeverityError,
		})
	}
	for j, b := range d.Branches {
		if strings.TrimSpace(b.When) == "" {
			continue
		}
		if _, err := expr.Compile(b.When, expr.AsBool()); err != nil {
			errs = append(errs, &ValidationError{
				Phase:    PhaseDomain,
				Path:     fmt.Sprintf("%s.data.branches[%d].when", path, j),
				Message:  fmt.Sprintf("invalid expression %q: %v", b.When, err),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

// ValidateParameterValues checks manual values against the tool parameters.
// Missing required values make the result incomplete; values that violate
// the parameter types or enums make it invalid.
func ValidateParameterValues(params []ToolParameter, values map[string]interface{}) (ValidationStatus, []*ValidationError) {
	var errs []*ValidationError
	for _, p := range params {
		if !p.Required {
			continue
		}
		v, ok := values[p.Name]
		if !ok || v == nil || (isString(v) && strings.TrimSpace(v.(string)) == "") {
			errs = append(errs, &ValidationError{
				Phase:    PhaseDomain,
				Path:     "parameterValues." + p.Name,
				Message:  fmt.Sprintf("required parameter %q has no value", p.Name),
				Severity: SeverityError,
			})
		}
	}
	if len(errs) > 0 {
		return StatusIncomplete, errs
	}

	sch, err := compileSchema("parameters.json", ParametersSchema(params))
	if err != nil {
		return StatusInvalid, []*ValidationError{{
			Phase:    PhaseDomain,
			Path:     "parameters",
			Message:  fmt.Sprintf("compile parameter schema: %v", err),
			Severity: SeverityError,
		}}
	}

	data, err := json.Marshal(values)
	if err != nil {
		return StatusInvalid, []*ValidationError{{Phase: PhaseDomain, Path: "parameterValues", Message: err.Error(), Severity: SeverityError}}
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return StatusInvalid, []*ValidationError{{Phase: PhaseDomain, Path: "parameterValues", Message: err.Error(), Severity: SeverityError}}
	}

	if errs := schemaErrors(sch.Validate(doc), PhaseDomain, "parameterValues"); len(errs) > 0 {
		return StatusInvalid, errs
	}
	return StatusValid, nil
}

// ParametersSchema builds a JSON Schema document for a parameter list.
func ParametersSchema(params []ToolParameter) []byte {
	props := make(map[string]interface{}, len(params))
	var required []string
	for _, p := range params {
		prop := map[string]interface{}{}
		if p.Type != "" {
			prop["type"] = p.Type
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	sort.Strings(required)
	doc := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	data, _ := json.Marshal(doc)
	return data
}

// CoerceParameterValue converts text entered by a user into the JSON type the
// parameter declares.
func CoerceParameterValue(p ToolParameter, raw string) (interface{}, error) {
	raw = strings.TrimSpace(raw)
	switch p.Type {
	case "integer":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %q is not an integer", p.Name, raw)
		}
		return n, nil
	case "number":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %q is not a number", p.Name, raw)
		}
		return f, nil
	case "boolean":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %q is not a boolean", p.Name, raw)
		}
		return b, nil
	case "array", "object":
		var v interface{}
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("parameter %q: expected JSON %s: %w", p.Name, p.Type, err)
		}
		return v, nil
	default:
		return raw, nil
	}
}

func compileSchema(name string, schemaJSON []byte) (*sjsonschema.Schema, error) {
	var schemaDoc interface{}
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := sjsonschema.NewCompiler()
	if err := c.AddResource(name, schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(name)
}

func schemaErrors(err error, phase, prefix string) []*ValidationError {
	if err == nil {
		return nil
	}
	ve, ok := err.(*sjsonschema.ValidationError)
	if !ok {
		return []*ValidationError{{Phase: phase, Path: prefix, Message: err.Error(), Severity: SeverityError}}
	}
	var errs []*ValidationError
	for _, cause := range flattenValidationErrors(ve) {
		path := strings.Join(cause.InstanceLocation, "/")
		if prefix != "" {
			if path == "" {
				path = prefix
			} else {
				path = prefix + "/" + path
			}
		}
		errs = append(errs, &ValidationError{
			Phase:    phase,
			Path:     path,
			Message:  fmt.Sprintf("%v", cause.ErrorKind),
			Severity: SeverityError,
		})
	}
	return errs
}

func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

func isString(v interface{}) bool {
	_, ok := v.(string)
	return ok
}
