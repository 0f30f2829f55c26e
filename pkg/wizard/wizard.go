// Package wizard implements the step machine that creates and edits MCP
// nodes. It is pure in-memory state: callers fetch servers and tools and feed
// the selections in.
package wizard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

// Step identifies a wizard screen.
type Step int

const (
	StepServerSelection Step = iota
	StepToolSelectionMethod
	StepToolSelection
	StepNaturalLanguageTask
	StepParameterConfigMethod
	StepParameterDetailedConfig
	StepNaturalLanguageParam
)

var stepNames = [...]string{
	StepServerSelection:         "ServerSelection",
	StepToolSelectionMethod:     "ToolSelectionMethod",
	StepToolSelection:           "ToolSelection",
	StepNaturalLanguageTask:     "NaturalLanguageTask",
	StepParameterConfigMethod:   "ParameterConfigMethod",
	StepParameterDetailedConfig: "ParameterDetailedConfig",
	StepNaturalLanguageParam:    "NaturalLanguageParam",
}

func (s Step) String() string {
	if s < 0 || int(s) >= len(stepNames) {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return stepNames[s]
}

// Mode is the manual/auto choice made at the two method steps.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeAuto   Mode = "auto"
)

var (
	// ErrCannotProceed is returned by Next when the current step's gate fails.
	ErrCannotProceed = errors.New("cannot proceed")
	// ErrNoNextStep is returned by Next at a terminal step.
	ErrNoNextStep = errors.New("no next step")
	// ErrNoPreviousStep is returned by Back at the first step.
	ErrNoPreviousStep = errors.New("no previous step")
	// ErrIncomplete is returned by Build before the wizard is complete.
	ErrIncomplete = errors.New("wizard is not complete")
)

// Server is the selected MCP server.
type Server struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Wizard holds the state of one node creation or edit session.
// It is not safe for concurrent use.
type Wizard struct {
	step      Step
	server    *Server
	toolMode  Mode
	paramMode Mode
	tool      *workflow.Tool

	taskDescription  string
	paramDescription string
	values           map[string]interface{}
}

// New starts a wizard at server selection with both modes on auto.
func New() *Wizard {
	w := &Wizard{}
	w.Reset()
	return w
}

// Reset discards all state.
func (w *Wizard) Reset() {
	*w = Wizard{
		step:      StepServerSelection,
		toolMode:  ModeAuto,
		paramMode: ModeAuto,
		values:    map[string]interface{}{},
	}
}

// Edit reopens the wizard on an existing node, positioned at the terminal
// step of the node's mode.
func Edit(data workflow.MCPNodeData, serverName string) (*Wizard, error) {
	if data == nil {
		return nil, errors.New("edit: no mcp node data")
	}
	w := New()
	if serverName == "" {
		serverName = data.Server()
	}
	w.server = &Server{ID: data.Server(), Name: serverName}

	switch d := data.(type) {
	case workflow.AIToolSelection:
		w.toolMode = ModeAuto
		w.taskDescription = d.AIToolSelectionConfig.TaskDescription
		w.step = StepNaturalLanguageTask
	case workflow.AIParameterConfig:
		w.toolMode, w.paramMode = ModeManual, ModeAuto
		w.tool = &workflow.Tool{Name: d.ToolName, Description: d.ToolDescription, Parameters: d.Parameters}
		w.paramDescription = d.AIParameterConfig.Description
		w.step = StepNaturalLanguageParam
	case workflow.ManualParameterConfig:
		w.toolMode, w.paramMode = ModeManual, ModeManual
		w.tool = &workflow.Tool{Name: d.ToolName, Description: d.ToolDescription, Parameters: d.Parameters}
		for k, v := range d.ParameterValues {
			w.values[k] = v
		}
		w.step = StepParameterDetailedConfig
	default:
		return nil, fmt.Errorf("unsupported mcp node data %T", data)
	}
	return w, nil
}

// Step returns the current step.
func (w *Wizard) Step() Step { return w.step }

// Server returns the selected server, if any.
func (w *Wizard) Server() *Server { return w.server }

// ToolMode returns the tool selection mode.
func (w *Wizard) ToolMode() Mode { return w.toolMode }

// ParamMode returns the parameter configuration mode.
func (w *Wizard) ParamMode() Mode { return w.paramMode }

// Tool returns the selected tool, if any.
func (w *Wizard) Tool() *workflow.Tool { return w.tool }

// TaskDescription is the free text used when the agent picks the tool.
func (w *Wizard) TaskDescription() string { return w.taskDescription }

// ParamDescription is the free text used when the agent derives arguments.
func (w *Wizard) ParamDescription() string { return w.paramDescription }

// Values returns a copy of the manual parameter values.
func (w *Wizard) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(w.values))
	for k, v := range w.values {
		out[k] = v
	}
	return out
}

// SelectServer sets the server. Choosing a different server discards the
// tool and everything entered after it.
func (w *Wizard) SelectServer(s Server) {
	if w.server != nil && w.server.ID == s.ID {
		w.server = &s
		return
	}
	w.server = &s
	w.tool = nil
	w.taskDescription = ""
	w.paramDescription = ""
	w.values = map[string]interface{}{}
}

// SetToolMode switches between picking a tool and describing the task.
// Data entered for the abandoned branch is cleared.
func (w *Wizard) SetToolMode(m Mode) {
	if m == w.toolMode {
		return
	}
	w.toolMode = m
	switch m {
	case ModeAuto:
		w.tool = nil
		w.paramDescription = ""
		w.values = map[string]interface{}{}
	case ModeManual:
		w.taskDescription = ""
	}
}

// SetParamMode switches between entering values and describing them.
// Data entered for the abandoned branch is cleared.
func (w *Wizard) SetParamMode(m Mode) {
	if m == w.paramMode {
		return
	}
	w.paramMode = m
	switch m {
	case ModeAuto:
		w.values = map[string]interface{}{}
	case ModeManual:
		w.paramDescription = ""
	}
}

// SelectTool sets the tool. Choosing a different tool discards parameter
// values and the parameter description.
func (w *Wizard) SelectTool(t workflow.Tool) {
	if w.tool == nil || w.tool.Name != t.Name {
		w.values = map[string]interface{}{}
		w.paramDescription = ""
	}
	w.tool = &t
}

// SetTaskDescription sets the natural language task.
func (w *Wizard) SetTaskDescription(s string) { w.taskDescription = s }

// SetParamDescription sets the natural language parameter description.
func (w *Wizard) SetParamDescription(s string) { w.paramDescription = s }

// SetValue sets one manual parameter value. A nil value removes it.
func (w *Wizard) SetValue(name string, v interface{}) {
	if v == nil {
		delete(w.values, name)
		return
	}
	w.values[name] = v
}

// SetValues replaces all manual parameter values.
func (w *Wizard) SetValues(values map[string]interface{}) {
	w.values = make(map[string]interface{}, len(values))
	for k, v := range values {
		w.values[k] = v
	}
}

// next is the forward transition table.
func next(step Step, toolMode, paramMode Mode) (Step, bool) {
	switch step {
	case StepServerSelection:
		return StepToolSelectionMethod, true
	case StepToolSelectionMethod:
		if toolMode == ModeManual {
			return StepToolSelection, true
		}
		return StepNaturalLanguageTask, true
	case StepToolSelection:
		return StepParameterConfigMethod, true
	case StepParameterConfigMethod:
		if paramMode == ModeManual {
			return StepParameterDetailedConfig, true
		}
		return StepNaturalLanguageParam, true
	}
	return step, false
}

// previous mirrors next.
func previous(step Step) (Step, bool) {
	switch step {
	case StepToolSelectionMethod:
		return StepServerSelection, true
	case StepToolSelection, StepNaturalLanguageTask:
		return StepToolSelectionMethod, true
	case StepParameterConfigMethod:
		return StepToolSelection, true
	case StepParameterDetailedConfig, StepNaturalLanguageParam:
		return StepParameterConfigMethod, true
	}
	return step, false
}

// CanProceed reports whether the current step's input is sufficient.
func (w *Wizard) CanProceed() bool {
	switch w.step {
	case StepServerSelection:
		return w.server != nil
	case StepToolSelectionMethod, StepParameterConfigMethod, StepParameterDetailedConfig:
		return true
	case StepToolSelection:
		return w.tool != nil
	case StepNaturalLanguageTask:
		return strings.TrimSpace(w.taskDescription) != ""
	case StepNaturalLanguageParam:
		return strings.TrimSpace(w.paramDescription) != ""
	}
	return false
}

// ValidationMessage explains why CanProceed is false, or returns "".
func (w *Wizard) ValidationMessage() string {
	if w.CanProceed() {
		return ""
	}
	switch w.step {
	case StepServerSelection:
		return "Select an MCP server to continue."
	case StepToolSelection:
		return "Select a tool to continue."
	case StepNaturalLanguageTask:
		return "Describe the task the agent should accomplish."
	case StepNaturalLanguageParam:
		return "Describe how the agent should fill in the parameters."
	}
	return "This step is incomplete."
}

// HasNext reports whether the current step has a successor.
func (w *Wizard) HasNext() bool {
	_, ok := next(w.step, w.toolMode, w.paramMode)
	return ok
}

// Next advances one step.
func (w *Wizard) Next() error {
	to, ok := next(w.step, w.toolMode, w.paramMode)
	if !ok {
		return fmt.Errorf("%w after %s", ErrNoNextStep, w.step)
	}
	if !w.CanProceed() {
		return fmt.Errorf("%w: %s", ErrCannotProceed, w.ValidationMessage())
	}
	w.step = to
	return nil
}

// Back returns to the previous step. Entered data is kept.
func (w *Wizard) Back() error {
	to, ok := previous(w.step)
	if !ok {
		return ErrNoPreviousStep
	}
	w.step = to
	return nil
}

// TerminalMode is the node variant the current modes lead to.
func (w *Wizard) TerminalMode() workflow.MCPMode {
	return terminalMode(w.toolMode, w.paramMode)
}

func terminalMode(toolMode, paramMode Mode) workflow.MCPMode {
	if toolMode == ModeAuto {
		return workflow.ModeAIToolSelection
	}
	if paramMode == ModeManual {
		return workflow.ModeManualParameterConfig
	}
	return workflow.ModeAIParameterConfig
}

// terminalStep is the last step of the path for a mode.
func terminalStep(mode workflow.MCPMode) Step {
	switch mode {
	case workflow.ModeManualParameterConfig:
		return StepParameterDetailedConfig
	case workflow.ModeAIParameterConfig:
		return StepNaturalLanguageParam
	default:
		return StepNaturalLanguageTask
	}
}

// IsComplete is true at the terminal step of the current modes once the
// fields that mode requires are filled in.
func (w *Wizard) IsComplete() bool {
	if w.HasNext() {
		return false
	}
	mode := w.TerminalMode()
	if w.step != terminalStep(mode) || w.server == nil {
		return false
	}
	switch mode {
	case workflow.ModeAIToolSelection:
		return strings.TrimSpace(w.taskDescription) != ""
	case workflow.ModeAIParameterConfig:
		return w.tool != nil && strings.TrimSpace(w.paramDescription) != ""
	case workflow.ModeManualParameterConfig:
		return w.tool != nil
	}
	return false
}

// Path lists the steps of the route the current modes select.
func (w *Wizard) Path() []Step {
	path := []Step{StepServerSelection}
	for s := StepServerSelection; ; {
		n, ok := next(s, w.toolMode, w.paramMode)
		if !ok {
			return path
		}
		path = append(path, n)
		s = n
	}
}

// Position returns the 1-based index of the current step on the current
// path and the path length.
func (w *Wizard) Position() (index, total int) {
	path := w.Path()
	for i, s := range path {
		if s == w.step {
			return i + 1, len(path)
		}
	}
	return 0, len(path)
}

// Build constructs the node data for the terminal mode. availableTools is
// recorded on aiToolSelection nodes; manual values are validated and the
// resulting status stored on the node.
func (w *Wizard) Build(availableTools []workflow.Tool, now time.Time) (workflow.MCPNodeData, error) {
	if !w.IsComplete() {
		return nil, ErrIncomplete
	}

	var data workflow.MCPNodeData
	switch w.TerminalMode() {
	case workflow.ModeAIToolSelection:
		tools := make([]workflow.Tool, len(availableTools))
		copy(tools, availableTools)
		data = workflow.AIToolSelection{
			ServerID: w.server.ID,
			AIToolSelectionConfig: workflow.AIToolSelectionSpec{
				TaskDescription: strings.TrimSpace(w.taskDescription),
				AvailableTools:  tools,
				Timestamp:       now,
			},
		}
	case workflow.ModeAIParameterConfig:
		data = workflow.AIParameterConfig{
			ServerID:        w.server.ID,
			ToolName:        w.tool.Name,
			ToolDescription: w.tool.Description,
			Parameters:      w.tool.Parameters,
			AIParameterConfig: workflow.AIParameterSpec{
				Description: strings.TrimSpace(w.paramDescription),
				Timestamp:   now,
			},
		}
	case workflow.ModeManualParameterConfig:
		data = workflow.ManualParameterConfig{
			ServerID:        w.server.ID,
			ToolName:        w.tool.Name,
			ToolDescription: w.tool.Description,
			Parameters:      w.tool.Parameters,
			ParameterValues: w.Values(),
		}
	}

	data, errs := workflow.CheckMCPNodeData(data)
	if len(errs) > 0 {
		return nil, fmt.Errorf("build %s node: %w", w.TerminalMode(), errs[0])
	}
	return data, nil
}
