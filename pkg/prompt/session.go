// Package prompt is the line-mode front-end of the MCP node wizard. It reads
// one command per line with readline, for terminals where the full-screen
// TUI is unavailable.
package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ormasoftchile/wfstudio/pkg/protocol"
	"github.com/ormasoftchile/wfstudio/pkg/wizard"
	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

// Backend loads what the wizard offers. *client.Client satisfies it.
type Backend interface {
	ListServers(ctx context.Context) ([]protocol.ServerInfo, error)
	Tools(ctx context.Context, serverID string) ([]workflow.Tool, error)
}

// Session holds the wizard state of one prompt run.
type Session struct {
	backend Backend
	wiz     *wizard.Wizard
	out     io.Writer
	now     func() time.Time

	servers     []protocol.ServerInfo
	tools       []workflow.Tool
	toolsServer string

	result workflow.MCPNodeData
	done   bool
	quit   bool
}

// NewSession returns a session writing to out. w may be nil for a new node.
func NewSession(backend Backend, w *wizard.Wizard, out io.Writer) *Session {
	if w == nil {
		w = wizard.New()
	}
	return &Session{backend: backend, wiz: w, out: out, now: time.Now}
}

// Result returns the finished node, if the wizard completed.
func (s *Session) Result() (workflow.MCPNodeData, bool) { return s.result, s.done }

// Ended reports whether the session finished or was quit.
func (s *Session) Ended() bool { return s.done || s.quit }

// Start loads the servers, and the tools of an already selected server, and
// describes the current step.
func (s *Session) Start(ctx context.Context) error {
	servers, err := s.backend.ListServers(ctx)
	if err != nil {
		return fmt.Errorf("list servers: %w", err)
	}
	s.servers = servers
	if srv := s.wiz.Server(); srv != nil {
		if err := s.loadTools(ctx, srv.ID); err != nil {
			return err
		}
	}
	s.describe()
	return nil
}

// Prompt is the readline prompt for the current step.
func (s *Session) Prompt() string {
	if s.Ended() {
		return "wfstudio[done]> "
	}
	idx, total := s.wiz.Position()
	return fmt.Sprintf("wfstudio[%d/%d | %s]> ", idx, total, s.wiz.Step())
}

// Handle processes one input line. It reports whether the session ended.
func (s *Session) Handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || s.Ended() {
		return s.Ended()
	}

	switch strings.ToLower(line) {
	case "quit", "q":
		s.quit = true
		fmt.Fprintf(s.out, "Wizard cancelled.\n")
		return true
	case "help", "?":
		s.help()
		return false
	case "list", "ls":
		s.describe()
		return false
	case "back", "b":
		if err := s.wiz.Back(); err != nil {
			fmt.Fprintf(s.out, "Already at the first step.\n")
			return false
		}
		s.describe()
		return false
	}

	if err := s.input(ctx, line); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return false
	}
	return s.Ended()
}

// input applies line to the current step and advances when it completes
// the step.
func (s *Session) input(ctx context.Context, line string) error {
	switch s.wiz.Step() {
	case wizard.StepServerSelection:
		srv, err := s.pickServer(line)
		if err != nil {
			return err
		}
		s.wiz.SelectServer(wizard.Server{ID: srv.ID, Name: srv.Name})
		if s.toolsServer != srv.ID {
			if err := s.loadTools(ctx, srv.ID); err != nil {
				return err
			}
		}
	case wizard.StepToolSelectionMethod:
		mode, err := parseMode(line)
		if err != nil {
			return err
		}
		s.wiz.SetToolMode(mode)
	case wizard.StepParameterConfigMethod:
		mode, err := parseMode(line)
		if err != nil {
			return err
		}
		s.wiz.SetParamMode(mode)
	case wizard.StepToolSelection:
		tool, err := s.pickTool(line)
		if err != nil {
			return err
		}
		s.wiz.SelectTool(tool)
	case wizard.StepNaturalLanguageTask:
		s.wiz.SetTaskDescription(line)
	case wizard.StepNaturalLanguageParam:
		s.wiz.SetParamDescription(line)
	case wizard.StepParameterDetailedConfig:
		if !strings.EqualFold(line, "done") {
			if err := s.setValue(line); err != nil {
				return err
			}
			s.describeParams()
			return nil
		}
	}
	return s.advance()
}

func (s *Session) advance() error {
	if s.wiz.HasNext() {
		if err := s.wiz.Next(); err != nil {
			return err
		}
		s.describe()
		return nil
	}
	data, err := s.wiz.Build(s.tools, s.now())
	if err != nil {
		return fmt.Errorf("%w: %s", err, s.wiz.ValidationMessage())
	}
	s.result, s.done = data, true
	s.summary()
	return nil
}

func (s *Session) loadTools(ctx context.Context, serverID string) error {
	fmt.Fprintf(s.out, "Loading tools of %s...\n", serverID)
	tools, err := s.backend.Tools(ctx, serverID)
	if err != nil {
		return fmt.Errorf("load tools: %w", err)
	}
	s.tools, s.toolsServer = tools, serverID
	return nil
}

func (s *Session) pickServer(line string) (protocol.ServerInfo, error) {
	if n, err := strconv.Atoi(line); err == nil {
		if n < 1 || n > len(s.servers) {
			return protocol.ServerInfo{}, fmt.Errorf("no server numbered %d", n)
		}
		return s.servers[n-1], nil
	}
	for _, srv := range s.servers {
		if srv.ID == line {
			return srv, nil
		}
	}
	return protocol.ServerInfo{}, fmt.Errorf("unknown server %q", line)
}

func (s *Session) pickTool(line string) (workflow.Tool, error) {
	if n, err := strconv.Atoi(line); err == nil {
		if n < 1 || n > len(s.tools) {
			return workflow.Tool{}, fmt.Errorf("no tool numbered %d", n)
		}
		return s.tools[n-1], nil
	}
	for _, t := range s.tools {
		if t.Name == line {
			return t, nil
		}
	}
	return workflow.Tool{}, fmt.Errorf("unknown tool %q", line)
}

func parseMode(line string) (wizard.Mode, error) {
	switch strings.ToLower(line) {
	case "1", "m", "manual":
		return wizard.ModeManual, nil
	case "2", "a", "auto":
		return wizard.ModeAuto, nil
	}
	return "", fmt.Errorf("answer 1 (manual) or 2 (auto), got %q", line)
}

// setValue handles "name=value" and "unset name".
func (s *Session) setValue(line string) error {
	tool := s.wiz.Tool()
	if tool == nil {
		return fmt.Errorf("no tool selected")
	}
	if name, ok := strings.CutPrefix(line, "unset "); ok {
		s.wiz.SetValue(strings.TrimSpace(name), nil)
		return nil
	}
	name, raw, ok := strings.Cut(line, "=")
	if !ok {
		return fmt.Errorf("expected name=value, unset name or done")
	}
	name = strings.TrimSpace(name)
	for _, p := range tool.Parameters {
		if p.Name != name {
			continue
		}
		v, err := workflow.CoerceParameterValue(p, raw)
		if err != nil {
			return err
		}
		s.wiz.SetValue(name, v)
		return nil
	}
	return fmt.Errorf("%s has no parameter %q", tool.Name, name)
}

// describe prints the choices of the current step.
func (s *Session) describe() {
	switch s.wiz.Step() {
	case wizard.StepServerSelection:
		fmt.Fprintf(s.out, "Select an MCP server:\n")
		if len(s.servers) == 0 {
			fmt.Fprintf(s.out, "  (no MCP servers are configured)\n")
		}
		for i, srv := range s.servers {
			fmt.Fprintf(s.out, "  %d. %s  [%s, %s]\n", i+1, srv.Name, srv.Scope, srv.Type)
		}
	case wizard.StepToolSelectionMethod:
		fmt.Fprintf(s.out, "How should the tool be chosen?\n  1. manual: pick a tool\n  2. auto: describe a task and let the agent choose\n")
	case wizard.StepToolSelection:
		fmt.Fprintf(s.out, "Select a tool:\n")
		for i, t := range s.tools {
			fmt.Fprintf(s.out, "  %d. %s  %s\n", i+1, t.Name, t.Description)
		}
	case wizard.StepParameterConfigMethod:
		fmt.Fprintf(s.out, "How should the arguments be set?\n  1. manual: enter the values\n  2. auto: describe them for the agent\n")
	case wizard.StepNaturalLanguageTask:
		fmt.Fprintf(s.out, "Describe the task for the agent:\n")
	case wizard.StepNaturalLanguageParam:
		fmt.Fprintf(s.out, "Describe how the agent should set the arguments:\n")
	case wizard.StepParameterDetailedConfig:
		s.describeParams()
	}
}

func (s *Session) describeParams() {
	tool := s.wiz.Tool()
	if tool == nil {
		return
	}
	values := s.wiz.Values()
	fmt.Fprintf(s.out, "Arguments for %s (name=value, unset name, done):\n", tool.Name)
	for _, p := range tool.Parameters {
		marker := ""
		if p.Required {
			marker = " *"
		}
		cur := "-"
		if v, ok := values[p.Name]; ok {
			data, _ := json.Marshal(v)
			cur = string(data)
		}
		fmt.Fprintf(s.out, "  %s (%s)%s = %s\n", p.Name, p.Type, marker, cur)
	}
}

func (s *Session) summary() {
	data, _ := json.MarshalIndent(s.result, "", "  ")
	fmt.Fprintf(s.out, "MCP node ready (%s on %s):\n%s\n", s.result.Mode(), s.result.Server(), data)
}

func (s *Session) help() {
	fmt.Fprintf(s.out, `Commands:
  <number|name>   choose a listed item
  name=value      set an argument (parameter step)
  unset name      clear an argument
  done            finish the parameter step
  list            show the choices again
  back            go to the previous step
  help            show this help
  quit            cancel the wizard
`)
}
