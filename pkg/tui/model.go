package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/wfstudio/pkg/channel"
	"github.com/ormasoftchile/wfstudio/pkg/protocol"
	"github.com/ormasoftchile/wfstudio/pkg/wizard"
	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

// ErrAborted is returned by Run when the user cancels the wizard.
var ErrAborted = errors.New("wizard cancelled")

// Backend loads what the wizard offers. *client.Client satisfies it.
type Backend interface {
	ListServers(ctx context.Context) ([]protocol.ServerInfo, error)
	Tools(ctx context.Context, serverID string) ([]workflow.Tool, error)
}

// --- Tea messages ---

type serversLoadedMsg struct {
	servers []protocol.ServerInfo
	err     error
}

type toolsLoadedMsg struct {
	token    string
	serverID string
	tools    []workflow.Tool
	err      error
}

// paramField is one input of the parameter form.
type paramField struct {
	param workflow.ToolParameter
	input textinput.Model
}

// Model is the Bubble Tea model of the wizard.
type Model struct {
	backend Backend
	ctx     context.Context
	now     func() time.Time
	wiz     *wizard.Wizard

	// tool loads for a superseded server selection are dropped
	latest *channel.Latest
	seq    int

	servers     []protocol.ServerInfo
	tools       []workflow.Tool
	toolsServer string

	serverList list.Model
	toolMode   list.Model
	toolList   list.Model
	paramMode  list.Model
	text       textinput.Model
	fields     []paramField
	focus      int

	spinner spinner.Model
	loading string
	errMsg  string

	initCmd tea.Cmd

	result  workflow.MCPNodeData
	done    bool
	aborted bool

	width  int
	height int
}

// Option configures a Model.
type Option func(*Model)

// WithClock overrides the time stamped on created nodes.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// WithContext sets the context for backend calls.
func WithContext(ctx context.Context) Option {
	return func(m *Model) { m.ctx = ctx }
}

// WithWizard starts from an existing wizard, for example one opened with
// wizard.Edit.
func WithWizard(w *wizard.Wizard) Option {
	return func(m *Model) { m.wiz = w }
}

// New returns a model at the wizard's current step.
func New(backend Backend, opts ...Option) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 2000

	m := Model{
		backend:    backend,
		ctx:        context.Background(),
		now:        time.Now,
		wiz:        wizard.New(),
		latest:     &channel.Latest{},
		serverList: newList("Select an MCP server", nil),
		toolMode:   newList("How should the tool be chosen?", modeItems("Pick a tool myself", "Let the agent choose from a task description")),
		toolList:   newList("Select a tool", nil),
		paramMode:  newList("How should the arguments be set?", modeItems("Enter the values now", "Let the agent derive them from a description")),
		text:       ti,
		spinner:    sp,
	}
	for _, opt := range opts {
		opt(&m)
	}
	if s := m.wiz.Server(); s != nil {
		m.initCmd = m.loadTools(s.ID)
	}
	m.syncStep()
	return m
}

// Result returns the finished node data, if the wizard completed.
func (m Model) Result() (workflow.MCPNodeData, bool) {
	return m.result, m.done
}

// Init loads the server list, and the tools when a server is already chosen.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadServers(), m.initCmd)
}

func (m Model) loadServers() tea.Cmd {
	backend, ctx := m.backend, m.ctx
	return func() tea.Msg {
		servers, err := backend.ListServers(ctx)
		return serversLoadedMsg{servers: servers, err: err}
	}
}

func (m Model) loadToolsCmd(serverID, token string) tea.Cmd {
	backend, ctx := m.backend, m.ctx
	return func() tea.Msg {
		tools, err := backend.Tools(ctx, serverID)
		return toolsLoadedMsg{token: token, serverID: serverID, tools: tools, err: err}
	}
}

// loadTools starts a tool load that supersedes any earlier one.
func (m *Model) loadTools(serverID string) tea.Cmd {
	m.seq++
	token := fmt.Sprintf("%s#%d", serverID, m.seq)
	m.latest.Begin(token)
	m.tools, m.toolsServer = nil, ""
	m.toolList.SetItems(nil)
	m.loading = "Loading tools of " + serverID
	return m.loadToolsCmd(serverID, token)
}

// Update processes messages and returns the updated model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		w, h := max(40, msg.Width-4), max(6, msg.Height-8)
		m.serverList.SetSize(w, h)
		m.toolMode.SetSize(w, 6)
		m.toolList.SetSize(w, h)
		m.paramMode.SetSize(w, 6)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case serversLoadedMsg:
		if msg.err != nil {
			m.errMsg = "Loading servers failed: " + msg.err.Error()
			return m, nil
		}
		m.servers = msg.servers
		m.serverList.SetItems(serverItems(msg.servers))
		if s := m.wiz.Server(); s != nil {
			selectKey(&m.serverList, s.ID)
		}
		if len(msg.servers) == 0 {
			m.errMsg = "No MCP servers are configured."
		}
		return m, nil

	case toolsLoadedMsg:
		if !m.latest.Accept(msg.token) {
			return m, nil
		}
		m.latest.End(msg.token)
		m.loading = ""
		if msg.err != nil {
			m.errMsg = "Loading tools failed: " + msg.err.Error()
			return m, nil
		}
		m.tools, m.toolsServer = msg.tools, msg.serverID
		m.toolList.SetItems(toolItems(msg.tools))
		if t := m.wiz.Tool(); t != nil {
			selectKey(&m.toolList, t.Name)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m.updateFocused(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case matchKey(msg, keys.Quit):
		m.aborted = true
		return m, tea.Quit
	case matchKey(msg, keys.Back):
		m.errMsg = ""
		if err := m.wiz.Back(); err != nil {
			m.aborted = true
			return m, tea.Quit
		}
		return m, m.syncStep()
	case matchKey(msg, keys.Next):
		cmd := m.onEnter()
		return m, cmd
	case m.wiz.Step() == wizard.StepParameterDetailedConfig && matchKey(msg, keys.Focus):
		return m, m.moveFocus(1)
	case m.wiz.Step() == wizard.StepParameterDetailedConfig && matchKey(msg, keys.FocusRev):
		return m, m.moveFocus(-1)
	}
	return m.updateFocused(msg)
}

// updateFocused forwards msg to the component of the current step.
func (m Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.wiz.Step() {
	case wizard.StepServerSelection:
		m.serverList, cmd = m.serverList.Update(msg)
	case wizard.StepToolSelectionMethod:
		m.toolMode, cmd = m.toolMode.Update(msg)
	case wizard.StepToolSelection:
		m.toolList, cmd = m.toolList.Update(msg)
	case wizard.StepParameterConfigMethod:
		m.paramMode, cmd = m.paramMode.Update(msg)
	case wizard.StepNaturalLanguageTask, wizard.StepNaturalLanguageParam:
		m.text, cmd = m.text.Update(msg)
	case wizard.StepParameterDetailedConfig:
		if m.focus < len(m.fields) {
			m.fields[m.focus].input, cmd = m.fields[m.focus].input.Update(msg)
		}
	}
	return m, cmd
}

// onEnter commits the current step's input and advances.
func (m *Model) onEnter() tea.Cmd {
	m.errMsg = ""
	var cmd tea.Cmd

	switch m.wiz.Step() {
	case wizard.StepServerSelection:
		id, ok := selectedKey(m.serverList)
		if !ok {
			break
		}
		for _, s := range m.servers {
			if s.ID == id {
				m.wiz.SelectServer(wizard.Server{ID: s.ID, Name: s.Name})
			}
		}
		if m.toolsServer != id {
			cmd = m.loadTools(id)
		}
	case wizard.StepToolSelectionMethod:
		if mode, ok := selectedKey(m.toolMode); ok {
			m.wiz.SetToolMode(wizard.Mode(mode))
		}
	case wizard.StepToolSelection:
		if m.loading != "" {
			m.errMsg = m.loading + "…"
			return nil
		}
		if name, ok := selectedKey(m.toolList); ok {
			for _, t := range m.tools {
				if t.Name == name {
					m.wiz.SelectTool(t)
				}
			}
		}
	case wizard.StepParameterConfigMethod:
		if mode, ok := selectedKey(m.paramMode); ok {
			m.wiz.SetParamMode(wizard.Mode(mode))
		}
	case wizard.StepNaturalLanguageTask:
		m.wiz.SetTaskDescription(m.text.Value())
	case wizard.StepNaturalLanguageParam:
		m.wiz.SetParamDescription(m.text.Value())
	case wizard.StepParameterDetailedConfig:
		if err := m.commitFields(); err != nil {
			m.errMsg = err.Error()
			return nil
		}
	}

	if !m.wiz.HasNext() {
		return tea.Batch(cmd, m.finish())
	}
	if err := m.wiz.Next(); err != nil {
		m.errMsg = m.wiz.ValidationMessage()
		return cmd
	}
	return tea.Batch(cmd, m.syncStep())
}

// commitFields coerces the form values into the wizard.
func (m *Model) commitFields() error {
	values := make(map[string]interface{}, len(m.fields))
	for _, f := range m.fields {
		raw := strings.TrimSpace(f.input.Value())
		if raw == "" {
			continue
		}
		v, err := workflow.CoerceParameterValue(f.param, raw)
		if err != nil {
			return err
		}
		values[f.param.Name] = v
	}
	m.wiz.SetValues(values)
	return nil
}

func (m *Model) finish() tea.Cmd {
	if m.wiz.Step() == wizard.StepNaturalLanguageTask && m.loading != "" {
		m.errMsg = m.loading + "…"
		return nil
	}
	if !m.wiz.IsComplete() {
		m.errMsg = m.wiz.ValidationMessage()
		return nil
	}
	data, err := m.wiz.Build(m.tools, m.now())
	if err != nil {
		m.errMsg = err.Error()
		return nil
	}
	m.result, m.done = data, true
	return tea.Quit
}

// syncStep prepares the component of the step the wizard is on.
func (m *Model) syncStep() tea.Cmd {
	m.text.Blur()
	switch m.wiz.Step() {
	case wizard.StepToolSelectionMethod:
		selectKey(&m.toolMode, string(m.wiz.ToolMode()))
	case wizard.StepParameterConfigMethod:
		selectKey(&m.paramMode, string(m.wiz.ParamMode()))
	case wizard.StepNaturalLanguageTask:
		m.text.Placeholder = "e.g. Fetch the list of AWS regions"
		m.text.SetValue(m.wiz.TaskDescription())
		return m.text.Focus()
	case wizard.StepNaturalLanguageParam:
		m.text.Placeholder = "e.g. Use the region chosen in the previous step"
		m.text.SetValue(m.wiz.ParamDescription())
		return m.text.Focus()
	case wizard.StepParameterDetailedConfig:
		m.buildFields()
		return m.moveFocus(0)
	}
	return nil
}

func (m *Model) buildFields() {
	tool := m.wiz.Tool()
	if tool == nil {
		m.fields = nil
		return
	}
	values := m.wiz.Values()
	m.fields = make([]paramField, 0, len(tool.Parameters))
	for _, p := range tool.Parameters {
		in := textinput.New()
		in.Prompt = "> "
		in.Placeholder = p.Type
		if len(p.Enum) > 0 {
			in.Placeholder = fmt.Sprintf("one of %v", p.Enum)
		}
		if v, ok := values[p.Name]; ok {
			in.SetValue(formatValue(v))
		}
		m.fields = append(m.fields, paramField{param: p, input: in})
	}
	m.focus = 0
}

func formatValue(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case []interface{}, map[string]interface{}:
		data, _ := json.Marshal(v)
		return string(data)
	default:
		return fmt.Sprint(v)
	}
}

func (m *Model) moveFocus(delta int) tea.Cmd {
	if len(m.fields) == 0 {
		return nil
	}
	m.fields[m.focus].input.Blur()
	m.focus = (m.focus + delta + len(m.fields)) % len(m.fields)
	return m.fields[m.focus].input.Focus()
}

// View renders the current step.
func (m Model) View() string {
	if m.done {
		return renderMarkdown(summaryMarkdown(m.result), max(40, m.width-4)) + "\n"
	}

	var body string
	switch m.wiz.Step() {
	case wizard.StepServerSelection:
		body = m.serverList.View()
	case wizard.StepToolSelectionMethod:
		body = m.toolMode.View()
	case wizard.StepToolSelection:
		body = m.toolList.View()
	case wizard.StepParameterConfigMethod:
		body = m.paramMode.View()
	case wizard.StepNaturalLanguageTask:
		body = panelTitle.Render("Describe the task for the agent") + "\n\n" + m.text.View()
	case wizard.StepNaturalLanguageParam:
		body = panelTitle.Render("Describe how to set the arguments") + "\n\n" + m.text.View()
	case wizard.StepParameterDetailedConfig:
		body = m.renderFields()
	}

	parts := []string{m.renderHeader(), panelBorder.Render(body)}
	if m.loading != "" {
		parts = append(parts, m.spinner.View()+" "+m.loading)
	}
	if m.errMsg != "" {
		parts = append(parts, errorStyle.Render(m.errMsg))
	}
	parts = append(parts, keyBarStyle.Render(keyBarText(m.wiz.Step(), !m.wiz.HasNext())))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader() string {
	idx, total := m.wiz.Position()
	var progress []string
	for i := 1; i <= total; i++ {
		switch {
		case i < idx:
			progress = append(progress, progressDone.Render(GlyphDone))
		case i == idx:
			progress = append(progress, progressCurrent.Render(GlyphCurrent))
		default:
			progress = append(progress, progressPending.Render(GlyphPending))
		}
	}
	title := "New MCP node"
	if s := m.wiz.Server(); s != nil {
		title += " · " + s.Name
	}
	return lipgloss.JoinHorizontal(lipgloss.Center,
		headerStyle.Render(title),
		stepBadgeStyle.Render(fmt.Sprintf("%d/%d", idx, total)),
		" "+strings.Join(progress, " "),
	)
}

func (m Model) renderFields() string {
	tool := m.wiz.Tool()
	if tool == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(panelTitle.Render("Arguments for " + tool.Name))
	b.WriteString("\n")
	if len(m.fields) == 0 {
		b.WriteString("\nThis tool takes no arguments.")
	}
	for _, f := range m.fields {
		label := labelStyle.Render(f.param.Name)
		if f.param.Required {
			label += requiredStyle.Render(" *")
		}
		b.WriteString("\n" + label)
		if f.param.Description != "" {
			b.WriteString("  " + itemDesc.Render(truncate(f.param.Description, max(20, m.width-len(f.param.Name)-10))))
		}
		b.WriteString("\n" + f.input.View() + "\n")
	}
	return b.String()
}

// Run shows the wizard in the terminal and returns the node it produced.
func Run(ctx context.Context, backend Backend, opts ...Option) (workflow.MCPNodeData, error) {
	opts = append([]Option{WithContext(ctx)}, opts...)
	p := tea.NewProgram(New(backend, opts...), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	m, ok := final.(Model)
	if !ok || m.aborted || !m.done {
		return nil, ErrAborted
	}
	return m.result, nil
}
