package tui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ormasoftchile/wfstudio/pkg/protocol"
	"github.com/ormasoftchile/wfstudio/pkg/wizard"
	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

type fakeBackend struct {
	mu         sync.Mutex
	servers    []protocol.ServerInfo
	tools      map[string][]workflow.Tool
	serversErr error
	toolCalls  []string
}

func (f *fakeBackend) ListServers(context.Context) ([]protocol.ServerInfo, error) {
	return f.servers, f.serversErr
}

func (f *fakeBackend) Tools(_ context.Context, serverID string) ([]workflow.Tool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toolCalls = append(f.toolCalls, serverID)
	tools, ok := f.tools[serverID]
	if !ok {
		return nil, errors.New("discovery failed")
	}
	return tools, nil
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		servers: []protocol.ServerInfo{
			{ID: "aws", Name: "aws", Scope: "project", Type: "stdio", Command: "uvx"},
			{ID: "docs", Name: "docs", Scope: "user", Type: "http", URL: "https://docs.example.com/mcp"},
		},
		tools: map[string][]workflow.Tool{
			"aws": {
				{Name: "list_regions", Description: "List AWS regions"},
				{Name: "describe", Description: "Describe a resource", Parameters: []workflow.ToolParameter{
					{Name: "region", Type: "string", Required: true},
					{Name: "limit", Type: "integer"},
				}},
			},
			"docs": {{Name: "search", Description: "Search the docs"}},
		},
	}
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// exec runs cmd and returns the messages it produces. Commands that block,
// such as cursor blinks, are abandoned after a short wait.
func exec(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()
	var msg tea.Msg
	select {
	case msg = <-ch:
	case <-time.After(50 * time.Millisecond):
		return nil
	}
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, exec(c)...)
		}
		return out
	}
	if msg == nil {
		return nil
	}
	return []tea.Msg{msg}
}

type harness struct {
	t    *testing.T
	m    Model
	quit bool
}

func newHarness(t *testing.T, backend Backend, opts ...Option) *harness {
	h := &harness{t: t, m: New(backend, append([]Option{WithClock(func() time.Time { return testNow })}, opts...)...)}
	h.feed(exec(h.m.Init()))
	return h
}

// send delivers msg and then everything its command produces that the model
// itself consumes.
func (h *harness) send(msg tea.Msg) {
	next, cmd := h.m.Update(msg)
	m, ok := next.(Model)
	require.True(h.t, ok)
	h.m = m
	h.feed(exec(cmd))
}

func (h *harness) feed(msgs []tea.Msg) {
	for _, msg := range msgs {
		switch msg.(type) {
		case tea.QuitMsg:
			h.quit = true
		case serversLoadedMsg, toolsLoadedMsg:
			h.send(msg)
		}
	}
}

func (h *harness) key(t tea.KeyType) { h.send(tea.KeyMsg{Type: t}) }

func (h *harness) typeText(s string) {
	h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

func TestManualFlow(t *testing.T) {
	h := newHarness(t, newFakeBackend())
	require.Len(t, h.m.servers, 2)
	assert.Contains(t, h.m.View(), "Select an MCP server")

	h.key(tea.KeyEnter)
	require.Equal(t, wizard.StepToolSelectionMethod, h.m.wiz.Step())
	require.Len(t, h.m.tools, 2, "tools load after the server is chosen")

	h.key(tea.KeyUp)
	h.key(tea.KeyEnter)
	require.Equal(t, wizard.StepToolSelection, h.m.wiz.Step())

	h.key(tea.KeyDown)
	h.key(tea.KeyEnter)
	require.Equal(t, wizard.StepParameterConfigMethod, h.m.wiz.Step())
	require.Equal(t, "describe", h.m.wiz.Tool().Name)

	h.key(tea.KeyUp)
	h.key(tea.KeyEnter)
	require.Equal(t, wizard.StepParameterDetailedConfig, h.m.wiz.Step())
	require.Len(t, h.m.fields, 2)
	assert.Contains(t, h.m.View(), "Arguments for describe")

	h.typeText("us-east-1")
	h.key(tea.KeyTab)
	h.typeText("5")
	h.key(tea.KeyEnter)

	require.True(t, h.quit)
	data, ok := h.m.Result()
	require.True(t, ok)
	manual, ok := data.(workflow.ManualParameterConfig)
	require.True(t, ok)
	assert.Equal(t, "aws", manual.ServerID)
	assert.Equal(t, "describe", manual.ToolName)
	assert.Equal(t, map[string]interface{}{"region": "us-east-1", "limit": int64(5)}, manual.ParameterValues)
	assert.Contains(t, h.m.View(), "MCP node ready")
}

func TestAutoToolFlow(t *testing.T) {
	h := newHarness(t, newFakeBackend())

	h.key(tea.KeyEnter)
	h.key(tea.KeyEnter)
	require.Equal(t, wizard.StepNaturalLanguageTask, h.m.wiz.Step())

	h.key(tea.KeyEnter)
	assert.False(t, h.quit)
	assert.Contains(t, h.m.View(), "Describe the task the agent should accomplish.")

	h.typeText("Find the regions with the lowest latency")
	h.key(tea.KeyEnter)

	require.True(t, h.quit)
	data, ok := h.m.Result()
	require.True(t, ok)
	sel, ok := data.(workflow.AIToolSelection)
	require.True(t, ok)
	assert.Equal(t, "Find the regions with the lowest latency", sel.AIToolSelectionConfig.TaskDescription)
	assert.Len(t, sel.AIToolSelectionConfig.AvailableTools, 2)
	assert.Equal(t, testNow, sel.AIToolSelectionConfig.Timestamp)
}

func TestAIParameterFlow(t *testing.T) {
	h := newHarness(t, newFakeBackend())

	h.key(tea.KeyEnter)
	h.key(tea.KeyUp)
	h.key(tea.KeyEnter)
	h.key(tea.KeyEnter) // first tool
	h.key(tea.KeyEnter) // auto parameters
	require.Equal(t, wizard.StepNaturalLanguageParam, h.m.wiz.Step())

	h.typeText("Use every region")
	h.key(tea.KeyEnter)

	data, ok := h.m.Result()
	require.True(t, ok)
	ai, ok := data.(workflow.AIParameterConfig)
	require.True(t, ok)
	assert.Equal(t, "list_regions", ai.ToolName)
	assert.Equal(t, "Use every region", ai.AIParameterConfig.Description)
}

func TestServerGate(t *testing.T) {
	backend := newFakeBackend()
	backend.servers = nil
	h := newHarness(t, backend)

	assert.Contains(t, h.m.View(), "No MCP servers are configured.")
	h.key(tea.KeyEnter)
	assert.Equal(t, wizard.StepServerSelection, h.m.wiz.Step())
	assert.Contains(t, h.m.View(), "Select an MCP server to continue.")
}

func TestInvalidArgumentKeepsForm(t *testing.T) {
	h := newHarness(t, newFakeBackend())
	h.key(tea.KeyEnter)
	h.key(tea.KeyUp)
	h.key(tea.KeyEnter)
	h.key(tea.KeyDown)
	h.key(tea.KeyEnter)
	h.key(tea.KeyUp)
	h.key(tea.KeyEnter)

	h.typeText("us-east-1")
	h.key(tea.KeyTab)
	h.typeText("lots")
	h.key(tea.KeyEnter)

	assert.False(t, h.quit)
	_, done := h.m.Result()
	assert.False(t, done)
	assert.Contains(t, h.m.errMsg, "is not an integer")
}

func TestStaleToolsAreDropped(t *testing.T) {
	backend := newFakeBackend()
	h := newHarness(t, backend)

	// Select aws without delivering its tools.
	next, cmd := h.m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	h.m = next.(Model)
	stale := exec(cmd)
	require.NotEmpty(t, stale)

	h.key(tea.KeyEsc)
	h.key(tea.KeyDown)
	h.key(tea.KeyEnter)
	require.Equal(t, "docs", h.m.wiz.Server().ID)
	require.Len(t, h.m.tools, 1)

	h.feed(stale)
	require.Len(t, h.m.tools, 1)
	assert.Equal(t, "search", h.m.tools[0].Name)
	assert.Equal(t, "docs", h.m.toolsServer)
}

func TestToolLoadFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.servers = append(backend.servers, protocol.ServerInfo{ID: "broken", Name: "broken", Type: "stdio"})
	h := newHarness(t, backend)

	h.key(tea.KeyDown)
	h.key(tea.KeyDown)
	h.key(tea.KeyEnter)
	assert.Contains(t, h.m.View(), "Loading tools failed: discovery failed")
}

func TestServersLoadFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.serversErr = errors.New("config unreadable")
	h := newHarness(t, backend)
	assert.Contains(t, h.m.View(), "Loading servers failed: config unreadable")
}

func TestAbort(t *testing.T) {
	tests := []struct {
		name string
		key  tea.KeyType
	}{
		{name: "esc at first step", key: tea.KeyEsc},
		{name: "ctrl+c", key: tea.KeyCtrlC},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, newFakeBackend())
			h.key(tt.key)
			assert.True(t, h.quit)
			assert.True(t, h.m.aborted)
			_, done := h.m.Result()
			assert.False(t, done)
		})
	}
}

func TestBackKeepsSelection(t *testing.T) {
	h := newHarness(t, newFakeBackend())
	h.key(tea.KeyEnter)
	h.key(tea.KeyEsc)
	require.Equal(t, wizard.StepServerSelection, h.m.wiz.Step())
	assert.Equal(t, "aws", h.m.wiz.Server().ID)

	calls := len(h.m.backend.(*fakeBackend).toolCalls)
	h.key(tea.KeyEnter)
	assert.Len(t, h.m.backend.(*fakeBackend).toolCalls, calls, "same server does not reload tools")
}

func TestEditManualNode(t *testing.T) {
	backend := newFakeBackend()
	node := workflow.ManualParameterConfig{
		ServerID: "aws",
		ToolName: "describe",
		Parameters: []workflow.ToolParameter{
			{Name: "region", Type: "string", Required: true},
			{Name: "limit", Type: "integer"},
		},
		ParameterValues: map[string]interface{}{"region": "eu-west-1", "limit": int64(3)},
	}
	w, err := wizard.Edit(node, "")
	require.NoError(t, err)

	h := newHarness(t, backend, WithWizard(w))
	require.Equal(t, wizard.StepParameterDetailedConfig, h.m.wiz.Step())
	require.Len(t, h.m.fields, 2)
	assert.Equal(t, "eu-west-1", h.m.fields[0].input.Value())
	assert.Equal(t, "3", h.m.fields[1].input.Value())
	assert.Equal(t, []string{"aws"}, backend.toolCalls)

	h.key(tea.KeyEnter)
	data, ok := h.m.Result()
	require.True(t, ok)
	assert.Equal(t, node.ParameterValues, data.(workflow.ManualParameterConfig).ParameterValues)
}

func TestHeaderProgress(t *testing.T) {
	h := newHarness(t, newFakeBackend())
	h.send(tea.WindowSizeMsg{Width: 100, Height: 30})
	assert.Contains(t, h.m.View(), "1/3")

	h.key(tea.KeyEnter)
	view := h.m.View()
	assert.Contains(t, view, "2/3")
	assert.Contains(t, view, "New MCP node · aws")
}
