package host

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ormasoftchile/wfstudio/pkg/channel"
	"github.com/ormasoftchile/wfstudio/pkg/mcpconfig"
	"github.com/ormasoftchile/wfstudio/pkg/mcptools"
	"github.com/ormasoftchile/wfstudio/pkg/metrics"
	"github.com/ormasoftchile/wfstudio/pkg/protocol"
	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

const projectConfig = `{
  "mcpServers": {
    "aws-knowledge-mcp": {
      "command": "uvx",
      "args": ["awslabs.aws-knowledge-mcp-server@latest"],
      "env": {"AWS_SECRET_ACCESS_KEY": "s3cret"}
    },
    "docs": {"type": "http", "url": "https://docs.example.com/mcp?token=abc"}
  }
}`

var regionalTool = workflow.Tool{
	Name:        "get_regional_availability",
	Description: "Regional availability of AWS services",
	Parameters:  []workflow.ToolParameter{{Name: "region", Type: "string", Required: true}},
}

// fakeDiscoverer serves a fixed tool list, optionally blocking until the
// context ends or a few seconds pass.
type fakeDiscoverer struct {
	tools   []workflow.Tool
	err     error
	block   bool
	started chan struct{}
	calls   atomic.Int32
}

func (d *fakeDiscoverer) ListTools(ctx context.Context, _ mcpconfig.ResolvedServer) ([]workflow.Tool, error) {
	d.calls.Add(1)
	if d.block {
		close(d.started)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return nil, errors.New("discovery gave up")
		}
	}
	return d.tools, d.err
}

type harness struct {
	ws      string
	ch      *channel.Channel
	ui      *channel.MemoryBus
	server  *Server
	disc    *fakeDiscoverer
	metrics *metrics.Collector
}

func newHarness(t *testing.T, disc *fakeDiscoverer) *harness {
	t.Helper()
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, mcpconfig.ProjectFileName), []byte(projectConfig), 0o644))

	if disc == nil {
		disc = &fakeDiscoverer{tools: []workflow.Tool{regionalTool}}
	}
	resolver := mcpconfig.NewResolver(mcpconfig.WithLegacyPath(filepath.Join(ws, "missing.json")))
	collector := metrics.NewCollector()

	ui, hostEnd := channel.NewPipe()
	srv := New(hostEnd, resolver, mcptools.NewCatalog(disc),
		WithWorkspace(ws),
		WithStore(workflow.NewStore(filepath.Join(ws, ".vscode", "workflows"))),
		WithCommandsDir(filepath.Join(ws, ".claude", "commands")),
		WithMetrics(collector),
		WithClock(func() time.Time { return testNow }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, srv.Serve(ctx))
	}()
	select {
	case <-srv.Ready():
	case <-time.After(time.Second):
		t.Fatal("host did not subscribe")
	}
	require.Equal(t, 1, hostEnd.Subscribers())

	t.Cleanup(func() {
		cancel()
		<-done
		_ = ui.Close()
		_ = hostEnd.Close()
	})

	return &harness{
		ws:      ws,
		ch:      channel.New(ui, channel.WithDefaultTimeout(2*time.Second)),
		ui:      ui,
		server:  srv,
		disc:    disc,
		metrics: collector,
	}
}

func (h *harness) send(t *testing.T, typ protocol.MessageType, payload, out interface{}) error {
	t.Helper()
	resp, err := h.ch.Send(context.Background(), typ, payload)
	if err != nil {
		return err
	}
	require.False(t, resp.Cancelled())
	if out != nil {
		require.NoError(t, resp.Decode(out))
	}
	return nil
}

func hostCode(t *testing.T, err error) string {
	t.Helper()
	var he *channel.HostError
	require.True(t, errors.As(err, &he), "expected host error, got %v", err)
	return he.Code
}

func sampleWorkflow(t *testing.T) *workflow.Workflow {
	t.Helper()
	w := workflow.New("aws-regions", "Check regional availability", testNow)
	m, err := w.AddMCPNode("", workflow.ManualParameterConfig{
		ServerID:         "aws-knowledge-mcp",
		ToolName:         regionalTool.Name,
		ToolDescription:  regionalTool.Description,
		Parameters:       regionalTool.Parameters,
		ParameterValues:  map[string]interface{}{"region": "us-east-1"},
		ValidationStatus: workflow.StatusValid,
	})
	require.NoError(t, err)
	_, err = w.Connect("start", m.ID, "")
	require.NoError(t, err)
	_, err = w.Connect(m.ID, "end", "")
	require.NoError(t, err)
	return w
}

func TestListServers_Redacted(t *testing.T) {
	h := newHarness(t, nil)

	var res protocol.ServersResult
	require.NoError(t, h.send(t, protocol.ListMCPServers, protocol.ListServersRequest{}, &res))
	require.True(t, res.Success)
	require.Len(t, res.Servers, 2)

	aws := res.Servers[0]
	assert.Equal(t, "aws-knowledge-mcp", aws.ID)
	assert.Equal(t, "project", aws.Scope)
	assert.Equal(t, "stdio", aws.Type)
	assert.Equal(t, "uvx", aws.Command)
	assert.Equal(t, map[string]string{"AWS_SECRET_ACCESS_KEY": mcpconfig.Mask}, aws.Env)

	docs := res.Servers[1]
	assert.Equal(t, "http", docs.Type)
	assert.Equal(t, "https://docs.example.com/mcp?token="+mcpconfig.Mask, docs.URL)
}

func TestGetTools(t *testing.T) {
	h := newHarness(t, nil)

	var res protocol.ToolsResult
	require.NoError(t, h.send(t, protocol.GetMCPTools, protocol.ToolsRequest{ServerID: "aws-knowledge-mcp"}, &res))
	assert.Equal(t, "aws-knowledge-mcp", res.ServerID)
	require.Len(t, res.Tools, 1)
	assert.Equal(t, regionalTool.Name, res.Tools[0].Name)

	require.NoError(t, h.send(t, protocol.GetMCPTools, protocol.ToolsRequest{ServerID: "aws-knowledge-mcp"}, &res))
	assert.Equal(t, int32(1), h.disc.calls.Load())
}

func TestRequestFailures(t *testing.T) {
	tests := []struct {
		name    string
		disc    *fakeDiscoverer
		typ     protocol.MessageType
		payload interface{}
		code    string
	}{
		{"missing server id", nil, protocol.GetMCPTools, protocol.ToolsRequest{}, protocol.CodeInvalidPayload},
		{"unknown server", nil, protocol.GetMCPTools, protocol.ToolsRequest{ServerID: "nope"}, protocol.CodeServerNotFound},
		{"discovery failure", &fakeDiscoverer{err: errors.New("spawn failed")}, protocol.GetMCPTools, protocol.ToolsRequest{ServerID: "docs"}, protocol.CodeDiscoveryFailed},
		{"unknown tool", nil, protocol.GetMCPToolSchema, protocol.ToolSchemaRequest{ServerID: "aws-knowledge-mcp", ToolName: "nope"}, protocol.CodeToolNotFound},
		{"missing tool name", nil, protocol.GetMCPToolSchema, protocol.ToolSchemaRequest{ServerID: "aws-knowledge-mcp"}, protocol.CodeInvalidPayload},
		{"malformed payload", nil, protocol.LoadWorkflow, []int{1, 2}, protocol.CodeInvalidPayload},
		{"missing workflow", nil, protocol.SaveWorkflow, protocol.SaveRequest{}, protocol.CodeInvalidPayload},
		{"load missing", nil, protocol.LoadWorkflow, protocol.LoadRequest{Name: "ghost"}, protocol.CodeIOError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.disc)
			err := h.send(t, tt.typ, tt.payload, nil)
			assert.Equal(t, tt.code, hostCode(t, err))
		})
	}
}

func TestGetToolSchema(t *testing.T) {
	h := newHarness(t, nil)

	var res protocol.ToolSchemaResult
	require.NoError(t, h.send(t, protocol.GetMCPToolSchema, protocol.ToolSchemaRequest{ServerID: "aws-knowledge-mcp", ToolName: regionalTool.Name}, &res))
	require.NotNil(t, res.Tool)
	assert.Equal(t, regionalTool.Parameters, res.Tool.Parameters)
}

func TestRefreshCache(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.send(t, protocol.GetMCPTools, protocol.ToolsRequest{ServerID: "aws-knowledge-mcp"}, nil))
	require.NoError(t, h.send(t, protocol.GetMCPTools, protocol.ToolsRequest{ServerID: "docs"}, nil))

	var res protocol.CacheRefreshed
	require.NoError(t, h.send(t, protocol.RefreshMCPCache, protocol.RefreshCacheRequest{ServerID: "docs"}, &res))
	assert.Equal(t, 1, res.Cleared)

	require.NoError(t, h.send(t, protocol.RefreshMCPCache, protocol.RefreshCacheRequest{}, &res))
	assert.Equal(t, 1, res.Cleared)
}

func TestSaveAndLoadWorkflow(t *testing.T) {
	h := newHarness(t, nil)
	w := sampleWorkflow(t)

	var saved protocol.SaveResult
	require.NoError(t, h.send(t, protocol.SaveWorkflow, protocol.SaveRequest{Workflow: w}, &saved))
	assert.Equal(t, filepath.Join(h.ws, ".vscode", "workflows", "aws-regions.json"), saved.Path)
	assert.FileExists(t, saved.Path)

	err := h.send(t, protocol.SaveWorkflow, protocol.SaveRequest{Workflow: w}, nil)
	assert.Equal(t, protocol.CodeIOError, hostCode(t, err))
	require.NoError(t, h.send(t, protocol.SaveWorkflow, protocol.SaveRequest{Workflow: w, Overwrite: true}, nil))

	var loaded protocol.LoadResult
	require.NoError(t, h.send(t, protocol.LoadWorkflow, protocol.LoadRequest{Name: "aws-regions"}, &loaded))
	require.NotNil(t, loaded.Workflow)
	assert.Equal(t, w.ID, loaded.Workflow.ID)
	assert.Len(t, loaded.Workflow.Nodes, 3)
	assert.True(t, testNow.Equal(loaded.Workflow.UpdatedAt))
}

func TestSaveWorkflow_Invalid(t *testing.T) {
	h := newHarness(t, nil)
	w := sampleWorkflow(t)
	w.Name = "not a slug"

	err := h.send(t, protocol.SaveWorkflow, protocol.SaveRequest{Workflow: w}, nil)
	var he *channel.HostError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, protocol.CodeWorkflowInvalid, he.Code)
	assert.NotNil(t, he.Details)
	assert.NoFileExists(t, filepath.Join(h.ws, ".vscode", "workflows", "not a slug.json"))
}

func TestExportWorkflow(t *testing.T) {
	h := newHarness(t, nil)
	w := sampleWorkflow(t)

	var preview protocol.ExportResult
	require.NoError(t, h.send(t, protocol.ExportWorkflow, protocol.ExportRequest{Workflow: w, Preview: true}, &preview))
	assert.Empty(t, preview.Path)
	assert.Contains(t, preview.Content, "```mermaid")
	assert.NoDirExists(t, filepath.Join(h.ws, ".claude"))

	var res protocol.ExportResult
	require.NoError(t, h.send(t, protocol.ExportWorkflow, protocol.ExportRequest{Workflow: w}, &res))
	assert.Equal(t, filepath.Join(h.ws, ".claude", "commands", "aws-regions.md"), res.Path)
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, preview.Content, string(data))
}

func TestUnknownRequest(t *testing.T) {
	h := newHarness(t, nil)

	got := make(chan protocol.Message, 1)
	unsubscribe := h.ui.OnMessage(func(m protocol.Message) { got <- m })
	defer unsubscribe()

	msg, err := protocol.NewMessage("RUN_WORKFLOW", "r-1", nil)
	require.NoError(t, err)
	require.NoError(t, h.ui.Send(msg))

	select {
	case m := <-got:
		assert.Equal(t, protocol.Error, m.Type)
		assert.Equal(t, "r-1", m.RequestID)
		var info protocol.ErrorInfo
		require.NoError(t, m.Decode(&info))
		assert.Equal(t, protocol.CodeUnknownRequest, info.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("no ERROR response")
	}

	require.Eventually(t, func() bool { return h.metrics.Len() == 1 }, time.Second, time.Millisecond)
}

func TestCancelRequest(t *testing.T) {
	disc := &fakeDiscoverer{block: true, started: make(chan struct{})}
	h := newHarness(t, disc)

	call := h.ch.Go(context.Background(), protocol.GetMCPTools, protocol.ToolsRequest{ServerID: "aws-knowledge-mcp"})
	select {
	case <-disc.started:
	case <-time.After(2 * time.Second):
		t.Fatal("discovery never started")
	}
	require.NoError(t, call.Cancel())

	resp, err := call.Wait()
	require.NoError(t, err)
	assert.True(t, resp.Cancelled())

	require.Eventually(t, func() bool { return h.metrics.Len() == 1 }, time.Second, time.Millisecond)
	events := h.metrics.Drain()
	assert.Equal(t, metrics.OutcomeCancelled, events[0].Outcome)
	assert.Equal(t, string(protocol.GetMCPTools), events[0].Type)
}

func TestCancelUnknownTargetIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	msg, err := protocol.NewMessage(protocol.CancelRequest, "c-1", protocol.CancelPayload{TargetRequestID: "ghost"})
	require.NoError(t, err)
	require.NoError(t, h.ui.Send(msg))

	require.NoError(t, h.send(t, protocol.ListMCPServers, nil, nil))
	require.Eventually(t, func() bool { return h.metrics.Len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, metrics.OutcomeSuccess, h.metrics.Drain()[0].Outcome)
}

func TestCancelBeforeTargetArrives(t *testing.T) {
	h := newHarness(t, nil)

	got := make(chan protocol.Message, 1)
	unsubscribe := h.ui.OnMessage(func(m protocol.Message) { got <- m })
	defer unsubscribe()

	cancelMsg, err := protocol.NewMessage(protocol.CancelRequest, "c-1", protocol.CancelPayload{TargetRequestID: "r-early"})
	require.NoError(t, err)
	require.NoError(t, h.ui.Send(cancelMsg))
	require.Eventually(t, func() bool {
		h.server.mu.Lock()
		defer h.server.mu.Unlock()
		_, held := h.server.early["r-early"]
		return held
	}, time.Second, time.Millisecond)

	req, err := protocol.NewMessage(protocol.GetMCPTools, "r-early", protocol.ToolsRequest{ServerID: "aws-knowledge-mcp"})
	require.NoError(t, err)
	require.NoError(t, h.ui.Send(req))

	select {
	case m := <-got:
		assert.Equal(t, protocol.Cancelled, m.Type)
		assert.Equal(t, "r-early", m.RequestID)
	case <-time.After(2 * time.Second):
		t.Fatal("no CANCELLED response")
	}
	assert.Equal(t, int32(0), h.disc.calls.Load())

	require.Eventually(t, func() bool { return h.metrics.Len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, metrics.OutcomeCancelled, h.metrics.Drain()[0].Outcome)

	h.server.mu.Lock()
	assert.Empty(t, h.server.early)
	h.server.mu.Unlock()
}

func TestExpiredEarlyCancelIsDropped(t *testing.T) {
	h := newHarness(t, nil)

	h.server.mu.Lock()
	h.server.early["r-late"] = testNow.Add(-2 * earlyCancelTTL)
	h.server.mu.Unlock()

	got := make(chan protocol.Message, 1)
	unsubscribe := h.ui.OnMessage(func(m protocol.Message) { got <- m })
	defer unsubscribe()

	req, err := protocol.NewMessage(protocol.ListMCPServers, "r-late", nil)
	require.NoError(t, err)
	require.NoError(t, h.ui.Send(req))

	select {
	case m := <-got:
		assert.Equal(t, protocol.MCPServersResult, m.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no MCP_SERVERS_RESULT response")
	}
}

func TestMetricsRecordOutcomes(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.send(t, protocol.ListMCPServers, nil, nil))
	_ = h.send(t, protocol.GetMCPTools, protocol.ToolsRequest{ServerID: "nope"}, nil)

	require.Eventually(t, func() bool { return h.metrics.Len() == 2 }, time.Second, time.Millisecond)
	byType := map[string]metrics.Event{}
	for _, e := range h.metrics.Drain() {
		byType[e.Type] = e
	}
	assert.Equal(t, metrics.OutcomeSuccess, byType[string(protocol.ListMCPServers)].Outcome)
	assert.Equal(t, metrics.OutcomeFailure, byType[string(protocol.GetMCPTools)].Outcome)
	assert.Equal(t, protocol.CodeServerNotFound, byType[string(protocol.GetMCPTools)].ErrorCode)
}
