package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ormasoftchile/wfstudio/pkg/protocol"
	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

// fakeHost answers every message on host with whatever respond returns.
func fakeHost(t *testing.T, host Bus, respond func(protocol.Message) []protocol.Message) {
	t.Helper()
	unsubscribe := host.OnMessage(func(m protocol.Message) {
		for _, r := range respond(m) {
			_ = host.Send(r)
		}
	})
	t.Cleanup(unsubscribe)
}

func reply(t *testing.T, typ protocol.MessageType, id string, payload interface{}) protocol.Message {
	t.Helper()
	msg, err := protocol.NewMessage(typ, id, payload)
	require.NoError(t, err)
	return msg
}

func TestSend_Success(t *testing.T) {
	ui, host := NewPipe()
	fakeHost(t, host, func(m protocol.Message) []protocol.Message {
		var req protocol.ToolsRequest
		require.NoError(t, m.Decode(&req))
		return []protocol.Message{reply(t, protocol.MCPToolsResult, m.RequestID, protocol.ToolsResult{
			Result:   protocol.Success(),
			ServerID: req.ServerID,
			Tools:    []workflow.Tool{{Name: "get_regional_availability"}},
		})}
	})

	resp, err := New(ui).Send(context.Background(), protocol.GetMCPTools, protocol.ToolsRequest{ServerID: "aws-knowledge-mcp"})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, resp.Status)
	assert.False(t, resp.Cancelled())

	var res protocol.ToolsResult
	require.NoError(t, resp.Decode(&res))
	assert.Equal(t, "aws-knowledge-mcp", res.ServerID)
	require.Len(t, res.Tools, 1)
	assert.Equal(t, 0, ui.Subscribers(), "listener must be removed after resolution")
}

func TestSend_HostFailures(t *testing.T) {
	tests := []struct {
		name     string
		respond  func(id string) protocol.Message
		wantCode string
	}{
		{
			name: "typed result with success false",
			respond: func(id string) protocol.Message {
				return reply(t, protocol.MCPToolsResult, id, protocol.ToolsResult{
					Result: protocol.Failure(protocol.CodeServerNotFound, "no such server", nil),
				})
			},
			wantCode: protocol.CodeServerNotFound,
		},
		{
			name: "generic ERROR",
			respond: func(id string) protocol.Message {
				return reply(t, protocol.Error, id, protocol.ErrorInfo{Code: protocol.CodeDiscoveryFailed, Message: "boom", Details: "stderr"})
			},
			wantCode: protocol.CodeDiscoveryFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ui, host := NewPipe()
			fakeHost(t, host, func(m protocol.Message) []protocol.Message {
				return []protocol.Message{tt.respond(m.RequestID)}
			})

			_, err := New(ui).Send(context.Background(), protocol.GetMCPTools, protocol.ToolsRequest{ServerID: "x"})
			var hostErr *HostError
			require.ErrorAs(t, err, &hostErr)
			assert.Equal(t, tt.wantCode, hostErr.Code)
			assert.Equal(t, protocol.GetMCPTools, hostErr.Type)
			assert.False(t, errors.Is(err, ErrTimeout))
		})
	}
}

func TestSend_TimeoutIsDistinct(t *testing.T) {
	assert.Equal(t, 30000*time.Millisecond, DefaultTimeout)

	ui, _ := NewPipe()
	ch := New(ui)

	start := time.Now()
	_, err := ch.Send(context.Background(), protocol.GetMCPToolSchema, protocol.ToolSchemaRequest{ServerID: "s", ToolName: "t"},
		WithTimeout(40*time.Millisecond))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 40*time.Millisecond, timeoutErr.After)
	var hostErr *HostError
	assert.False(t, errors.As(err, &hostErr))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, 0, ui.Subscribers())
}

func TestSend_DefaultTimeoutOption(t *testing.T) {
	ui, _ := NewPipe()
	_, err := New(ui, WithDefaultTimeout(20*time.Millisecond)).Send(context.Background(), protocol.ListMCPServers, nil)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestCall_Cancel(t *testing.T) {
	ui, host := NewPipe()
	cancelSeen := make(chan string, 1)
	fakeHost(t, host, func(m protocol.Message) []protocol.Message {
		if m.Type != protocol.CancelRequest {
			return nil // work never finishes on its own
		}
		var p protocol.CancelPayload
		require.NoError(t, m.Decode(&p))
		cancelSeen <- p.TargetRequestID
		return []protocol.Message{reply(t, protocol.Cancelled, p.TargetRequestID, protocol.CancelledPayload{Reason: "user"})}
	})

	call := New(ui).Go(context.Background(), protocol.RefreshMCPCache, protocol.RefreshCacheRequest{}, WithTimeout(5*time.Second))
	require.NoError(t, call.Cancel())

	resp, err := call.Wait()
	require.NoError(t, err, "cancellation is not an error")
	assert.True(t, resp.Cancelled())
	assert.Equal(t, call.ID, <-cancelSeen)

	// cancelling a finished call is a no-op
	assert.NoError(t, call.Cancel())
}

func TestSend_IgnoresUnrecognisedAndForeignMessages(t *testing.T) {
	ui, host := NewPipe()
	fakeHost(t, host, func(m protocol.Message) []protocol.Message {
		return []protocol.Message{
			{Type: "PROGRESS", RequestID: m.RequestID},
			reply(t, protocol.MCPCacheRefreshed, "someone-else", protocol.CacheRefreshed{Result: protocol.Success(), Cleared: 99}),
		}
	})

	call := New(ui).Go(context.Background(), protocol.RefreshMCPCache, protocol.RefreshCacheRequest{}, WithTimeout(100*time.Millisecond))
	_, err := call.Wait()
	assert.ErrorIs(t, err, ErrTimeout, "neither message may resolve the call")
}

func TestSend_ExactlyOneTermination(t *testing.T) {
	ui, host := NewPipe()
	fakeHost(t, host, func(m protocol.Message) []protocol.Message {
		return []protocol.Message{
			reply(t, protocol.MCPCacheRefreshed, m.RequestID, protocol.CacheRefreshed{Result: protocol.Success(), Cleared: 1}),
			reply(t, protocol.Error, m.RequestID, protocol.ErrorInfo{Code: protocol.CodeInternal, Message: "late"}),
			reply(t, protocol.Cancelled, m.RequestID, nil),
		}
	})

	call := New(ui).Go(context.Background(), protocol.RefreshMCPCache, protocol.RefreshCacheRequest{})
	resp, err := call.Wait()
	time.Sleep(20 * time.Millisecond)
	resp2, err2 := call.Wait()

	assert.Equal(t, resp, resp2)
	assert.Equal(t, err, err2)
}

func TestSend_ConcurrentCallsAreIndependent(t *testing.T) {
	ui, host := NewPipe()
	fakeHost(t, host, func(m protocol.Message) []protocol.Message {
		var req protocol.ToolsRequest
		require.NoError(t, m.Decode(&req))
		return []protocol.Message{reply(t, protocol.MCPToolsResult, m.RequestID, protocol.ToolsResult{
			Result:   protocol.Success(),
			ServerID: req.ServerID,
		})}
	})
	ch := New(ui)

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("server-%d", i)
			resp, err := ch.Send(context.Background(), protocol.GetMCPTools, protocol.ToolsRequest{ServerID: want}, WithTimeout(2*time.Second))
			if err != nil {
				errs <- err
				return
			}
			var res protocol.ToolsResult
			if err := resp.Decode(&res); err != nil {
				errs <- err
				return
			}
			if res.ServerID != want {
				errs <- fmt.Errorf("call for %s got %s", want, res.ServerID)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, 0, ui.Subscribers())
}

func TestSend_ContextCancelled(t *testing.T) {
	ui, host := NewPipe()
	cancels := make(chan struct{}, 1)
	fakeHost(t, host, func(m protocol.Message) []protocol.Message {
		if m.Type == protocol.CancelRequest {
			cancels <- struct{}{}
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	call := New(ui).Go(ctx, protocol.GetMCPTools, protocol.ToolsRequest{ServerID: "s"})
	cancel()

	_, err := call.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrTimeout))

	select {
	case <-cancels:
	case <-time.After(time.Second):
		t.Fatal("host never received CANCEL_REQUEST")
	}
}

func TestGo_RejectsNonRequestTypes(t *testing.T) {
	ui, _ := NewPipe()
	_, err := New(ui).Send(context.Background(), protocol.MCPToolsResult, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a request type")
}

func TestSend_ClosedBus(t *testing.T) {
	ui, _ := NewPipe()
	require.NoError(t, ui.Close())

	_, err := New(ui).Send(context.Background(), protocol.ListMCPServers, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewRequestID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewRequestID()
		require.Regexp(t, `^\d{13}-[0-9a-f]{12}$`, id)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestStreamBus_RoundTrip(t *testing.T) {
	uiIn, hostOut := io.Pipe()
	hostIn, uiOut := io.Pipe()

	ui := NewStreamBus(uiIn, uiOut, zerolog.Nop())
	host := NewStreamBus(hostIn, hostOut, zerolog.Nop())
	go func() { _ = ui.Listen() }()
	go func() { _ = host.Listen() }()
	t.Cleanup(func() {
		uiOut.Close()
		hostOut.Close()
	})

	fakeHost(t, host, func(m protocol.Message) []protocol.Message {
		return []protocol.Message{reply(t, protocol.WorkflowLoaded, m.RequestID, protocol.LoadResult{Result: protocol.Success()})}
	})

	resp, err := New(ui).Send(context.Background(), protocol.LoadWorkflow, protocol.LoadRequest{Name: "demo"}, WithTimeout(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, protocol.WorkflowLoaded, resp.Type)
}

func TestStreamBus_SkipsMalformedLines(t *testing.T) {
	r, w := io.Pipe()
	bus := NewStreamBus(r, io.Discard, zerolog.Nop())

	got := make(chan protocol.Message, 4)
	bus.OnMessage(func(m protocol.Message) { got <- m })
	go func() { _ = bus.Listen() }()

	_, err := io.WriteString(w, "not json\n\n{\"requestId\":\"x\"}\n{\"type\":\"CANCELLED\",\"requestId\":\"r1\"}\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	<-bus.Done()
	require.Len(t, got, 1)
	m := <-got
	assert.Equal(t, protocol.Cancelled, m.Type)
	assert.Equal(t, "r1", m.RequestID)
}
