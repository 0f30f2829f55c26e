// Package host answers studio requests arriving on a message bus. Each
// request runs in its own goroutine with a cancellable context; a
// CANCEL_REQUEST naming its id stops it and answers CANCELLED in its place.
// A cancel that arrives before its target is held briefly and applied when
// the target shows up.
package host

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ormasoftchile/wfstudio/pkg/channel"
	"github.com/ormasoftchile/wfstudio/pkg/mcpconfig"
	"github.com/ormasoftchile/wfstudio/pkg/metrics"
	"github.com/ormasoftchile/wfstudio/pkg/protocol"
	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

// Resolver looks up MCP server configuration.
type Resolver interface {
	Resolve(serverID, workspace string) (*mcpconfig.ResolvedServer, bool)
	ListServers(workspace string) []mcpconfig.ResolvedServer
}

// ToolCatalog discovers and caches server tools.
type ToolCatalog interface {
	Tools(ctx context.Context, server mcpconfig.ResolvedServer) ([]workflow.Tool, error)
	Tool(ctx context.Context, server mcpconfig.ResolvedServer, name string) (workflow.Tool, error)
	Refresh(serverID string) int
	RefreshAll() int
}

// Server is the host side of the studio protocol.
type Server struct {
	bus         channel.Bus
	resolver    Resolver
	tools       ToolCatalog
	store       *workflow.Store
	commandsDir string
	workspace   string
	metrics     *metrics.Collector
	log         zerolog.Logger
	now         func() time.Time

	mu       sync.Mutex
	inflight map[string]*request
	early    map[string]time.Time
	wg       sync.WaitGroup

	ready     chan struct{}
	readyOnce sync.Once
}

// earlyCancelTTL is how long a cancel for a request not yet seen is kept.
// The bus may deliver a CANCEL_REQUEST ahead of its target.
const earlyCancelTTL = 30 * time.Second

// request tracks one in-flight request. answered guarantees a single reply.
type request struct {
	cancel   context.CancelFunc
	answered sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithWorkspace sets the workspace used when a request names none.
func WithWorkspace(dir string) Option {
	return func(s *Server) { s.workspace = dir }
}

// WithStore sets the workflow store used by SAVE_WORKFLOW and LOAD_WORKFLOW.
func WithStore(store *workflow.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithCommandsDir sets where EXPORT_WORKFLOW writes slash commands.
func WithCommandsDir(dir string) Option {
	return func(s *Server) { s.commandsDir = dir }
}

// WithMetrics sets the collector that records handled requests.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithClock overrides the time source used for workflow timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New returns a server answering on bus.
func New(bus channel.Bus, resolver Resolver, tools ToolCatalog, opts ...Option) *Server {
	s := &Server{
		bus:      bus,
		resolver: resolver,
		tools:    tools,
		metrics:  metrics.NewCollector(),
		log:      zerolog.Nop(),
		now:      time.Now,
		inflight: make(map[string]*request),
		early:    make(map[string]time.Time),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics returns the server's collector.
func (s *Server) Metrics() *metrics.Collector {
	return s.metrics
}

// Ready is closed once Serve has subscribed to the bus.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Serve handles requests until ctx is done, then cancels whatever is still
// running and waits for it.
func (s *Server) Serve(ctx context.Context) error {
	unsubscribe := s.bus.OnMessage(func(msg protocol.Message) {
		s.dispatch(ctx, msg)
	})
	s.readyOnce.Do(func() { close(s.ready) })
	s.log.Info().Msg("host serving")

	<-ctx.Done()
	unsubscribe()

	s.mu.Lock()
	for _, r := range s.inflight {
		r.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()

	s.log.Info().Msg("host stopped")
	return nil
}

// dispatch routes one inbound message.
func (s *Server) dispatch(ctx context.Context, msg protocol.Message) {
	log := s.log.With().Str("requestId", msg.RequestID).Str("type", string(msg.Type)).Logger()

	if msg.Type == protocol.CancelRequest {
		s.handleCancel(msg, log)
		return
	}

	respType, ok := protocol.ResponseFor(msg.Type)
	if !ok {
		log.Warn().Msg("unknown request")
		s.metrics.Record(metrics.Event{
			Type: string(msg.Type), RequestID: msg.RequestID,
			Outcome: metrics.OutcomeFailure, ErrorCode: protocol.CodeUnknownRequest, At: s.now(),
		})
		s.send(protocol.Error, msg.RequestID, &protocol.ErrorInfo{
			Code:    protocol.CodeUnknownRequest,
			Message: "unknown request type " + string(msg.Type),
		}, log)
		return
	}

	reqCtx, cancel := context.WithCancel(ctx)
	r := &request{cancel: cancel}

	s.mu.Lock()
	if _, dup := s.inflight[msg.RequestID]; dup {
		s.mu.Unlock()
		cancel()
		log.Warn().Msg("duplicate request id ignored")
		return
	}
	if at, ok := s.early[msg.RequestID]; ok {
		delete(s.early, msg.RequestID)
		if s.now().Sub(at) < earlyCancelTTL {
			s.mu.Unlock()
			cancel()
			s.send(protocol.Cancelled, msg.RequestID, protocol.CancelledPayload{Reason: "cancelled by client"}, log)
			s.metrics.Record(metrics.Event{
				Type: string(msg.Type), RequestID: msg.RequestID,
				Outcome: metrics.OutcomeCancelled, At: s.now(),
			})
			log.Debug().Msg("request cancelled before dispatch")
			return
		}
	}
	s.inflight[msg.RequestID] = r
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.forget(msg.RequestID)
		defer cancel()

		started := s.now()
		payload, info := s.handle(reqCtx, msg)
		if info != nil {
			payload = protocol.Result{Error: info}
		}

		outcome, code := metrics.OutcomeSuccess, ""
		replied := false
		r.answered.Do(func() {
			replied = true
			s.send(respType, msg.RequestID, payload, log)
		})
		switch {
		case !replied:
			outcome = metrics.OutcomeCancelled
		case info != nil:
			outcome, code = metrics.OutcomeFailure, info.Code
		}

		elapsed := s.now().Sub(started)
		s.metrics.Record(metrics.Event{
			Type: string(msg.Type), RequestID: msg.RequestID,
			Outcome: outcome, ErrorCode: code, Duration: elapsed, At: started,
		})
		log.Debug().Str("outcome", string(outcome)).Dur("took", elapsed).Msg("request handled")
	}()
}

func (s *Server) forget(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

func (s *Server) handleCancel(msg protocol.Message, log zerolog.Logger) {
	var p protocol.CancelPayload
	if err := msg.Decode(&p); err != nil || p.TargetRequestID == "" {
		log.Debug().Msg("cancel without target ignored")
		return
	}

	s.mu.Lock()
	r, ok := s.inflight[p.TargetRequestID]
	if !ok {
		s.rememberEarly(p.TargetRequestID)
	}
	s.mu.Unlock()
	if !ok {
		log.Debug().Str("target", p.TargetRequestID).Msg("cancel target not in flight, held")
		return
	}

	r.answered.Do(func() {
		s.send(protocol.Cancelled, p.TargetRequestID, protocol.CancelledPayload{Reason: "cancelled by client"}, log)
	})
	r.cancel()
	log.Debug().Str("target", p.TargetRequestID).Msg("request cancelled")
}

// rememberEarly holds a cancel whose target has not been dispatched yet and
// drops expired ones. Callers hold s.mu.
func (s *Server) rememberEarly(id string) {
	now := s.now()
	for k, at := range s.early {
		if now.Sub(at) >= earlyCancelTTL {
			delete(s.early, k)
		}
	}
	s.early[id] = now
}

// handle runs the handler for a recognised request type.
func (s *Server) handle(ctx context.Context, msg protocol.Message) (interface{}, *protocol.ErrorInfo) {
	switch msg.Type {
	case protocol.ListMCPServers:
		return s.listServers(ctx, msg)
	case protocol.GetMCPTools:
		return s.getTools(ctx, msg)
	case protocol.GetMCPToolSchema:
		return s.getToolSchema(ctx, msg)
	case protocol.RefreshMCPCache:
		return s.refreshCache(ctx, msg)
	case protocol.SaveWorkflow:
		return s.saveWorkflow(ctx, msg)
	case protocol.LoadWorkflow:
		return s.loadWorkflow(ctx, msg)
	case protocol.ExportWorkflow:
		return s.exportWorkflow(ctx, msg)
	}
	return nil, &protocol.ErrorInfo{Code: protocol.CodeUnknownRequest, Message: "no handler for " + string(msg.Type)}
}

func (s *Server) send(t protocol.MessageType, requestID string, payload interface{}, log zerolog.Logger) {
	out, err := protocol.NewMessage(t, requestID, payload)
	if err != nil {
		log.Error().Err(err).Msg("encode response")
		out, _ = protocol.NewMessage(protocol.Error, requestID, &protocol.ErrorInfo{Code: protocol.CodeInternal, Message: err.Error()})
	}
	if err := s.bus.Send(out); err != nil {
		log.Warn().Err(err).Str("response", string(t)).Msg("send response")
	}
}

// decode unmarshals a request payload, mapping failures to INVALID_PAYLOAD.
func decode(msg protocol.Message, v interface{}) *protocol.ErrorInfo {
	if len(msg.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return &protocol.ErrorInfo{Code: protocol.CodeInvalidPayload, Message: err.Error()}
	}
	return nil
}
