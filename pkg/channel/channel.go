package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ormasoftchile/wfstudio/pkg/protocol"
)

// DefaultTimeout bounds a call when no WithTimeout option is given.
const DefaultTimeout = 30 * time.Second

// ErrTimeout matches every *TimeoutError via errors.Is.
var ErrTimeout = errors.New("request timed out")

// TimeoutError reports a call that received no response in time.
type TimeoutError struct {
	Type      protocol.MessageType
	RequestID string
	After     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s: no response after %s", e.Type, e.RequestID, e.After)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// HostError is a failure reported by the host, either as an ERROR message or
// as a typed result with success=false.
type HostError struct {
	Type      protocol.MessageType
	RequestID string
	Code      string
	Message   string
	Details   interface{}
}

func (e *HostError) Error() string {
	return fmt.Sprintf("%s failed: [%s] %s", e.Type, e.Code, e.Message)
}

// Status describes how a call without error terminated.
type Status string

const (
	StatusOK        Status = "ok"
	StatusCancelled Status = "cancelled"
)

// Response is the terminal message of a successful or cancelled call.
type Response struct {
	Type      protocol.MessageType
	RequestID string
	Status    Status
	Payload   json.RawMessage
}

// Cancelled reports whether the host confirmed cancellation.
func (r *Response) Cancelled() bool {
	return r.Status == StatusCancelled
}

// Decode unmarshals the response payload into v.
func (r *Response) Decode(v interface{}) error {
	return protocol.Message{Type: r.Type, RequestID: r.RequestID, Payload: r.Payload}.Decode(v)
}

// Option configures a Channel.
type Option func(*Channel)

// WithDefaultTimeout replaces DefaultTimeout for every call on the channel.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Channel) { c.timeout = d }
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Channel) { c.log = l }
}

// CallOption configures one call.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
}

// WithTimeout bounds one call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// Channel issues requests over a Bus and correlates their responses.
// It is safe for concurrent use; each call is tracked independently.
type Channel struct {
	bus     Bus
	timeout time.Duration
	log     zerolog.Logger
}

// New returns a channel over bus.
func New(bus Bus, opts ...Option) *Channel {
	c := &Channel{
		bus:     bus,
		timeout: DefaultTimeout,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRequestID returns "<unix-millis>-<random>".
func NewRequestID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), suffix)
}

// Send issues a request and waits for it to terminate.
func (c *Channel) Send(ctx context.Context, t protocol.MessageType, payload interface{}, opts ...CallOption) (*Response, error) {
	return c.Go(ctx, t, payload, opts...).Wait()
}

// Go issues a request and returns immediately. The call terminates on the
// first of: the typed response, an ERROR, CANCELLED, the timeout, or ctx
// being done. Any other message bearing the request id is ignored.
func (c *Channel) Go(ctx context.Context, t protocol.MessageType, payload interface{}, opts ...CallOption) *Call {
	o := callOptions{timeout: c.timeout}
	for _, opt := range opts {
		opt(&o)
	}

	call := &Call{
		ID:   NewRequestID(),
		Type: t,
		ch:   c,
		done: make(chan struct{}),
	}

	expect, ok := protocol.ResponseFor(t)
	if !ok {
		call.finish(nil, fmt.Errorf("%s is not a request type", t))
		return call
	}
	msg, err := protocol.NewMessage(t, call.ID, payload)
	if err != nil {
		call.finish(nil, err)
		return call
	}

	log := c.log.With().Str("requestId", call.ID).Str("type", string(t)).Logger()
	call.unsubscribe = c.bus.OnMessage(func(in protocol.Message) {
		if in.RequestID != call.ID {
			return
		}
		switch in.Type {
		case expect:
			var res protocol.Result
			if err := in.Decode(&res); err != nil {
				log.Debug().Err(err).Msg("ignoring undecodable response")
				return
			}
			if info := res.Failed(); info != nil {
				call.finish(nil, hostError(call, info))
				return
			}
			call.finish(&Response{Type: in.Type, RequestID: call.ID, Status: StatusOK, Payload: in.Payload}, nil)
		case protocol.Error:
			var info protocol.ErrorInfo
			if err := in.Decode(&info); err != nil {
				info = protocol.ErrorInfo{Code: protocol.CodeInternal, Message: "malformed error payload"}
			}
			call.finish(nil, hostError(call, &info))
		case protocol.Cancelled:
			call.finish(&Response{Type: in.Type, RequestID: call.ID, Status: StatusCancelled, Payload: in.Payload}, nil)
		default:
			log.Debug().Str("got", string(in.Type)).Msg("ignoring unrecognised response type")
		}
	})

	go call.watch(ctx, o.timeout)

	log.Debug().Dur("timeout", o.timeout).Msg("request sent")
	if err := c.bus.Send(msg); err != nil {
		call.finish(nil, fmt.Errorf("send %s: %w", t, err))
	}
	return call
}

func hostError(call *Call, info *protocol.ErrorInfo) *HostError {
	return &HostError{
		Type:      call.Type,
		RequestID: call.ID,
		Code:      info.Code,
		Message:   info.Message,
		Details:   info.Details,
	}
}

// Call is one outstanding request.
type Call struct {
	ID   string
	Type protocol.MessageType

	ch          *Channel
	unsubscribe func()

	once sync.Once
	done chan struct{}
	resp *Response
	err  error
}

// Done is closed when the call terminates.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call terminates.
func (c *Call) Wait() (*Response, error) {
	<-c.done
	return c.resp, c.err
}

// Cancel asks the host to stop work on this call. The call itself resolves
// when the host answers CANCELLED, or by timeout.
func (c *Call) Cancel() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	msg, err := protocol.NewMessage(protocol.CancelRequest, NewRequestID(), protocol.CancelPayload{TargetRequestID: c.ID})
	if err != nil {
		return err
	}
	if err := c.ch.bus.Send(msg); err != nil {
		return fmt.Errorf("send cancel for %s: %w", c.ID, err)
	}
	return nil
}

func (c *Call) watch(ctx context.Context, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		c.ch.log.Warn().Str("requestId", c.ID).Str("type", string(c.Type)).Dur("after", timeout).Msg("request timed out")
		c.finish(nil, &TimeoutError{Type: c.Type, RequestID: c.ID, After: timeout})
	case <-ctx.Done():
		_ = c.Cancel()
		c.finish(nil, ctx.Err())
	case <-c.done:
	}
}

func (c *Call) finish(resp *Response, err error) {
	c.once.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.resp, c.err = resp, err
		close(c.done)
	})
}
