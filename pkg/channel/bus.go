// Package channel correlates requests and responses exchanged over a shared,
// unordered message bus. Every request carries a fresh requestId; the first
// recognised response bearing that id terminates the call.
package channel

import (
	"errors"
	"sync"

	"github.com/ormasoftchile/wfstudio/pkg/protocol"
)

// ErrClosed is returned when sending on a closed bus.
var ErrClosed = errors.New("bus closed")

// Bus is the shared event stream between a UI surface and the host. Every
// subscriber sees every inbound message.
type Bus interface {
	Send(msg protocol.Message) error
	OnMessage(fn func(protocol.Message)) (unsubscribe func())
}

// subscribers is a listener registry safe for concurrent use.
type subscribers struct {
	mu       sync.Mutex
	next     int
	handlers map[int]func(protocol.Message)
}

func (s *subscribers) add(fn func(protocol.Message)) func() {
	s.mu.Lock()
	if s.handlers == nil {
		s.handlers = make(map[int]func(protocol.Message))
	}
	id := s.next
	s.next++
	s.handlers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.handlers, id)
			s.mu.Unlock()
		})
	}
}

func (s *subscribers) dispatch(msg protocol.Message) {
	s.mu.Lock()
	fns := make([]func(protocol.Message), 0, len(s.handlers))
	for _, fn := range s.handlers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

func (s *subscribers) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// MemoryBus is one end of an in-process pipe. Messages sent on one end are
// delivered to the other end's subscribers on their own goroutine, so
// delivery order is not guaranteed.
type MemoryBus struct {
	peer *MemoryBus
	subs subscribers

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPipe returns two connected ends: typically the UI end and the host end.
func NewPipe() (*MemoryBus, *MemoryBus) {
	a, b := &MemoryBus{}, &MemoryBus{}
	a.peer, b.peer = b, a
	return a, b
}

// Send delivers msg to the peer's subscribers asynchronously.
func (b *MemoryBus) Send(msg protocol.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	peer := b.peer
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		peer.subs.dispatch(msg)
	}()
	return nil
}

// OnMessage subscribes fn to messages sent by the peer.
func (b *MemoryBus) OnMessage(fn func(protocol.Message)) func() {
	return b.subs.add(fn)
}

// Subscribers returns the number of active listeners on this end.
func (b *MemoryBus) Subscribers() int {
	return b.subs.len()
}

// Close stops this end from sending and waits for in-flight deliveries.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}
