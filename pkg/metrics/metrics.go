// Package metrics collects per-request events for one host session.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// Outcome classifies how a request ended.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
)

// Event records one handled request.
type Event struct {
	Type      string        `json:"type"`
	RequestID string        `json:"requestId"`
	Outcome   Outcome       `json:"outcome"`
	ErrorCode string        `json:"errorCode,omitempty"`
	Duration  time.Duration `json:"duration"`
	At        time.Time     `json:"at"`
}

// DefaultCapacity bounds a collector created without WithCapacity.
const DefaultCapacity = 1024

// Collector is a bounded, concurrency-safe event buffer. When full, the
// oldest event is dropped.
type Collector struct {
	mu       sync.Mutex
	events   []Event
	capacity int
	dropped  int
}

// Option configures a Collector.
type Option func(*Collector)

// WithCapacity sets the maximum number of buffered events.
func WithCapacity(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// NewCollector returns an empty collector.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Record appends an event.
func (c *Collector) Record(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) >= c.capacity {
		c.events = c.events[1:]
		c.dropped++
	}
	c.events = append(c.events, e)
}

// Drain returns the buffered events and empties the buffer.
func (c *Collector) Drain() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

// Clear discards buffered events and the drop count.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
	c.dropped = 0
}

// Len returns the number of buffered events.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Dropped returns how many events were evicted since the last Clear.
func (c *Collector) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// TypeSummary aggregates the events of one request type.
type TypeSummary struct {
	Type      string        `json:"type"`
	Count     int           `json:"count"`
	Failures  int           `json:"failures"`
	Cancelled int           `json:"cancelled"`
	Total     time.Duration `json:"total"`
	Max       time.Duration `json:"max"`
}

// Mean is the average duration.
func (s TypeSummary) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Summarize groups events by type, sorted by type.
func Summarize(events []Event) []TypeSummary {
	byType := make(map[string]*TypeSummary)
	for _, e := range events {
		s, ok := byType[e.Type]
		if !ok {
			s = &TypeSummary{Type: e.Type}
			byType[e.Type] = s
		}
		s.Count++
		s.Total += e.Duration
		if e.Duration > s.Max {
			s.Max = e.Duration
		}
		switch e.Outcome {
		case OutcomeFailure:
			s.Failures++
		case OutcomeCancelled:
			s.Cancelled++
		}
	}
	out := make([]TypeSummary, 0, len(byType))
	for _, s := range byType {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
