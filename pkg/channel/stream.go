package channel

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ormasoftchile/wfstudio/pkg/protocol"
)

// StreamBus carries newline-delimited JSON messages over a reader/writer
// pair, such as a child process's stdio. Call Listen in a goroutine to start
// dispatching inbound messages.
type StreamBus struct {
	writer  io.Writer
	reader  *bufio.Scanner
	writeMu sync.Mutex
	subs    subscribers
	log     zerolog.Logger

	done chan struct{}
}

// NewStreamBus creates a bus reading from r and writing to w.
func NewStreamBus(r io.Reader, w io.Writer, log zerolog.Logger) *StreamBus {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	return &StreamBus{
		writer: w,
		reader: scanner,
		log:    log,
		done:   make(chan struct{}),
	}
}

// Listen reads messages and dispatches them to subscribers.
// It returns when the reader is exhausted.
func (b *StreamBus) Listen() error {
	defer close(b.done)
	for b.reader.Scan() {
		line := b.reader.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg protocol.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			b.log.Debug().Err(err).Msg("skipping malformed message")
			continue
		}
		if msg.Type == "" {
			b.log.Debug().Msg("skipping message without type")
			continue
		}
		b.subs.dispatch(msg)
	}
	return b.reader.Err()
}

// Done is closed once Listen returns.
func (b *StreamBus) Done() <-chan struct{} {
	return b.done
}

// Send writes msg as a single line.
func (b *StreamBus) Send(msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if _, err := fmt.Fprintf(b.writer, "%s\n", data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// OnMessage subscribes fn to inbound messages.
func (b *StreamBus) OnMessage(fn func(protocol.Message)) func() {
	return b.subs.add(fn)
}
