package channel

import "sync"

// Latest tracks the active request of one logical operation, such as
// fetching the tools of whichever server is highlighted. Responses for any
// earlier request are stale.
type Latest struct {
	mu      sync.Mutex
	current string
}

// Begin makes id the active request and returns the one it supersedes.
func (l *Latest) Begin(id string) (previous string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	previous, l.current = l.current, id
	return previous
}

// Accept reports whether id is still the active request.
func (l *Latest) Accept(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return id != "" && id == l.current
}

// End clears id if it is still active.
func (l *Latest) End(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == id {
		l.current = ""
	}
}
