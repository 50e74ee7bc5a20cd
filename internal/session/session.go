// Package session holds the live set of connected clients: one Session per
// connection, the Registry that indexes them by ID and display name, and the
// NameAllocator that keeps display names unique.
package session

import (
	"fmt"
	"sync"

	"rendezvous/pkg/interfaces"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateConnecting State = iota
	StateUnnamed
	StateNamed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateUnnamed:
		return "unnamed"
	case StateNamed:
		return "named"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is one connected client.
type Session struct {
	ID uint32

	sender interfaces.Sender

	mu          sync.RWMutex
	displayName string
	state       State
}

func newSession(id uint32, sender interfaces.Sender) *Session {
	return &Session{
		ID:     id,
		sender: sender,
		state:  StateConnecting,
	}
}

// DisplayName returns the current name, or "" before the first accepted
// username request.
func (s *Session) DisplayName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.displayName
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Send queues one frame for this client. After the session is closed it
// returns ErrSessionClosed without touching the transport.
func (s *Session) Send(data []byte) error {
	s.mu.RLock()
	closed := s.state == StateClosed
	s.mu.RUnlock()
	if closed {
		return ErrSessionClosed
	}
	return s.sender.Send(data)
}

// ConnectionID returns the transport's correlation ID, or "" when the
// sender does not carry one.
func (s *Session) ConnectionID() string {
	if c, ok := s.sender.(interface{ ID() string }); ok {
		return c.ID()
	}
	return ""
}

// Close releases the underlying connection.
func (s *Session) Close() error {
	return s.sender.Close()
}

func (s *Session) setName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.displayName = name
	s.state = StateNamed
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = to
}
