package session

import (
	"sync"
	"sync/atomic"

	"rendezvous/pkg/interfaces"
)

// Registry tracks every active Session. It is indexed by ID and by display
// name and remembers insertion order so rosters are stable.
//
// The hub's event goroutine is the only writer; the RWMutex lets HTTP handlers
// read a consistent snapshot while it works.
type Registry struct {
	mu     sync.RWMutex
	byID   map[uint32]*Session
	byName map[string]*Session
	order  []uint32

	nextID atomic.Uint32
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[uint32]*Session),
		byName: make(map[string]*Session),
	}
}

// Add creates a Session for sender with a fresh ID. The first ID is 1.
func (r *Registry) Add(sender interfaces.Sender) (*Session, error) {
	if sender == nil {
		return nil, ErrNilSender
	}

	id := r.nextID.Add(1)
	s := newSession(id, sender)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; exists {
		return nil, ErrDuplicateSessionID
	}
	r.byID[id] = s
	r.order = append(r.order, id)
	s.transition(StateUnnamed)

	return s, nil
}

// Remove deletes the session and marks it closed. Removing an unknown ID is
// a no-op and reports false.
func (r *Registry) Remove(id uint32) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.byID[id]
	if !exists {
		return nil, false
	}

	delete(r.byID, id)
	if name := s.DisplayName(); name != "" && r.byName[name] == s {
		delete(r.byName, name)
	}
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	s.transition(StateClosed)

	return s, true
}

// Rename sets the display name of session id, keeping the name index in step.
// It refuses a name held by a different session.
func (r *Registry) Rename(id uint32, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, exists := r.byID[id]
	if !exists {
		return ErrSessionNotFound
	}
	if holder, taken := r.byName[name]; taken && holder != s {
		return ErrNameTaken
	}

	if old := s.DisplayName(); old != "" && r.byName[old] == s {
		delete(r.byName, old)
	}
	r.byName[name] = s
	s.setName(name)

	return nil
}

func (r *Registry) FindByID(id uint32) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.byID[id]
	return s, exists
}

// FindByName looks up the session currently holding name. The empty name
// never matches.
func (r *Registry) FindByName(name string) (*Session, bool) {
	if name == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.byName[name]
	return s, exists
}

// Sessions returns the active sessions in insertion order. The slice is a
// copy; the registry may change after it returns.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		sessions = append(sessions, r.byID[id])
	}
	return sessions
}

// SnapshotNames returns the display names of all named sessions in insertion
// order. Sessions that have not picked a name yet are left out.
func (r *Registry) SnapshotNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if name := r.byID[id].DisplayName(); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// GetStats returns registry counters for the health and stats endpoints.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.byID),
		"named":             len(r.byName),
	}
}
