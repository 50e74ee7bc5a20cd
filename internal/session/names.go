package session

import (
	"strconv"
	"sync"
)

// NameLookup is the part of the Registry the allocator needs.
type NameLookup interface {
	FindByName(name string) (*Session, bool)
}

// NameAllocator grants display names that are unique among active sessions.
//
// On a collision it appends a numeric suffix taken from a single counter that
// only ever grows, so a suffix is never handed out twice in the life of the
// process, even after the name it was appended to has been freed.
type NameAllocator struct {
	mu     sync.Mutex
	suffix uint64
}

func NewNameAllocator() *NameAllocator {
	return &NameAllocator{suffix: 1}
}

// Allocate returns the name to grant for requested and whether it differs
// from the request. A name held by requester itself is not a collision.
// The empty name always collides.
func (a *NameAllocator) Allocate(requested string, requester uint32, names NameLookup) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	candidate := requested
	for a.collides(candidate, requester, names) {
		candidate = requested + strconv.FormatUint(a.suffix, 10)
		a.suffix++
	}
	return candidate, candidate != requested
}

func (a *NameAllocator) collides(name string, requester uint32, names NameLookup) bool {
	if name == "" {
		return true
	}
	holder, taken := names.FindByName(name)
	return taken && holder.ID != requester
}
