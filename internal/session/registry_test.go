package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rendezvous/pkg/interfaces"
)

type mockSender struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	err    error
}

func (m *mockSender) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return interfaces.ErrConnectionClosed
	}
	if m.err != nil {
		return m.err
	}
	m.frames = append(m.frames, data)
	return nil
}

func (m *mockSender) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func TestRegistry_AddAssignsSequentialIDs(t *testing.T) {
	r := NewRegistry()

	first, err := r.Add(&mockSender{})
	require.NoError(t, err)
	second, err := r.Add(&mockSender{})
	require.NoError(t, err)

	assert.Equal(t, uint32(1), first.ID)
	assert.Equal(t, uint32(2), second.ID)
	assert.Equal(t, StateUnnamed, first.State())
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_AddNilSender(t *testing.T) {
	r := NewRegistry()
	_, err := r.Add(nil)
	assert.ErrorIs(t, err, ErrNilSender)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_IDsNeverReused(t *testing.T) {
	r := NewRegistry()

	s, err := r.Add(&mockSender{})
	require.NoError(t, err)
	r.Remove(s.ID)

	next, err := r.Add(&mockSender{})
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, next.ID)
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	s, err := r.Add(&mockSender{})
	require.NoError(t, err)
	require.NoError(t, r.Rename(s.ID, "alice"))

	removed, ok := r.Remove(s.ID)
	assert.True(t, ok)
	assert.Same(t, s, removed)
	assert.Equal(t, StateClosed, s.State())

	_, ok = r.Remove(s.ID)
	assert.False(t, ok, "second remove should be a no-op")

	_, ok = r.Remove(999)
	assert.False(t, ok)

	_, found := r.FindByName("alice")
	assert.False(t, found, "name index must drop removed sessions")
}

func TestRegistry_FindByIDAndName(t *testing.T) {
	r := NewRegistry()
	s, err := r.Add(&mockSender{})
	require.NoError(t, err)

	got, ok := r.FindByID(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = r.FindByName("")
	assert.False(t, ok, "unnamed sessions are not reachable by the empty name")

	require.NoError(t, r.Rename(s.ID, "bob"))
	got, ok = r.FindByName("bob")
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, StateNamed, s.State())
}

func TestRegistry_RenameMovesIndex(t *testing.T) {
	r := NewRegistry()
	s, _ := r.Add(&mockSender{})

	require.NoError(t, r.Rename(s.ID, "old"))
	require.NoError(t, r.Rename(s.ID, "new"))

	_, ok := r.FindByName("old")
	assert.False(t, ok)
	_, ok = r.FindByName("new")
	assert.True(t, ok)

	require.NoError(t, r.Rename(s.ID, "new"), "renaming to own name is allowed")
}

func TestRegistry_RenameRejectsTakenName(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Add(&mockSender{})
	b, _ := r.Add(&mockSender{})

	require.NoError(t, r.Rename(a.ID, "alice"))
	err := r.Rename(b.ID, "alice")
	assert.ErrorIs(t, err, ErrNameTaken)
	assert.Empty(t, b.DisplayName())

	assert.ErrorIs(t, r.Rename(42, "x"), ErrSessionNotFound)
}

func TestRegistry_SnapshotNamesInsertionOrder(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Add(&mockSender{})
	b, _ := r.Add(&mockSender{})
	c, _ := r.Add(&mockSender{})

	require.NoError(t, r.Rename(c.ID, "carol"))
	require.NoError(t, r.Rename(a.ID, "alice"))
	assert.Equal(t, []string{"alice", "carol"}, r.SnapshotNames(), "unnamed sessions are omitted")

	require.NoError(t, r.Rename(b.ID, "bob"))
	assert.Equal(t, []string{"alice", "bob", "carol"}, r.SnapshotNames())

	r.Remove(b.ID)
	assert.Equal(t, []string{"alice", "carol"}, r.SnapshotNames())

	d, _ := r.Add(&mockSender{})
	require.NoError(t, r.Rename(d.ID, "dave"))
	assert.Equal(t, []string{"alice", "carol", "dave"}, r.SnapshotNames())
}

func TestRegistry_SnapshotIsCopy(t *testing.T) {
	r := NewRegistry()
	s, _ := r.Add(&mockSender{})
	require.NoError(t, r.Rename(s.ID, "alice"))

	names := r.SnapshotNames()
	names[0] = "mallory"
	assert.Equal(t, []string{"alice"}, r.SnapshotNames())

	sessions := r.Sessions()
	require.Len(t, sessions, 1)
	sessions[0] = nil
	assert.NotNil(t, r.Sessions()[0])
}

func TestRegistry_EmptySnapshotIsNotNil(t *testing.T) {
	r := NewRegistry()
	assert.NotNil(t, r.SnapshotNames())
	assert.Empty(t, r.SnapshotNames())
}

func TestRegistry_GetStats(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Add(&mockSender{})
	r.Add(&mockSender{})
	require.NoError(t, r.Rename(a.ID, "alice"))

	stats := r.GetStats()
	assert.Equal(t, 2, stats["total_connections"])
	assert.Equal(t, 1, stats["named"])
}

func TestSession_SendAfterClose(t *testing.T) {
	r := NewRegistry()
	sender := &mockSender{}
	s, _ := r.Add(sender)

	require.NoError(t, s.Send([]byte("hello")))
	r.Remove(s.ID)

	err := s.Send([]byte("late"))
	assert.True(t, errors.Is(err, ErrSessionClosed))
	assert.Len(t, sender.frames, 1)
}

func TestSession_StateString(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "unnamed", StateUnnamed.String())
	assert.Equal(t, "named", StateNamed.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestRegistry_ConcurrentReaders(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 10; i++ {
		s, _ := r.Add(&mockSender{})
		require.NoError(t, r.Rename(s.ID, fmt.Sprintf("user%d", i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				names := r.SnapshotNames()
				assert.GreaterOrEqual(t, len(names), 5)
				r.GetStats()
			}
		}()
	}

	// single writer, as the hub would be
	for i := 0; i < 5; i++ {
		r.Remove(uint32(i + 1))
	}
	wg.Wait()
	assert.Equal(t, 5, r.Len())
}
