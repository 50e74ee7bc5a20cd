// Package hub serializes every connect, message and disconnect event through
// one goroutine so that registry mutations and roster broadcasts happen in a
// single total order.
package hub

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"rendezvous/internal/session"
	"rendezvous/pkg/interfaces"
	"rendezvous/pkg/types"
)

// Router handles events once the hub has put them in order.
type Router interface {
	HandleConnect(s *session.Session)
	RouteMessage(ctx context.Context, sender *session.Session, msg types.Inbound) error
	HandleDisconnect(id uint32)
}

type eventKind int

const (
	eventConnect eventKind = iota
	eventMessage
	eventDisconnect
)

// event is one unit of work for the hub goroutine. A single channel carries
// all kinds so events from one connection are applied in the order sent.
type event struct {
	kind    eventKind
	sender  interfaces.Sender
	session *session.Session
	message types.Inbound
	reply   chan connectResult
}

type connectResult struct {
	session *session.Session
	err     error
}

// Hub owns the session registry on the write side. Connection handlers feed
// it events; it applies them one at a time.
type Hub struct {
	events chan event

	registry *session.Registry
	router   Router
	logger   zerolog.Logger

	mu       sync.RWMutex
	running  bool
	shutdown chan struct{}
	done     chan struct{}
}

// NewHub creates a stopped hub. bufferSize bounds how many events may be
// waiting before producers block.
func NewHub(registry *session.Registry, router Router, bufferSize int, logger zerolog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Hub{
		events:   make(chan event, bufferSize),
		registry: registry,
		router:   router,
		logger:   logger.With().Str("component", "hub").Logger(),
	}
}

// Start launches the event goroutine. It stops when Stop is called or ctx is
// cancelled.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdown = make(chan struct{})
	h.done = make(chan struct{})

	h.logger.Info().Msg("starting hub")
	go h.run(ctx, h.shutdown, h.done)

	return nil
}

// Stop asks the event goroutine to exit and waits until it has closed every
// remaining session.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	done := h.done
	h.mu.Unlock()

	h.logger.Info().Msg("stopping hub")
	<-done
	return nil
}

// Done is closed once the event goroutine of the current run has exited. It
// returns nil if the hub was never started.
func (h *Hub) Done() <-chan struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.done
}

func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Connect registers sender as a new session and returns it once the identity
// assignment has been queued to it.
//
// ctx only bounds the wait for room in the event queue. Once the connect event
// is queued, Connect waits for the hub to register the session, so a caller
// that gets a session back always owns exactly one registry entry.
func (h *Hub) Connect(ctx context.Context, sender interfaces.Sender) (*session.Session, error) {
	if sender == nil {
		return nil, session.ErrNilSender
	}

	reply := make(chan connectResult, 1)
	if err := h.enqueue(ctx, event{kind: eventConnect, sender: sender, reply: reply}); err != nil {
		return nil, err
	}

	done := h.Done()
	select {
	case res := <-reply:
		return res.session, res.err
	case <-done:
		// closeAll has already removed anything the event registered.
		return nil, ErrHubNotRunning
	}
}

// Dispatch queues msg from s for routing.
func (h *Hub) Dispatch(ctx context.Context, s *session.Session, msg types.Inbound) error {
	if s == nil {
		return ErrNilSession
	}
	return h.enqueue(ctx, event{kind: eventMessage, session: s, message: msg})
}

// Disconnect queues the removal of s. It is safe to call for a session that
// is already gone.
func (h *Hub) Disconnect(ctx context.Context, s *session.Session) error {
	if s == nil {
		return ErrNilSession
	}
	return h.enqueue(ctx, event{kind: eventDisconnect, session: s})
}

func (h *Hub) enqueue(ctx context.Context, ev event) error {
	h.mu.RLock()
	running, done := h.running, h.done
	h.mu.RUnlock()
	if !running {
		return ErrHubNotRunning
	}

	select {
	case h.events <- ev:
		return nil
	case <-done:
		return ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer h.closeAll()

	for {
		select {
		case ev := <-h.events:
			h.handle(ctx, ev)

		case <-shutdown:
			h.logger.Info().Msg("hub shutdown requested")
			return

		case <-ctx.Done():
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
			h.logger.Info().Msg("hub context cancelled")
			return
		}
	}
}

func (h *Hub) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case eventConnect:
		s, err := h.registry.Add(ev.sender)
		if err != nil {
			h.logger.Error().Err(err).Msg("session registration failed")
			ev.reply <- connectResult{err: err}
			return
		}
		h.router.HandleConnect(s)
		ev.reply <- connectResult{session: s}

	case eventMessage:
		if err := h.router.RouteMessage(ctx, ev.session, ev.message); err != nil {
			h.logger.Warn().
				Err(err).
				Uint32("session", ev.session.ID).
				Str("kind", ev.message.Kind()).
				Msg("message routing failed")
		}

	case eventDisconnect:
		h.router.HandleDisconnect(ev.session.ID)
	}
}

// closeAll tears down every session still registered when the loop exits.
// Events left in the queue are dropped; pending connects see ErrHubNotRunning.
func (h *Hub) closeAll() {
	sessions := h.registry.Sessions()
	for _, s := range sessions {
		h.registry.Remove(s.ID)
		if err := s.Close(); err != nil {
			h.logger.Debug().Err(err).Uint32("session", s.ID).Msg("close on shutdown failed")
		}
	}
	if len(sessions) > 0 {
		h.logger.Info().Int("sessions", len(sessions)).Msg("closed remaining sessions")
	}
}
