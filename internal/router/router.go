// Package router decides, for every connect, message and disconnect event,
// which sessions receive what, and performs the delivery.
package router

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"rendezvous/internal/session"
	"rendezvous/pkg/types"
)

// Router applies the routing table to one event at a time. It is not safe for
// concurrent use; the hub calls it from a single goroutine.
type Router struct {
	registry    *session.Registry
	names       *session.NameAllocator
	rateLimiter *RateLimiter
	logger      zerolog.Logger
}

// NewRouter creates a router over registry. A nil rateLimiter disables
// rate limiting.
func NewRouter(registry *session.Registry, names *session.NameAllocator, rateLimiter *RateLimiter, logger zerolog.Logger) *Router {
	if names == nil {
		names = session.NewNameAllocator()
	}
	return &Router{
		registry:    registry,
		names:       names,
		rateLimiter: rateLimiter,
		logger:      logger.With().Str("component", "router").Logger(),
	}
}

// HandleConnect sends the identity assignment to a newly registered session.
func (r *Router) HandleConnect(s *session.Session) {
	r.sendTo(s, types.KindID, types.NewIDAssignment(s.ID))
	r.logger.Info().Uint32("session", s.ID).Int("active", r.registry.Len()).Msg("session connected")
}

// HandleDisconnect removes the session and tells everyone left the new roster.
// Disconnecting an unknown session does nothing.
func (r *Router) HandleDisconnect(id uint32) {
	s, removed := r.registry.Remove(id)
	if r.rateLimiter != nil {
		r.rateLimiter.Forget(id)
	}
	if !removed {
		r.logger.Debug().Uint32("session", id).Msg("disconnect for unknown session ignored")
		return
	}

	r.logger.Info().
		Uint32("session", id).
		Str("name", s.DisplayName()).
		Int("active", r.registry.Len()).
		Msg("session disconnected")
	r.broadcastRoster()
}

// RouteMessage handles one decoded message from sender.
func (r *Router) RouteMessage(ctx context.Context, sender *session.Session, msg types.Inbound) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := r.registry.FindByID(sender.ID); !ok {
		return ErrSenderNotRegistered
	}
	if r.rateLimiter != nil && !r.rateLimiter.Allow(sender.ID) {
		return ErrRateLimitExceeded
	}

	switch m := msg.(type) {
	case *types.UsernameRequest:
		return r.handleUsername(sender, m)

	case *types.ChatMessage:
		m.Text = types.StripTags(m.Text)
		m.Name = sender.DisplayName()
		r.deliver(sender, m.Kind(), m.Target, m)
		return nil

	case *types.Opaque:
		r.deliverRaw(sender, m.Kind(), m.Target, m.Raw)
		return nil

	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedMessage, msg)
	}
}

// GetRecipients returns who receives a routed message. A non-empty target
// resolves to at most one session; otherwise every registered session,
// the sender included, is a recipient.
func (r *Router) GetRecipients(target string) []*session.Session {
	if target == "" {
		return r.registry.Sessions()
	}
	if s, ok := r.registry.FindByName(target); ok {
		return []*session.Session{s}
	}
	return nil
}

func (r *Router) handleUsername(sender *session.Session, req *types.UsernameRequest) error {
	granted, changed := r.names.Allocate(req.Name, sender.ID, r.registry)
	if changed {
		r.sendTo(sender, types.KindRejectUsername, types.NewRejectUsername(sender.ID, granted))
	}

	if err := r.registry.Rename(sender.ID, granted); err != nil {
		return fmt.Errorf("rename session %d: %w", sender.ID, err)
	}

	r.logger.Info().
		Uint32("session", sender.ID).
		Str("requested", req.Name).
		Str("granted", granted).
		Msg("display name set")

	r.broadcastRoster()
	return nil
}

func (r *Router) broadcastRoster() {
	roster := types.NewRoster(r.registry.SnapshotNames())
	payload, err := types.Encode(roster)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to encode roster")
		return
	}
	r.fanOut(r.registry.Sessions(), payload, types.KindRoster)
}

func (r *Router) deliver(sender *session.Session, kind, target string, msg any) {
	payload, err := types.Encode(msg)
	if err != nil {
		r.logger.Error().Err(err).Uint32("session", sender.ID).Str("kind", kind).Msg("failed to encode message")
		return
	}
	r.deliverRaw(sender, kind, target, payload)
}

func (r *Router) deliverRaw(sender *session.Session, kind, target string, payload []byte) {
	recipients := r.GetRecipients(target)
	if target != "" && len(recipients) == 0 {
		r.logger.Debug().
			Uint32("session", sender.ID).
			Str("kind", kind).
			Str("target", target).
			Msg("target not connected; message dropped")
		return
	}

	delivered := r.fanOut(recipients, payload, kind)
	r.logger.Debug().
		Uint32("session", sender.ID).
		Str("kind", kind).
		Str("target", target).
		Int("delivered", delivered).
		Msg("message routed")
}

func (r *Router) sendTo(s *session.Session, kind string, msg any) {
	payload, err := types.Encode(msg)
	if err != nil {
		r.logger.Error().Err(err).Uint32("session", s.ID).Msg("failed to encode reply")
		return
	}
	r.fanOut([]*session.Session{s}, payload, kind)
}

// fanOut sends payload to each recipient. A failed send is logged and the
// loop moves on to the next recipient.
func (r *Router) fanOut(recipients []*session.Session, payload []byte, kind string) int {
	delivered := 0
	for _, s := range recipients {
		if err := s.Send(payload); err != nil {
			r.logger.Warn().Err(err).Uint32("session", s.ID).Str("kind", kind).Msg("send failed")
			continue
		}
		delivered++
	}
	return delivered
}
