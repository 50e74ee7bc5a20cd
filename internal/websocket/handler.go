package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"rendezvous/internal/session"
	"rendezvous/pkg/interfaces"
	"rendezvous/pkg/types"
)

// Hub is where the handler delivers connection events.
type Hub interface {
	Connect(ctx context.Context, sender interfaces.Sender) (*session.Session, error)
	Dispatch(ctx context.Context, s *session.Session, msg types.Inbound) error
	Disconnect(ctx context.Context, s *session.Session) error
}

// Handler upgrades HTTP requests and runs the read loop for each peer.
type Handler struct {
	hub      Hub
	opts     Options
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewHandler(hub Hub, opts Options, logger zerolog.Logger) *Handler {
	logger = logger.With().Str("component", "websocket").Logger()
	origins := NewOriginPolicy(opts.AllowedOrigins, logger)

	return &Handler{
		hub:  hub,
		opts: opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:      origins.Check,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the request and blocks until the peer goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		h.logger.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	conn := NewConnection(ws, h.opts, h.logger)
	log := conn.logger.With().Str("remote", r.RemoteAddr).Logger()

	s, err := h.hub.Connect(r.Context(), conn)
	if err != nil {
		log.Warn().Err(err).Msg("hub refused connection")
		_ = conn.Close()
		return
	}
	log = log.With().Uint32("session", s.ID).Logger()
	log.Debug().Msg("connection open")

	defer func() {
		if err := h.hub.Disconnect(context.Background(), s); err != nil {
			log.Debug().Err(err).Msg("disconnect not delivered to hub")
		}
		_ = conn.Close()
		log.Debug().Msg("connection closed")
	}()

	h.readLoop(conn, s, log)
}

func (h *Handler) readLoop(conn *Connection, s *session.Session, log zerolog.Logger) {
	ws := conn.conn
	if h.opts.MaxMessageSize > 0 {
		ws.SetReadLimit(h.opts.MaxMessageSize)
	}

	extend := func() error {
		if h.opts.ReadTimeout <= 0 {
			return nil
		}
		return ws.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	}
	if err := extend(); err != nil {
		log.Debug().Err(err).Msg("failed to set read deadline")
		return
	}
	ws.SetPongHandler(func(string) error { return extend() })

	for {
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Info().Err(err).Msg("websocket read error")
			}
			return
		}
		if err := extend(); err != nil {
			return
		}

		if messageType != websocket.TextMessage {
			log.Debug().Int("type", messageType).Msg("ignoring non-text frame")
			continue
		}

		msg, err := types.Decode(data)
		if err != nil {
			log.Warn().Err(err).Int("bytes", len(data)).Msg("dropping malformed frame")
			continue
		}

		if err := h.hub.Dispatch(conn.ctx, s, msg); err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("dispatch failed; closing connection")
			}
			return
		}
	}
}
