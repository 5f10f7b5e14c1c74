package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"campushub/internal/chat"
	"campushub/internal/identity"
	"campushub/internal/notification"
	"campushub/internal/presence"
	"campushub/internal/router"
	"campushub/pkg/interfaces"
	"campushub/pkg/types"
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the deployment's proxy.
		return true
	},
}

// Handler authenticates socket requests, registers the resulting
// sessions and runs their read side. Each connection's events are
// routed on its own read goroutine.
type Handler struct {
	resolver      interfaces.IdentityResolver
	presence      *presence.Table
	router        *router.Router
	chat          *chat.Service
	notifications *notification.Service
	opts          Options
}

func NewHandler(resolver interfaces.IdentityResolver, table *presence.Table, r *router.Router, chatSvc *chat.Service, notifSvc *notification.Service, opts Options) *Handler {
	return &Handler{
		resolver:      resolver,
		presence:      table,
		router:        r,
		chat:          chatSvc,
		notifications: notifSvc,
		opts:          opts.withDefaults(),
	}
}

// ServeHTTP performs the connection handshake: verify the credential,
// upgrade, register presence, replay the backlog, then read until the
// peer goes away. Authentication failures are HTTP errors; the socket
// is never upgraded for an unverified peer.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := credentialFrom(r)

	user, err := h.resolver.Verify(r.Context(), token)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, identity.ErrInactiveIdentity) {
			status = http.StatusForbidden
		}
		http.Error(w, "authentication failed", status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	session := NewConnection(conn, user, h.opts)
	if err := h.presence.Register(session); err != nil {
		log.Error().Err(err).Str("user", user.ID).Msg("failed to register session")
		_ = session.Close()
		return
	}
	log.Info().Str("session", session.ID()).Str("user", user.ID).
		Str("role", user.Role).Msg("session connected")

	go h.replayBacklog(session)

	h.readPump(session)

	h.presence.Unregister(session)
	_ = session.Close()
	log.Info().Str("session", session.ID()).Str("user", user.ID).Msg("session disconnected")
}

// credentialFrom takes the token from the query string, falling back to
// a bearer header for non-browser clients.
func credentialFrom(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return after
	}
	return ""
}

// replayBacklog pushes everything the user missed while offline, then
// signals that live events resume from here. Replay never marks
// anything read.
func (h *Handler) replayBacklog(session *Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	user := session.Identity()

	messages, err := h.chat.Backlog(ctx, user.ID)
	if err != nil {
		log.Error().Err(err).Str("user", user.ID).Msg("failed to load message backlog")
	}
	for _, msg := range messages {
		if err := session.Send(&types.ServerEvent{Type: types.EventDirectMessage, Payload: msg}); err != nil {
			return
		}
	}

	pending, err := h.notifications.Unread(ctx, user.ID, user.Role)
	if err != nil {
		log.Error().Err(err).Str("user", user.ID).Msg("failed to load notification backlog")
	}
	for _, n := range pending {
		if err := session.Send(&types.ServerEvent{Type: types.EventNotification, Payload: n}); err != nil {
			return
		}
	}

	_ = session.Send(&types.ServerEvent{
		Type:    types.EventSyncComplete,
		Payload: &types.SystemPayload{Event: "sync_complete"},
	})
}

// readPump decodes inbound events and hands them to the router. A
// routing error is feedback to this session only; the connection stays
// open until the peer leaves or the socket dies.
func (h *Handler) readPump(session *Connection) {
	conn := session.conn
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("session", session.ID()).Msg("read failed")
			}
			return
		}

		var event types.ClientEvent
		if err := json.Unmarshal(data, &event); err != nil {
			h.sendFeedback(session, "invalid event: not valid JSON")
			continue
		}

		if err := h.router.Route(context.Background(), session.Identity(), &event); err != nil {
			h.sendFeedback(session, err.Error())
		}
	}
}

func (h *Handler) sendFeedback(session *Connection, message string) {
	_ = session.Send(&types.ServerEvent{
		Type:    types.EventSystem,
		Payload: &types.SystemPayload{Event: "error", Message: message},
	})
}
