package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"campushub/internal/chat"
	"campushub/internal/identity"
	"campushub/internal/notification"
	"campushub/internal/presence"
	"campushub/pkg/interfaces"
	"campushub/pkg/types"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server is the REST face of the platform. It shares its services with
// the socket layer, so a message sent over HTTP and one sent over the
// socket take the same path through validation, storage and push.
type Server struct {
	resolver      interfaces.IdentityResolver
	chat          *chat.Service
	notifications *notification.Service
	presence      *presence.Table
	health        HealthChecker
	mux           *http.ServeMux
}

func NewServer(resolver interfaces.IdentityResolver, chatSvc *chat.Service, notifSvc *notification.Service, table *presence.Table, health HealthChecker) *Server {
	s := &Server{
		resolver:      resolver,
		chat:          chatSvc,
		notifications: notifSvc,
		presence:      table,
		health:        health,
		mux:           http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.Handle("/api/messages", s.wrap(s.authenticated(s.handleMessages)))
	s.mux.Handle("/api/messages/", s.wrap(s.authenticated(s.handleConversation)))
	s.mux.Handle("/api/contacts", s.wrap(s.authenticated(s.handleContacts)))
	s.mux.Handle("/api/unread", s.wrap(s.authenticated(s.handleUnread)))
	s.mux.Handle("/api/notifications", s.wrap(s.authenticated(s.handleNotifications)))
	s.mux.Handle("/api/notifications/", s.wrap(s.authenticated(s.handleNotificationRead)))
	s.mux.Handle("/health", s.wrap(http.HandlerFunc(s.handleHealth)))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type contextKey string

const identityKey contextKey = "identity"

// callerFrom returns the verified identity the middleware attached.
func callerFrom(ctx context.Context) *types.Identity {
	user, _ := ctx.Value(identityKey).(*types.Identity)
	return user
}

// wrap applies the CORS and JSON middleware shared by every route.
func (s *Server) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// authenticated verifies the bearer credential and stores the identity
// in the request context. The same resolver guards the socket
// handshake.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			s.sendError(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		user, err := s.resolver.Verify(r.Context(), token)
		if err != nil {
			if errors.Is(err, identity.ErrInactiveIdentity) {
				s.sendError(w, "account deactivated", http.StatusForbidden)
				return
			}
			s.sendError(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type sendMessageRequest struct {
	ReceiverID string            `json:"receiver_id"`
	Body       string            `json:"body"`
	Attachment *types.Attachment `json:"attachment,omitempty"`
}

type createNotificationRequest struct {
	Title      string  `json:"title"`
	Body       string  `json:"body"`
	TargetRole *string `json:"target_role,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// handleMessages covers POST /api/messages.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	caller := callerFrom(r.Context())

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	msg, err := s.chat.Send(r.Context(), caller.ID, req.ReceiverID, req.Body, req.Attachment)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	s.encode(w, map[string]*types.DirectMessage{"message": msg})
}

// handleConversation covers GET /api/messages/{peerID}. Fetching a
// conversation marks the peer's messages as read.
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	peerID := strings.TrimPrefix(r.URL.Path, "/api/messages/")
	if !types.IsValidUserID(peerID) {
		s.sendError(w, "invalid peer id", http.StatusBadRequest)
		return
	}
	caller := callerFrom(r.Context())

	messages, err := s.chat.History(r.Context(), caller.ID, peerID)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	if messages == nil {
		messages = []*types.DirectMessage{}
	}
	s.encode(w, map[string][]*types.DirectMessage{"messages": messages})
}

// handleContacts covers GET /api/contacts.
func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	caller := callerFrom(r.Context())

	contacts, err := s.chat.Contacts(r.Context(), caller)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	if contacts == nil {
		contacts = []*types.Contact{}
	}
	s.encode(w, map[string][]*types.Contact{"contacts": contacts})
}

// handleUnread covers GET /api/unread.
func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	caller := callerFrom(r.Context())

	count, err := s.chat.UnreadCount(r.Context(), caller.ID)
	if err != nil {
		s.sendServiceError(w, err)
		return
	}
	s.encode(w, map[string]int{"unread": count})
}

// handleNotifications covers POST and GET /api/notifications.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())

	switch r.Method {
	case http.MethodPost:
		var req createNotificationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		n, err := s.notifications.Create(r.Context(), caller.ID, req.Title, req.Body, req.TargetRole)
		if err != nil {
			s.sendServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		s.encode(w, map[string]*types.Notification{"notification": n})

	case http.MethodGet:
		list, err := s.notifications.List(r.Context(), caller.ID, caller.Role)
		if err != nil {
			s.sendServiceError(w, err)
			return
		}
		if list == nil {
			list = []*types.NotificationStatus{}
		}
		s.encode(w, map[string][]*types.NotificationStatus{"notifications": list})

	default:
		s.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleNotificationRead covers POST /api/notifications/{id}/read.
func (s *Server) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/notifications/")
	notificationID, ok := strings.CutSuffix(path, "/read")
	if !ok || notificationID == "" {
		s.sendError(w, "not found", http.StatusNotFound)
		return
	}
	caller := callerFrom(r.Context())

	if err := s.notifications.MarkRead(r.Context(), notificationID, caller.ID); err != nil {
		s.sendServiceError(w, err)
		return
	}
	s.encode(w, map[string]string{"status": "read"})
}

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Database  string         `json:"database"`
	Presence  map[string]int `json:"presence"`
}

// handleHealth covers GET /health. Unauthenticated so load balancers
// can probe it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Database:  "healthy",
		Presence:  s.presence.Stats(),
	}
	if err := s.health.HealthCheck(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Database = err.Error()
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	s.encode(w, resp)
}

// sendServiceError maps service errors onto HTTP status codes.
func (s *Server) sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrReceiverNotFound), errors.Is(err, chat.ErrPeerNotFound),
		errors.Is(err, notification.ErrNotFound):
		s.sendError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, notification.ErrNotAdmin):
		s.sendError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, types.ErrEmptyMessage), errors.Is(err, types.ErrBodyTooLarge),
		errors.Is(err, types.ErrEmptyTitle), errors.Is(err, types.ErrEmptyBody),
		errors.Is(err, types.ErrInvalidRole), errors.Is(err, types.ErrInvalidUserID):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		log.Error().Err(err).Msg("request failed")
		s.sendError(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	s.encode(w, errorResponse{Error: message, Code: code})
}

func (s *Server) encode(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("failed to encode response")
	}
}
