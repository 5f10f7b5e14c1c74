package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"campushub/internal/chat"
	"campushub/internal/notification"
	"campushub/internal/presence"
	"campushub/pkg/types"
)

// Default per-user routing budget.
const (
	DefaultRateLimit  = 100
	DefaultRateWindow = time.Minute
)

// Router maps inbound client events onto the services and rooms that
// handle them. The event set is closed: anything outside it is rejected
// so a mistyped client cannot invent server behavior.
//
// Routing happens on the calling connection's read goroutine. There is
// no central routing loop; per-room ordering comes from the presence
// table's bucket locks, so events for unrelated rooms never wait on
// each other.
type Router struct {
	presence      *presence.Table
	chat          *chat.Service
	notifications *notification.Service
	limiter       *RateLimiter
}

func New(table *presence.Table, chatSvc *chat.Service, notifSvc *notification.Service) *Router {
	return &Router{
		presence:      table,
		chat:          chatSvc,
		notifications: notifSvc,
		limiter:       NewRateLimiter(DefaultRateLimit, DefaultRateWindow),
	}
}

// CleanupRateLimits drops stale per-user limiter state. Called
// periodically by the application.
func (r *Router) CleanupRateLimits() {
	r.limiter.Cleanup()
}

// Route handles one client event on behalf of a verified origin. The
// returned error is feedback for the origin only; it never closes the
// connection and never reaches other sessions.
func (r *Router) Route(ctx context.Context, origin *types.Identity, event *types.ClientEvent) error {
	if !r.limiter.Allow(origin.ID) {
		return ErrRateLimitExceeded
	}

	switch event.Type {
	case types.EventTyping:
		return r.routeTyping(origin, event.Payload)
	case types.EventDeliveryAck:
		return r.routeDeliveryAck(origin, event.Payload)
	case types.EventUploadProgress:
		return r.routeUploadProgress(origin, event.Payload)
	case types.EventDirectMessage:
		return r.routeDirectMessage(ctx, origin, event.Payload)
	case types.EventNotification:
		return r.routeNotification(ctx, origin, event.Payload)
	default:
		log.Warn().Str("type", string(event.Type)).Str("origin", origin.ID).
			Msg("dropping unknown event")
		return types.ErrUnknownEvent
	}
}

// Ephemeral signals carry no durable state: the sender's identity is
// stamped server-side and the event goes straight to the target's
// personal room. Nobody online means the signal evaporates.

func (r *Router) routeTyping(origin *types.Identity, raw json.RawMessage) error {
	var p types.TypingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ErrMalformedPayload
	}
	if !types.IsValidUserID(p.ReceiverID) {
		return ErrMissingReceiver
	}
	p.SenderID = origin.ID
	p.Username = origin.Username

	r.presence.Dispatch(types.UserRoom(p.ReceiverID), &types.ServerEvent{
		Type:    types.EventTyping,
		Payload: &p,
	})
	return nil
}

func (r *Router) routeDeliveryAck(origin *types.Identity, raw json.RawMessage) error {
	var p types.DeliveryAckPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ErrMalformedPayload
	}
	if !types.IsValidUserID(p.SenderID) {
		return ErrMissingSender
	}
	p.AckedBy = origin.ID

	// The ack flows back to the original sender's personal room.
	r.presence.Dispatch(types.UserRoom(p.SenderID), &types.ServerEvent{
		Type:    types.EventDeliveryAck,
		Payload: &p,
	})
	return nil
}

func (r *Router) routeUploadProgress(origin *types.Identity, raw json.RawMessage) error {
	var p types.UploadProgressPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ErrMalformedPayload
	}
	if !types.IsValidUserID(p.ReceiverID) {
		return ErrMissingReceiver
	}
	p.SenderID = origin.ID

	r.presence.Dispatch(types.UserRoom(p.ReceiverID), &types.ServerEvent{
		Type:    types.EventUploadProgress,
		Payload: &p,
	})
	return nil
}

func (r *Router) routeDirectMessage(ctx context.Context, origin *types.Identity, raw json.RawMessage) error {
	var p types.DirectMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ErrMalformedPayload
	}
	if !types.IsValidUserID(p.ReceiverID) {
		return ErrMissingReceiver
	}

	_, err := r.chat.Send(ctx, origin.ID, p.ReceiverID, p.Body, p.Attachment)
	return err
}

func (r *Router) routeNotification(ctx context.Context, origin *types.Identity, raw json.RawMessage) error {
	if origin.Role != types.RoleAdmin {
		log.Warn().Str("origin", origin.ID).Str("role", origin.Role).
			Msg("rejected notification from non-admin")
		return ErrForbidden
	}

	var p types.NotificationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ErrMalformedPayload
	}

	_, err := r.notifications.Create(ctx, origin.ID, p.Title, p.Body, p.TargetRole)
	return err
}
