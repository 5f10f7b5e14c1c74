package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"campushub/internal/presence"
	"campushub/pkg/interfaces"
	"campushub/pkg/types"
)

// Service implements the durable half of direct messaging. The store is
// the source of truth: a message is persisted first and pushed to the
// receiver's personal room second, so a push that finds nobody online
// is not a failure. The message surfaces on the next history fetch.
type Service struct {
	store    interfaces.MessageStore
	users    interfaces.UserStore
	presence *presence.Table
}

// NewService creates a chat service. Both the socket router and the
// REST API call the same instance, so the two access paths cannot
// diverge.
func NewService(store interfaces.MessageStore, users interfaces.UserStore, table *presence.Table) *Service {
	return &Service{store: store, users: users, presence: table}
}

// Send validates, persists and then pushes a direct message. A store
// failure aborts the whole operation with no push; a push reaching zero
// sessions is success.
func (s *Service) Send(ctx context.Context, senderID, receiverID, body string, attachment *types.Attachment) (*types.DirectMessage, error) {
	receiver, err := s.users.GetUser(ctx, receiverID)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			return nil, ErrReceiverNotFound
		}
		return nil, fmt.Errorf("failed to look up receiver: %w", err)
	}
	if !receiver.Active {
		return nil, ErrReceiverNotFound
	}

	msg := &types.DirectMessage{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       body,
		Attachment: attachment,
		Read:       false,
		CreatedAt:  time.Now().UTC(),
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	// Write-then-notify: never push a message a client could not later
	// find in its history.
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	delivered := s.presence.Dispatch(types.UserRoom(receiverID), &types.ServerEvent{
		Type:    types.EventDirectMessage,
		Payload: msg,
	})
	log.Debug().Str("message", msg.ID).Str("from", senderID).Str("to", receiverID).
		Int("delivered", delivered).Msg("direct message sent")

	return msg, nil
}

// History returns the full conversation between user and peer, oldest
// first, and marks the peer's messages to the user as read.
func (s *Service) History(ctx context.Context, userID, peerID string) ([]*types.DirectMessage, error) {
	peer, err := s.users.GetUser(ctx, peerID)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			return nil, ErrPeerNotFound
		}
		return nil, fmt.Errorf("failed to look up peer: %w", err)
	}
	if !peer.Active {
		return nil, ErrPeerNotFound
	}

	messages, err := s.store.ListConversation(ctx, userID, peerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	if err := s.store.MarkConversationRead(ctx, userID, peerID); err != nil {
		return nil, fmt.Errorf("failed to mark conversation read: %w", err)
	}

	return messages, nil
}

// Contacts returns the peers the viewer may message, with unread
// counts. Students see teachers and admins, teachers see students and
// admins, admins see everyone.
func (s *Service) Contacts(ctx context.Context, viewer *types.Identity) ([]*types.Contact, error) {
	var roles []string
	switch viewer.Role {
	case types.RoleStudent:
		roles = []string{types.RoleTeacher, types.RoleAdmin}
	case types.RoleTeacher:
		roles = []string{types.RoleStudent, types.RoleAdmin}
	case types.RoleAdmin:
		roles = types.AllRoles()
	default:
		return nil, types.ErrInvalidRole
	}

	return s.users.ListContacts(ctx, viewer.ID, roles)
}

// UnreadCount returns the user's total count of unread messages.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.CountUnread(ctx, userID)
}

// Backlog returns the unread messages replayed to a freshly connected
// session. Replay does not mark anything read; only a history fetch or
// explicit read action does.
func (s *Service) Backlog(ctx context.Context, userID string) ([]*types.DirectMessage, error) {
	return s.store.ListUnreadMessages(ctx, userID)
}
