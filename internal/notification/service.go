package notification

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

// Service owns announcement-grade notifications: admin-created, durably
// stored, fanned out to a role room or to everyone, with per-user read
// receipts.
type Service struct {
	store    interfaces.MessageStore
	users    interfaces.UserStore
	presence *presence.Table
}

func NewService(store interfaces.MessageStore, users interfaces.UserStore, table *presence.Table) *Service {
	return &Service{store: store, users: users, presence: table}
}

// Create persists a notification and then fans it out. Only active
// admins may create; a nil targetRole reaches every connected session.
// Persistence failure aborts with no push, and a fan-out reaching zero
// sessions is success.
func (s *Service) Create(ctx context.Context, creatorID, title, body string, targetRole *string) (*types.Notification, error) {
	creator, err := s.users.GetUser(ctx, creatorID)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			return nil, ErrNotAdmin
		}
		return nil, fmt.Errorf("failed to look up creator: %w", err)
	}
	if !creator.Active || creator.Role != types.RoleAdmin {
		return nil, ErrNotAdmin
	}

	n := &types.Notification{
		ID:         uuid.New().String(),
		Title:      title,
		Body:       body,
		CreatedBy:  creatorID,
		TargetRole: targetRole,
		CreatedAt:  time.Now().UTC(),
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}

	event := &types.ServerEvent{Type: types.EventNotification, Payload: n}
	var delivered int
	if targetRole != nil {
		delivered = s.presence.Dispatch(types.RoleRoom(*targetRole), event)
	} else {
		delivered = s.presence.Broadcast(event)
	}
	log.Info().Str("notification", n.ID).Str("created_by", creatorID).
		Int("delivered", delivered).Msg("notification published")

	return n, nil
}

// MarkRead records a read receipt. Marking an already-read notification
// again succeeds without effect.
func (s *Service) MarkRead(ctx context.Context, notificationID, userID string) error {
	if _, err := s.store.GetNotification(ctx, notificationID); err != nil {
		if errors.Is(err, interfaces.ErrNotificationNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to look up notification: %w", err)
	}
	if err := s.store.CreateReceipt(ctx, notificationID, userID); err != nil {
		return fmt.Errorf("failed to record receipt: %w", err)
	}
	return nil
}

// List returns the notifications visible to the user, newest first,
// each annotated with whether the user has read it.
func (s *Service) List(ctx context.Context, userID, role string) ([]*types.NotificationStatus, error) {
	return s.store.ListNotifications(ctx, userID, role)
}

// Unread returns the visible notifications the user has not read,
// oldest first, for replay to a freshly connected session.
func (s *Service) Unread(ctx context.Context, userID, role string) ([]*types.Notification, error) {
	return s.store.ListUnreadNotifications(ctx, userID, role)
}
