package interfaces

import (
	"context"

	"campushub/pkg/types"
)

// UserStore resolves and enumerates platform identities.
type UserStore interface {
	// GetUser returns the identity for id, or ErrUserNotFound.
	GetUser(ctx context.Context, id string) (*types.Identity, error)
	// CreateUser registers an identity. Used by provisioning and tests.
	CreateUser(ctx context.Context, user *types.Identity) error
	// ListContacts returns the active users a viewer may message,
	// restricted to the given roles, each with the viewer's unread count.
	ListContacts(ctx context.Context, viewerID string, roles []string) ([]*types.Contact, error)
}

// MessageStore is the durable record of direct messages and
// notifications. It is the source of truth: socket push is an
// optimization layered on top of it, and every call here must either
// fully apply or leave no side effect.
type MessageStore interface {
	// CreateMessage persists a direct message.
	CreateMessage(ctx context.Context, msg *types.DirectMessage) error
	// ListConversation returns both directions between user and peer,
	// ordered oldest first.
	ListConversation(ctx context.Context, userID, peerID string) ([]*types.DirectMessage, error)
	// ListUnreadMessages returns the receiver's unread messages,
	// ordered oldest first.
	ListUnreadMessages(ctx context.Context, receiverID string) ([]*types.DirectMessage, error)
	// MarkConversationRead marks every unread message from senderID to
	// receiverID as read.
	MarkConversationRead(ctx context.Context, receiverID, senderID string) error
	// CountUnread returns the receiver's total unread message count.
	CountUnread(ctx context.Context, receiverID string) (int, error)

	// CreateNotification persists a notification.
	CreateNotification(ctx context.Context, n *types.Notification) error
	// GetNotification returns one notification, or ErrNotificationNotFound.
	GetNotification(ctx context.Context, id string) (*types.Notification, error)
	// ListNotifications returns the notifications visible to a user
	// (global plus their role), newest first, with read status.
	ListNotifications(ctx context.Context, userID, role string) ([]*types.NotificationStatus, error)
	// ListUnreadNotifications returns the visible notifications the
	// user has no receipt for, oldest first.
	ListUnreadNotifications(ctx context.Context, userID, role string) ([]*types.Notification, error)
	// CreateReceipt records that a user read a notification. Creating a
	// receipt that already exists is a no-op success.
	CreateReceipt(ctx context.Context, notificationID, userID string) error
}

// IdentityResolver verifies an opaque credential and returns the
// identity it belongs to. Fatal errors here reject the connection or
// request before any other work happens.
type IdentityResolver interface {
	Verify(ctx context.Context, credential string) (*types.Identity, error)
}
