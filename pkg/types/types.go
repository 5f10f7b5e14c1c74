package types

import (
	"time"
)

// Roles recognized by the platform. Room membership and event
// authorization are both derived from these values.
const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// Identity is a verified platform user. It is bound to a connection at
// handshake time and immutable for the lifetime of that connection.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role"`
	Active   bool   `json:"active"`
}

// Room is a logical fan-out group. Rooms are derived from identity
// state, never persisted: a session belongs to exactly its personal
// room and its role room.
type Room string

// UserRoom is the personal room for one identity. Every live session
// of that identity is a member.
func UserRoom(userID string) Room { return Room("user:" + userID) }

// RoleRoom holds all connected sessions of one role.
func RoleRoom(role string) Room { return Room("role:" + role) }

// BroadcastAll addresses every connected session. Sessions never join
// this room; the presence table expands it to all role rooms.
const BroadcastAll Room = "broadcast:all"

// Attachment carries the file metadata hydrated onto a direct message.
// Storage of the file itself is handled elsewhere; messages only keep
// the reference.
type Attachment struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// DirectMessage is the durable record of a one-to-one message. Read is
// mutated only by the receiver's history fetch; messages are never
// deleted by this system.
type DirectMessage struct {
	ID         string      `json:"id"`
	SenderID   string      `json:"sender_id"`
	ReceiverID string      `json:"receiver_id"`
	Body       string      `json:"body"`
	Attachment *Attachment `json:"attachment,omitempty"`
	Read       bool        `json:"read"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Notification is a broadcast announcement, immutable after creation.
// A nil TargetRole means every connected user receives it.
type Notification struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	CreatedBy  string    `json:"created_by"`
	TargetRole *string   `json:"target_role,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NotificationStatus pairs a notification with its read state for one
// user, as reported by the store's receipt table.
type NotificationStatus struct {
	Notification
	Read bool `json:"read"`
}

// Contact is a peer the viewer may message, annotated with how many of
// that peer's messages the viewer has not read yet.
type Contact struct {
	Identity
	UnreadCount int `json:"unread_count"`
}
