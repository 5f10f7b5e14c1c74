package types

import (
	"encoding/json"
)

// EventType tags every frame crossing the socket. The client-originated
// set is closed: the router switches over these constants exhaustively,
// so adding an event means adding a constant, a payload struct and a
// routing rule.
type EventType string

// Client-originated events.
const (
	// EventTyping is an ephemeral typing indicator for one receiver.
	EventTyping EventType = "typing"
	// EventDeliveryAck is an ephemeral delivery confirmation relayed
	// back to the original sender of a message.
	EventDeliveryAck EventType = "message_delivered"
	// EventUploadProgress is an ephemeral file-transfer progress signal
	// for one receiver.
	EventUploadProgress EventType = "upload_progress"
	// EventDirectMessage carries a durable direct message.
	EventDirectMessage EventType = "new_message"
	// EventNotification carries a durable broadcast announcement.
	// Admin-only at routing time.
	EventNotification EventType = "new_notification"
)

// Server-originated events.
const (
	// EventSystem carries connection-scoped status and error feedback.
	EventSystem EventType = "system"
	// EventSyncComplete marks the end of the backlog replay after a
	// (re)connect.
	EventSyncComplete EventType = "sync_complete"
)

// IsClientEvent reports whether t is an event a client may originate.
func IsClientEvent(t EventType) bool {
	switch t {
	case EventTyping, EventDeliveryAck, EventUploadProgress,
		EventDirectMessage, EventNotification:
		return true
	}
	return false
}

// ClientEvent is the inbound wire envelope. Payload decoding is
// deferred until the router knows the event type.
type ClientEvent struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServerEvent is the outbound wire envelope pushed to sessions.
type ServerEvent struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// TypingPayload targets one receiver. SenderID and Username are stamped
// by the router from the origin session, never trusted from the client.
type TypingPayload struct {
	ReceiverID string `json:"receiver_id"`
	SenderID   string `json:"sender_id,omitempty"`
	Username   string `json:"username,omitempty"`
}

// DeliveryAckPayload confirms delivery of a message back to its sender.
// AckedBy is stamped by the router.
type DeliveryAckPayload struct {
	SenderID  string `json:"sender_id"`
	MessageID string `json:"message_id,omitempty"`
	AckedBy   string `json:"acked_by,omitempty"`
}

// UploadProgressPayload reports file-transfer progress to one receiver.
// SenderID is stamped by the router.
type UploadProgressPayload struct {
	ReceiverID string `json:"receiver_id"`
	SenderID   string `json:"sender_id,omitempty"`
	FileName   string `json:"file_name,omitempty"`
	Percent    int    `json:"percent"`
}

// DirectMessagePayload is the client request half of EventDirectMessage;
// the pushed event carries the hydrated DirectMessage instead.
type DirectMessagePayload struct {
	ReceiverID string      `json:"receiver_id"`
	Body       string      `json:"body"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// NotificationPayload is the client request half of EventNotification.
type NotificationPayload struct {
	Title      string  `json:"title"`
	Body       string  `json:"body"`
	TargetRole *string `json:"target_role,omitempty"`
}

// SystemPayload carries server status and error feedback to one session.
type SystemPayload struct {
	Event   string `json:"event"`
	Message string `json:"message,omitempty"`
}
