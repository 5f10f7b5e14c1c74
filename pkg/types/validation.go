package types

import "regexp"

// MaxMessageBody bounds direct message and notification bodies.
const MaxMessageBody = 64 * 1024

var userIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// IsValidUserID checks the identifier shape used for all user references.
func IsValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

// IsValidRole reports whether role is one of the three platform roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// AllRoles returns the role set in a stable order.
func AllRoles() []string {
	return []string{RoleStudent, RoleTeacher, RoleAdmin}
}

// Validate enforces the content rule for direct messages: valid
// participants and a body or an attachment, never both absent.
func (m *DirectMessage) Validate() error {
	if !IsValidUserID(m.SenderID) || !IsValidUserID(m.ReceiverID) {
		return ErrInvalidUserID
	}
	if m.Body == "" && m.Attachment == nil {
		return ErrEmptyMessage
	}
	if len(m.Body) > MaxMessageBody {
		return ErrBodyTooLarge
	}
	return nil
}

// Validate enforces the content rule for notifications.
func (n *Notification) Validate() error {
	if n.Title == "" {
		return ErrEmptyTitle
	}
	if n.Body == "" {
		return ErrEmptyBody
	}
	if len(n.Body) > MaxMessageBody {
		return ErrBodyTooLarge
	}
	if n.TargetRole != nil && !IsValidRole(*n.TargetRole) {
		return ErrInvalidRole
	}
	return nil
}
