package types

import "errors"

// Validation errors shared across the socket and REST paths.
var (
	ErrInvalidUserID = errors.New("user ID must be 1-50 characters, alphanumeric plus underscore/hyphen")
	ErrInvalidRole   = errors.New("role must be student, teacher, or admin")
	ErrEmptyMessage  = errors.New("message requires a body or an attachment")
	ErrBodyTooLarge  = errors.New("message body exceeds 64KB limit")
	ErrEmptyTitle    = errors.New("notification title is required")
	ErrEmptyBody     = errors.New("notification body is required")
	ErrUnknownEvent  = errors.New("unknown event type")
)
