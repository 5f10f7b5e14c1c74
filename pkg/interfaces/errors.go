package interfaces

import "errors"

// Store errors shared across components.
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already exists")
	ErrNotificationNotFound = errors.New("notification not found")
)
