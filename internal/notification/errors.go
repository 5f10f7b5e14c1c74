package notification

import "errors"

var (
	ErrNotAdmin = errors.New("only admins may create notifications")
	ErrNotFound = errors.New("notification not found")
)
