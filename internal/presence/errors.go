package presence

import "errors"

var (
	ErrNilSession        = errors.New("session cannot be nil")
	ErrInvalidIdentity   = errors.New("session has no valid identity")
	ErrAlreadyRegistered = errors.New("session already registered")
)
