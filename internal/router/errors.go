package router

import "errors"

var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrMalformedPayload  = errors.New("malformed event payload")
	ErrMissingReceiver   = errors.New("event payload missing receiver id")
	ErrMissingSender     = errors.New("event payload missing sender id")
	ErrForbidden         = errors.New("origin role may not send this event")
)
