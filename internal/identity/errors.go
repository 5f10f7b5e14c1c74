package identity

import "errors"

// Resolution errors. All of them are fatal to the connection attempt or
// request that carried the credential.
var (
	ErrMissingCredential = errors.New("authentication required")
	ErrInvalidCredential = errors.New("invalid or expired credential")
	ErrInactiveIdentity  = errors.New("account is deactivated")
)
