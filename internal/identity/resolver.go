package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"campushub/pkg/interfaces"
	"campushub/pkg/types"
)

// Claims is the token payload minted by the platform's auth service.
type Claims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Resolver verifies HMAC-signed bearer tokens against the user store.
// It is the single credential check for both the socket handshake and
// the REST auth middleware; token minting lives outside this system.
type Resolver struct {
	users  interfaces.UserStore
	secret []byte
}

// NewResolver creates a resolver over a user store and signing secret.
func NewResolver(users interfaces.UserStore, secret []byte) *Resolver {
	return &Resolver{users: users, secret: secret}
}

// Verify resolves a credential to a live identity. The identity is
// re-read from the store so a deactivated user cannot connect with an
// otherwise valid token.
func (r *Resolver) Verify(ctx context.Context, credential string) (*types.Identity, error) {
	if credential == "" {
		return nil, ErrMissingCredential
	}

	token, err := jwt.ParseWithClaims(credential, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredential
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID == "" {
		return nil, ErrInvalidCredential
	}

	user, err := r.users.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("failed to resolve identity: %w", err)
	}

	if !user.Active {
		return nil, ErrInactiveIdentity
	}

	return user, nil
}
