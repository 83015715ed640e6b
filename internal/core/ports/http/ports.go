package httpports

import (
	"context"

	"homesvc.app/client/internal/core/domain"
)

// CredentialReader is read on every outgoing request.
type CredentialReader interface {
	AccessToken(ctx context.Context) (string, bool)
	RefreshToken(ctx context.Context) (string, bool)
}

// SessionRefresher rotates tokens when the backend rejects an access token.
type SessionRefresher interface {
	RefreshToken(ctx context.Context) (domain.TokenPair, error)
	Logout(ctx context.Context)
}
