package ports

import (
	"context"

	"homesvc.app/client/internal/core/domain"
)

// KeyValueStorage is the persistent backend behind the token store.
// Get reports found=false for a missing key without an error.
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// TokenStore caches and persists the session credentials. It never fails outward.
type TokenStore interface {
	AccessToken(ctx context.Context) (string, bool)
	RefreshToken(ctx context.Context) (string, bool)
	UserData(ctx context.Context) (*domain.User, bool)
	SetAccessToken(ctx context.Context, token string)
	SetRefreshToken(ctx context.Context, token string)
	SetUserData(ctx context.Context, user *domain.User)
	SetTokenData(ctx context.Context, pair domain.TokenPair, user *domain.User)
	HasAccessToken(ctx context.Context) bool
	HasRefreshToken(ctx context.Context) bool
	ClearAllTokens(ctx context.Context)
	AuthorizationHeader(ctx context.Context) (string, bool)
}

// AuthGateway performs the account calls against the backend
type AuthGateway interface {
	Login(ctx context.Context, credentials domain.Credentials) (*domain.AuthData, error)
	ExternalLogin(ctx context.Context, request domain.ExternalLoginRequest) (*domain.AuthData, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.AuthData, error)
	ForgotPassword(ctx context.Context, request domain.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, request domain.ResetPasswordRequest) error
	ResendOTP(ctx context.Context, request domain.ResendOTPRequest) error
}

// SessionManager owns the session state and is the only component that mutates it
type SessionManager interface {
	Start(ctx context.Context)
	Login(ctx context.Context, credentials domain.Credentials) (*domain.User, error)
	ExternalLogin(ctx context.Context, request domain.ExternalLoginRequest) (*domain.User, error)
	RefreshToken(ctx context.Context) (domain.TokenPair, error)
	Logout(ctx context.Context)
	IsAuthenticated() bool
	WaitForInitialization(ctx context.Context) error
	CurrentUser() *domain.User
	Snapshot() domain.SessionSnapshot
	Subscribe(ctx context.Context) (<-chan domain.SessionSnapshot, func())
}
