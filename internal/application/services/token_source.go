package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"homesvc.app/client/internal/core/domain"
	"homesvc.app/client/internal/core/ports"
)

// DefaultRefreshSkew is how long before expiry a token source refreshes proactively
const DefaultRefreshSkew = 30 * time.Second

// SessionTokenSource exposes the session as an oauth2.TokenSource so that
// clients built on golang.org/x/oauth2 share the session's tokens and refreshes.
type SessionTokenSource struct {
	ctx     context.Context
	store   ports.TokenStore
	session *AuthSessionManager
	skew    time.Duration

	mu sync.Mutex
}

var _ oauth2.TokenSource = (*SessionTokenSource)(nil)

// TokenSource returns a token source backed by this session
func (m *AuthSessionManager) TokenSource(ctx context.Context) *SessionTokenSource {
	return &SessionTokenSource{
		ctx:     context.WithoutCancel(ctx),
		store:   m.store,
		session: m,
		skew:    DefaultRefreshSkew,
	}
}

// Token returns the stored access token, refreshing first when it is about to expire
func (s *SessionTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	access, ok := s.store.AccessToken(s.ctx)
	if !ok {
		return nil, domain.ErrNotAuthenticated
	}

	claims, err := domain.ParseAccessClaims(access)
	if err == nil && claims.ShouldRefresh(s.skew) {
		pair, err := s.session.RefreshToken(s.ctx)
		if err != nil {
			return nil, err
		}
		access = pair.AccessToken
		claims, err = domain.ParseAccessClaims(access)
		if err != nil {
			claims = nil
		}
	}

	token := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if refresh, ok := s.store.RefreshToken(s.ctx); ok {
		token.RefreshToken = refresh
	}
	if claims != nil && claims.HasExpiry() {
		token.Expiry = claims.ExpiresAt
	}
	return token, nil
}
