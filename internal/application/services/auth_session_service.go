package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"homesvc.app/client/internal/core/domain"
	"homesvc.app/client/internal/core/ports"
)

// AuthSessionManager owns the session state machine:
//
//	uninitialized -> initializing -> {anonymous, authenticated}
//
// It is the only component that mutates session state. Every transition is
// published to subscribers in the order the operations complete.
type AuthSessionManager struct {
	store       ports.TokenStore
	gateway     ports.AuthGateway
	logger      zerolog.Logger
	broadcaster *SessionBroadcaster

	// opMu serializes the apply phase of operations (never held across network calls)
	opMu sync.Mutex
	// refreshes is keyed by the refresh token being rotated
	refreshes singleflight.Group

	mu          sync.RWMutex
	state       domain.SessionState
	user        *domain.User
	initialized bool

	startOnce sync.Once
	ready     chan struct{}
}

var _ ports.SessionManager = (*AuthSessionManager)(nil)

// NewAuthSessionManager creates a manager in the uninitialized state.
// Call Start once wiring is complete to run the startup read.
func NewAuthSessionManager(store ports.TokenStore, gateway ports.AuthGateway, logger zerolog.Logger) *AuthSessionManager {
	return &AuthSessionManager{
		store:       store,
		gateway:     gateway,
		logger:      logger.With().Str("component", "session").Logger(),
		broadcaster: NewSessionBroadcaster(),
		state:       domain.SessionStateUninitialized,
		ready:       make(chan struct{}),
	}
}

// Start moves to initializing and reads the stored session on its own goroutine.
// Only the first call has an effect.
func (m *AuthSessionManager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.mu.Lock()
		if !m.initialized {
			m.state = domain.SessionStateInitializing
			m.broadcaster.Publish(m.snapshotLocked(domain.ReasonStartup))
		}
		m.mu.Unlock()

		go m.initialize(context.WithoutCancel(ctx))
	})
}

func (m *AuthSessionManager) initialize(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	// A login that completed first already settled the session.
	m.mu.RLock()
	settled := m.initialized
	m.mu.RUnlock()
	if settled {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Msg("failed to restore session")
			m.store.ClearAllTokens(ctx)
			m.settle(domain.SessionStateAnonymous, nil, domain.ReasonStartup)
		}
	}()

	user, hasUser := m.store.UserData(ctx)
	if hasUser && m.store.HasRefreshToken(ctx) {
		m.logger.Debug().Str("user_id", user.ID).Msg("session restored")
		m.settle(domain.SessionStateAuthenticated, user, domain.ReasonRestored)
		return
	}

	m.store.ClearAllTokens(ctx)
	m.settle(domain.SessionStateAnonymous, nil, domain.ReasonStartup)
}

// settle records the first settled state and releases WaitForInitialization
func (m *AuthSessionManager) settle(state domain.SessionState, user *domain.User, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return
	}
	m.state = state
	m.user = user
	m.initialized = true
	close(m.ready)
	m.broadcaster.Publish(m.snapshotLocked(reason))
}

// Login posts credentials and starts an authenticated session
func (m *AuthSessionManager) Login(ctx context.Context, credentials domain.Credentials) (*domain.User, error) {
	if strings.TrimSpace(credentials.Password) == "" ||
		(strings.TrimSpace(credentials.Identifier) == "" && strings.TrimSpace(credentials.Email) == "") {
		return nil, domain.ErrInvalidCredentials
	}

	data, err := m.gateway.Login(ctx, credentials)
	if err != nil {
		m.logger.Info().Err(err).Msg("login failed")
		return nil, err
	}
	return m.begin(ctx, data, domain.ReasonLogin)
}

// ExternalLogin exchanges a third-party identity token for a session.
// A failure leaves the current session untouched, as with Login.
func (m *AuthSessionManager) ExternalLogin(ctx context.Context, request domain.ExternalLoginRequest) (*domain.User, error) {
	data, err := m.gateway.ExternalLogin(ctx, request)
	if err != nil {
		m.logger.Info().Err(err).Str("provider", request.Provider).Msg("external login failed")
		return nil, err
	}
	return m.begin(ctx, data, domain.ReasonExternal)
}

// begin stores a login response. A response without both tokens and the user
// is rejected and the current session is left as it was.
func (m *AuthSessionManager) begin(ctx context.Context, data *domain.AuthData, reason string) (*domain.User, error) {
	if !data.StartsSession() {
		m.logger.Warn().Str("reason", reason).Msg("login response is incomplete, ignoring it")
		return nil, &domain.APIError{StatusCode: 200, Message: domain.MsgLoginFailed, Domain: true}
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.store.SetTokenData(ctx, data.Token, data.User)
	m.transition(domain.SessionStateAuthenticated, data.User, reason)

	m.logger.Info().Str("user_id", data.User.ID).Str("reason", reason).Msg("signed in")
	user := *data.User
	return &user, nil
}

// RefreshToken rotates the token pair. Without a stored refresh token it fails
// with domain.ErrNoRefreshToken and makes no call. Concurrent callers holding
// the same refresh token share one backend call. Any other failure ends the
// session, unless the session was replaced while the call was in flight.
func (m *AuthSessionManager) RefreshToken(ctx context.Context) (domain.TokenPair, error) {
	refreshToken, ok := m.store.RefreshToken(ctx)
	if !ok || strings.TrimSpace(refreshToken) == "" {
		return domain.TokenPair{}, domain.ErrNoRefreshToken
	}

	result := m.refreshes.DoChan(refreshToken, func() (any, error) {
		return m.rotate(ctx, refreshToken)
	})

	select {
	case <-ctx.Done():
		return domain.TokenPair{}, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return domain.TokenPair{}, res.Err
		}
		return res.Val.(domain.TokenPair), nil
	}
}

func (m *AuthSessionManager) rotate(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	data, err := m.gateway.Refresh(ctx, refreshToken)

	m.opMu.Lock()
	defer m.opMu.Unlock()

	// A logout or another login replaced the session while the call was in flight.
	if current, _ := m.store.RefreshToken(ctx); current != refreshToken {
		if err != nil {
			m.logger.Debug().Err(err).Msg("stale refresh failed, keeping the current session")
		}
		return domain.TokenPair{}, domain.ErrSessionChanged
	}

	if err != nil {
		m.logger.Warn().Err(err).Msg("token refresh failed, signing out")
		m.logoutLocked(ctx, domain.ReasonRefreshFault)
		return domain.TokenPair{}, err
	}

	m.store.SetTokenData(ctx, data.Token, nil)

	m.mu.RLock()
	state, user := m.state, m.user
	m.mu.RUnlock()
	if user != nil {
		state = domain.SessionStateAuthenticated
	}
	m.transition(state, user, domain.ReasonRefresh)

	return data.Token, nil
}

// Logout clears every stored credential. It makes no network call and cannot fail.
func (m *AuthSessionManager) Logout(ctx context.Context) {
	m.logout(ctx, domain.ReasonLogout)
}

func (m *AuthSessionManager) logout(ctx context.Context, reason string) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.logoutLocked(ctx, reason)
}

func (m *AuthSessionManager) logoutLocked(ctx context.Context, reason string) {
	m.store.ClearAllTokens(ctx)

	m.mu.RLock()
	signedOut := m.initialized && m.state == domain.SessionStateAnonymous && m.user == nil
	m.mu.RUnlock()
	if signedOut {
		return
	}
	m.transition(domain.SessionStateAnonymous, nil, reason)
}

// transition updates the state and publishes it. Callers hold opMu.
func (m *AuthSessionManager) transition(state domain.SessionState, user *domain.User, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Operations that finish before the startup read settle the session themselves.
	if !m.initialized {
		m.initialized = true
		close(m.ready)
	}

	m.state = state
	if user != nil {
		copied := *user
		m.user = &copied
	} else {
		m.user = nil
	}
	m.broadcaster.Publish(m.snapshotLocked(reason))
}

// ForgotPassword asks the backend to email a one-time code
func (m *AuthSessionManager) ForgotPassword(ctx context.Context, request domain.ForgotPasswordRequest) error {
	return m.gateway.ForgotPassword(ctx, request)
}

// ResetPassword sets a new password using the emailed code. It does not sign in.
func (m *AuthSessionManager) ResetPassword(ctx context.Context, request domain.ResetPasswordRequest) error {
	return m.gateway.ResetPassword(ctx, request)
}

// ResendOTP sends a fresh one-time code
func (m *AuthSessionManager) ResendOTP(ctx context.Context, request domain.ResendOTPRequest) error {
	return m.gateway.ResendOTP(ctx, request)
}

// IsAuthenticated is false until the startup read completes; afterwards it
// requires both tokens and a signed-in user.
func (m *AuthSessionManager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isAuthenticatedLocked()
}

func (m *AuthSessionManager) isAuthenticatedLocked() bool {
	if !m.initialized || m.user == nil {
		return false
	}
	ctx := context.Background()
	return m.store.HasAccessToken(ctx) && m.store.HasRefreshToken(ctx)
}

// WaitForInitialization blocks until the startup read has completed
func (m *AuthSessionManager) WaitForInitialization(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentUser returns the signed-in user, nil when anonymous
func (m *AuthSessionManager) CurrentUser() *domain.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	user := *m.user
	return &user
}

// State returns the current state
func (m *AuthSessionManager) State() domain.SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Snapshot returns the current session view
func (m *AuthSessionManager) Snapshot() domain.SessionSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked("")
}

// Subscribe delivers the current snapshot followed by every transition.
// The channel closes when ctx ends or the returned cancel func is called.
func (m *AuthSessionManager) Subscribe(ctx context.Context) (<-chan domain.SessionSnapshot, func()) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.broadcaster.Subscribe(ctx, m.snapshotLocked(""))
}

// Close ends every subscription
func (m *AuthSessionManager) Close() {
	m.broadcaster.Close()
}

func (m *AuthSessionManager) snapshotLocked(reason string) domain.SessionSnapshot {
	var user *domain.User
	if m.user != nil {
		copied := *m.user
		user = &copied
	}
	return domain.SessionSnapshot{
		State:       m.state,
		LoggedIn:    m.isAuthenticatedLocked(),
		Initialized: m.initialized,
		User:        user,
		Reason:      reason,
		OccurredAt:  time.Now(),
	}
}

// IsSessionError reports errors that mean the user has to sign in again
func IsSessionError(err error) bool {
	return errors.Is(err, domain.ErrNoRefreshToken) ||
		errors.Is(err, domain.ErrNotAuthenticated) ||
		domain.IsUnauthorized(err)
}
