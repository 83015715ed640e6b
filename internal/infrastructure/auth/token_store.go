package auth

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"homesvc.app/client/internal/core/domain"
	"homesvc.app/client/internal/core/ports"
)

const bearerPrefix = "Bearer "

// StoreKeys are the persisted keys, all under one namespace
type StoreKeys struct {
	AccessToken  string
	RefreshToken string
	UserData     string
}

// NewStoreKeys builds the key set for namespace
func NewStoreKeys(namespace string) StoreKeys {
	if namespace == "" {
		namespace = "homesvc"
	}
	return StoreKeys{
		AccessToken:  namespace + ":access_token",
		RefreshToken: namespace + ":refresh_token",
		UserData:     namespace + ":user_data",
	}
}

// StoredSession is a point-in-time view of the persisted credentials
type StoredSession struct {
	AccessToken  string
	RefreshToken string
	User         *domain.User
}

// TokenStore caches the credentials in memory over a persistent storage.
// A nil storage means persistence is unavailable: reads are absent and writes are dropped.
// No method returns an error; storage failures are logged.
type TokenStore struct {
	storage ports.KeyValueStorage
	keys    StoreKeys
	logger  zerolog.Logger

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	user         *domain.User
}

var _ ports.TokenStore = (*TokenStore)(nil)

// NewTokenStore creates a token store over storage
func NewTokenStore(storage ports.KeyValueStorage, keys StoreKeys, logger zerolog.Logger) *TokenStore {
	return &TokenStore{
		storage: storage,
		keys:    keys,
		logger:  logger.With().Str("component", "token_store").Logger(),
	}
}

// Keys returns the persisted key names
func (s *TokenStore) Keys() StoreKeys {
	return s.keys
}

// AccessToken returns the access token
func (s *TokenStore) AccessToken(ctx context.Context) (string, bool) {
	return s.readString(ctx, s.keys.AccessToken, &s.accessToken)
}

// RefreshToken returns the refresh token
func (s *TokenStore) RefreshToken(ctx context.Context) (string, bool) {
	return s.readString(ctx, s.keys.RefreshToken, &s.refreshToken)
}

// UserData returns the cached user profile.
// A stored value that is not valid JSON is deleted and reported as absent.
func (s *TokenStore) UserData(ctx context.Context) (*domain.User, bool) {
	s.mu.RLock()
	if s.user != nil {
		user := *s.user
		s.mu.RUnlock()
		return &user, true
	}
	s.mu.RUnlock()

	if s.storage == nil {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user != nil {
		user := *s.user
		return &user, true
	}

	raw, found, err := s.storage.Get(ctx, s.keys.UserData)
	if err != nil {
		s.logger.Error().Err(err).Str("key", s.keys.UserData).Msg("failed to read user data")
		return nil, false
	}
	if !found || strings.TrimSpace(raw) == "" {
		return nil, false
	}

	var user domain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		s.logger.Warn().Err(err).Str("key", s.keys.UserData).Msg("stored user data is corrupted, removing it")
		if err := s.storage.Delete(ctx, s.keys.UserData); err != nil {
			s.logger.Error().Err(err).Str("key", s.keys.UserData).Msg("failed to remove corrupted user data")
		}
		return nil, false
	}

	s.user = &user
	result := user
	return &result, true
}

// SetAccessToken persists the access token
func (s *TokenStore) SetAccessToken(ctx context.Context, token string) {
	s.writeString(ctx, s.keys.AccessToken, token, &s.accessToken)
}

// SetRefreshToken persists the refresh token
func (s *TokenStore) SetRefreshToken(ctx context.Context, token string) {
	s.writeString(ctx, s.keys.RefreshToken, token, &s.refreshToken)
}

// SetUserData persists the user profile as JSON
func (s *TokenStore) SetUserData(ctx context.Context, user *domain.User) {
	if user == nil {
		s.logger.Warn().Msg("refusing to store empty user data")
		return
	}
	if s.storage == nil {
		s.logger.Warn().Msg("storage unavailable, user data not stored")
		return
	}

	data, err := json.Marshal(user)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode user data")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Set(ctx, s.keys.UserData, string(data)); err != nil {
		s.logger.Error().Err(err).Str("key", s.keys.UserData).Msg("failed to store user data")
		return
	}
	copied := *user
	s.user = &copied
}

// SetTokenData writes whichever fields of pair are present, and the user when given
func (s *TokenStore) SetTokenData(ctx context.Context, pair domain.TokenPair, user *domain.User) {
	if pair.HasAccessToken() {
		s.SetAccessToken(ctx, pair.AccessToken)
	}
	if pair.HasRefreshToken() {
		s.SetRefreshToken(ctx, pair.RefreshToken)
	}
	if user != nil {
		s.SetUserData(ctx, user)
	}
}

// HasAccessToken reports whether a non-blank access token is stored
func (s *TokenStore) HasAccessToken(ctx context.Context) bool {
	token, ok := s.AccessToken(ctx)
	return ok && strings.TrimSpace(token) != ""
}

// HasRefreshToken reports whether a non-blank refresh token is stored
func (s *TokenStore) HasRefreshToken(ctx context.Context) bool {
	token, ok := s.RefreshToken(ctx)
	return ok && strings.TrimSpace(token) != ""
}

// ClearAllTokens removes every persisted key and empties the cache, best effort
func (s *TokenStore) ClearAllTokens(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessToken = ""
	s.refreshToken = ""
	s.user = nil

	if s.storage == nil {
		return
	}
	for _, key := range []string{s.keys.AccessToken, s.keys.RefreshToken, s.keys.UserData} {
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.Error().Err(err).Str("key", key).Msg("failed to remove stored credential")
		}
	}
}

// AuthorizationHeader returns "Bearer <token>" when an access token is stored
func (s *TokenStore) AuthorizationHeader(ctx context.Context) (string, bool) {
	if !s.HasAccessToken(ctx) {
		return "", false
	}
	token, _ := s.AccessToken(ctx)
	return bearerPrefix + token, true
}

// Snapshot returns everything currently stored
func (s *TokenStore) Snapshot(ctx context.Context) StoredSession {
	access, _ := s.AccessToken(ctx)
	refresh, _ := s.RefreshToken(ctx)
	user, _ := s.UserData(ctx)
	return StoredSession{AccessToken: access, RefreshToken: refresh, User: user}
}

func (s *TokenStore) readString(ctx context.Context, key string, cached *string) (string, bool) {
	s.mu.RLock()
	if *cached != "" {
		value := *cached
		s.mu.RUnlock()
		return value, true
	}
	s.mu.RUnlock()

	if s.storage == nil {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if *cached != "" {
		return *cached, true
	}

	value, found, err := s.storage.Get(ctx, key)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("failed to read credential")
		return "", false
	}
	if !found || value == "" {
		return "", false
	}

	*cached = value
	return value, true
}

func (s *TokenStore) writeString(ctx context.Context, key, value string, cached *string) {
	if strings.TrimSpace(value) == "" {
		s.logger.Warn().Str("key", key).Msg("refusing to store empty credential")
		return
	}
	if s.storage == nil {
		s.logger.Warn().Str("key", key).Msg("storage unavailable, credential not stored")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Set(ctx, key, value); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("failed to store credential")
		return
	}
	*cached = value
}
