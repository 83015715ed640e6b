package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"homesvc.app/client/internal/core/domain"
	"homesvc.app/client/internal/infrastructure/storage"
	"pgregory.net/rapid"
)

// MockStorage is a testify mock of ports.KeyValueStorage
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockStorage) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockStorage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockStorage) Close() error { return nil }

var testUser = &domain.User{
	ID:       "42",
	UserName: "jdoe",
	Email:    "u@x.com",
	FullName: "Jane Doe",
	Type:     "customer",
}

func newStore(t *testing.T) (*TokenStore, *storage.MemoryStorage) {
	t.Helper()
	backend := storage.NewMemoryStorage()
	return NewTokenStore(backend, NewStoreKeys("test"), zerolog.Nop()), backend
}

func TestTokenStore_WriteThroughAndRead(t *testing.T) {
	ctx := context.Background()
	store, backend := newStore(t)

	store.SetTokenData(ctx, domain.TokenPair{AccessToken: "A1", RefreshToken: "R1"}, testUser)

	access, ok := store.AccessToken(ctx)
	require.True(t, ok)
	assert.Equal(t, "A1", access)

	raw, found, err := backend.Get(ctx, "test:refresh_token")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "R1", raw)

	user, ok := store.UserData(ctx)
	require.True(t, ok)
	assert.Equal(t, testUser, user)

	header, ok := store.AuthorizationHeader(ctx)
	require.True(t, ok)
	assert.Equal(t, "Bearer A1", header)
}

func TestTokenStore_ReadsFromStorageOnCacheMiss(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewMemoryStorage()
	require.NoError(t, backend.Set(ctx, "test:access_token", "a"))
	require.NoError(t, backend.Set(ctx, "test:refresh_token", "r"))
	require.NoError(t, backend.Set(ctx, "test:user_data", `{"id":"7","email":"s@x.com"}`))

	store := NewTokenStore(backend, NewStoreKeys("test"), zerolog.Nop())

	assert.True(t, store.HasAccessToken(ctx))
	assert.True(t, store.HasRefreshToken(ctx))
	user, ok := store.UserData(ctx)
	require.True(t, ok)
	assert.Equal(t, "7", user.ID)

	// Cached values are served without touching storage again.
	require.NoError(t, backend.Delete(ctx, "test:access_token"))
	access, ok := store.AccessToken(ctx)
	assert.True(t, ok)
	assert.Equal(t, "a", access)
}

func TestTokenStore_RejectsEmptyValues(t *testing.T) {
	ctx := context.Background()
	store, backend := newStore(t)

	store.SetAccessToken(ctx, "")
	store.SetRefreshToken(ctx, "   ")
	store.SetUserData(ctx, nil)

	assert.Equal(t, 0, backend.Len())
	assert.False(t, store.HasAccessToken(ctx))
	assert.False(t, store.HasRefreshToken(ctx))
	_, ok := store.AuthorizationHeader(ctx)
	assert.False(t, ok)
}

func TestTokenStore_PartialTokenData(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)

	store.SetTokenData(ctx, domain.TokenPair{AccessToken: "A1"}, nil)

	assert.True(t, store.HasAccessToken(ctx))
	assert.False(t, store.HasRefreshToken(ctx))
	_, ok := store.UserData(ctx)
	assert.False(t, ok)
}

func TestTokenStore_CorruptedUserDataSelfHeals(t *testing.T) {
	ctx := context.Background()
	store, backend := newStore(t)
	require.NoError(t, backend.Set(ctx, "test:user_data", "{not json"))

	user, ok := store.UserData(ctx)
	assert.False(t, ok)
	assert.Nil(t, user)

	_, found, err := backend.Get(ctx, "test:user_data")
	require.NoError(t, err)
	assert.False(t, found, "corrupted value should be removed")
}

func TestTokenStore_ClearAllTokens(t *testing.T) {
	ctx := context.Background()
	store, backend := newStore(t)
	store.SetTokenData(ctx, domain.TokenPair{AccessToken: "A1", RefreshToken: "R1"}, testUser)

	store.ClearAllTokens(ctx)

	assert.False(t, store.HasAccessToken(ctx))
	assert.False(t, store.HasRefreshToken(ctx))
	_, ok := store.UserData(ctx)
	assert.False(t, ok)
	assert.Equal(t, 0, backend.Len())
}

func TestTokenStore_UnavailableStorage(t *testing.T) {
	ctx := context.Background()
	store := NewTokenStore(nil, NewStoreKeys(""), zerolog.Nop())

	store.SetTokenData(ctx, domain.TokenPair{AccessToken: "A1", RefreshToken: "R1"}, testUser)

	assert.False(t, store.HasAccessToken(ctx))
	_, ok := store.UserData(ctx)
	assert.False(t, ok)
	assert.NotPanics(t, func() { store.ClearAllTokens(ctx) })
}

func TestTokenStore_StorageFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")

	t.Run("failed write leaves cache untouched", func(t *testing.T) {
		backend := new(MockStorage)
		backend.On("Set", mock.Anything, "test:access_token", "A1").Return(boom).Once()
		backend.On("Get", mock.Anything, "test:access_token").Return("", false, nil).Once()

		store := NewTokenStore(backend, NewStoreKeys("test"), zerolog.Nop())
		store.SetAccessToken(ctx, "A1")

		assert.False(t, store.HasAccessToken(ctx))
		backend.AssertExpectations(t)
	})

	t.Run("failed read is reported as absent", func(t *testing.T) {
		backend := new(MockStorage)
		backend.On("Get", mock.Anything, "test:refresh_token").Return("", false, boom).Once()

		store := NewTokenStore(backend, NewStoreKeys("test"), zerolog.Nop())

		token, ok := store.RefreshToken(ctx)
		assert.False(t, ok)
		assert.Empty(t, token)
		backend.AssertExpectations(t)
	})

	t.Run("clear is best effort", func(t *testing.T) {
		backend := new(MockStorage)
		backend.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		backend.On("Delete", mock.Anything, "test:access_token").Return(boom).Once()
		backend.On("Delete", mock.Anything, "test:refresh_token").Return(nil).Once()
		backend.On("Delete", mock.Anything, "test:user_data").Return(nil).Once()
		backend.On("Get", mock.Anything, mock.Anything).Return("", false, nil)

		store := NewTokenStore(backend, NewStoreKeys("test"), zerolog.Nop())
		store.SetTokenData(ctx, domain.TokenPair{AccessToken: "A1", RefreshToken: "R1"}, testUser)
		store.ClearAllTokens(ctx)

		assert.False(t, store.HasAccessToken(ctx), "cache is cleared even when storage fails")
		backend.AssertExpectations(t)
	})
}

// TestTokenStore_Properties checks the store against a plain map model
func TestTokenStore_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		backend := storage.NewMemoryStorage()
		store := NewTokenStore(backend, NewStoreKeys("p"), zerolog.Nop())
		model := map[string]string{}

		token := rapid.SampledFrom([]string{"", " ", "A1", "A2", "R1", "tok"})
		steps := rapid.IntRange(1, 30).Draw(t, "steps")

		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 4).Draw(t, "op") {
			case 0:
				v := token.Draw(t, "access")
				store.SetAccessToken(ctx, v)
				if v != "" && v != " " {
					model["access"] = v
				}
			case 1:
				v := token.Draw(t, "refresh")
				store.SetRefreshToken(ctx, v)
				if v != "" && v != " " {
					model["refresh"] = v
				}
			case 2:
				store.ClearAllTokens(ctx)
				model = map[string]string{}
			case 3:
				require.NoError(t, backend.Set(ctx, "p:user_data", rapid.SampledFrom([]string{"{", "[]x", `{"id":"1"}`}).Draw(t, "raw")))
				// Drop the cache so the raw value is read back.
				fresh := NewTokenStore(backend, NewStoreKeys("p"), zerolog.Nop())
				if _, ok := fresh.UserData(ctx); !ok {
					_, found, _ := backend.Get(ctx, "p:user_data")
					assert.False(t, found, "unreadable user data must be removed")
				}
			case 4:
				_, hasAccess := model["access"]
				_, hasRefresh := model["refresh"]
				assert.Equal(t, hasAccess, store.HasAccessToken(ctx))
				assert.Equal(t, hasRefresh, store.HasRefreshToken(ctx))
			}
		}

		store.ClearAllTokens(ctx)
		assert.False(t, store.HasAccessToken(ctx))
		assert.False(t, store.HasRefreshToken(ctx))
		_, ok := store.UserData(ctx)
		assert.False(t, ok)
	})
}
