package httpinfra

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"homesvc.app/client/internal/core/domain"
	httpdomain "homesvc.app/client/internal/core/domain/http"
	"homesvc.app/client/internal/infrastructure/auth"
	"homesvc.app/client/internal/infrastructure/storage"
	"pgregory.net/rapid"
)

var testPaths = httpdomain.AuthPaths{
	Login:         "/api/auth/login",
	Refresh:       "/api/auth/refresh-token",
	ExternalLogin: "/api/auth/external-login",
}

// MockSession is a testify mock of the session refresher
type MockSession struct {
	mock.Mock
}

func (m *MockSession) RefreshToken(ctx context.Context) (domain.TokenPair, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.TokenPair), args.Error(1)
}

func (m *MockSession) Logout(ctx context.Context) {
	m.Called(ctx)
}

// storeSession rotates tokens in a real token store, like the session manager does
type storeSession struct {
	store   *auth.TokenStore
	refresh func(ctx context.Context) (domain.TokenPair, error)
	calls   atomic.Int32
	logouts atomic.Int32
}

func (s *storeSession) RefreshToken(ctx context.Context) (domain.TokenPair, error) {
	s.calls.Add(1)
	pair, err := s.refresh(ctx)
	if err != nil {
		return domain.TokenPair{}, err
	}
	s.store.SetTokenData(ctx, pair, nil)
	return pair, nil
}

func (s *storeSession) Logout(ctx context.Context) {
	s.logouts.Add(1)
	s.store.ClearAllTokens(ctx)
}

func newTestStore(t testing.TB, access, refresh string) *auth.TokenStore {
	t.Helper()
	store := auth.NewTokenStore(storage.NewMemoryStorage(), auth.NewStoreKeys("t"), zerolog.Nop())
	store.SetTokenData(context.Background(), domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil)
	return store
}

// protectedServer accepts only "Bearer <valid>" on every non-auth path
type protectedServer struct {
	*httptest.Server
	valid    atomic.Value
	mu       sync.Mutex
	seen     []string
	authHits atomic.Int32
	bodies   []string
}

func newProtectedServer(t testing.TB, valid string) *protectedServer {
	s := &protectedServer{}
	s.valid.Store(valid)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)

		s.mu.Lock()
		s.seen = append(s.seen, header)
		s.bodies = append(s.bodies, string(body))
		s.mu.Unlock()

		if testPaths.IsAuthEndpoint(r.URL.Path) {
			s.authHits.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if header != "Bearer "+s.valid.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"succeeded": true})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *protectedServer) headers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seen...)
}

func newAuthClient(a *BearerAuth) *http.Client {
	client := NewClient(nil, 5*time.Second)
	client.Use(a.Interceptor())
	return client.HTTPClient()
}

func TestBearerAuth_AttachesToken(t *testing.T) {
	server := newProtectedServer(t, "A1")
	store := newTestStore(t, "A1", "R1")
	session := new(MockSession)
	client := newAuthClient(NewBearerAuth(store, session, testPaths, 0, zerolog.Nop()))

	resp, err := client.Get(server.URL + "/api/bookings")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Bearer A1"}, server.headers())
	session.AssertNotCalled(t, "RefreshToken", mock.Anything)
}

func TestBearerAuth_AuthEndpointsBypassRecovery(t *testing.T) {
	for _, path := range []string{testPaths.Login, testPaths.Refresh, testPaths.ExternalLogin + "/"} {
		t.Run(path, func(t *testing.T) {
			server := newProtectedServer(t, "A1")
			store := newTestStore(t, "A1", "R1")
			session := new(MockSession)
			client := newAuthClient(NewBearerAuth(store, session, testPaths, 0, zerolog.Nop()))

			resp, err := client.Post(server.URL+path, "application/json", strings.NewReader(`{}`))
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "401 is returned untouched")
			assert.Equal(t, []string{""}, server.headers(), "no bearer on auth endpoints")
			assert.Equal(t, int32(1), server.authHits.Load())
			session.AssertNotCalled(t, "RefreshToken", mock.Anything)
			session.AssertNotCalled(t, "Logout", mock.Anything)
		})
	}
}

func TestBearerAuth_RefreshesAndReplaysOnce(t *testing.T) {
	server := newProtectedServer(t, "A2")
	store := newTestStore(t, "A1", "R1")
	session := &storeSession{store: store, refresh: func(context.Context) (domain.TokenPair, error) {
		return domain.TokenPair{AccessToken: "A2", RefreshToken: "R2"}, nil
	}}
	client := newAuthClient(NewBearerAuth(store, session, testPaths, 0, zerolog.Nop()))

	resp, err := client.Post(server.URL+"/api/bookings", "application/json", strings.NewReader(`{"slot":"9am"}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Bearer A1", "Bearer A2"}, server.headers())
	assert.Equal(t, []string{`{"slot":"9am"}`, `{"slot":"9am"}`}, server.bodies, "body is replayed")
	assert.Equal(t, int32(1), session.calls.Load())

	refresh, _ := store.RefreshToken(context.Background())
	assert.Equal(t, "R2", refresh)
}

func TestBearerAuth_ReplayIsNotRetriedAgain(t *testing.T) {
	server := newProtectedServer(t, "never-valid")
	store := newTestStore(t, "A1", "R1")
	session := &storeSession{store: store, refresh: func(context.Context) (domain.TokenPair, error) {
		return domain.TokenPair{AccessToken: "A2", RefreshToken: "R2"}, nil
	}}
	client := newAuthClient(NewBearerAuth(store, session, testPaths, 0, zerolog.Nop()))

	resp, err := client.Get(server.URL + "/api/bookings")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Len(t, server.headers(), 2)
	assert.Equal(t, int32(1), session.calls.Load())
}

func TestBearerAuth_NoRefreshTokenForcesLogout(t *testing.T) {
	server := newProtectedServer(t, "A2")
	store := newTestStore(t, "A1", "")
	session := new(MockSession)
	session.On("Logout", mock.Anything).Once()
	client := newAuthClient(NewBearerAuth(store, session, testPaths, 0, zerolog.Nop()))

	_, err := client.Get(server.URL + "/api/bookings")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoRefreshToken)
	assert.Len(t, server.headers(), 1, "original request is not replayed")
	session.AssertExpectations(t)
	session.AssertNotCalled(t, "RefreshToken", mock.Anything)
}

func TestBearerAuth_RefreshFailureForcesLogout(t *testing.T) {
	server := newProtectedServer(t, "A2")
	store := newTestStore(t, "A1", "R1")
	refreshErr := &domain.APIError{StatusCode: http.StatusUnauthorized, Message: "Refresh token expired"}

	session := new(MockSession)
	session.On("RefreshToken", mock.Anything).Return(domain.TokenPair{}, refreshErr).Once()
	session.On("Logout", mock.Anything).Once()
	client := newAuthClient(NewBearerAuth(store, session, testPaths, 0, zerolog.Nop()))

	_, err := client.Get(server.URL + "/api/bookings")

	var apiErr *domain.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Refresh token expired", apiErr.Message)
	assert.Len(t, server.headers(), 1)
	session.AssertExpectations(t)
}

func TestBearerAuth_SessionChangedKeepsNewSession(t *testing.T) {
	server := newProtectedServer(t, "A2")
	store := newTestStore(t, "A1", "R1")

	session := new(MockSession)
	session.On("RefreshToken", mock.Anything).
		Run(func(mock.Arguments) {
			// A new login lands while the stale refresh fails.
			store.SetTokenData(context.Background(), domain.TokenPair{AccessToken: "A2", RefreshToken: "R2"}, nil)
		}).
		Return(domain.TokenPair{}, domain.ErrSessionChanged).Once()
	client := newAuthClient(NewBearerAuth(store, session, testPaths, 0, zerolog.Nop()))

	resp, err := client.Get(server.URL + "/api/bookings")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Bearer A1", "Bearer A2"}, server.headers())
	session.AssertNotCalled(t, "Logout", mock.Anything)
	assert.True(t, store.HasRefreshToken(context.Background()))
}

func TestBearerAuth_RefreshTimeout(t *testing.T) {
	server := newProtectedServer(t, "A2")
	store := newTestStore(t, "A1", "R1")
	session := &storeSession{store: store, refresh: func(ctx context.Context) (domain.TokenPair, error) {
		<-ctx.Done()
		return domain.TokenPair{}, ctx.Err()
	}}
	client := newAuthClient(NewBearerAuth(store, session, testPaths, 50*time.Millisecond, zerolog.Nop()))

	_, err := client.Get(server.URL + "/api/bookings")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), session.logouts.Load())
	assert.False(t, store.HasAccessToken(context.Background()))
}

func TestBearerAuth_WaiterCanGiveUp(t *testing.T) {
	server := newProtectedServer(t, "A2")
	store := newTestStore(t, "A1", "R1")
	release := make(chan struct{})
	session := &storeSession{store: store, refresh: func(context.Context) (domain.TokenPair, error) {
		<-release
		return domain.TokenPair{AccessToken: "A2", RefreshToken: "R2"}, nil
	}}
	defer close(release)
	client := newAuthClient(NewBearerAuth(store, session, testPaths, 0, zerolog.Nop()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/bookings", nil)
	require.NoError(t, err)

	_, err = client.Do(req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestBearerAuth_ConcurrentUnauthorizedShareOneRefresh is the three request scenario
func TestBearerAuth_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	refreshes, replays := runConcurrentUnauthorized(t, 3)
	assert.Equal(t, int32(1), refreshes)
	assert.Equal(t, 3, replays)
}

// TestBearerAuth_AtMostOneRefresh checks that any number of concurrent 401s
// produce exactly one refresh and every request is replayed with its token.
func TestBearerAuth_AtMostOneRefresh(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, 16).Draw(rt, "requests")
		refreshes, replays := runConcurrentUnauthorized(t, n)
		if refreshes != 1 {
			rt.Fatalf("expected exactly one refresh for %d requests, got %d", n, refreshes)
		}
		if replays != n {
			rt.Fatalf("expected %d replays with the new token, got %d", n, replays)
		}
	})
}

func runConcurrentUnauthorized(t *testing.T, n int) (int32, int) {
	t.Helper()

	var arrived atomic.Int32
	var replayed atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer A2":
			replayed.Add(1)
			w.WriteHeader(http.StatusOK)
		default:
			arrived.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer server.Close()

	store := newTestStore(t, "A1", "R1")
	session := &storeSession{store: store, refresh: func(context.Context) (domain.TokenPair, error) {
		// Hold the refresh until every request has been rejected.
		deadline := time.Now().Add(2 * time.Second)
		for int(arrived.Load()) < n && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		return domain.TokenPair{AccessToken: "A2", RefreshToken: "R2"}, nil
	}}
	client := newAuthClient(NewBearerAuth(store, session, testPaths, 0, zerolog.Nop()))

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Get(server.URL + "/api/bookings")
			if err != nil {
				errs <- err
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				errs <- errors.New(resp.Status)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("request failed: %v", err)
	}
	return session.calls.Load(), int(replayed.Load())
}
