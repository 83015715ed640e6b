// Package mockapi is an in-process fake of the marketplace account backend.
// It backs the integration tests and `hs dev mock-server`.
package mockapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"homesvc.app/client/internal/core/domain"
	httpdomain "homesvc.app/client/internal/core/domain/http"
)

// Default paths, matching the client defaults
const (
	DefaultLoginPath          = "/api/auth/login"
	DefaultRefreshPath        = "/api/auth/refresh-token"
	DefaultExternalLoginPath  = "/api/auth/external-login"
	DefaultForgotPasswordPath = "/api/auth/forgot-password"
	DefaultResetPasswordPath  = "/api/auth/reset-password"
	DefaultResendOTPPath      = "/api/auth/resend-otp"
	ProfilePath               = "/api/users/me"
	DefaultOTP                = "123456"
)

// DefaultPaths returns the account endpoint paths the server mounts by default
func DefaultPaths() httpdomain.AuthPaths {
	return httpdomain.AuthPaths{
		Login:          DefaultLoginPath,
		Refresh:        DefaultRefreshPath,
		ExternalLogin:  DefaultExternalLoginPath,
		ForgotPassword: DefaultForgotPasswordPath,
		ResetPassword:  DefaultResetPasswordPath,
		ResendOTP:      DefaultResendOTPPath,
	}
}

// Account is a registered user and their password
type Account struct {
	Password string
	User     domain.User
}

// Config configures the fake backend
type Config struct {
	Paths    httpdomain.AuthPaths
	Accounts []Account
	TokenTTL time.Duration
	Secret   []byte
}

// Server is the fake backend. All methods are safe for concurrent use.
type Server struct {
	config Config
	router chi.Router

	mu            sync.Mutex
	accounts      map[string]*Account // by email and user name
	accessTokens  map[string]string   // token -> user id
	refreshTokens map[string]string   // token -> user id
	otps          map[string]string   // email -> code
	hits          map[string]int
	refreshFault  int
	refreshDelay  time.Duration
	refreshGate   chan struct{}
}

// NewServer creates a fake backend with the given accounts
func NewServer(config Config) *Server {
	if config.Paths == (httpdomain.AuthPaths{}) {
		config.Paths = DefaultPaths()
	}
	if config.TokenTTL == 0 {
		config.TokenTTL = 15 * time.Minute
	}
	if len(config.Secret) == 0 {
		config.Secret = []byte("homesvc-mock-secret")
	}

	s := &Server{
		config:        config,
		accounts:      make(map[string]*Account),
		accessTokens:  make(map[string]string),
		refreshTokens: make(map[string]string),
		otps:          make(map[string]string),
		hits:          make(map[string]int),
	}
	for i := range config.Accounts {
		s.addAccount(config.Accounts[i])
	}
	s.router = s.routes()
	return s
}

// DemoAccount is the account seeded by `hs dev mock-server`
func DemoAccount() Account {
	return Account{
		Password: "password",
		User: domain.User{
			ID:          "11111111-2222-3333-4444-555555555555",
			UserName:    "demo",
			Email:       "demo@homesvc.app",
			FullName:    "Demo Customer",
			PhoneNumber: "+10000000000",
			Type:        "customer",
		},
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.countHits)

	r.Post(s.config.Paths.Login, s.handleLogin)
	r.Post(s.config.Paths.Refresh, s.handleRefresh)
	r.Post(s.config.Paths.ExternalLogin, s.handleExternalLogin)
	r.Post(s.config.Paths.ForgotPassword, s.handleForgotPassword)
	r.Post(s.config.Paths.ResetPassword, s.handleResetPassword)
	r.Post(s.config.Paths.ResendOTP, s.handleResendOTP)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get(ProfilePath, s.handleProfile)
		r.HandleFunc("/api/*", s.handleEcho)
	})
	return r
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Hits returns how many requests reached path
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// FailNextRefreshes makes the next n refresh calls answer 500
func (s *Server) FailNextRefreshes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshFault = n
}

// SetRefreshDelay slows down every refresh call
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// HoldRefreshes blocks refresh calls until the returned release func is called
func (s *Server) HoldRefreshes() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.refreshGate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.refreshGate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// ExpireAccessTokens invalidates every issued access token, refresh tokens stay valid
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTokens = make(map[string]string)
}

// RevokeRefreshTokens invalidates every issued refresh token
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens = make(map[string]string)
}

// IssueTokens creates a valid pair for a registered user without a login call
func (s *Server) IssueTokens(userID string) domain.TokenPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(userID)
}

func (s *Server) addAccount(account Account) {
	if account.User.ID == "" {
		account.User.ID = uuid.NewString()
	}
	a := account
	s.accounts[strings.ToLower(a.User.Email)] = &a
	if a.User.UserName != "" {
		s.accounts[strings.ToLower(a.User.UserName)] = &a
	}
}

func (s *Server) issueLocked(userID string) domain.TokenPair {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenTTL)),
	}
	access, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.Secret)
	refresh := uuid.NewString()

	s.accessTokens[access] = userID
	s.refreshTokens[refresh] = userID
	return domain.TokenPair{AccessToken: access, RefreshToken: refresh}
}

func (s *Server) userByIDLocked(id string) *domain.User {
	for _, a := range s.accounts {
		if a.User.ID == id {
			u := a.User
			return &u
		}
	}
	return nil
}

func (s *Server) countHits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeFailure(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		claims := jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
			return s.config.Secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

		s.mu.Lock()
		_, known := s.accessTokens[token]
		s.mu.Unlock()

		if err != nil || !known {
			writeFailure(w, http.StatusUnauthorized, "Access token is invalid or expired")
			return
		}
		next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), claims.Subject)))
	})
}
