package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	apphttp "homesvc.app/client/internal/application/http"
	"homesvc.app/client/internal/core/domain"
	httpdomain "homesvc.app/client/internal/core/domain/http"
	"homesvc.app/client/internal/core/ports"
)

// AuthGateway implements ports.AuthGateway over the backend REST API.
// Every call is single shot; retrying is left to the caller.
type AuthGateway struct {
	client *apphttp.BackendClient
	paths  httpdomain.AuthPaths
	logger zerolog.Logger

	mu    sync.RWMutex
	stats GatewayStats
}

// GatewayStats tracks account API usage
type GatewayStats struct {
	TotalRequests  int64         `json:"total_requests"`
	FailedRequests int64         `json:"failed_requests"`
	AverageLatency time.Duration `json:"average_latency"`
	LastRequest    time.Time     `json:"last_request_time"`
	LastError      string        `json:"last_error,omitempty"`
}

var _ ports.AuthGateway = (*AuthGateway)(nil)

// NewAuthGateway creates a gateway using client for transport
func NewAuthGateway(client *apphttp.BackendClient, paths httpdomain.AuthPaths, logger zerolog.Logger) *AuthGateway {
	return &AuthGateway{
		client: client,
		paths:  paths,
		logger: logger.With().Str("component", "auth_gateway").Logger(),
	}
}

// Login exchanges credentials for a token pair and profile
func (g *AuthGateway) Login(ctx context.Context, credentials domain.Credentials) (*domain.AuthData, error) {
	return g.loginCall(ctx, g.paths.Login, credentials)
}

// ExternalLogin exchanges a third-party identity token for a token pair and profile
func (g *AuthGateway) ExternalLogin(ctx context.Context, request domain.ExternalLoginRequest) (*domain.AuthData, error) {
	return g.loginCall(ctx, g.paths.ExternalLogin, request)
}

// Refresh exchanges a refresh token for a new pair
func (g *AuthGateway) Refresh(ctx context.Context, refreshToken string) (*domain.AuthData, error) {
	return g.authCall(ctx, g.paths.Refresh, domain.RefreshRequest{RefreshToken: refreshToken}, domain.MsgRefreshFailed)
}

// ForgotPassword asks the backend to email a reset code
func (g *AuthGateway) ForgotPassword(ctx context.Context, request domain.ForgotPasswordRequest) error {
	_, err := call[domain.Empty](ctx, g, g.paths.ForgotPassword, request, domain.MsgRequestFailed)
	return err
}

// ResetPassword sets a new password using the emailed code
func (g *AuthGateway) ResetPassword(ctx context.Context, request domain.ResetPasswordRequest) error {
	_, err := call[domain.Empty](ctx, g, g.paths.ResetPassword, request, domain.MsgRequestFailed)
	return err
}

// ResendOTP asks the backend for a fresh code
func (g *AuthGateway) ResendOTP(ctx context.Context, request domain.ResendOTPRequest) error {
	_, err := call[domain.Empty](ctx, g, g.paths.ResendOTP, request, domain.MsgRequestFailed)
	return err
}

// Stats returns a copy of the usage counters
func (g *AuthGateway) Stats() GatewayStats {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stats
}

// loginCall additionally requires the refresh token and the user
func (g *AuthGateway) loginCall(ctx context.Context, path string, payload any) (*domain.AuthData, error) {
	data, err := g.authCall(ctx, path, payload, domain.MsgLoginFailed)
	if err != nil {
		return nil, err
	}
	if !data.StartsSession() {
		g.logger.Warn().Str("path", path).Msg("login response is missing the refresh token or user")
		return nil, &domain.APIError{StatusCode: 200, Message: domain.MsgLoginFailed, Domain: true}
	}
	return data, nil
}

func (g *AuthGateway) authCall(ctx context.Context, path string, payload any, fallback string) (*domain.AuthData, error) {
	data, err := call[domain.AuthData](ctx, g, path, payload, fallback)
	if err != nil {
		return nil, err
	}
	// A success envelope without an access token cannot start a session.
	if !data.Token.HasAccessToken() {
		return nil, &domain.APIError{StatusCode: 200, Message: fallback, Domain: true}
	}
	return data, nil
}

func call[T any](ctx context.Context, g *AuthGateway, path string, payload any, fallback string) (*T, error) {
	start := time.Now()

	resp, err := g.client.PostJSON(ctx, path, payload, nil)
	if err == nil {
		var data *T
		data, err = apphttp.DecodeEnvelope[T](resp, fallback)
		if err == nil {
			g.record(start, nil)
			return data, nil
		}
	}

	g.record(start, err)
	g.logger.Debug().Err(err).Str("path", path).Msg("account call failed")
	return nil, err
}

func (g *AuthGateway) record(start time.Time, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stats.TotalRequests++
	latency := time.Since(start)
	if g.stats.AverageLatency == 0 {
		g.stats.AverageLatency = latency
	} else {
		g.stats.AverageLatency = (g.stats.AverageLatency + latency) / 2
	}
	g.stats.LastRequest = start
	if err != nil {
		g.stats.FailedRequests++
		g.stats.LastError = err.Error()
	}
}
