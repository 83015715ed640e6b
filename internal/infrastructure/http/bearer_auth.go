package httpinfra

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"homesvc.app/client/internal/core/domain"
	httpdomain "homesvc.app/client/internal/core/domain/http"
	httpports "homesvc.app/client/internal/core/ports/http"
)

const refreshFlightKey = "refresh"

// BearerAuth attaches the access token to outgoing requests and recovers from
// 401 responses with a single shared token refresh.
type BearerAuth struct {
	credentials    httpports.CredentialReader
	session        httpports.SessionRefresher
	paths          httpdomain.AuthPaths
	refreshTimeout time.Duration
	logger         zerolog.Logger

	// flights is the in-flight marker: callers that hit a 401 while a refresh
	// is running join it and receive its result instead of starting another.
	flights   singleflight.Group
	refreshes atomic.Int64
}

// NewBearerAuth creates the authenticator. refreshTimeout bounds a single
// refresh call; zero leaves it unbounded.
func NewBearerAuth(credentials httpports.CredentialReader, session httpports.SessionRefresher, paths httpdomain.AuthPaths, refreshTimeout time.Duration, logger zerolog.Logger) *BearerAuth {
	return &BearerAuth{
		credentials:    credentials,
		session:        session,
		paths:          paths,
		refreshTimeout: refreshTimeout,
		logger:         logger.With().Str("component", "bearer_auth").Logger(),
	}
}

// Interceptor returns the auth step for a Client chain
func (a *BearerAuth) Interceptor() Interceptor {
	return a.Intercept
}

// Refreshes returns how many refresh calls this authenticator has started
func (a *BearerAuth) Refreshes() int64 {
	return a.refreshes.Load()
}

// Intercept implements Interceptor
func (a *BearerAuth) Intercept(req *http.Request, next Invoker) (*http.Response, error) {
	// Login and refresh never carry a bearer token and never trigger recovery,
	// otherwise a rejected refresh would refresh again.
	if a.paths.IsAuthEndpoint(req.URL.Path) {
		return next(req)
	}

	ctx := req.Context()
	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	token, _ := a.credentials.AccessToken(ctx)
	resp, err := next(withBearer(req, token, getBody))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	a.logger.Debug().Str("path", req.URL.Path).Msg("access token rejected, recovering")

	newToken, err := a.recoverToken(ctx, token)
	discard(resp)
	if err != nil {
		return nil, err
	}

	return next(withBearer(req, newToken, getBody))
}

// recoverToken returns the access token a rejected request should be replayed with
func (a *BearerAuth) recoverToken(ctx context.Context, rejected string) (string, error) {
	result := a.flights.DoChan(refreshFlightKey, func() (any, error) {
		return a.refresh(ctx, rejected)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (a *BearerAuth) refresh(ctx context.Context, rejected string) (string, error) {
	// A refresh finished after the rejected request was sent; replay with its result.
	if current, ok := a.credentials.AccessToken(ctx); ok && current != rejected {
		return current, nil
	}

	// The refresh outlives the request that started it; the others wait on it.
	ctx = context.WithoutCancel(ctx)
	if a.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.refreshTimeout)
		defer cancel()
	}

	if _, ok := a.credentials.RefreshToken(ctx); !ok {
		a.logger.Info().Msg("no refresh token, ending session")
		a.session.Logout(ctx)
		return "", domain.ErrNoRefreshToken
	}

	a.refreshes.Add(1)
	pair, err := a.session.RefreshToken(ctx)
	if errors.Is(err, domain.ErrSessionChanged) {
		// Another login replaced the session mid-flight; it stays.
		if current, ok := a.credentials.AccessToken(ctx); ok {
			return current, nil
		}
		return "", domain.ErrNotAuthenticated
	}
	if err != nil {
		a.logger.Warn().Err(err).Msg("token refresh failed, ending session")
		a.session.Logout(ctx)
		return "", err
	}

	a.logger.Debug().Msg("token refreshed")
	return pair.AccessToken, nil
}

func withBearer(req *http.Request, token string, getBody func() (io.ReadCloser, error)) *http.Request {
	out := req.Clone(req.Context())
	if getBody != nil {
		out.Body, _ = getBody()
		out.GetBody = getBody
	}
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return out
}

// replayableBody makes sure the request body can be sent twice
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
