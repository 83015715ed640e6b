package domain

import (
	"errors"
	"fmt"
)

// Session errors
var (
	ErrNoRefreshToken     = errors.New("no refresh token available")
	ErrInvalidCredentials = errors.New("identifier or email and password are required")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrSessionChanged     = errors.New("session changed while the refresh was in flight")
)

// Default messages used when the backend does not supply one
const (
	MsgLoginFailed   = "Login failed"
	MsgRefreshFailed = "Token refresh failed"
	MsgRequestFailed = "Request failed"
	MsgNetworkError  = "Network error"
)

// APIError is returned for every failed backend call.
// StatusCode 0 means the request never produced an HTTP response.
type APIError struct {
	StatusCode int
	Message    string
	// Domain is set when the backend answered with succeeded=false
	Domain bool
	Cause  error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// IsNetwork reports whether the call failed before an HTTP response arrived
func (e *APIError) IsNetwork() bool {
	return e.StatusCode == 0
}

// NewNetworkError wraps a transport failure
func NewNetworkError(cause error) *APIError {
	return &APIError{Message: MsgNetworkError, Cause: cause}
}

// IsUnauthorized reports whether err is an APIError with a 401 status
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 401
}
