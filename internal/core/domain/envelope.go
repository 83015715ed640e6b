package domain

import "strings"

// Envelope is the response wrapper shared by every backend endpoint.
// Succeeded=false is a failure even when the HTTP status is 200.
type Envelope[T any] struct {
	Succeeded  bool    `json:"succeeded"`
	Data       *T      `json:"data"`
	Message    *string `json:"message"`
	StatusCode *int    `json:"statusCode,omitempty"`
}

// MessageOr returns the backend message, or fallback when none was sent
func (e *Envelope[T]) MessageOr(fallback string) string {
	if e.Message == nil || strings.TrimSpace(*e.Message) == "" {
		return fallback
	}
	return *e.Message
}

// Err converts a failed envelope into an APIError. It returns nil on success.
func (e *Envelope[T]) Err(httpStatus int, fallback string) error {
	if e.Succeeded {
		return nil
	}
	status := httpStatus
	if e.StatusCode != nil {
		status = *e.StatusCode
	}
	return &APIError{
		StatusCode: status,
		Message:    e.MessageOr(fallback),
		Domain:     true,
	}
}

// AuthData is the payload of login, external login and refresh responses
type AuthData struct {
	Token TokenPair `json:"token"`
	User  *User     `json:"user,omitempty"`
}

// StartsSession reports whether a login response carries everything a
// signed-in session needs: both tokens and the user.
func (d *AuthData) StartsSession() bool {
	return d != nil && d.User != nil && d.Token.HasAccessToken() && d.Token.HasRefreshToken()
}

// Empty is used for endpoints whose data is irrelevant
type Empty struct{}
