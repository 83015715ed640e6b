package httpdomain

import "strings"

// BackendEndpoint describes the single backend target used by the client.
type BackendEndpoint struct {
	BaseURL   string
	UserAgent string
}

// AuthPaths are the configured backend paths of the account endpoints.
type AuthPaths struct {
	Login          string
	Refresh        string
	ExternalLogin  string
	ForgotPassword string
	ResetPassword  string
	ResendOTP      string
}

// IsAuthEndpoint reports whether path targets login, refresh or external login.
// Requests to these never carry a bearer token and never trigger a refresh.
func (p AuthPaths) IsAuthEndpoint(path string) bool {
	path = normalizePath(path)
	for _, candidate := range []string{p.Login, p.Refresh, p.ExternalLogin} {
		if candidate != "" && normalizePath(candidate) == path {
			return true
		}
	}
	return false
}

func normalizePath(path string) string {
	path = strings.TrimSuffix(path, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.ToLower(path)
}
