package domain

import "time"

// SessionState is the lifecycle state of the client session
type SessionState string

const (
	SessionStateUninitialized SessionState = "uninitialized"
	SessionStateInitializing  SessionState = "initializing"
	SessionStateAnonymous     SessionState = "anonymous"
	SessionStateAuthenticated SessionState = "authenticated"
)

// SessionSnapshot is what subscribers receive on every transition
type SessionSnapshot struct {
	State       SessionState
	LoggedIn    bool
	Initialized bool
	User        *User
	Reason      string
	OccurredAt  time.Time
}

// Transition reasons carried in snapshots
const (
	ReasonStartup      = "startup"
	ReasonRestored     = "restored"
	ReasonLogin        = "login"
	ReasonExternal     = "external_login"
	ReasonRefresh      = "refresh"
	ReasonLogout       = "logout"
	ReasonRefreshFault = "refresh_failed"
)
