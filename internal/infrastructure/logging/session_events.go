package logging

import (
	"github.com/rs/zerolog"
	"homesvc.app/client/internal/core/domain"
)

// LogSessionEvents writes one line per session transition until updates closes
func LogSessionEvents(logger zerolog.Logger, updates <-chan domain.SessionSnapshot) {
	logger = logger.With().Str("component", "session_events").Logger()
	for snapshot := range updates {
		event := logger.Debug().
			Str("state", string(snapshot.State)).
			Bool("logged_in", snapshot.LoggedIn).
			Bool("initialized", snapshot.Initialized)
		if snapshot.Reason != "" {
			event = event.Str("reason", snapshot.Reason)
		}
		if snapshot.User != nil {
			event = event.Str("user_id", snapshot.User.ID)
		}
		event.Msg("session changed")
	}
}
