package httpinfra

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Logging writes one debug line per request
func Logging(logger zerolog.Logger) Interceptor {
	logger = logger.With().Str("component", "http").Logger()

	return func(req *http.Request, next Invoker) (*http.Response, error) {
		start := time.Now()
		resp, err := next(req)

		event := logger.Debug()
		if err != nil {
			event = logger.Warn().Err(err)
		}
		event = event.
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Str("request_id", req.Header.Get(RequestIDHeader)).
			Dur("latency", time.Since(start))
		if resp != nil {
			event = event.Int("status", resp.StatusCode)
		}
		event.Msg("request")

		return resp, err
	}
}
