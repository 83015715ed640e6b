package httpinfra

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit delays requests to stay within limiter. A nil limiter is a no-op.
func RateLimit(limiter *rate.Limiter) Interceptor {
	return func(req *http.Request, next Invoker) (*http.Response, error) {
		if limiter != nil {
			if err := limiter.Wait(req.Context()); err != nil {
				return nil, err
			}
		}
		return next(req)
	}
}
