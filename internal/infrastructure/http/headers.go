package httpinfra

import (
	"net/http"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// MergeHeaders returns base overlaid with extra
func MergeHeaders(base map[string]string, extra map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// StaticHeaders sets headers the request does not already carry
func StaticHeaders(headers map[string]string) Interceptor {
	return func(req *http.Request, next Invoker) (*http.Response, error) {
		out := req.Clone(req.Context())
		for k, v := range headers {
			if out.Header.Get(k) == "" {
				out.Header.Set(k, v)
			}
		}
		return next(out)
	}
}

// RequestID tags every request with a unique id, kept across replays
func RequestID() Interceptor {
	return func(req *http.Request, next Invoker) (*http.Response, error) {
		if req.Header.Get(RequestIDHeader) != "" {
			return next(req)
		}
		out := req.Clone(req.Context())
		out.Header.Set(RequestIDHeader, uuid.NewString())
		return next(out)
	}
}
