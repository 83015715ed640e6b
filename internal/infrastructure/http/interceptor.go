package httpinfra

import (
	"net/http"
	"sync"
	"time"
)

// Invoker sends a request to the rest of the chain
type Invoker func(req *http.Request) (*http.Response, error)

// Interceptor wraps one step of the outgoing request pipeline.
// Implementations must not mutate req; clone it before changing headers.
type Interceptor func(req *http.Request, next Invoker) (*http.Response, error)

// Chain composes interceptors in order over base. The first interceptor is outermost.
func Chain(base http.RoundTripper, interceptors ...Interceptor) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &chainTransport{base: base, interceptors: interceptors}
}

type chainTransport struct {
	base         http.RoundTripper
	interceptors []Interceptor
}

func (t *chainTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.invoke(0, req)
}

func (t *chainTransport) invoke(i int, req *http.Request) (*http.Response, error) {
	if i == len(t.interceptors) {
		return t.base.RoundTrip(req)
	}
	return t.interceptors[i](req, func(next *http.Request) (*http.Response, error) {
		return t.invoke(i+1, next)
	})
}

// Client owns the ordered interceptor list and exposes it as an *http.Client.
// Interceptors may be registered after construction so that components which
// themselves depend on the client (the session manager) can be added last.
type Client struct {
	base    http.RoundTripper
	timeout time.Duration

	mu           sync.RWMutex
	interceptors []Interceptor
}

// NewClient creates a client over base (http.DefaultTransport when nil)
func NewClient(base http.RoundTripper, timeout time.Duration) *Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Client{base: base, timeout: timeout}
}

// Use appends interceptors to the end of the chain
func (c *Client) Use(interceptors ...Interceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interceptors = append(c.interceptors, interceptors...)
}

// RoundTrip implements http.RoundTripper
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	c.mu.RLock()
	interceptors := make([]Interceptor, len(c.interceptors))
	copy(interceptors, c.interceptors)
	c.mu.RUnlock()

	return Chain(c.base, interceptors...).RoundTrip(req)
}

// HTTPClient returns a standard client whose transport is the chain
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{Transport: c, Timeout: c.timeout}
}
