package apphttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"homesvc.app/client/internal/core/domain"
	httpdomain "homesvc.app/client/internal/core/domain/http"
	httpinfra "homesvc.app/client/internal/infrastructure/http"
)

const maxBodyBytes = 4 << 20

// Response is a fully read backend response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// BackendClient sends JSON requests to the backend through the interceptor chain
type BackendClient struct {
	endpoint httpdomain.BackendEndpoint
	client   *http.Client
}

func NewBackendClient(endpoint httpdomain.BackendEndpoint, client *http.Client) *BackendClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &BackendClient{endpoint: endpoint, client: client}
}

// Endpoint returns the backend target
func (c *BackendClient) Endpoint() httpdomain.BackendEndpoint {
	return c.endpoint
}

func (c *BackendClient) PostJSON(ctx context.Context, path string, payload interface{}, extraHeaders map[string]string) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	headers := httpinfra.MergeHeaders(map[string]string{"Content-Type": "application/json"}, extraHeaders)
	return c.Do(ctx, http.MethodPost, path, nil, body, headers)
}

func (c *BackendClient) GetJSON(ctx context.Context, path string, query url.Values, extraHeaders map[string]string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, query, nil, extraHeaders)
}

// Do sends a request and reads the whole response. Any HTTP status is returned
// as a Response; only transport and recovery failures are errors.
func (c *BackendClient) Do(ctx context.Context, method, path string, query url.Values, body []byte, headers map[string]string) (*Response, error) {
	fullURL, err := httpinfra.JoinURL(c.endpoint.BaseURL, path, query)
	if err != nil {
		return nil, fmt.Errorf("failed to build url: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, translateTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.NewNetworkError(fmt.Errorf("failed to read response: %w", err))
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// translateTransportError keeps errors raised by interceptors intact and marks
// everything else as a network failure
func translateTransportError(err error) error {
	var apiErr *domain.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	for _, sentinel := range []error{domain.ErrNoRefreshToken, domain.ErrNotAuthenticated} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.APIError{Message: domain.MsgNetworkError, Cause: err}
	}
	return domain.NewNetworkError(err)
}

// DecodeEnvelope turns a response into the envelope payload.
// succeeded=false and non-2xx statuses become *domain.APIError.
func DecodeEnvelope[T any](resp *Response, fallback string) (*T, error) {
	var env domain.Envelope[T]
	decodeErr := json.Unmarshal(resp.Body, &env)

	if !resp.OK() {
		msg := fallback
		if decodeErr == nil {
			msg = env.MessageOr(http.StatusText(resp.StatusCode))
		} else if text := http.StatusText(resp.StatusCode); text != "" {
			msg = text
		}
		return nil, &domain.APIError{StatusCode: resp.StatusCode, Message: msg, Domain: decodeErr == nil && env.Message != nil}
	}

	if decodeErr != nil {
		return nil, &domain.APIError{StatusCode: resp.StatusCode, Message: fallback, Cause: fmt.Errorf("failed to decode response: %w", decodeErr)}
	}
	if err := env.Err(resp.StatusCode, fallback); err != nil {
		return nil, err
	}
	if env.Data == nil {
		var zero T
		return &zero, nil
	}
	return env.Data, nil
}
