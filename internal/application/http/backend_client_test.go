package apphttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"homesvc.app/client/internal/core/domain"
	httpdomain "homesvc.app/client/internal/core/domain/http"
)

type profile struct {
	Name string `json:"name"`
}

func newTestBackend(t *testing.T, handler http.HandlerFunc) *BackendClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewBackendClient(httpdomain.BackendEndpoint{BaseURL: server.URL}, server.Client())
}

func TestBackendClient_PostJSON(t *testing.T) {
	var gotBody map[string]string
	var gotHeaders http.Header
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		assert.Equal(t, "/api/profile", r.URL.Path)
		_, _ = w.Write([]byte(`{"succeeded":true,"data":{"name":"Jane"},"message":null}`))
	})

	resp, err := client.PostJSON(context.Background(), "/api/profile", map[string]string{"email": "u@x.com"}, map[string]string{"X-Trace": "1"})
	require.NoError(t, err)

	assert.Equal(t, "u@x.com", gotBody["email"])
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "1", gotHeaders.Get("X-Trace"))

	data, err := DecodeEnvelope[profile](resp, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "Jane", data.Name)
}

func TestBackendClient_GetJSONQuery(t *testing.T) {
	client := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		_, _ = w.Write([]byte(`{"succeeded":true,"data":null}`))
	})

	resp, err := client.GetJSON(context.Background(), "/api/services", url.Values{"page": {"2"}}, nil)
	require.NoError(t, err)
	data, err := DecodeEnvelope[profile](resp, "fallback")
	require.NoError(t, err)
	assert.Equal(t, &profile{}, data)
}

func TestDecodeEnvelope_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
		wantDomain bool
	}{
		{
			name:       "succeeded false on 200",
			status:     200,
			body:       `{"succeeded":false,"data":null,"message":"Invalid credentials"}`,
			wantStatus: 200,
			wantMsg:    "Invalid credentials",
			wantDomain: true,
		},
		{
			name:       "succeeded false without message",
			status:     200,
			body:       `{"succeeded":false}`,
			wantStatus: 200,
			wantMsg:    "fallback",
			wantDomain: true,
		},
		{
			name:       "http error with envelope message",
			status:     400,
			body:       `{"succeeded":false,"message":"Email already confirmed","statusCode":400}`,
			wantStatus: 400,
			wantMsg:    "Email already confirmed",
			wantDomain: true,
		},
		{
			name:       "http error without body",
			status:     502,
			body:       `<html>bad gateway</html>`,
			wantStatus: 502,
			wantMsg:    "Bad Gateway",
		},
		{
			name:       "garbage on 200",
			status:     200,
			body:       `not json`,
			wantStatus: 200,
			wantMsg:    "fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope[profile](&Response{StatusCode: tt.status, Body: []byte(tt.body)}, "fallback")

			var apiErr *domain.APIError
			require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Equal(t, tt.wantDomain, apiErr.Domain)
		})
	}
}

func TestBackendClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	client := NewBackendClient(httpdomain.BackendEndpoint{BaseURL: baseURL}, nil)
	_, err := client.GetJSON(context.Background(), "/api/services", nil, nil)

	var apiErr *domain.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsNetwork())
	assert.Equal(t, 0, apiErr.StatusCode)
}

func TestTranslateTransportError(t *testing.T) {
	original := &domain.APIError{StatusCode: 401, Message: "Refresh token expired"}
	wrapped := &url.Error{Op: "Get", URL: "http://x", Err: original}

	var apiErr *domain.APIError
	require.True(t, errors.As(translateTransportError(wrapped), &apiErr))
	assert.Same(t, original, apiErr)

	noRefresh := &url.Error{Op: "Get", URL: "http://x", Err: domain.ErrNoRefreshToken}
	assert.ErrorIs(t, translateTransportError(noRefresh), domain.ErrNoRefreshToken)
}
