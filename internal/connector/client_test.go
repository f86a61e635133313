package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniboxhq/inbox-sync/internal/model"
	apperrors "github.com/uniboxhq/inbox-sync/pkg/errors"
)

func newStubClient() *httpClient {
	return newHTTPClient(model.SourceGithub, 5*time.Second, 1000)
}

func TestGetJSONSendsBearerToken(t *testing.T) {
	var gotAuth, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := newStubClient().getJSON(context.Background(), srv.URL, "secret-token", &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
}

func TestGetJSONUnauthorizedIsAuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := newStubClient().getJSON(context.Background(), srv.URL, "tok", &out)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrAuthExpired, apperrors.CodeOf(err))
	assert.False(t, apperrors.Retryable(err))
}

func TestGetJSONRateLimitedCarriesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "90")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := newStubClient().getJSON(context.Background(), srv.URL, "tok", &out)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrRateLimited, apperrors.CodeOf(err))
	assert.True(t, apperrors.Retryable(err))
	assert.Equal(t, 90*time.Second, apperrors.BackoffHint(err))
}

func TestGetJSONServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := newStubClient().getJSON(context.Background(), srv.URL, "tok", &out)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrTransientNetwork, apperrors.CodeOf(err))
	assert.True(t, apperrors.Retryable(err))
}

func TestGetJSONBadRequestIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := newStubClient().getJSON(context.Background(), srv.URL, "tok", &out)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrMalformedPayload, apperrors.CodeOf(err))
	assert.False(t, apperrors.Retryable(err))
}

func TestGetJSONUndecodableBodyIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	var out map[string]interface{}
	err := newStubClient().getJSON(context.Background(), srv.URL, "tok", &out)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrMalformedPayload, apperrors.CodeOf(err))
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newStubClient()
	var out map[string]interface{}
	for i := 0; i < 5; i++ {
		err := c.getJSON(context.Background(), srv.URL, "tok", &out)
		require.Error(t, err)
	}

	// The breaker is open now; the next call fails without reaching the
	// server but still reads as transient to the retry policy.
	err := c.getJSON(context.Background(), srv.URL, "tok", &out)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrTransientNetwork, apperrors.CodeOf(err))
	assert.True(t, apperrors.Retryable(err))
}

func TestPostJSONSendsBody(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"received": true}`))
	}))
	defer srv.Close()

	var out struct {
		Received bool `json:"received"`
	}
	body := map[string]string{"query": "notifications"}
	err := newStubClient().postJSON(context.Background(), srv.URL, "tok", body, &out)
	require.NoError(t, err)
	assert.True(t, out.Received)
	assert.Equal(t, "application/json", gotContentType)
}
