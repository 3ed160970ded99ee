package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/intake-pipeline/config"
	"github.com/target/intake-pipeline/internal/core"
	apperrors "github.com/target/intake-pipeline/internal/errors"
	"github.com/target/intake-pipeline/internal/pkg/httpretry"
)

func newTestClient(t *testing.T, baseURL string, maxRetries int) *Client {
	t.Helper()
	c, err := NewClient(ClientOptions{
		Config: config.CRMConfig{BaseURL: baseURL, APIToken: "tok", Timeout: time.Second, MaxRetries: maxRetries},
		Retry:  &httpretry.Options{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	})
	require.NoError(t, err)
	return c
}

func contact() core.ContactUpsert {
	return core.ContactUpsert{
		ExternalID: "newsletter-s1",
		Email:      "reader@example.com",
		Attributes: map[string]string{"source": "footer"},
	}
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientOptions{})
	require.Error(t, err)

	_, err = NewClient(ClientOptions{Config: config.CRMConfig{BaseURL: "not a url"}})
	require.Error(t, err)
}

func TestClient_UpsertContact_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v1/contacts/newsletter-s1", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "newsletter-s1", r.Header.Get("Idempotency-Key"))

		var body upsertBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "reader@example.com", body.Email)
		assert.Equal(t, "footer", body.Attributes["source"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/v1/", 0)
	require.NoError(t, c.UpsertContact(context.Background(), contact()))
}

func TestClient_UpsertContact_Rejected(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{name: "bad request", status: http.StatusBadRequest},
		{name: "unprocessable", status: http.StatusUnprocessableEntity},
		{name: "unauthorized", status: http.StatusUnauthorized},
		{name: "request timeout", status: http.StatusRequestTimeout, transient: true},
		{name: "rate limited", status: http.StatusTooManyRequests, transient: true},
		{name: "unavailable", status: http.StatusServiceUnavailable, transient: true},
		{name: "not implemented", status: http.StatusNotImplemented, transient: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			}))
			defer srv.Close()

			err := newTestClient(t, srv.URL, 0).UpsertContact(context.Background(), contact())
			require.Error(t, err)
			assert.Equal(t, tt.transient, apperrors.IsTransient(err))
			assert.Equal(t, !tt.transient, apperrors.IsTerminal(err))
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestClient_UpsertContact_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(t, srv.URL, 2).UpsertContact(context.Background(), contact()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_UpsertContact_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := newTestClient(t, url, 0).UpsertContact(context.Background(), contact())
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}

func TestClient_UpsertContact_MissingExternalID(t *testing.T) {
	c := newTestClient(t, "http://crm.invalid", 0)
	err := c.UpsertContact(context.Background(), core.ContactUpsert{Email: "a@example.com"})
	assert.True(t, apperrors.IsTerminal(err))
}

func TestLogClient(t *testing.T) {
	require.NoError(t, NewLogClient(nil).UpsertContact(context.Background(), contact()))
}
