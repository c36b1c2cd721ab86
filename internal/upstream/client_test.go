package upstream_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ddareungi/ddareungi/internal/upstream"
)

func newTestClient(retries uint64) *upstream.Client {
	return upstream.NewClient(upstream.ClientConfig{
		Name:            "test",
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	})
}

func get(t *testing.T, client *upstream.Client, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	return client.Do(req)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("bad"))
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	resp, err := get(t, newTestClient(2), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(3), calls.Load())

	// The earlier 5xx bodies are closed along the way; the returned body
	// belongs to the final attempt.
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestClient_ClientErrorsPassThrough(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	resp, err := get(t, newTestClient(2), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	// 4xx is the session layer's signal; it must not be retried away.
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int64(1), calls.Load())
}

func TestClient_ExhaustedRetriesReturnLastResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	resp, err := get(t, newTestClient(1), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestClient_BreakerOpensAfterSustainedFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(2)

	// Two calls of three attempts each push the breaker past its
	// failure-rate threshold.
	for i := 0; i < 2; i++ {
		resp, err := get(t, client, server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	_, err := get(t, client, server.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, upstream.ErrCircuitOpen))
}

func TestRegistry_Health(t *testing.T) {
	registry := upstream.NewRegistry()
	registry.Register(newTestClient(0))

	registry.RecordSuccess("test")
	registry.RecordFailure("test", errors.New("boom"))

	health := registry.AllHealth()
	require.Len(t, health, 1)
	assert.Equal(t, "test", health[0].Name)
	assert.True(t, health[0].Healthy())
	assert.NotNil(t, health[0].LastSuccessAt)
	assert.NotNil(t, health[0].LastFailureAt)
	assert.Equal(t, "boom", health[0].LastError)
}
