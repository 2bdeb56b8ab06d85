package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchkeeper/watchkeeper/internal/classify"
	"github.com/watchkeeper/watchkeeper/internal/domain"
)

func endpointFor(t *testing.T, url string) *domain.Endpoint {
	t.Helper()
	e := &domain.Endpoint{Name: "api", URL: url, AcceptedCodes: map[int]struct{}{200: {}}}
	require.NoError(t, e.Validate(5*time.Second))
	return e
}

func TestHTTPExecutorReturnsStatusAndReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exec := NewHTTPExecutor(nil)
	result := exec.Execute(context.Background(), endpointFor(t, srv.URL), 5*time.Second)

	assert.Equal(t, classify.OutcomeOK, result.Raw.Outcome)
	assert.Equal(t, 200, result.Raw.StatusCode)
}

func TestHTTPExecutorTimesOutAndReportsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := &domain.Endpoint{Name: "slow", URL: srv.URL, AcceptedCodes: map[int]struct{}{200: {}}}
	require.NoError(t, e.Validate(5*time.Second))
	// Validate rejects timeouts below 1s, so the short timeout is set directly
	// after validation to exercise the timeout path deterministically.
	e.Timeout = 20 * time.Millisecond

	exec := NewHTTPExecutor(nil)
	result := exec.Execute(context.Background(), e, 5*time.Second)

	assert.Equal(t, classify.OutcomeError, result.Raw.Outcome)
}

func TestHTTPExecutorRefusesWhenCircuitOpen(t *testing.T) {
	breaker := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, FailureWindow: time.Second, Cooldown: time.Minute})
	breaker.RecordTransportFailure(time.Now())

	exec := NewHTTPExecutor(breaker)
	result := exec.Execute(context.Background(), endpointFor(t, "http://127.0.0.1:1"), 5*time.Second)

	assert.Equal(t, classify.OutcomeError, result.Raw.Outcome)
	assert.Contains(t, result.Raw.ErrorMessage, "circuit")
}
