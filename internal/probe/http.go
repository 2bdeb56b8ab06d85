package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/watchkeeper/watchkeeper/internal/classify"
	"github.com/watchkeeper/watchkeeper/internal/domain"
)

const userAgent = "watchkeeper-probe/1"

// HTTPResult is the raw outcome of a single HTTP probe attempt plus its
// measured elapsed time, per §4.4.
type HTTPResult struct {
	Raw     classify.HTTPRaw
	Elapsed time.Duration
}

// HTTPExecutor performs one HTTP request per call. It never retries
// internally; the circuit breaker and the caller's retry policy own that.
type HTTPExecutor struct {
	client  *http.Client
	breaker *CircuitBreaker
}

// NewHTTPExecutor builds an executor with an optional circuit breaker. A nil
// breaker means the transport is always allowed through (used in tests that
// exercise classification only).
func NewHTTPExecutor(breaker *CircuitBreaker) *HTTPExecutor {
	return &HTTPExecutor{
		client:  &http.Client{},
		breaker: breaker,
	}
}

// Execute performs one probe of endpoint under ctx, linking its own
// per-target (or default) timeout to the caller's cancellation.
func (e *HTTPExecutor) Execute(ctx context.Context, endpoint *domain.Endpoint, defaultTimeout time.Duration) HTTPResult {
	now := time.Now()

	if e.breaker != nil && !e.breaker.Allow(now) {
		return HTTPResult{Raw: classify.HTTPRaw{
			Outcome:      classify.OutcomeError,
			ErrorMessage: ErrCircuitOpen.Error(),
		}}
	}

	timeout := endpoint.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := endpoint.Method
	if method == "" {
		method = http.MethodGet
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(reqCtx, method, endpoint.URL, nil)
	if err != nil {
		return HTTPResult{
			Elapsed: time.Since(start),
			Raw:     classify.HTTPRaw{Outcome: classify.OutcomeError, ErrorMessage: fmt.Sprintf("Unexpected: %s", err)},
		}
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range endpoint.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		kind, transport := classifyHTTPError(reqCtx, err)
		if e.breaker != nil {
			if transport {
				e.breaker.RecordTransportFailure(time.Now())
			} else {
				e.breaker.RecordTransportSuccess(time.Now())
			}
		}
		return HTTPResult{Elapsed: elapsed, Raw: classify.HTTPRaw{Outcome: classify.OutcomeError, ErrorMessage: kind}}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if e.breaker != nil {
		e.breaker.RecordTransportSuccess(time.Now())
	}

	return HTTPResult{
		Elapsed: elapsed,
		Raw: classify.HTTPRaw{
			Outcome:      classify.OutcomeOK,
			StatusCode:   resp.StatusCode,
			ReasonPhrase: http.StatusText(resp.StatusCode),
		},
	}
}

// classifyHTTPError maps a transport-layer error to a human message and
// reports whether it counts as a breaker-tripping transport failure (as
// opposed to a local timeout or cancellation, which do not).
func classifyHTTPError(ctx context.Context, err error) (message string, transport bool) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Sprintf("timeout: %s", err), false
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Sprintf("Cancelled: %s", err), false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("timeout: %s", err), false
	}

	return fmt.Sprintf("Transport: %s", err), true
}
