package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kjstillabower/daymate-service/internal/observability"
)

const (
	// maxResponseSize caps provider bodies read into memory.
	maxResponseSize = 2 << 20
	// maxErrorBody caps the provider body carried in an UpstreamError.
	maxErrorBody = 1024

	userAgent = "daymate-service/1.0"
)

// BreakerConfig configures the per-provider circuit breaker. A disabled
// breaker sends every call straight to the provider. The breaker never
// retries; while open, calls fail fast with an UpstreamError.
type BreakerConfig struct {
	Enabled          bool
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// abandonedCall marks a call cut short by the caller's context. The provider
// did not fail, so the breaker does not count it.
type abandonedCall struct{ err error }

func (a abandonedCall) Error() string { return a.err.Error() }
func (a abandonedCall) Unwrap() error { return a.err }

// upstream performs outbound calls for one provider.
type upstream struct {
	provider string
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker
}

func newUpstream(provider string, timeout time.Duration, bc BreakerConfig) *upstream {
	u := &upstream{
		provider: provider,
		client:   &http.Client{Timeout: timeout},
	}
	if bc.Enabled {
		threshold := bc.FailureThreshold
		if threshold == 0 {
			threshold = 5
		}
		u.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        provider,
			MaxRequests: 1,
			Timeout:     bc.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				var a abandonedCall
				return err == nil || errors.As(err, &a)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				observability.RecordCircuitBreakerTransition(name, from.String(), to.String())
			},
		})
		observability.CircuitBreakerState.WithLabelValues(provider).Set(0)
	}
	return u
}

// do sends req and returns the body of a 2xx response. Every failure is an
// *UpstreamError.
func (u *upstream) do(ctx context.Context, req *http.Request) ([]byte, error) {
	if id := observability.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	var status string
	call := func() (interface{}, error) {
		body, code, err := u.roundTrip(req)
		status = statusLabel(code)
		if err != nil && req.Context().Err() != nil {
			return nil, abandonedCall{err: err}
		}
		return body, err
	}

	var (
		out interface{}
		err error
	)
	if u.breaker != nil {
		out, err = u.breaker.Execute(call)
	} else {
		out, err = call()
	}
	var abandoned abandonedCall
	if errors.As(err, &abandoned) {
		status = "canceled"
		err = abandoned.err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		status = "circuit_open"
		err = &UpstreamError{Provider: u.provider, Err: fmt.Errorf("circuit breaker: %w", err)}
	}
	observability.RecordUpstreamCall(u.provider, status, time.Since(start))

	logger := observability.LoggerFromContext(ctx)
	if err != nil {
		observability.UpstreamErrorsTotal.WithLabelValues(u.provider, string(CategorizeError(err))).Inc()
		logger.Debug("upstream call failed", zap.String("provider", u.provider), zap.Error(err), zap.Duration("duration", time.Since(start)))
		return nil, err
	}
	logger.Debug("upstream call succeeded", zap.String("provider", u.provider), zap.Duration("duration", time.Since(start)))
	return out.([]byte), nil
}

func (u *upstream) roundTrip(req *http.Request) ([]byte, int, error) {
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, 0, &UpstreamError{Provider: u.provider, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.StatusCode, &UpstreamError{Provider: u.provider, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, resp.StatusCode, &UpstreamError{Provider: u.provider, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, resp.StatusCode, nil
}

// malformed wraps a decode failure of a 2xx body.
func (u *upstream) malformed(err error) error {
	return &UpstreamError{Provider: u.provider, Err: fmt.Errorf("parse response: %w", err)}
}

func statusLabel(statusCode int) string {
	switch {
	case statusCode == 0:
		return "error"
	case statusCode >= 200 && statusCode < 300:
		return "success"
	case statusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500:
		return "server_error"
	default:
		return "error"
	}
}
