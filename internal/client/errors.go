package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when a provider credential is absent.
	// It is fatal for the request and never retried.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrUnsupportedProvider is returned when the completion backend selector
	// names a provider this service cannot talk to.
	ErrUnsupportedProvider = errors.New("unsupported completion provider")

	// ErrEmptyCompletion is wrapped in an UpstreamError when the completion
	// provider answers 2xx without any choice.
	ErrEmptyCompletion = errors.New("empty completion response")
)

// UpstreamError reports a non-2xx response or transport failure from an
// external provider. StatusCode is 0 when no response was received.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s upstream: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s upstream: HTTP %d", e.Provider, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s upstream: %v", e.Provider, e.Err)
	default:
		return e.Provider + " upstream failure"
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstreamError reports whether err is or wraps an *UpstreamError.
func IsUpstreamError(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// IsConfigurationError reports whether err stems from missing credentials or
// an unsupported provider selection.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrUnsupportedProvider)
}

func notConfigured(envVar string) error {
	return fmt.Errorf("%w: %s not set", ErrNotConfigured, envVar)
}
