package core

import "errors"

// ErrorKind classifies a runtime-level failure. See spec.md §7.
type ErrorKind string

const (
	ErrProviderNotFound       ErrorKind = "provider_not_found"
	ErrModelNotFound          ErrorKind = "model_not_found"
	ErrUnsupportedCapability  ErrorKind = "unsupported_capability"
	ErrAuthenticationFailed   ErrorKind = "authentication_failed"
	ErrRateLimitExceeded      ErrorKind = "rate_limit_exceeded"
	ErrContextWindowExceeded  ErrorKind = "context_window_exceeded"
	ErrInvalidRequest         ErrorKind = "invalid_request"
	ErrNetworkError           ErrorKind = "network_error"
	ErrProviderError          ErrorKind = "provider_error"
	ErrParseError             ErrorKind = "parse_error"
	ErrStreamError            ErrorKind = "stream_error"
	ErrConfigError            ErrorKind = "config_error"
	ErrPreviousResponseNotFound ErrorKind = "previous_response_not_found"
	ErrQuotaExceeded          ErrorKind = "quota_exceeded"
	ErrStreamIdleTimeout      ErrorKind = "stream_idle_timeout"
	ErrMaxOutputTokens        ErrorKind = "max_output_tokens"
	ErrRetryable              ErrorKind = "retryable"
	ErrInternal               ErrorKind = "internal"
)

// RuntimeError is the structured error type threaded through provider,
// dispatch, and loop failures. It carries enough detail to explain a
// user-visible failure (spec.md §7: "a short human-readable message and,
// when applicable, a matched_pattern or source").
type RuntimeError struct {
	Kind    ErrorKind
	Message string

	// Code is the provider-specific error code, when available.
	Code string

	// Delay is set on ErrRetryable to convey a provider-suggested backoff
	// (parsed from Retry-After or similar headers).
	Delay *int64 // milliseconds

	Cause error
}

func (e *RuntimeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *RuntimeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsRetryable implements the classification rule from spec.md §7:
// "is_retryable ⇔ kind ∈ {Retryable, RateLimitExceeded, NetworkError}".
func (e *RuntimeError) IsRetryable() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case ErrRetryable, ErrRateLimitExceeded, ErrNetworkError:
		return true
	default:
		return false
	}
}

// NewError builds a RuntimeError of the given kind.
func NewError(kind ErrorKind, message string) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: message}
}

// WrapError builds a RuntimeError of the given kind wrapping cause.
func WrapError(kind ErrorKind, message string, cause error) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: message, Cause: cause}
}

// IsRetryable is a free function helper for errors that may or may not be a
// *RuntimeError (e.g. wrapped deeper in a chain).
func IsRetryable(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.IsRetryable()
	}
	return false
}

// IsMaxOutputTokens reports whether err signals that the model truncated its
// response for running out of output budget (spec.md §4.1: "On
// MaxOutputTokens failure, up to MAX_OUTPUT_TOKEN_RECOVERY = 3 retries
// increase the output budget").
func IsMaxOutputTokens(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Kind == ErrMaxOutputTokens
	}
	return false
}
