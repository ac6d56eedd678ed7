package api

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed generation call. The scheduler's failure
// policy dispatches on this, so every failure path in the client must map to
// exactly one kind.
type ErrorKind string

const (
	// KindTimeout - the per-call deadline elapsed before a response arrived
	KindTimeout ErrorKind = "timeout"
	// KindRateLimited - the endpoint answered 429
	KindRateLimited ErrorKind = "rate_limited"
	// KindTransientServer - the endpoint answered 500/502/503/504
	KindTransientServer ErrorKind = "transient_server"
	// KindInvalidResponse - the call succeeded but the payload is unusable
	KindInvalidResponse ErrorKind = "invalid_response"
	// KindFatalClient - transport failures and non-retryable statuses;
	// signals something wrong on our side of the connection
	KindFatalClient ErrorKind = "fatal_client"
)

// GenerationError represents a classified failure of one generation call
type GenerationError struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("generation error (%s, status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("generation error (%s): %s", e.Kind, e.Message)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is worth a backed-off retry.
func (e *GenerationError) Transient() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited, KindTransientServer:
		return true
	}
	return false
}

// KindOf extracts the error kind, or "" when err is not a GenerationError.
func KindOf(err error) ErrorKind {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return ""
}
