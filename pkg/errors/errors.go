package errors

import (
	"fmt"
	"time"
)

// Error codes
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeRateLimit  = "RATE_LIMIT_EXCEEDED"
	CodeUpstream   = "UPSTREAM_ERROR"
	CodeDispatch   = "DISPATCH_ERROR"
	CodeSession    = "SESSION_ERROR"
)

type FunnelError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *FunnelError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *FunnelError) Unwrap() error {
	return e.Cause
}

// AsFunnelError extracts the shared error envelope from any of the typed
// wrappers so transport code can map it to a status code and client payload.
func AsFunnelError(err error) (*FunnelError, bool) {
	switch e := err.(type) {
	case *ValidationError:
		return e.FunnelError, true
	case *RateLimitError:
		return e.FunnelError, true
	case *UpstreamError:
		return e.FunnelError, true
	case *DispatchError:
		return e.FunnelError, true
	case *SessionError:
		return e.FunnelError, true
	case *FunnelError:
		return e, true
	}
	return nil, false
}

// ValidationError signals a missing or malformed required profile field.
type ValidationError struct {
	*FunnelError
	Field string
	Value interface{}
}

func NewValidationError(message, field string, value interface{}) *ValidationError {
	return &ValidationError{
		FunnelError: &FunnelError{
			Message:    message,
			Code:       CodeValidation,
			StatusCode: 400,
			Context: map[string]any{
				"field": field,
				"value": value,
			},
		},
		Field: field,
		Value: value,
	}
}

// RateLimitError carries the window reset time so callers can show a retry hint.
type RateLimitError struct {
	*FunnelError
	ResetTime time.Time
	Limit     int
}

func NewRateLimitError(message string, limit int, resetTime time.Time) *RateLimitError {
	return &RateLimitError{
		FunnelError: &FunnelError{
			Message:    message,
			Code:       CodeRateLimit,
			StatusCode: 429,
			Context: map[string]any{
				"limit":      limit,
				"reset_time": resetTime,
			},
		},
		ResetTime: resetTime,
		Limit:     limit,
	}
}

// UpstreamError covers timeouts, transport failures and unparseable responses
// from the text-generation service. The oracle pipeline absorbs these into
// fallback synthesis; they never reach an API client.
type UpstreamError struct {
	*FunnelError
	Provider string
	Kind     UpstreamKind
}

type UpstreamKind string

const (
	UpstreamTimeout UpstreamKind = "timeout"
	UpstreamFailure UpstreamKind = "failure"
	UpstreamParse   UpstreamKind = "parse"
)

func NewUpstreamError(message, provider string, kind UpstreamKind, cause error) *UpstreamError {
	return &UpstreamError{
		FunnelError: &FunnelError{
			Message:    message,
			Code:       CodeUpstream,
			StatusCode: 502,
			Context: map[string]any{
				"provider": provider,
				"kind":     string(kind),
			},
			Cause: cause,
		},
		Provider: provider,
		Kind:     kind,
	}
}

// DispatchError records a failed webhook delivery. Logged only, never retried.
type DispatchError struct {
	*FunnelError
	EventType string
	URL       string
}

func NewDispatchError(message, eventType, url string, cause error) *DispatchError {
	return &DispatchError{
		FunnelError: &FunnelError{
			Message:    message,
			Code:       CodeDispatch,
			StatusCode: 502,
			Context: map[string]any{
				"event_type": eventType,
				"url":        url,
			},
			Cause: cause,
		},
		EventType: eventType,
		URL:       url,
	}
}

type SessionError struct {
	*FunnelError
	SessionID string
}

func NewSessionError(message, sessionID string) *SessionError {
	return &SessionError{
		FunnelError: &FunnelError{
			Message:    message,
			Code:       CodeSession,
			StatusCode: 404,
			Context: map[string]any{
				"session_id": sessionID,
			},
		},
		SessionID: sessionID,
	}
}
