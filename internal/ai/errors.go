package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/openai/openai-go/v3"
)

// Kind is the closed set of AI failure classifications.
type Kind string

const (
	KindTimeout   Kind = "timeout"
	KindBadJSON   Kind = "bad_json"
	KindRateLimit Kind = "rate_limit"
	KindNetwork   Kind = "network"
	KindUnknown   Kind = "unknown"
)

// Op tags which gateway operation produced an error.
type Op string

const (
	OpSearch Op = "search"
	OpFit    Op = "fit"
)

// defaultRetryAfterSeconds is used when the provider throttles without a
// usable Retry-After header.
const defaultRetryAfterSeconds = 30

// Error is the AI path's tagged error value. Every instance carries kind,
// message, op and CanRetry together; RetryAfter (seconds) is always set for
// rate_limit and otherwise only when the provider supplied one.
type Error struct {
	Kind       Kind   `json:"type"`
	Op         Op     `json:"context"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	CanRetry   bool   `json:"can_retry"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("ai %s (%s): %s", e.Kind, e.Op, e.Message)
}

func newError(kind Kind, op Op, message string) *Error {
	return &Error{
		Kind:     kind,
		Op:       op,
		Message:  message,
		CanRetry: kind != KindBadJSON,
	}
}

// badJSON marks a shape-validation failure. Only the validators construct
// it; the generic classifier never does. Never retryable: the same input
// would produce the same malformed output.
func badJSON(op Op, message string) *Error {
	return newError(KindBadJSON, op, message)
}

// Classify collapses any failure into exactly one Error. Already-classified
// errors pass through unchanged, so classification is idempotent.
func Classify(err error, op Op) *Error {
	if err == nil {
		return nil
	}

	var aiErr *Error
	if errors.As(err, &aiErr) {
		return aiErr
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(KindTimeout, op, "assistant did not answer in time")
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 {
			out := newError(KindRateLimit, op, "assistant is rate limiting requests")
			out.RetryAfter = retryAfterSeconds(apiErr)
			return out
		}
		out := newError(KindUnknown, op, fmt.Sprintf("assistant request failed with status %d", apiErr.StatusCode))
		out.Details = apiErr.Error()
		return out
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		out := newError(KindNetwork, op, "could not reach the assistant")
		out.Details = err.Error()
		return out
	}

	out := newError(KindUnknown, op, "unexpected assistant failure")
	out.Details = err.Error()
	return out
}

func retryAfterSeconds(apiErr *openai.Error) int {
	if apiErr.Response != nil {
		if v := apiErr.Response.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				return secs
			}
		}
	}
	return defaultRetryAfterSeconds
}
