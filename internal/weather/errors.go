package weather

import (
	"errors"
	"fmt"
	"time"

	"github.com/plotgarden/plotgarden/internal/archive"
)

// ErrorKind is the closed set of refresh failure categories. The API layer
// matches on it exhaustively to pick status codes.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "not_found"
	KindMissingLocation ErrorKind = "missing_location"
	KindRateLimited     ErrorKind = "rate_limited"
	KindUpstreamTimeout ErrorKind = "upstream_timeout"
	KindUpstream        ErrorKind = "upstream_error"
	KindInternal        ErrorKind = "internal"
)

// Error is the weather path's tagged error value. StatusCode is set only on
// the upstream variant; RetryAfter only on the rate-limited variant.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("weather %s: %s", e.Kind, e.Message)
}

func NotFoundError() *Error {
	return &Error{Kind: KindNotFound, Message: "plan not found"}
}

func MissingLocationError() *Error {
	return &Error{Kind: KindMissingLocation, Message: "plan has no location set"}
}

func RateLimitedError(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    fmt.Sprintf("refresh rate limited, retry in %ds", int(retryAfter.Seconds())),
		RetryAfter: retryAfter,
	}
}

func InternalError(err error) *Error {
	return &Error{Kind: KindInternal, Message: err.Error()}
}

// fromArchiveError translates the archive client's error surface into the
// refresh taxonomy. This is the single point where the two meet; callers
// above only ever see *Error.
func fromArchiveError(err error) *Error {
	switch {
	case errors.Is(err, archive.ErrTimeout):
		return &Error{Kind: KindUpstreamTimeout, Message: "weather archive timed out"}
	default:
		out := &Error{Kind: KindUpstream, Message: err.Error()}
		var se *archive.StatusError
		if errors.As(err, &se) {
			out.StatusCode = se.StatusCode
		}
		return out
	}
}
