package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/plotgarden/plotgarden/internal/ai"
	"github.com/plotgarden/plotgarden/internal/weather"
)

type errorPayload struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

type errorBody struct {
	Error any `json:"error"`
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorBody{Error: errorPayload{Kind: kind, Message: message}})
}

// writeWeatherError maps the weather taxonomy onto status codes. The kind
// travels in the body so clients can branch without parsing messages.
func writeWeatherError(w http.ResponseWriter, err error) {
	var werr *weather.Error
	if !errors.As(err, &werr) {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	payload := errorPayload{Kind: string(werr.Kind), Message: werr.Message}
	status := http.StatusInternalServerError
	switch werr.Kind {
	case weather.KindNotFound:
		status = http.StatusNotFound
	case weather.KindMissingLocation:
		status = http.StatusUnprocessableEntity
	case weather.KindRateLimited:
		status = http.StatusTooManyRequests
		secs := int(werr.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		payload.RetryAfter = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	case weather.KindUpstreamTimeout:
		status = http.StatusGatewayTimeout
	case weather.KindUpstream:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, errorBody{Error: payload})
}

// aiErrorPayload wraps the classified AI error with a fallback hint: a fit
// check failing never blocks placing the plant by hand.
type aiErrorPayload struct {
	*ai.Error
	Fallback string `json:"fallback,omitempty"`
}

func writeAIError(w http.ResponseWriter, err error, op ai.Op) {
	aiErr := ai.Classify(err, op)

	status := http.StatusInternalServerError
	switch aiErr.Kind {
	case ai.KindTimeout:
		status = http.StatusGatewayTimeout
	case ai.KindRateLimit:
		status = http.StatusTooManyRequests
		if aiErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(aiErr.RetryAfter))
		}
	case ai.KindBadJSON, ai.KindNetwork:
		status = http.StatusBadGateway
	}

	payload := aiErrorPayload{Error: aiErr}
	if aiErr.Op == ai.OpFit {
		payload.Fallback = "You can still place the plant without a fit check."
	}
	writeJSON(w, status, errorBody{Error: payload})
}
