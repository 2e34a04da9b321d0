package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/plotgarden/plotgarden/internal/models"
)

type weatherResponse struct {
	Months    []models.MonthlyClimate `json:"months"`
	Refreshed bool                    `json:"refreshed"`
}

func (s *Server) handleGetWeather(w http.ResponseWriter, r *http.Request) {
	months, err := s.refresher.Cached(userID(r), r.PathValue("id"))
	if err != nil {
		writeWeatherError(w, err)
		return
	}
	if months == nil {
		months = []models.MonthlyClimate{}
	}
	writeJSON(w, http.StatusOK, weatherResponse{Months: months})
}

func (s *Server) handleRefreshWeather(w http.ResponseWriter, r *http.Request) {
	// The body is optional: an empty POST means a plain, non-forced refresh.
	var req struct {
		Force bool `json:"force"`
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "could not read request body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "request body is not valid JSON")
			return
		}
	}

	result, err := s.refresher.Refresh(r.Context(), userID(r), r.PathValue("id"), req.Force)
	if err != nil {
		writeWeatherError(w, err)
		return
	}
	months := result.Months
	if months == nil {
		months = []models.MonthlyClimate{}
	}
	writeJSON(w, http.StatusOK, weatherResponse{Months: months, Refreshed: result.Refreshed})
}
