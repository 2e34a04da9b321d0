package api

import (
	"log"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/plotgarden/plotgarden/internal/ai"
	"github.com/plotgarden/plotgarden/internal/climate"
)

type aiSearchRequest struct {
	Query string `json:"query" validate:"required,max=200"`
}

func (s *Server) handleAISearch(w http.ResponseWriter, r *http.Request) {
	if s.gateway == nil {
		writeError(w, http.StatusServiceUnavailable, "ai_disabled", "plant assistant is not configured")
		return
	}
	var req aiSearchRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	query := strings.TrimSpace(req.Query)
	if utf8.RuneCountInString(query) < 2 {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "query must be at least 2 characters")
		return
	}

	candidates, err := s.gateway.Search(r.Context(), query)
	if err != nil {
		writeAIError(w, err, ai.OpSearch)
		return
	}
	if candidates == nil {
		candidates = []ai.Candidate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

type aiFitRequest struct {
	PlantName string `json:"plant_name" validate:"required,max=120"`
	X         int    `json:"x" validate:"gte=0"`
	Y         int    `json:"y" validate:"gte=0"`
}

func (s *Server) handleAIFit(w http.ResponseWriter, r *http.Request) {
	if s.gateway == nil {
		writeError(w, http.StatusServiceUnavailable, "ai_disabled", "plant assistant is not configured")
		return
	}
	plan, ok := s.loadPlan(w, r)
	if !ok {
		return
	}
	var req aiFitRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.X >= plan.Width || req.Y >= plan.Height {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "cell outside plan grid")
		return
	}
	if !plan.HasLocation() {
		writeError(w, http.StatusUnprocessableEntity, "missing_location", "plan has no location set")
		return
	}

	months, err := s.store.GetMonthlyClimate(plan.ID)
	if err != nil {
		log.Printf("api: get monthly climate: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load cached weather")
		return
	}

	fc := &ai.FitContext{
		PlantName:      req.PlantName,
		Latitude:       *plan.Latitude,
		Longitude:      *plan.Longitude,
		OrientationDeg: plan.OrientationDeg,
		CellX:          req.X,
		CellY:          req.Y,
		Months:         months,
	}

	// Annual figures in physical units make the prompt legible to the model:
	// mean monthly temperature back in Celsius, precipitation totalled in mm.
	if len(months) > 0 {
		var tempSum climate.Percent
		var precipMM float64
		for _, m := range months {
			tempSum += m.Temperature
			precipMM += climate.DenormalizePrecipitation(m.Precipitation)
		}
		avg := tempSum / climate.Percent(len(months))
		fc.AnnualTempAvgC = climate.DenormalizeTemperatureRounded(&avg)
		fc.AnnualPrecipMM = precipMM
	}

	result, err := s.gateway.CheckFit(r.Context(), fc)
	if err != nil {
		writeAIError(w, err, ai.OpFit)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
