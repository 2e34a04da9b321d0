package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/plotgarden/plotgarden/internal/models"
	"github.com/plotgarden/plotgarden/internal/store"
)

type planRequest struct {
	Name           string   `json:"name" validate:"required,max=120"`
	Latitude       *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude      *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	OrientationDeg float64  `json:"orientation_deg" validate:"gte=0,lt=360"`
	Width          int      `json:"width" validate:"required,min=1,max=100"`
	Height         int      `json:"height" validate:"required,min=1,max=100"`
}

// loadPlan fetches the caller's plan or writes the 404. Ownership scoping
// happens in the query itself, so a foreign plan id is indistinguishable
// from a missing one.
func (s *Server) loadPlan(w http.ResponseWriter, r *http.Request) (*models.Plan, bool) {
	plan, err := s.store.GetPlan(userID(r), r.PathValue("id"))
	if err != nil {
		log.Printf("api: get plan: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load plan")
		return nil, false
	}
	if plan == nil {
		writeError(w, http.StatusNotFound, "not_found", "plan not found")
		return nil, false
	}
	return plan, true
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "latitude and longitude must be set together")
		return
	}

	now := time.Now().UTC()
	plan := &models.Plan{
		ID:             uuid.NewString(),
		OwnerID:        userID(r),
		Name:           req.Name,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		OrientationDeg: req.OrientationDeg,
		Width:          req.Width,
		Height:         req.Height,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreatePlan(plan); err != nil {
		log.Printf("api: create plan: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not create plan")
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.store.ListPlans(userID(r))
	if err != nil {
		log.Printf("api: list plans: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not list plans")
		return
	}
	if plans == nil {
		plans = []models.Plan{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.loadPlan(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "latitude and longitude must be set together")
		return
	}

	plan := &models.Plan{
		ID:             r.PathValue("id"),
		OwnerID:        userID(r),
		Name:           req.Name,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		OrientationDeg: req.OrientationDeg,
		Width:          req.Width,
		Height:         req.Height,
		UpdatedAt:      time.Now().UTC(),
	}
	found, err := s.store.UpdatePlan(plan)
	if err != nil {
		log.Printf("api: update plan: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not update plan")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "plan not found")
		return
	}
	if s.snapshots != nil {
		s.snapshots.Invalidate(plan.ID)
	}

	updated, err := s.store.GetPlan(userID(r), plan.ID)
	if err != nil || updated == nil {
		log.Printf("api: reload plan after update: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load plan")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	found, err := s.store.DeletePlan(userID(r), id)
	if err != nil {
		log.Printf("api: delete plan: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not delete plan")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "plan not found")
		return
	}
	if s.snapshots != nil {
		s.snapshots.Invalidate(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- cells ----

type cellPayload struct {
	X    int    `json:"x" validate:"gte=0"`
	Y    int    `json:"y" validate:"gte=0"`
	Kind string `json:"kind" validate:"required"`
}

type replaceCellsRequest struct {
	Cells []cellPayload `json:"cells" validate:"required,dive"`
}

func (s *Server) handleGetCells(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.loadPlan(w, r)
	if !ok {
		return
	}
	cells, err := s.store.GetCells(plan.ID)
	if err != nil {
		log.Printf("api: get cells: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load cells")
		return
	}
	if cells == nil {
		cells = []models.Cell{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cells": cells})
}

func (s *Server) handleReplaceCells(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.loadPlan(w, r)
	if !ok {
		return
	}
	var req replaceCellsRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	cells := make([]models.Cell, 0, len(req.Cells))
	seen := make(map[[2]int]bool, len(req.Cells))
	for _, c := range req.Cells {
		kind := models.CellKind(c.Kind)
		if !kind.Valid() {
			writeError(w, http.StatusUnprocessableEntity, "validation_failed", "unknown cell kind "+c.Kind)
			return
		}
		if c.X >= plan.Width || c.Y >= plan.Height {
			writeError(w, http.StatusUnprocessableEntity, "validation_failed", "cell outside plan grid")
			return
		}
		key := [2]int{c.X, c.Y}
		if seen[key] {
			writeError(w, http.StatusUnprocessableEntity, "validation_failed", "duplicate cell coordinates")
			return
		}
		seen[key] = true
		cells = append(cells, models.Cell{PlanID: plan.ID, X: c.X, Y: c.Y, Kind: kind})
	}

	if err := s.store.ReplaceCells(plan.ID, cells); err != nil {
		log.Printf("api: replace cells: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not save cells")
		return
	}
	if s.snapshots != nil {
		s.snapshots.Invalidate(plan.ID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"cells": cells})
}

// ---- plant placements ----

type placePlantRequest struct {
	X             int     `json:"x" validate:"gte=0"`
	Y             int     `json:"y" validate:"gte=0"`
	Name          string  `json:"name" validate:"required,max=120"`
	LatinName     *string `json:"latin_name" validate:"omitempty,max=120"`
	SunlightScore *int    `json:"sunlight_score" validate:"omitempty,min=1,max=5"`
	HumidityScore *int    `json:"humidity_score" validate:"omitempty,min=1,max=5"`
	PrecipScore   *int    `json:"precip_score" validate:"omitempty,min=1,max=5"`
	OverallScore  *int    `json:"overall_score" validate:"omitempty,min=1,max=5"`
	Explanation   *string `json:"explanation"`
}

func (s *Server) handleListPlants(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.loadPlan(w, r)
	if !ok {
		return
	}
	plants, err := s.store.ListPlacements(plan.ID)
	if err != nil {
		log.Printf("api: list plants: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load plants")
		return
	}
	if plants == nil {
		plants = []models.PlantPlacement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"plants": plants})
}

func (s *Server) handlePlacePlant(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.loadPlan(w, r)
	if !ok {
		return
	}
	var req placePlantRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.X >= plan.Width || req.Y >= plan.Height {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", "cell outside plan grid")
		return
	}

	cell, err := s.store.GetCell(plan.ID, req.X, req.Y)
	if err != nil {
		log.Printf("api: get cell: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not check cell")
		return
	}
	if cell == nil || cell.Kind != models.CellSoil {
		writeError(w, http.StatusUnprocessableEntity, "not_soil", "plants can only be placed on soil cells")
		return
	}

	placement := &models.PlantPlacement{
		ID:            uuid.NewString(),
		PlanID:        plan.ID,
		X:             req.X,
		Y:             req.Y,
		Name:          req.Name,
		LatinName:     req.LatinName,
		SunlightScore: req.SunlightScore,
		HumidityScore: req.HumidityScore,
		PrecipScore:   req.PrecipScore,
		OverallScore:  req.OverallScore,
		Explanation:   req.Explanation,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.InsertPlacement(placement); err != nil {
		if errors.Is(err, store.ErrCellOccupied) {
			writeError(w, http.StatusConflict, "cell_occupied", "a plant is already placed on this cell")
			return
		}
		log.Printf("api: insert placement: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not place plant")
		return
	}
	if s.snapshots != nil {
		s.snapshots.Invalidate(plan.ID)
	}
	writeJSON(w, http.StatusCreated, placement)
}

func (s *Server) handleRemovePlant(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.loadPlan(w, r)
	if !ok {
		return
	}
	found, err := s.store.DeletePlacement(plan.ID, r.PathValue("plantID"))
	if err != nil {
		log.Printf("api: delete placement: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not remove plant")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "not_found", "plant placement not found")
		return
	}
	if s.snapshots != nil {
		s.snapshots.Invalidate(plan.ID)
	}
	w.WriteHeader(http.StatusNoContent)
}
