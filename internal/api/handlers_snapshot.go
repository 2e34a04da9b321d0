package api

import (
	"log"
	"net/http"

	"github.com/plotgarden/plotgarden/internal/metrics"
	"github.com/plotgarden/plotgarden/internal/snapshot"
)

// handleSnapshot serves the plan's grid rendered as a PNG. Renders are
// cached on disk keyed by the plan's mutation version, so an unchanged plan
// is never rendered twice.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	plan, ok := s.loadPlan(w, r)
	if !ok {
		return
	}

	version, err := s.store.PlanVersion(plan.OwnerID, plan.ID)
	if err != nil {
		log.Printf("api: plan version: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load plan version")
		return
	}

	if s.snapshots != nil {
		if data, ok := s.snapshots.Get(plan.ID, version); ok {
			servePNG(w, data)
			return
		}
	}

	cells, err := s.store.GetCells(plan.ID)
	if err != nil {
		log.Printf("api: get cells: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load cells")
		return
	}
	plants, err := s.store.ListPlacements(plan.ID)
	if err != nil {
		log.Printf("api: list placements: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load plants")
		return
	}

	data, err := snapshot.Render(plan, cells, plants)
	if err != nil {
		log.Printf("api: render snapshot: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not render snapshot")
		return
	}
	metrics.SnapshotsRendered.Inc()

	if s.snapshots != nil {
		if err := s.snapshots.Set(plan.ID, version, data); err != nil {
			log.Printf("api: cache snapshot: %v", err)
		}
	}
	servePNG(w, data)
}

func servePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=60")
	w.Write(data)
}
