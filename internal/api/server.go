package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plotgarden/plotgarden/internal/ai"
	"github.com/plotgarden/plotgarden/internal/snapshot"
	"github.com/plotgarden/plotgarden/internal/store"
	"github.com/plotgarden/plotgarden/internal/weather"
)

// AIGateway is the slice of the AI gateway the handlers need. nil means the
// assistant is not configured; the AI routes answer 503.
type AIGateway interface {
	Search(ctx context.Context, query string) ([]ai.Candidate, error)
	CheckFit(ctx context.Context, fc *ai.FitContext) (*ai.FitResult, error)
}

type Server struct {
	store     *store.Store
	refresher *weather.Refresher
	gateway   AIGateway
	snapshots *snapshot.Cache
	validate  *validator.Validate
	port      string
}

func NewServer(st *store.Store, refresher *weather.Refresher, gateway AIGateway, snapshots *snapshot.Cache, port string) *Server {
	return &Server{
		store:     st,
		refresher: refresher,
		gateway:   gateway,
		snapshots: snapshots,
		validate:  validator.New(),
		port:      port,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/plans", s.handleCreatePlan)
	mux.HandleFunc("GET /api/plans", s.handleListPlans)
	mux.HandleFunc("GET /api/plans/{id}", s.handleGetPlan)
	mux.HandleFunc("PUT /api/plans/{id}", s.handleUpdatePlan)
	mux.HandleFunc("DELETE /api/plans/{id}", s.handleDeletePlan)

	mux.HandleFunc("GET /api/plans/{id}/cells", s.handleGetCells)
	mux.HandleFunc("PUT /api/plans/{id}/cells", s.handleReplaceCells)

	mux.HandleFunc("GET /api/plans/{id}/plants", s.handleListPlants)
	mux.HandleFunc("POST /api/plans/{id}/plants", s.handlePlacePlant)
	mux.HandleFunc("DELETE /api/plans/{id}/plants/{plantID}", s.handleRemovePlant)

	mux.HandleFunc("GET /api/plans/{id}/weather", s.handleGetWeather)
	mux.HandleFunc("POST /api/plans/{id}/weather/refresh", s.handleRefreshWeather)

	mux.HandleFunc("POST /api/ai/search", s.handleAISearch)
	mux.HandleFunc("POST /api/plans/{id}/ai/fit", s.handleAIFit)

	mux.HandleFunc("GET /api/plans/{id}/snapshot.png", s.handleSnapshot)
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userID extracts the caller identity. Authentication itself happens
// upstream; by the time requests reach this service the header is trusted.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: write response: %v", err)
	}
}

// decodeJSON parses the request body into dst and runs struct validation.
// Returns false after writing the error response.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "request body is not valid JSON")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
		return false
	}
	return true
}
