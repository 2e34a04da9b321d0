package weather

import (
	"context"
	"log"
	"time"

	"github.com/plotgarden/plotgarden/internal/archive"
	"github.com/plotgarden/plotgarden/internal/climate"
	"github.com/plotgarden/plotgarden/internal/metrics"
	"github.com/plotgarden/plotgarden/internal/models"
	"github.com/plotgarden/plotgarden/internal/store"
)

// DefaultStaleAfter is how long cached monthly rows stay fresh. Historical
// climate moves slowly; the threshold mostly guards against a user's plan
// moving location.
const DefaultStaleAfter = 24 * time.Hour

// ArchiveClient is the slice of the archive client the refresher needs.
type ArchiveClient interface {
	FetchDailyHistory(ctx context.Context, lat, lon float64, start, end time.Time) ([]climate.RawDailySample, error)
}

// Result is the outcome of a refresh call. Refreshed is false when fresh
// cached rows were returned without touching the provider.
type Result struct {
	Months    []models.MonthlyClimate
	Refreshed bool
}

// Refresher drives the fetch -> normalize -> aggregate -> persist sequence
// behind the plan weather cache.
type Refresher struct {
	store      *store.Store
	archive    ArchiveClient
	limiter    *RateLimiter
	staleAfter time.Duration
	now        func() time.Time
}

// NewRefresher wires the refresh policy. A nil clock falls back to time.Now.
func NewRefresher(st *store.Store, ac ArchiveClient, limiter *RateLimiter, staleAfter time.Duration, clock func() time.Time) *Refresher {
	if clock == nil {
		clock = time.Now
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Refresher{store: st, archive: ac, limiter: limiter, staleAfter: staleAfter, now: clock}
}

// Refresh returns the plan's monthly climate rows, refetching from the
// archive when the cache is stale or force is set. Guard order: rate limit,
// then existence, then location; each fails fast with its own error kind
// before any network cost. Force bypasses staleness but never the rate
// limit. Only calls that reach the provider keep their rate-limit slot, so
// a failing upstream still cannot be hammered.
func (r *Refresher) Refresh(ctx context.Context, ownerID, planID string, force bool) (*Result, error) {
	allowed, wait := r.limiter.Allow(planID)
	if !allowed {
		metrics.RefreshesTotal.WithLabelValues("rate_limited").Inc()
		return nil, RateLimitedError(wait)
	}

	plan, err := r.store.GetPlan(ownerID, planID)
	if err != nil {
		r.limiter.Reset(planID)
		metrics.RefreshesTotal.WithLabelValues("internal").Inc()
		return nil, InternalError(err)
	}
	if plan == nil {
		r.limiter.Reset(planID)
		metrics.RefreshesTotal.WithLabelValues("not_found").Inc()
		return nil, NotFoundError()
	}
	if !plan.HasLocation() {
		r.limiter.Reset(planID)
		metrics.RefreshesTotal.WithLabelValues("missing_location").Inc()
		return nil, MissingLocationError()
	}

	now := r.now()

	if !force {
		cached, err := r.store.GetMonthlyClimate(planID)
		if err != nil {
			r.limiter.Reset(planID)
			metrics.RefreshesTotal.WithLabelValues("internal").Inc()
			return nil, InternalError(err)
		}
		if len(cached) > 0 && now.Sub(cached[0].LastRefreshedAt) < r.staleAfter {
			r.limiter.Reset(planID)
			metrics.RefreshesTotal.WithLabelValues("cached").Inc()
			return &Result{Months: cached, Refreshed: false}, nil
		}
	}

	// The fetch attempt consumes the slot from here on, failed or not.
	start, end := archive.TrailingWindow(now)
	samples, err := r.archive.FetchDailyHistory(ctx, *plan.Latitude, *plan.Longitude, start, end)
	if err != nil {
		werr := fromArchiveError(err)
		metrics.RefreshesTotal.WithLabelValues(string(werr.Kind)).Inc()
		log.Printf("weather: refresh %s failed: %v", planID, err)
		return nil, werr
	}

	values := climate.AggregateMonthly(samples)
	months := make([]models.MonthlyClimate, 0, len(values))
	for _, v := range values {
		months = append(months, models.MonthlyClimate{
			PlanID:          planID,
			Year:            v.Year,
			Month:           int(v.Month),
			Sunlight:        v.Sunlight,
			Humidity:        v.Humidity,
			Precipitation:   v.Precipitation,
			Temperature:     v.Temperature,
			LastRefreshedAt: now,
		})
	}

	if err := r.store.ReplaceMonthlyClimate(planID, months); err != nil {
		metrics.RefreshesTotal.WithLabelValues("internal").Inc()
		return nil, InternalError(err)
	}

	metrics.RefreshesTotal.WithLabelValues("refreshed").Inc()
	return &Result{Months: months, Refreshed: true}, nil
}

// Cached returns the plan's cached rows without any refresh logic.
func (r *Refresher) Cached(ownerID, planID string) ([]models.MonthlyClimate, error) {
	plan, err := r.store.GetPlan(ownerID, planID)
	if err != nil {
		return nil, InternalError(err)
	}
	if plan == nil {
		return nil, NotFoundError()
	}
	months, err := r.store.GetMonthlyClimate(planID)
	if err != nil {
		return nil, InternalError(err)
	}
	return months, nil
}
