package weather

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/plotgarden/plotgarden/internal/archive"
	"github.com/plotgarden/plotgarden/internal/climate"
	"github.com/plotgarden/plotgarden/internal/models"
	"github.com/plotgarden/plotgarden/internal/store"
)

type fakeArchive struct {
	calls     int
	lastStart time.Time
	lastEnd   time.Time
	err       error
}

func (f *fakeArchive) FetchDailyHistory(ctx context.Context, lat, lon float64, start, end time.Time) ([]climate.RawDailySample, error) {
	f.calls++
	f.lastStart = start
	f.lastEnd = end
	if f.err != nil {
		return nil, f.err
	}

	var samples []climate.RawDailySample
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		rad, sun, hum, precip, temp := 15.0, 6.0*3600, 70.0, 2.0, 12.0
		samples = append(samples, climate.RawDailySample{
			Date:             d,
			RadiationMJ:      &rad,
			SunshineSeconds:  &sun,
			HumidityPct:      &hum,
			PrecipitationMM:  &precip,
			MeanTemperatureC: &temp,
		})
	}
	return samples, nil
}

func setupRefresher(t *testing.T, fa *fakeArchive, clock *fakeClock) (*Refresher, *store.Store) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	limiter := NewRateLimiter(15*time.Minute, time.Hour, clock.now)
	return NewRefresher(st, fa, limiter, DefaultStaleAfter, clock.now), st
}

func seedPlan(t *testing.T, st *store.Store, lat, lon *float64) *models.Plan {
	t.Helper()
	now := time.Now().UTC()
	plan := &models.Plan{
		ID:        "plan-1",
		OwnerID:   "user-1",
		Name:      "Allotment",
		Latitude:  lat,
		Longitude: lon,
		Width:     10,
		Height:    10,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := st.CreatePlan(plan); err != nil {
		t.Fatalf("create plan: %v", err)
	}
	return plan
}

func floatPtr(v float64) *float64 { return &v }

func TestRefreshEndToEnd(t *testing.T) {
	t.Parallel()

	fa := &fakeArchive{}
	clock := &fakeClock{t: time.Date(2025, 8, 28, 12, 0, 0, 0, time.UTC)}
	r, st := setupRefresher(t, fa, clock)
	seedPlan(t, st, floatPtr(52.0), floatPtr(21.0))

	res, err := r.Refresh(context.Background(), "user-1", "plan-1", false)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !res.Refreshed {
		t.Error("expected a fetch on empty cache")
	}
	if fa.calls != 1 {
		t.Fatalf("expected exactly one archive call, got %d", fa.calls)
	}

	// Window ends 5 days before "today", starts 12 months earlier.
	if got := fa.lastEnd.Format("2006-01-02"); got != "2025-08-23" {
		t.Errorf("window end = %s, want 2025-08-23", got)
	}
	if got := fa.lastStart.Format("2006-01-02"); got != "2024-08-23" {
		t.Errorf("window start = %s, want 2024-08-23", got)
	}

	if len(res.Months) != 12 {
		t.Fatalf("expected 12 monthly rows, got %d", len(res.Months))
	}
	for _, m := range res.Months {
		for name, v := range map[string]climate.Percent{
			"sunlight":      m.Sunlight,
			"humidity":      m.Humidity,
			"precipitation": m.Precipitation,
			"temperature":   m.Temperature,
		} {
			if v < 0 || v > 100 {
				t.Errorf("%d-%02d %s out of range: %v", m.Year, m.Month, name, v)
			}
		}
		if !m.LastRefreshedAt.Equal(clock.t) {
			t.Errorf("last_refreshed_at = %v, want %v", m.LastRefreshedAt, clock.t)
		}
	}

	// Persisted set matches the returned set.
	stored, err := st.GetMonthlyClimate("plan-1")
	if err != nil {
		t.Fatalf("get monthly climate: %v", err)
	}
	if len(stored) != 12 {
		t.Errorf("expected 12 persisted rows, got %d", len(stored))
	}
}

func TestRefreshMissingLocation(t *testing.T) {
	t.Parallel()

	fa := &fakeArchive{}
	clock := &fakeClock{t: time.Now().UTC()}
	r, st := setupRefresher(t, fa, clock)
	seedPlan(t, st, nil, floatPtr(21.0))

	_, err := r.Refresh(context.Background(), "user-1", "plan-1", false)
	werr, ok := err.(*Error)
	if !ok || werr.Kind != KindMissingLocation {
		t.Fatalf("expected missing_location, got %v", err)
	}
	if fa.calls != 0 {
		t.Errorf("guard must fire before any network call, got %d calls", fa.calls)
	}

	// Guard failures hand their rate-limit slot back.
	if _, err := r.Refresh(context.Background(), "user-1", "plan-1", false); err == nil {
		t.Fatal("expected error on second call")
	} else if werr := err.(*Error); werr.Kind != KindMissingLocation {
		t.Errorf("second call should still be missing_location, got %s", werr.Kind)
	}
}

func TestRefreshNotFound(t *testing.T) {
	t.Parallel()

	fa := &fakeArchive{}
	clock := &fakeClock{t: time.Now().UTC()}
	r, st := setupRefresher(t, fa, clock)
	seedPlan(t, st, floatPtr(52.0), floatPtr(21.0))

	_, err := r.Refresh(context.Background(), "someone-else", "plan-1", false)
	werr, ok := err.(*Error)
	if !ok || werr.Kind != KindNotFound {
		t.Fatalf("expected not_found for foreign owner, got %v", err)
	}

	_, err = r.Refresh(context.Background(), "user-1", "no-such-plan", false)
	werr, ok = err.(*Error)
	if !ok || werr.Kind != KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
	if fa.calls != 0 {
		t.Errorf("expected no archive calls, got %d", fa.calls)
	}
}

func TestRefreshServesFreshCache(t *testing.T) {
	t.Parallel()

	fa := &fakeArchive{}
	clock := &fakeClock{t: time.Date(2025, 8, 28, 12, 0, 0, 0, time.UTC)}
	r, st := setupRefresher(t, fa, clock)
	seedPlan(t, st, floatPtr(52.0), floatPtr(21.0))

	seed := []models.MonthlyClimate{{
		PlanID: "plan-1", Year: 2025, Month: 7,
		Sunlight: 60, Humidity: 70, Precipitation: 20, Temperature: 55,
		LastRefreshedAt: clock.t.Add(-time.Hour),
	}}
	if err := st.ReplaceMonthlyClimate("plan-1", seed); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	// Two calls in quick succession: both serve the cache, neither touches
	// the provider, neither consumes the rate-limit window.
	for i := 0; i < 2; i++ {
		res, err := r.Refresh(context.Background(), "user-1", "plan-1", false)
		if err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
		if res.Refreshed {
			t.Errorf("call %d: expected cached result", i)
		}
		if len(res.Months) != 1 || res.Months[0].Month != 7 {
			t.Errorf("call %d: unexpected rows %+v", i, res.Months)
		}
	}
	if fa.calls != 0 {
		t.Errorf("archive must not be invoked for fresh cache, got %d calls", fa.calls)
	}
}

func TestRefreshStaleCacheRefetches(t *testing.T) {
	t.Parallel()

	fa := &fakeArchive{}
	clock := &fakeClock{t: time.Date(2025, 8, 28, 12, 0, 0, 0, time.UTC)}
	r, st := setupRefresher(t, fa, clock)
	seedPlan(t, st, floatPtr(52.0), floatPtr(21.0))

	seed := []models.MonthlyClimate{{
		PlanID: "plan-1", Year: 2025, Month: 1,
		Sunlight: 60, Humidity: 70, Precipitation: 20, Temperature: 55,
		LastRefreshedAt: clock.t.Add(-48 * time.Hour),
	}}
	if err := st.ReplaceMonthlyClimate("plan-1", seed); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	res, err := r.Refresh(context.Background(), "user-1", "plan-1", false)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !res.Refreshed || fa.calls != 1 {
		t.Errorf("stale cache should refetch: refreshed=%v calls=%d", res.Refreshed, fa.calls)
	}
}

func TestForceDoesNotBypassRateLimit(t *testing.T) {
	t.Parallel()

	fa := &fakeArchive{}
	clock := &fakeClock{t: time.Date(2025, 8, 28, 12, 0, 0, 0, time.UTC)}
	r, st := setupRefresher(t, fa, clock)
	seedPlan(t, st, floatPtr(52.0), floatPtr(21.0))

	if _, err := r.Refresh(context.Background(), "user-1", "plan-1", true); err != nil {
		t.Fatalf("first forced refresh: %v", err)
	}

	clock.advance(time.Minute)
	_, err := r.Refresh(context.Background(), "user-1", "plan-1", true)
	werr, ok := err.(*Error)
	if !ok || werr.Kind != KindRateLimited {
		t.Fatalf("expected rate_limited, got %v", err)
	}
	if werr.RetryAfter <= 0 {
		t.Errorf("rate_limited must carry remaining wait, got %v", werr.RetryAfter)
	}
	if fa.calls != 1 {
		t.Errorf("second forced call must not reach the archive, got %d calls", fa.calls)
	}
}

func TestForceBypassesStaleness(t *testing.T) {
	t.Parallel()

	fa := &fakeArchive{}
	clock := &fakeClock{t: time.Date(2025, 8, 28, 12, 0, 0, 0, time.UTC)}
	r, st := setupRefresher(t, fa, clock)
	seedPlan(t, st, floatPtr(52.0), floatPtr(21.0))

	seed := []models.MonthlyClimate{{
		PlanID: "plan-1", Year: 2025, Month: 7,
		Sunlight: 60, Humidity: 70, Precipitation: 20, Temperature: 55,
		LastRefreshedAt: clock.t.Add(-time.Minute),
	}}
	if err := st.ReplaceMonthlyClimate("plan-1", seed); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	res, err := r.Refresh(context.Background(), "user-1", "plan-1", true)
	if err != nil {
		t.Fatalf("forced refresh: %v", err)
	}
	if !res.Refreshed || fa.calls != 1 {
		t.Errorf("force should refetch despite fresh cache: refreshed=%v calls=%d", res.Refreshed, fa.calls)
	}
}

func TestRefreshUpstreamFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		archErr  error
		wantKind ErrorKind
	}{
		{"timeout", fmt.Errorf("%w after 1.2s", archive.ErrTimeout), KindUpstreamTimeout},
		{"status", &archive.StatusError{StatusCode: 503, Body: "overloaded"}, KindUpstream},
		{"payload", &archive.PayloadError{Message: "missing daily.time"}, KindUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fa := &fakeArchive{err: tt.archErr}
			clock := &fakeClock{t: time.Date(2025, 8, 28, 12, 0, 0, 0, time.UTC)}
			r, st := setupRefresher(t, fa, clock)
			seedPlan(t, st, floatPtr(52.0), floatPtr(21.0))

			_, err := r.Refresh(context.Background(), "user-1", "plan-1", false)
			werr, ok := err.(*Error)
			if !ok || werr.Kind != tt.wantKind {
				t.Fatalf("expected %s, got %v", tt.wantKind, err)
			}

			// No partial rows written.
			rows, _ := st.GetMonthlyClimate("plan-1")
			if len(rows) != 0 {
				t.Errorf("failed fetch must not write rows, got %d", len(rows))
			}

			// Failed fetches still consume the rate-limit slot.
			clock.advance(time.Minute)
			_, err = r.Refresh(context.Background(), "user-1", "plan-1", false)
			werr, ok = err.(*Error)
			if !ok || werr.Kind != KindRateLimited {
				t.Errorf("expected rate_limited after failed fetch, got %v", err)
			}
		})
	}
}

func TestRefreshUpstreamStatusCodePreserved(t *testing.T) {
	t.Parallel()

	fa := &fakeArchive{err: &archive.StatusError{StatusCode: 500, Body: "boom"}}
	clock := &fakeClock{t: time.Now().UTC()}
	r, st := setupRefresher(t, fa, clock)
	seedPlan(t, st, floatPtr(52.0), floatPtr(21.0))

	_, err := r.Refresh(context.Background(), "user-1", "plan-1", false)
	werr, ok := err.(*Error)
	if !ok || werr.Kind != KindUpstream {
		t.Fatalf("expected upstream_error, got %v", err)
	}
	if werr.StatusCode != 500 {
		t.Errorf("expected provider status preserved, got %d", werr.StatusCode)
	}
}
