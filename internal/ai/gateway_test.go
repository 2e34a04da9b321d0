package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/plotgarden/plotgarden/internal/models"
)

// fakeCompleter replays a scripted sequence of responses/errors.
type fakeCompleter struct {
	calls     int
	responses []string
	errs      []error
	lastUser  string
}

func (f *fakeCompleter) complete(ctx context.Context, system, user string) (string, error) {
	i := f.calls
	f.calls++
	f.lastUser = user
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", errors.New("fake completer exhausted")
}

func newTestGateway(fc *fakeCompleter) *Gateway {
	return &Gateway{comp: fc, timeout: time.Second}
}

func TestSearch(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{responses: []string{`{"candidates":[{"name":"Lavender","latin_name":"Lavandula","source":"ai"}]}`}}
	g := newTestGateway(fc)

	got, err := g.Search(context.Background(), "fragrant border plant")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Lavender" {
		t.Errorf("unexpected candidates: %+v", got)
	}
	if fc.calls != 1 {
		t.Errorf("expected 1 provider call, got %d", fc.calls)
	}
}

func TestSearchEmptyResult(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{responses: []string{`{"candidates":[]}`}}
	g := newTestGateway(fc)

	got, err := g.Search(context.Background(), "xyzzy")
	if err != nil {
		t.Fatalf("empty result is valid, got error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %d", len(got))
	}
}

func TestSearchRetriesTransientFailureOnce(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{
		errs:      []error{errors.New("temporary blip"), nil},
		responses: []string{"", `{"candidates":[]}`},
	}
	g := newTestGateway(fc)

	if _, err := g.Search(context.Background(), "roses"); err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if fc.calls != 2 {
		t.Errorf("expected 2 provider calls, got %d", fc.calls)
	}
}

func TestSearchGivesUpAfterOneRetry(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{errs: []error{errors.New("down"), errors.New("still down"), errors.New("never reached")}}
	g := newTestGateway(fc)

	_, err := g.Search(context.Background(), "roses")
	if err == nil {
		t.Fatal("expected failure")
	}
	if fc.calls != 2 {
		t.Errorf("expected exactly one automatic retry, got %d calls", fc.calls)
	}
	aiErr := err.(*Error)
	if aiErr.Kind != KindUnknown {
		t.Errorf("expected unknown, got %s", aiErr.Kind)
	}
}

func TestSearchBadJSONNotRetried(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{responses: []string{"not json at all", `{"candidates":[]}`}}
	g := newTestGateway(fc)

	_, err := g.Search(context.Background(), "roses")
	if err == nil {
		t.Fatal("expected bad_json failure")
	}
	aiErr := err.(*Error)
	if aiErr.Kind != KindBadJSON {
		t.Fatalf("expected bad_json, got %s", aiErr.Kind)
	}
	if aiErr.CanRetry {
		t.Error("bad_json must carry can_retry=false")
	}
	if fc.calls != 1 {
		t.Errorf("malformed responses must not be retried, got %d calls", fc.calls)
	}
}

func TestSearchTimeoutClassification(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{errs: []error{context.DeadlineExceeded, context.DeadlineExceeded}}
	g := newTestGateway(fc)

	_, err := g.Search(context.Background(), "roses")
	aiErr, ok := err.(*Error)
	if !ok || aiErr.Kind != KindTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if aiErr.Op != OpSearch {
		t.Errorf("expected search context, got %s", aiErr.Op)
	}
}

func TestCheckFit(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{responses: []string{`{"sunlight_score":4,"humidity_score":3,"precip_score":4,"overall_score":4,"explanation":"Good drainage match."}`}}
	g := newTestGateway(fc)

	tempAvg := 11
	fitCtx := &FitContext{
		PlantName:      "Rosemary",
		Latitude:       52.0,
		Longitude:      21.0,
		OrientationDeg: 180,
		AnnualTempAvgC: &tempAvg,
		AnnualPrecipMM: 620,
		CellX:          3,
		CellY:          4,
		Months: []models.MonthlyClimate{
			{Year: 2025, Month: 7, Sunlight: 80, Humidity: 55, Precipitation: 12, Temperature: 62},
		},
	}

	got, err := g.CheckFit(context.Background(), fitCtx)
	if err != nil {
		t.Fatalf("check fit: %v", err)
	}
	if got.OverallScore != 4 {
		t.Errorf("unexpected result: %+v", got)
	}

	// The prompt carries the denormalized climate and the monthly series.
	for _, want := range []string{`"plant_name":"Rosemary"`, `"annual_temp_avg":11`, `"annual_precip":620`, `"weather_monthly"`, `"lat":52`, `"orientation":180`} {
		if !strings.Contains(fc.lastUser, want) {
			t.Errorf("fit prompt missing %s:\n%s", want, fc.lastUser)
		}
	}
}

func TestCheckFitOutOfRangeScore(t *testing.T) {
	t.Parallel()

	fc := &fakeCompleter{responses: []string{`{"sunlight_score":6,"humidity_score":3,"precip_score":3,"overall_score":3}`}}
	g := newTestGateway(fc)

	_, err := g.CheckFit(context.Background(), &FitContext{PlantName: "Fern"})
	aiErr, ok := err.(*Error)
	if !ok || aiErr.Kind != KindBadJSON {
		t.Fatalf("expected bad_json for out-of-range score, got %v", err)
	}
	if aiErr.CanRetry {
		t.Error("expected can_retry=false")
	}
	if fc.calls != 1 {
		t.Errorf("out-of-range score must not be retried, got %d calls", fc.calls)
	}
}
