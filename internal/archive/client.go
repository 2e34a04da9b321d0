package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/plotgarden/plotgarden/internal/climate"
	"github.com/plotgarden/plotgarden/internal/httputil"
	"github.com/plotgarden/plotgarden/internal/metrics"
)

const (
	// DefaultBaseURL is the Open-Meteo historical archive endpoint.
	DefaultBaseURL = "https://archive-api.open-meteo.com/v1/archive"

	// DefaultTimeout reflects the internal SLA for a refresh call, not the
	// provider's actual latency envelope.
	DefaultTimeout = 1200 * time.Millisecond

	// providerLagDays is how far archive data trails real time.
	providerLagDays = 5

	dateLayout = "2006-01-02"
)

// The five daily series requested from the archive, in request order.
const (
	metricRadiation = "shortwave_radiation_sum"
	metricSunshine  = "sunshine_duration"
	metricHumidity  = "relative_humidity_2m_mean"
	metricPrecip    = "precipitation_sum"
	metricTemp      = "temperature_2m_mean"
)

var dailyMetrics = []string{metricRadiation, metricSunshine, metricHumidity, metricPrecip, metricTemp}

// ErrTimeout marks a client-side abort: the configured budget elapsed
// before the provider answered. Kept distinct from upstream failures so
// callers can offer "try again" messaging.
var ErrTimeout = errors.New("archive request timed out")

// StatusError is a non-2xx answer from the provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("archive responded %d: %s", e.StatusCode, e.Body)
}

// PayloadError is a structurally invalid provider response. The whole fetch
// fails; there is no partial-success case.
type PayloadError struct {
	Message string
}

func (e *PayloadError) Error() string {
	return "archive payload invalid: " + e.Message
}

// Client fetches daily historical climate series from the archive provider.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	breaker    *gobreaker.CircuitBreaker
}

// New creates an archive client against the given base URL. A zero timeout
// falls back to DefaultTimeout.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httputil.NewClient(0),
		timeout:    timeout,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "weather-archive",
			MaxRequests: 3,
			Interval:    1 * time.Minute,
			Timeout:     2 * time.Minute,
		}),
	}
}

// NewDefault creates a client against the public Open-Meteo archive.
func NewDefault() *Client {
	return New(DefaultBaseURL, DefaultTimeout)
}

// TrailingWindow returns the 12-month fetch range ending providerLagDays
// before now, since archive data lags real time.
func TrailingWindow(now time.Time) (start, end time.Time) {
	end = now.AddDate(0, 0, -providerLagDays)
	start = end.AddDate(0, -12, 0)
	return start, end
}

type dailyPayload struct {
	Daily struct {
		Time          []string   `json:"time"`
		Radiation     []*float64 `json:"shortwave_radiation_sum"`
		Sunshine      []*float64 `json:"sunshine_duration"`
		Humidity      []*float64 `json:"relative_humidity_2m_mean"`
		Precipitation []*float64 `json:"precipitation_sum"`
		Temperature   []*float64 `json:"temperature_2m_mean"`
	} `json:"daily"`
}

// FetchDailyHistory requests the five daily series for the coordinate and
// date range in a single call. No retries happen here; retry policy, if
// any, belongs to the caller.
func (c *Client) FetchDailyHistory(ctx context.Context, lat, lon float64, start, end time.Time) ([]climate.RawDailySample, error) {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	values.Set("start_date", start.Format(dateLayout))
	values.Set("end_date", end.Format(dateLayout))
	values.Set("daily", joinMetrics())
	values.Set("timezone", "auto")

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build archive request: %w", err)
	}

	began := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("read archive response: %w", readErr)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		return body, nil
	})
	metrics.ArchiveCallLatency.Observe(time.Since(began).Seconds())

	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded) && reqCtx.Err() == context.DeadlineExceeded:
			metrics.ArchiveCallsTotal.WithLabelValues("timeout").Inc()
			return nil, fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.ArchiveCallsTotal.WithLabelValues("circuit_open").Inc()
			return nil, fmt.Errorf("archive circuit open: %w", err)
		default:
			metrics.ArchiveCallsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	body := result.([]byte)
	samples, err := parseDaily(body)
	if err != nil {
		metrics.ArchiveCallsTotal.WithLabelValues("invalid_payload").Inc()
		return nil, err
	}

	metrics.ArchiveCallsTotal.WithLabelValues("ok").Inc()
	return samples, nil
}

func joinMetrics() string {
	out := dailyMetrics[0]
	for _, m := range dailyMetrics[1:] {
		out += "," + m
	}
	return out
}

// parseDaily validates the payload shape and converts it to daily samples.
// Every requested series must be present with the same length as the time
// axis; any deviation fails the whole fetch.
func parseDaily(body []byte) ([]climate.RawDailySample, error) {
	var payload dailyPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &PayloadError{Message: fmt.Sprintf("decode: %v", err)}
	}

	days := payload.Daily.Time
	if days == nil {
		return nil, &PayloadError{Message: "missing daily.time"}
	}

	series := []struct {
		name   string
		values []*float64
	}{
		{metricRadiation, payload.Daily.Radiation},
		{metricSunshine, payload.Daily.Sunshine},
		{metricHumidity, payload.Daily.Humidity},
		{metricPrecip, payload.Daily.Precipitation},
		{metricTemp, payload.Daily.Temperature},
	}
	for _, s := range series {
		if s.values == nil {
			return nil, &PayloadError{Message: fmt.Sprintf("missing daily.%s", s.name)}
		}
		if len(s.values) != len(days) {
			return nil, &PayloadError{Message: fmt.Sprintf("daily.%s has %d entries, want %d", s.name, len(s.values), len(days))}
		}
	}

	samples := make([]climate.RawDailySample, 0, len(days))
	for i, day := range days {
		date, err := time.Parse(dateLayout, day)
		if err != nil {
			return nil, &PayloadError{Message: fmt.Sprintf("daily.time[%d] %q: %v", i, day, err)}
		}
		samples = append(samples, climate.RawDailySample{
			Date:             date,
			RadiationMJ:      payload.Daily.Radiation[i],
			SunshineSeconds:  payload.Daily.Sunshine[i],
			HumidityPct:      payload.Daily.Humidity[i],
			PrecipitationMM:  payload.Daily.Precipitation[i],
			MeanTemperatureC: payload.Daily.Temperature[i],
		})
	}
	return samples, nil
}
