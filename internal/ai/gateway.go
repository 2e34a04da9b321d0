package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/plotgarden/plotgarden/internal/metrics"
	"github.com/plotgarden/plotgarden/internal/models"
)

const (
	// SourceAI is the provenance tag on every AI-suggested candidate.
	SourceAI = "ai"

	// DefaultTimeout bounds one whole external call, including provider
	// queueing. On expiry the outcome is classified as timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultModel is the reasoning model used for search and fit checks.
	DefaultModel = "gpt-4o-mini"
)

// FitContext is the request-scoped bundle handed to the fit check: the
// plant, the site, and the cached climate series. Built fresh per call and
// discarded.
type FitContext struct {
	PlantName      string                  `json:"plant_name"`
	Latitude       float64                 `json:"-"`
	Longitude      float64                 `json:"-"`
	OrientationDeg float64                 `json:"orientation"`
	AnnualTempAvgC *int                    `json:"-"`
	AnnualPrecipMM float64                 `json:"-"`
	CellX          int                     `json:"-"`
	CellY          int                     `json:"-"`
	Months         []models.MonthlyClimate `json:"-"`
}

// completer is the transport seam: one prompt in, the model's raw text out.
type completer interface {
	complete(ctx context.Context, system, user string) (string, error)
}

type openaiCompleter struct {
	client openai.Client
	model  string
}

func (c *openaiCompleter) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Gateway answers plant search and site-fit questions through an external
// reasoning provider. It never persists anything; accepting a placement is
// a separate concern.
type Gateway struct {
	comp    completer
	timeout time.Duration
}

// NewGateway creates a gateway backed by the OpenAI API.
func NewGateway(apiKey, model string, timeout time.Duration) (*Gateway, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key not set")
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Gateway{
		comp:    &openaiCompleter{client: client, model: model},
		timeout: timeout,
	}, nil
}

const searchSystemPrompt = `You are a horticultural assistant for a garden planning app.
Answer with JSON only, no prose, matching exactly:
{"candidates":[{"name":"...","latin_name":"...","source":"ai"}]}
Rules: at most 8 candidates; "latin_name" may be omitted; "source" is always "ai";
an empty candidates array is the correct answer when nothing matches.`

// Search returns up to 8 plant candidates for a free-text query. An empty
// list is a valid "no results", not an error.
func (g *Gateway) Search(ctx context.Context, query string) ([]Candidate, error) {
	user := fmt.Sprintf("Suggest garden plants matching: %s", query)

	raw, err := g.completeWithRetry(ctx, OpSearch, searchSystemPrompt, user, func(raw string) error {
		_, verr := parseCandidates(raw)
		if verr != nil {
			return verr
		}
		return nil
	})
	if err != nil {
		metrics.AICallsTotal.WithLabelValues(string(OpSearch), string(err.Kind)).Inc()
		return nil, err
	}

	candidates, verr := parseCandidates(raw)
	if verr != nil {
		// Unreachable: validated inside the retry loop.
		metrics.AICallsTotal.WithLabelValues(string(OpSearch), string(verr.Kind)).Inc()
		return nil, verr
	}
	metrics.AICallsTotal.WithLabelValues(string(OpSearch), "ok").Inc()
	return candidates, nil
}

const fitSystemPrompt = `You are a horticultural assistant scoring how well a plant suits a garden location.
Answer with JSON only, no prose, matching exactly:
{"sunlight_score":1,"humidity_score":1,"precip_score":1,"overall_score":1,"explanation":"..."}
Rules: every score is an integer from 1 (poor fit) to 5 (excellent fit);
"explanation" is one or two short sentences and may be omitted.`

// CheckFit scores the plant against the site and its cached climate.
func (g *Gateway) CheckFit(ctx context.Context, fc *FitContext) (*FitResult, error) {
	user, err := buildFitPrompt(fc)
	if err != nil {
		metrics.AICallsTotal.WithLabelValues(string(OpFit), string(KindUnknown)).Inc()
		return nil, Classify(err, OpFit)
	}

	raw, aiErr := g.completeWithRetry(ctx, OpFit, fitSystemPrompt, user, func(raw string) error {
		_, verr := parseFit(raw)
		if verr != nil {
			return verr
		}
		return nil
	})
	if aiErr != nil {
		metrics.AICallsTotal.WithLabelValues(string(OpFit), string(aiErr.Kind)).Inc()
		return nil, aiErr
	}

	result, verr := parseFit(raw)
	if verr != nil {
		metrics.AICallsTotal.WithLabelValues(string(OpFit), string(verr.Kind)).Inc()
		return nil, verr
	}
	metrics.AICallsTotal.WithLabelValues(string(OpFit), "ok").Inc()
	return result, nil
}

// completeWithRetry runs one bounded provider call plus at most one
// automatic retry. Shape failures are permanent: the same input would
// produce the same malformed answer.
func (g *Gateway) completeWithRetry(ctx context.Context, op Op, system, user string, validate func(string) error) (string, *Error) {
	var out string
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		raw, err := g.comp.complete(callCtx, system, user)
		if err != nil {
			return Classify(err, op)
		}
		if err := validate(raw); err != nil {
			return backoff.Permanent(err)
		}
		out = raw
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, 1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", Classify(err, op)
	}
	return out, nil
}

// buildFitPrompt lays the context out for the model, with temperature and
// precipitation back in physical units for readability.
func buildFitPrompt(fc *FitContext) (string, error) {
	type monthRow struct {
		Year          int     `json:"year"`
		Month         int     `json:"month"`
		Sunlight      float64 `json:"sunlight"`
		Humidity      float64 `json:"humidity"`
		Precipitation float64 `json:"precipitation"`
		Temperature   float64 `json:"temperature"`
	}
	payload := struct {
		PlantName string `json:"plant_name"`
		Location  struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"location"`
		Orientation float64 `json:"orientation"`
		Climate     struct {
			AnnualTempAvg *int    `json:"annual_temp_avg"`
			AnnualPrecip  float64 `json:"annual_precip"`
		} `json:"climate"`
		Cell struct {
			X int `json:"x"`
			Y int `json:"y"`
		} `json:"cell"`
		WeatherMonthly []monthRow `json:"weather_monthly"`
	}{
		PlantName:   fc.PlantName,
		Orientation: fc.OrientationDeg,
	}
	payload.Location.Lat = fc.Latitude
	payload.Location.Lon = fc.Longitude
	payload.Climate.AnnualTempAvg = fc.AnnualTempAvgC
	payload.Climate.AnnualPrecip = fc.AnnualPrecipMM
	payload.Cell.X = fc.CellX
	payload.Cell.Y = fc.CellY
	for _, m := range fc.Months {
		payload.WeatherMonthly = append(payload.WeatherMonthly, monthRow{
			Year:          m.Year,
			Month:         m.Month,
			Sunlight:      float64(m.Sunlight),
			Humidity:      float64(m.Humidity),
			Precipitation: float64(m.Precipitation),
			Temperature:   float64(m.Temperature),
		})
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode fit context: %w", err)
	}

	var b strings.Builder
	b.WriteString("Score this plant for this site. Normalized metrics run 0-100; annual_temp_avg is in Celsius and annual_precip in millimetres.\n")
	b.Write(encoded)
	return b.String(), nil
}
