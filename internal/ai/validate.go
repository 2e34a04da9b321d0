package ai

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// maxCandidates bounds the search result list.
const maxCandidates = 8

// Candidate is one plant suggestion from a search.
type Candidate struct {
	Name      string  `json:"name"`
	LatinName *string `json:"latin_name,omitempty"`
	Source    string  `json:"source"`
}

// FitResult carries the four 1-5 scores plus the optional explanation.
type FitResult struct {
	SunlightScore int    `json:"sunlight_score"`
	HumidityScore int    `json:"humidity_score"`
	PrecipScore   int    `json:"precip_score"`
	OverallScore  int    `json:"overall_score"`
	Explanation   string `json:"explanation,omitempty"`
}

// stripFences removes a markdown code fence the model sometimes wraps JSON
// in, without touching anything else.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// parseCandidates validates the raw search response. Anything missing,
// mistyped or over-long is a bad_json classification, never coerced.
func parseCandidates(raw string) ([]Candidate, *Error) {
	var payload struct {
		Candidates []struct {
			Name      *string `json:"name"`
			LatinName *string `json:"latin_name"`
			Source    *string `json:"source"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &payload); err != nil {
		return nil, badJSON(OpSearch, fmt.Sprintf("search response is not valid JSON: %v", err))
	}
	if payload.Candidates == nil {
		return nil, badJSON(OpSearch, "search response missing candidates array")
	}
	if len(payload.Candidates) > maxCandidates {
		return nil, badJSON(OpSearch, fmt.Sprintf("search response has %d candidates, limit is %d", len(payload.Candidates), maxCandidates))
	}

	out := make([]Candidate, 0, len(payload.Candidates))
	for i, c := range payload.Candidates {
		if c.Name == nil || strings.TrimSpace(*c.Name) == "" {
			return nil, badJSON(OpSearch, fmt.Sprintf("candidate %d missing name", i))
		}
		if c.Source == nil || *c.Source != SourceAI {
			return nil, badJSON(OpSearch, fmt.Sprintf("candidate %d missing %q source tag", i, SourceAI))
		}
		cand := Candidate{Name: strings.TrimSpace(*c.Name), Source: SourceAI}
		if c.LatinName != nil && strings.TrimSpace(*c.LatinName) != "" {
			latin := strings.TrimSpace(*c.LatinName)
			cand.LatinName = &latin
		}
		out = append(out, cand)
	}
	return out, nil
}

// parseFit validates the raw fit response. Scores must be integers strictly
// in [1,5]; out-of-range values are rejected, not clamped.
func parseFit(raw string) (*FitResult, *Error) {
	var payload struct {
		SunlightScore *float64 `json:"sunlight_score"`
		HumidityScore *float64 `json:"humidity_score"`
		PrecipScore   *float64 `json:"precip_score"`
		OverallScore  *float64 `json:"overall_score"`
		Explanation   *string  `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &payload); err != nil {
		return nil, badJSON(OpFit, fmt.Sprintf("fit response is not valid JSON: %v", err))
	}

	scores := []struct {
		name  string
		value *float64
	}{
		{"sunlight_score", payload.SunlightScore},
		{"humidity_score", payload.HumidityScore},
		{"precip_score", payload.PrecipScore},
		{"overall_score", payload.OverallScore},
	}
	ints := make([]int, len(scores))
	for i, s := range scores {
		if s.value == nil {
			return nil, badJSON(OpFit, fmt.Sprintf("fit response missing %s", s.name))
		}
		v := *s.value
		if v != math.Trunc(v) {
			return nil, badJSON(OpFit, fmt.Sprintf("%s is not an integer: %v", s.name, v))
		}
		if v < 1 || v > 5 {
			return nil, badJSON(OpFit, fmt.Sprintf("%s out of range: %v", s.name, v))
		}
		ints[i] = int(v)
	}

	result := &FitResult{
		SunlightScore: ints[0],
		HumidityScore: ints[1],
		PrecipScore:   ints[2],
		OverallScore:  ints[3],
	}
	if payload.Explanation != nil {
		result.Explanation = strings.TrimSpace(*payload.Explanation)
	}
	return result, nil
}
