package models

import (
	"database/sql/driver"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Score is a 0..1 value reported by a model backend.
// Backends are inconsistent, so numbers, numeric strings and percentages are accepted.
// Anything else, such as "high", decodes as 0.
type Score float64

// UnmarshalJSON implements json.Unmarshaler
func (s *Score) UnmarshalJSON(data []byte) error {
	*s = 0
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	percent := strings.HasSuffix(raw, "%")
	raw = strings.TrimSpace(strings.TrimSuffix(raw, "%"))
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) {
		return nil
	}
	if percent || value > 1 {
		value /= 100
	}
	*s = Score(clamp01(value))
	return nil
}

// Float returns the score as float64
func (s Score) Float() float64 {
	return float64(s)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// StructuredResult is the JSON object every backend is asked to return
type StructuredResult struct {
	Summary           string     `json:"summary"`
	Facts             StringList `json:"facts"`
	LegalArguments    StringList `json:"legal_arguments"`
	RuleApplications  StringList `json:"rule_applications"`
	Strengths         StringList `json:"strengths"`
	Weaknesses        StringList `json:"weaknesses"`
	Strategies        StringList `json:"strategies"`
	MissingEvidence   StringList `json:"missing_evidence"`
	ImpeachmentPoints StringList `json:"impeachment_points"`
	WinProbability    Score      `json:"win_probability"`
	Conclusion        string     `json:"conclusion"`
	Confidence        Score      `json:"confidence"`
}

// ModelResponse is the outcome of one backend call. Result is nil when the call failed outright.
type ModelResponse struct {
	BackendName string            `json:"backend_name"`
	Result      *StructuredResult `json:"result,omitempty"`
	RawText     string            `json:"raw_text,omitempty"`
	Error       string            `json:"error,omitempty"`
	Degraded    bool              `json:"degraded"`
	ParseStage  string            `json:"parse_stage,omitempty"`
	Elapsed     time.Duration     `json:"elapsed"`
}

// Valid reports whether the response carries parsed data
func (r ModelResponse) Valid() bool {
	return r.Result != nil
}

// BackendScore is one row of the cross-backend comparison
type BackendScore struct {
	WinProbability float64 `json:"win_probability"`
	Confidence     float64 `json:"confidence"`
}

// SynthesizedResult is the authoritative analysis selected from the backend responses
type SynthesizedResult struct {
	Summary              string                  `json:"summary"`
	Facts                []string                `json:"facts"`
	LegalArguments       []string                `json:"legal_arguments"`
	RuleApplications     []string                `json:"rule_applications"`
	Strengths            []string                `json:"strengths"`
	Weaknesses           []string                `json:"weaknesses"`
	Strategies           []string                `json:"strategies"`
	MissingEvidence      []string                `json:"missing_evidence"`
	ImpeachmentPoints    []string                `json:"impeachment_points"`
	WinProbability       float64                 `json:"win_probability"`
	Conclusion           string                  `json:"conclusion"`
	Confidence           float64                 `json:"confidence"`
	ChosenBackend        string                  `json:"chosen_backend"`
	AllBackendComparison map[string]BackendScore `json:"all_backend_comparison"`
}

// Value implements driver.Valuer for JSONB
func (s SynthesizedResult) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB
func (s *SynthesizedResult) Scan(value interface{}) error {
	bytes, ok := jsonBytes(value)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, s)
}
