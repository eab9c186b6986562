package service

import (
	"caselens-backend/models"
)

const defaultPrimaryConfidence = 0.8

// Synthesizer selects the authoritative result among backend responses
type Synthesizer struct {
	primary   string
	threshold float64
}

// NewSynthesizer creates a synthesizer. The primary backend is preferred when its
// confidence reaches the threshold.
func NewSynthesizer(primary string, threshold float64) *Synthesizer {
	if threshold <= 0 {
		threshold = defaultPrimaryConfidence
	}
	return &Synthesizer{primary: primary, threshold: threshold}
}

// Synthesize picks one response:
//  1. responses without parsed data are discarded
//  2. degraded responses are only ranked when nothing else parsed
//  3. the primary backend wins when its confidence is at or above the threshold
//  4. otherwise the highest confidence wins, the first in input order on ties
//
// Every valid response is listed in the comparison.
func (s *Synthesizer) Synthesize(responses []models.ModelResponse) (*models.SynthesizedResult, error) {
	var valid []models.ModelResponse
	for _, resp := range responses {
		if resp.Valid() {
			valid = append(valid, resp)
		}
	}
	if len(valid) == 0 {
		return nil, ErrAllBackendsFailed
	}

	candidates := valid
	var parsed []models.ModelResponse
	for _, resp := range valid {
		if !resp.Degraded {
			parsed = append(parsed, resp)
		}
	}
	if len(parsed) > 0 {
		candidates = parsed
	}

	chosen := -1
	if s.primary != "" {
		for i, resp := range candidates {
			if resp.BackendName == s.primary && resp.Result.Confidence.Float() >= s.threshold {
				chosen = i
				break
			}
		}
	}
	if chosen < 0 {
		chosen = 0
		for i, resp := range candidates {
			if resp.Result.Confidence.Float() > candidates[chosen].Result.Confidence.Float() {
				chosen = i
			}
		}
	}

	comparison := make(map[string]models.BackendScore, len(valid))
	for _, resp := range valid {
		comparison[resp.BackendName] = models.BackendScore{
			WinProbability: resp.Result.WinProbability.Float(),
			Confidence:     resp.Result.Confidence.Float(),
		}
	}

	pick := candidates[chosen]
	r := pick.Result
	return &models.SynthesizedResult{
		Summary:              r.Summary,
		Facts:                nonNil(r.Facts),
		LegalArguments:       nonNil(r.LegalArguments),
		RuleApplications:     nonNil(r.RuleApplications),
		Strengths:            nonNil(r.Strengths),
		Weaknesses:           nonNil(r.Weaknesses),
		Strategies:           nonNil(r.Strategies),
		MissingEvidence:      nonNil(r.MissingEvidence),
		ImpeachmentPoints:    nonNil(r.ImpeachmentPoints),
		WinProbability:       r.WinProbability.Float(),
		Conclusion:           r.Conclusion,
		Confidence:           r.Confidence.Float(),
		ChosenBackend:        pick.BackendName,
		AllBackendComparison: comparison,
	}, nil
}

func nonNil(items []string) []string {
	if len(items) == 0 {
		return []string{}
	}
	return append([]string(nil), items...)
}
