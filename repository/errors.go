package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"caselens-backend/models"
)

var (
	ErrSessionNotFound = errors.New("analysis session not found")
	// ErrStaleTransition means the stored status no longer matches the expected one:
	// the session became terminal or another writer moved it first.
	ErrStaleTransition = errors.New("stale session transition")
	ErrRuleNotFound    = errors.New("rule not found")
)

// jsonParam encodes an optional JSON column value; nil leaves the column untouched
func jsonParam(value interface{}, present bool) (*string, error) {
	if !present {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	s := string(data)
	return &s, nil
}

// updateParams holds the encoded optional columns of a SessionUpdate
type updateParams struct {
	preorganized *string
	rules        *string
	synthesized  *string
}

func encodeUpdate(update models.SessionUpdate) (updateParams, error) {
	var p updateParams
	var err error
	if p.preorganized, err = jsonParam(update.Preorganized, update.Preorganized != nil); err != nil {
		return p, err
	}
	if p.rules, err = jsonParam(update.SelectedRules, update.SelectedRules != nil); err != nil {
		return p, err
	}
	if p.synthesized, err = jsonParam(update.SynthesizedResult, update.SynthesizedResult != nil); err != nil {
		return p, err
	}
	return p, nil
}

// decodeSessionJSON fills the JSON columns of a scanned session
func decodeSessionJSON(session *models.AnalysisSession, preorganized, rules, synthesized []byte) error {
	if len(preorganized) > 0 {
		session.Preorganized = &models.PreorganizedResult{}
		if err := json.Unmarshal(preorganized, session.Preorganized); err != nil {
			return fmt.Errorf("decode preorganized result: %w", err)
		}
	}
	session.SelectedRules = models.WeightedRules{}
	if len(rules) > 0 {
		if err := json.Unmarshal(rules, &session.SelectedRules); err != nil {
			return fmt.Errorf("decode selected rules: %w", err)
		}
	}
	if len(synthesized) > 0 {
		session.SynthesizedResult = &models.SynthesizedResult{}
		if err := json.Unmarshal(synthesized, session.SynthesizedResult); err != nil {
			return fmt.Errorf("decode synthesized result: %w", err)
		}
	}
	return nil
}
