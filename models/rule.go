package models

import (
	"database/sql/driver"
	"encoding/json"
)

// RuleCategory represents the analytical role of a rule
type RuleCategory string

const (
	CategoryClaim     RuleCategory = "claim"
	CategoryDefense   RuleCategory = "defense"
	CategoryEvidence  RuleCategory = "evidence"
	CategoryProcedure RuleCategory = "procedure"
	CategoryStrategy  RuleCategory = "strategy"
	CategoryRisk      RuleCategory = "risk"
)

// GeneralCaseType is the wildcard case-type keyword matching every case
const GeneralCaseType = "general"

// RuleDefinition represents one entry of the rule corpus.
// Corpus entries are never mutated; weighting works on copies.
type RuleDefinition struct {
	ID               string       `json:"id" yaml:"id"`
	PackageID        string       `json:"package_id" yaml:"package_id"`
	CaseTypeKeywords []string     `json:"case_type_keywords" yaml:"case_type_keywords"`
	ScenarioScope    []string     `json:"scenario_scope" yaml:"scenario_scope"`
	Category         RuleCategory `json:"category" yaml:"category"`
	Name             string       `json:"name" yaml:"name"`
	LegalSource      string       `json:"legal_source" yaml:"legal_source"`
	PromptTemplate   string       `json:"prompt_template" yaml:"prompt_template"`
	CheckPoints      []string     `json:"check_points" yaml:"check_points"`
	BaseWeight       float64      `json:"base_weight" yaml:"base_weight"`
}

// Clone returns a deep copy of the rule
func (r RuleDefinition) Clone() RuleDefinition {
	clone := r
	clone.CaseTypeKeywords = append([]string(nil), r.CaseTypeKeywords...)
	clone.ScenarioScope = append([]string(nil), r.ScenarioScope...)
	clone.CheckPoints = append([]string(nil), r.CheckPoints...)
	return clone
}

// WeightedRule is a selected rule with its context-adjusted weight and rendered instruction
type WeightedRule struct {
	Rule           RuleDefinition `json:"rule"`
	AdjustedWeight float64        `json:"adjusted_weight"`
	Bonuses        []string       `json:"bonuses,omitempty"`
	Instruction    string         `json:"instruction"`
}

// WeightedRules represents the rule selection persisted on a session
type WeightedRules []WeightedRule

// Instructions returns the rendered instructions in rank order
func (w WeightedRules) Instructions() []string {
	out := make([]string, 0, len(w))
	for _, rule := range w {
		out = append(out, rule.Instruction)
	}
	return out
}

// Value implements driver.Valuer for JSONB
func (w WeightedRules) Value() (driver.Value, error) {
	if w == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(w)
}

// Scan implements sql.Scanner for JSONB
func (w *WeightedRules) Scan(value interface{}) error {
	bytes, ok := jsonBytes(value)
	if !ok {
		*w = make(WeightedRules, 0)
		return nil
	}
	return json.Unmarshal(bytes, w)
}
