package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the status of an analysis session
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionParsing   SessionStatus = "parsing"
	SessionAnalyzing SessionStatus = "analyzing"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// transitions lists the allowed outgoing states; terminal states have none
var transitions = map[SessionStatus][]SessionStatus{
	SessionPending:   {SessionParsing, SessionFailed},
	SessionParsing:   {SessionAnalyzing, SessionFailed},
	SessionAnalyzing: {SessionCompleted, SessionFailed},
}

// CanTransition reports whether the state machine allows moving from one status to another
func CanTransition(from, to SessionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AnalysisMode selects how many backends take part in an analysis
type AnalysisMode string

const (
	ModeSingle AnalysisMode = "single"
	ModeMulti  AnalysisMode = "multi"
)

// Scenario identifiers used by the rule corpus and the report
const (
	ScenarioPreLitigation = "pre_litigation"
	ScenarioLitigation    = "litigation"
	ScenarioDefense       = "defense"
	ScenarioAppeal        = "appeal"
	ScenarioArbitration   = "arbitration"
	ScenarioExecution     = "execution"
)

// AnalysisSession represents one stage-two analysis run
type AnalysisSession struct {
	ID                uuid.UUID           `json:"session_id"`
	Status            SessionStatus       `json:"status"`
	CaseType          string              `json:"case_type"`
	ProcessStage      string              `json:"process_stage"`
	ProcessPosition   string              `json:"process_position,omitempty"`
	RulePackageID     string              `json:"rule_package_id,omitempty"`
	Mode              AnalysisMode        `json:"mode"`
	Backend           string              `json:"backend,omitempty"`
	CurrentStage      string              `json:"current_stage,omitempty"`
	Progress          float64             `json:"progress"`
	Preorganized      *PreorganizedResult `json:"preorganized,omitempty"`
	SelectedRules     WeightedRules       `json:"selected_rules"`
	SynthesizedResult *SynthesizedResult  `json:"synthesized_result,omitempty"`
	ReportRef         *string             `json:"report_ref,omitempty"`
	ErrorMessage      *string             `json:"error_message,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	CompletedAt       *time.Time          `json:"completed_at,omitempty"`
}

// Panorama returns the session panorama, nil before parsing completes
func (s *AnalysisSession) Panorama() *CrossDocumentPanorama {
	if s.Preorganized == nil {
		return nil
	}
	return &s.Preorganized.Panorama
}

// SessionUpdate carries the fields written together with a status change.
// Nil pointers and a nil rule slice leave the stored value untouched.
type SessionUpdate struct {
	Stage             string
	Progress          float64
	Preorganized      *PreorganizedResult
	SelectedRules     WeightedRules
	SynthesizedResult *SynthesizedResult
	ReportRef         *string
	CompletedAt       *time.Time
}
