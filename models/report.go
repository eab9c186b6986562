package models

// ReportSummary is the machine-readable companion of the markdown report
type ReportSummary struct {
	SessionID         string                 `json:"session_id"`
	CaseType          string                 `json:"case_type"`
	Scenario          string                 `json:"scenario"`
	ProcessPosition   string                 `json:"process_position,omitempty"`
	GeneratedAt       string                 `json:"generated_at"`
	WinProbability    float64                `json:"win_probability"`
	Assessment        string                 `json:"assessment"`
	Confidence        float64                `json:"confidence"`
	ChosenBackend     string                 `json:"chosen_backend"`
	Summary           string                 `json:"summary"`
	CoreDispute       string                 `json:"core_dispute"`
	DocumentCount     int                    `json:"document_count"`
	DegradedDocuments int                    `json:"degraded_documents"`
	TimelineEvents    int                    `json:"timeline_events"`
	AppliedRules      []string               `json:"applied_rules"`
	Strengths         []string               `json:"strengths"`
	Weaknesses        []string               `json:"weaknesses"`
	EvidenceActions   []string               `json:"evidence_actions"`
	Strategies        []string               `json:"strategies"`
	BackendComparison []BackendComparisonRow `json:"backend_comparison"`
}

// BackendComparisonRow is a backend comparison entry in stable order
type BackendComparisonRow struct {
	Backend        string  `json:"backend"`
	WinProbability float64 `json:"win_probability"`
	Confidence     float64 `json:"confidence"`
}
