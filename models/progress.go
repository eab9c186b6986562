package models

import (
	"time"

	"github.com/google/uuid"
)

// Progress event types pushed to stream consumers
const (
	EventProgress = "progress"
	EventPong     = "pong"
	EventError    = "error"
)

// Pipeline stage names reported in progress events
const (
	StageCreated   = "created"
	StageParsing   = "parsing"
	StageRules     = "rule_assembly"
	StageModels    = "model_analysis"
	StageSynthesis = "synthesis"
	StageCompleted = "completed"
	StageFailed    = "failed"
	StageAnalyzing = "analyzing"
)

// ProgressEvent is one update on a session's progress stream
type ProgressEvent struct {
	Type      string        `json:"type"`
	SessionID uuid.UUID     `json:"session_id"`
	Status    SessionStatus `json:"status"`
	Stage     string        `json:"stage"`
	Progress  float64       `json:"progress"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}
