package models

import (
	"database/sql/driver"
	"encoding/json"
)

// Relationship types inferred between documents
const (
	RelationEnforces = "enforces"
	RelationRulingOn = "ruling_on"
	RelationSupports = "supports"
	RelationRefutes  = "refutes"
)

// PartyProfile describes one party across the whole case
type PartyProfile struct {
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	Obligations  StringList `json:"obligations"`
	Rights       StringList `json:"rights"`
	RiskExposure string     `json:"risk_exposure"`
}

// TimelineEvent is a dated event drawn from one of the documents
type TimelineEvent struct {
	Date      string `json:"date"`
	Event     string `json:"event"`
	SourceDoc string `json:"source_doc"`
	Type      string `json:"type"`
}

// DocumentRelationship links two documents of the same case
type DocumentRelationship struct {
	FromDoc      string `json:"from_doc"`
	ToDoc        string `json:"to_doc"`
	RelationType string `json:"relation_type"`
	Reasoning    string `json:"reasoning"`
}

// CrossDocumentPanorama is the case-level view synthesized from every document
type CrossDocumentPanorama struct {
	Narrative             string                 `json:"narrative"`
	ProceduralStatus      string                 `json:"procedural_status"`
	CoreDispute           string                 `json:"core_dispute"`
	DisputedAmounts       StringList             `json:"disputed_amounts"`
	PartyProfiles         []PartyProfile         `json:"party_profiles"`
	Timeline              []TimelineEvent        `json:"timeline"`
	DocumentRelationships []DocumentRelationship `json:"document_relationships"`
	Degraded              bool                   `json:"degraded"`
}

// Normalize replaces nil slices with empty ones
func (p *CrossDocumentPanorama) Normalize() {
	if p.DisputedAmounts == nil {
		p.DisputedAmounts = []string{}
	}
	if p.PartyProfiles == nil {
		p.PartyProfiles = []PartyProfile{}
	}
	for i := range p.PartyProfiles {
		if p.PartyProfiles[i].Obligations == nil {
			p.PartyProfiles[i].Obligations = []string{}
		}
		if p.PartyProfiles[i].Rights == nil {
			p.PartyProfiles[i].Rights = []string{}
		}
	}
	if p.Timeline == nil {
		p.Timeline = []TimelineEvent{}
	}
	if p.DocumentRelationships == nil {
		p.DocumentRelationships = []DocumentRelationship{}
	}
}

// PreorganizedResult is the output of stage one: per-document analyses plus the panorama
type PreorganizedResult struct {
	CaseType        string                `json:"case_type"`
	ProcessPosition string                `json:"process_position,omitempty"`
	Documents       []DocumentAnalysis    `json:"documents"`
	Panorama        CrossDocumentPanorama `json:"panorama"`
}

// Value implements driver.Valuer for JSONB
func (p PreorganizedResult) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner for JSONB
func (p *PreorganizedResult) Scan(value interface{}) error {
	bytes, ok := jsonBytes(value)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, p)
}

// jsonBytes handles the different types drivers return for JSON columns
func jsonBytes(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, len(v) > 0
	case string:
		return []byte(v), v != ""
	default:
		return nil, false
	}
}
