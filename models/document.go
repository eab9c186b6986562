package models

// DocumentType represents the closed set of case document kinds
type DocumentType string

const (
	DocTypeComplaint   DocumentType = "complaint"
	DocTypeApplication DocumentType = "arbitration_application"
	DocTypeDefense     DocumentType = "defense"
	DocTypeJudgment    DocumentType = "judgment"
	DocTypeAward       DocumentType = "arbitration_award"
	DocTypeEvidence    DocumentType = "evidence"
	DocTypeContract    DocumentType = "contract"
	DocTypeExecution   DocumentType = "execution_application"
	DocTypeAppeal      DocumentType = "appeal"
	DocTypeOther       DocumentType = "other"
)

// Label returns a human-readable name for the document type
func (t DocumentType) Label() string {
	labels := map[DocumentType]string{
		DocTypeComplaint:   "Complaint",
		DocTypeApplication: "Arbitration Application",
		DocTypeDefense:     "Statement of Defense",
		DocTypeJudgment:    "Judgment",
		DocTypeAward:       "Arbitration Award",
		DocTypeEvidence:    "Evidence",
		DocTypeContract:    "Contract",
		DocTypeExecution:   "Execution Application",
		DocTypeAppeal:      "Appeal",
	}
	if label, ok := labels[t]; ok {
		return label
	}
	return "Other Document"
}

// IsFiling reports whether the document opens proceedings (complaint or arbitration application)
func (t DocumentType) IsFiling() bool {
	return t == DocTypeComplaint || t == DocTypeApplication
}

// IsRuling reports whether the document is a decision of a court or tribunal
func (t DocumentType) IsRuling() bool {
	return t == DocTypeJudgment || t == DocTypeAward
}

// RawDocument is a document already converted to text by the ingestion service
type RawDocument struct {
	DocumentID string `json:"document_id" binding:"required"`
	Text       string `json:"text"`
	Filename   string `json:"filename"`
}

// Party represents a party named in a document
type Party struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// DocumentAnalysis is the structured extraction of a single document.
// Degraded analyses keep every slice empty (never nil) and preserve RawPreview.
type DocumentAnalysis struct {
	DocumentID     string       `json:"document_id"`
	Filename       string       `json:"filename"`
	DocumentType   DocumentType `json:"document_type"`
	Summary        string       `json:"summary"`
	ExtractedTitle string       `json:"extracted_title"`
	KeyDates       []string     `json:"key_dates"`
	KeyFacts       []string     `json:"key_facts"`
	KeyAmounts     []string     `json:"key_amounts"`
	Parties        []Party      `json:"parties"`
	RiskSignals    []string     `json:"risk_signals"`
	RawPreview     string       `json:"raw_preview"`
	Degraded       bool         `json:"degraded"`
	Error          string       `json:"error,omitempty"`
}

// NewDegradedAnalysis builds the empty analysis used when extraction fails
func NewDegradedAnalysis(doc RawDocument, docType DocumentType, preview string, cause error) DocumentAnalysis {
	analysis := DocumentAnalysis{
		DocumentID:   doc.DocumentID,
		Filename:     doc.Filename,
		DocumentType: docType,
		KeyDates:     []string{},
		KeyFacts:     []string{},
		KeyAmounts:   []string{},
		Parties:      []Party{},
		RiskSignals:  []string{},
		RawPreview:   preview,
		Degraded:     true,
	}
	if cause != nil {
		analysis.Error = cause.Error()
	}
	return analysis
}

// Normalize replaces nil slices with empty ones
func (a *DocumentAnalysis) Normalize() {
	if a.KeyDates == nil {
		a.KeyDates = []string{}
	}
	if a.KeyFacts == nil {
		a.KeyFacts = []string{}
	}
	if a.KeyAmounts == nil {
		a.KeyAmounts = []string{}
	}
	if a.Parties == nil {
		a.Parties = []Party{}
	}
	if a.RiskSignals == nil {
		a.RiskSignals = []string{}
	}
}
