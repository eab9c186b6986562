package service

import (
	"fmt"
	"strings"

	"caselens-backend/llm"
	"caselens-backend/models"
)

const (
	// maxDocumentRunes bounds the text sent per extraction call
	maxDocumentRunes = 12000
	maxPromptRunes   = 30000
)

const extractionSystemPrompt = "You are a litigation paralegal. Extract facts exactly as written in the document. Never invent parties, dates or amounts. Respond with a single JSON object and nothing else."

const analysisSystemPrompt = "You are a senior litigation counsel. Analyze the case strictly on the material provided, apply every listed rule, and respond with a single JSON object and nothing else."

// typeInstructions holds the extra extraction guidance per document type
var typeInstructions = map[models.DocumentType]string{
	models.DocTypeComplaint:   "Focus on the claimant's requests, the factual basis of each claim and the amounts claimed.",
	models.DocTypeApplication: "Focus on the arbitration requests, the arbitration clause relied on and the amounts claimed.",
	models.DocTypeDefense:     "Focus on each defense raised, which claim it answers and any facts the respondent disputes.",
	models.DocTypeJudgment:    "Focus on the court's findings of fact, the legal basis cited, the holding and any amounts awarded.",
	models.DocTypeAward:       "Focus on the tribunal's findings, the award items, amounts awarded and the performance deadline.",
	models.DocTypeEvidence:    "Focus on what the evidence proves, who produced it, its date and any authenticity concerns.",
	models.DocTypeContract:    "Focus on the contracting parties, performance obligations, payment terms, guarantees and breach clauses.",
	models.DocTypeExecution:   "Focus on the enforcement basis, the amount outstanding and the assets or measures requested.",
	models.DocTypeAppeal:      "Focus on the grounds of appeal, the errors alleged in the first-instance decision and the relief sought.",
}

func extractionPrompt(doc models.RawDocument, docType models.DocumentType) llm.Prompt {
	instruction, ok := typeInstructions[docType]
	if !ok {
		instruction = "Identify what kind of document this is and extract whatever case facts it contains."
	}

	user := fmt.Sprintf(`DOCUMENT TYPE: %s
FILENAME: %s

INSTRUCTIONS:
%s

DOCUMENT TEXT:
%s

OUTPUT FORMAT (JSON):
{
  "summary": "3-5 sentence summary",
  "extracted_title": "title of the document",
  "key_dates": ["YYYY-MM-DD: what happened"],
  "key_facts": ["fact"],
  "key_amounts": ["amount and what it is for"],
  "parties": [{"name": "party name", "role": "plaintiff|defendant|applicant|respondent|guarantor|third party"}],
  "risk_signals": ["anything that weakens the case or creates exposure"]
}`,
		docType.Label(),
		doc.Filename,
		instruction,
		truncateRunes(doc.Text, maxDocumentRunes),
	)

	return llm.Prompt{System: extractionSystemPrompt, User: user}
}

func panoramaPrompt(caseType, processPosition string, analyses []models.DocumentAnalysis) llm.Prompt {
	var docs strings.Builder
	for i, a := range analyses {
		fmt.Fprintf(&docs, "[%d] %s (id: %s, file: %s)\n", i+1, a.DocumentType.Label(), a.DocumentID, a.Filename)
		if a.Degraded {
			fmt.Fprintf(&docs, "Extraction failed. Raw preview: %s\n", a.RawPreview)
		} else {
			fmt.Fprintf(&docs, "Summary: %s\n", a.Summary)
			writeList(&docs, "Key dates", a.KeyDates)
			writeList(&docs, "Key facts", a.KeyFacts)
			writeList(&docs, "Key amounts", a.KeyAmounts)
		}
		docs.WriteString("\n")
	}

	position := processPosition
	if position == "" {
		position = "not specified"
	}

	user := fmt.Sprintf(`CASE TYPE: %s
OUR POSITION: %s

DOCUMENTS:
%s
TASK:
Combine the documents above into one view of the case. Identify every party and what they owe or are owed,
put the dated events into one chronological timeline, state the core dispute and the procedural status.

OUTPUT FORMAT (JSON):
{
  "narrative": "chronological narrative of the case",
  "procedural_status": "where the case currently stands",
  "core_dispute": "the central question in dispute",
  "disputed_amounts": ["amount and basis"],
  "party_profiles": [{"name": "", "role": "", "obligations": [""], "rights": [""], "risk_exposure": ""}],
  "timeline": [{"date": "YYYY-MM-DD", "event": "", "source_doc": "document id", "type": "contract|performance|dispute|procedure|ruling"}]
}`,
		caseType,
		position,
		docs.String(),
	)

	return llm.Prompt{System: extractionSystemPrompt, User: truncateRunes(user, maxPromptRunes)}
}

// AnalysisInput is the case context shared by every backend in one analysis call
type AnalysisInput struct {
	CaseType        string
	Scenario        string
	ProcessPosition string
	Preorganized    *models.PreorganizedResult
}

func analysisPrompt(input AnalysisInput, rules []string) llm.Prompt {
	var b strings.Builder

	fmt.Fprintf(&b, "CASE TYPE: %s\n", input.CaseType)
	fmt.Fprintf(&b, "SCENARIO: %s\n", input.Scenario)
	if input.ProcessPosition != "" {
		fmt.Fprintf(&b, "OUR POSITION: %s\n", input.ProcessPosition)
	}

	if input.Preorganized != nil {
		p := input.Preorganized.Panorama
		b.WriteString("\nCASE PANORAMA:\n")
		fmt.Fprintf(&b, "Narrative: %s\n", p.Narrative)
		fmt.Fprintf(&b, "Procedural status: %s\n", p.ProceduralStatus)
		fmt.Fprintf(&b, "Core dispute: %s\n", p.CoreDispute)
		writeList(&b, "Disputed amounts", p.DisputedAmounts)
		for _, party := range p.PartyProfiles {
			fmt.Fprintf(&b, "Party: %s (%s). Risk exposure: %s\n", party.Name, party.Role, party.RiskExposure)
		}
		if len(p.Timeline) > 0 {
			b.WriteString("Timeline:\n")
			for _, ev := range p.Timeline {
				fmt.Fprintf(&b, "- %s %s\n", ev.Date, ev.Event)
			}
		}

		b.WriteString("\nEVIDENCE SUMMARY:\n")
		for _, doc := range input.Preorganized.Documents {
			summary := doc.Summary
			if doc.Degraded {
				summary = "(extraction failed) " + doc.RawPreview
			}
			fmt.Fprintf(&b, "- %s [%s]: %s\n", doc.DocumentType.Label(), doc.DocumentID, summary)
		}
	}

	b.WriteString("\nRULES TO APPLY:\n")
	for i, rule := range rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rule)
	}

	b.WriteString(`
TASK:
Assess the case from our position in the given scenario. Apply every rule above and say how it applies.
For pre-litigation, list the evidence still missing. For defense, list points to impeach the opposing evidence.

OUTPUT FORMAT (JSON):
{
  "summary": "executive summary",
  "facts": ["established fact"],
  "legal_arguments": ["argument"],
  "rule_applications": ["rule name: how it applies"],
  "strengths": [""],
  "weaknesses": [""],
  "strategies": ["recommended action"],
  "missing_evidence": [""],
  "impeachment_points": [""],
  "win_probability": 0.0,
  "conclusion": "",
  "confidence": 0.0
}
win_probability and confidence are numbers between 0 and 1.`)

	return llm.Prompt{System: analysisSystemPrompt, User: truncateRunes(b.String(), maxPromptRunes)}
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", title, strings.Join(items, "; "))
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "\n\n[Content truncated due to length...]"
}
