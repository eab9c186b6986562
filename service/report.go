package service

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"caselens-backend/models"
)

// Assessment bands for the win probability
const (
	AssessmentFavorable = "favorable"
	AssessmentUncertain = "uncertain"
	AssessmentHighRisk  = "high risk"
)

const reportDisclaimer = "This report is generated automatically from the documents provided and is for reference only. " +
	"It does not constitute legal advice. Verify every fact, citation and deadline before relying on it."

// ReportInput is everything the report is rendered from
type ReportInput struct {
	SessionID       string
	CaseType        string
	Scenario        string
	ProcessPosition string
	GeneratedAt     time.Time
	Preorganized    *models.PreorganizedResult
	Rules           models.WeightedRules
	Result          models.SynthesizedResult
}

// ReportInputFromSession collects the report input from a session snapshot
func ReportInputFromSession(s *models.AnalysisSession) ReportInput {
	in := ReportInput{
		SessionID:       s.ID.String(),
		CaseType:        s.CaseType,
		Scenario:        s.ProcessStage,
		ProcessPosition: s.ProcessPosition,
		GeneratedAt:     s.UpdatedAt,
		Preorganized:    s.Preorganized,
		Rules:           s.SelectedRules,
	}
	if s.CompletedAt != nil {
		in.GeneratedAt = *s.CompletedAt
	}
	if s.SynthesizedResult != nil {
		in.Result = *s.SynthesizedResult
	}
	return in
}

// Assessment maps a win probability to its qualitative band.
// The value is banded at the precision the report prints it with.
func Assessment(winProbability float64) string {
	shown := math.Round(winProbability*1000) / 1000
	switch {
	case shown > 0.7:
		return AssessmentFavorable
	case shown < 0.4:
		return AssessmentHighRisk
	default:
		return AssessmentUncertain
	}
}

// ReportGenerator renders analysis reports. It holds no state and performs no I/O.
type ReportGenerator struct{}

// NewReportGenerator creates a report generator
func NewReportGenerator() *ReportGenerator {
	return &ReportGenerator{}
}

// Generate renders the markdown report and its machine-readable summary.
// The same input always yields byte-identical output.
func (g *ReportGenerator) Generate(in ReportInput) (string, models.ReportSummary) {
	var panorama models.CrossDocumentPanorama
	var documents []models.DocumentAnalysis
	if in.Preorganized != nil {
		panorama = in.Preorganized.Panorama
		documents = in.Preorganized.Documents
	}
	result := in.Result
	assessment := Assessment(result.WinProbability)
	comparison := comparisonRows(result.AllBackendComparison)
	evidenceTitle, evidenceActions := evidenceActions(in.Scenario, result, documents, panorama)

	var b strings.Builder

	// Header
	b.WriteString("# Case Analysis Report\n\n")
	fmt.Fprintf(&b, "- **Session:** %s\n", in.SessionID)
	fmt.Fprintf(&b, "- **Case type:** %s\n", orDash(in.CaseType))
	fmt.Fprintf(&b, "- **Scenario:** %s\n", orDash(in.Scenario))
	if in.ProcessPosition != "" {
		fmt.Fprintf(&b, "- **Position:** %s\n", in.ProcessPosition)
	}
	fmt.Fprintf(&b, "- **Generated:** %s\n", formatTime(in.GeneratedAt))
	fmt.Fprintf(&b, "- **Documents analyzed:** %d\n", len(documents))
	fmt.Fprintf(&b, "- **Chosen backend:** %s (confidence %s)\n", orDash(result.ChosenBackend), percent(result.Confidence))
	if len(comparison) > 1 {
		b.WriteString("\n| Backend | Win probability | Confidence |\n|---|---|---|\n")
		for _, row := range comparison {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", row.Backend, percent(row.WinProbability), percent(row.Confidence))
		}
	}

	// Executive summary
	b.WriteString("\n## 1. Executive Summary\n\n")
	fmt.Fprintf(&b, "**Win probability:** %s (%s)\n\n", percent(result.WinProbability), assessment)
	writeParagraph(&b, result.Summary)
	if result.Conclusion != "" {
		fmt.Fprintf(&b, "**Conclusion:** %s\n\n", result.Conclusion)
	}

	// Facts and timeline
	b.WriteString("## 2. Facts and Timeline\n\n")
	if panorama.CoreDispute != "" {
		fmt.Fprintf(&b, "**Core dispute:** %s\n\n", panorama.CoreDispute)
	}
	if panorama.ProceduralStatus != "" {
		fmt.Fprintf(&b, "**Procedural status:** %s\n\n", panorama.ProceduralStatus)
	}
	writeParagraph(&b, panorama.Narrative)
	writeSection(&b, "### Established Facts", result.Facts)
	writeSection(&b, "### Disputed Amounts", panorama.DisputedAmounts)
	if len(panorama.Timeline) > 0 {
		b.WriteString("### Timeline\n\n| Date | Event | Source |\n|---|---|---|\n")
		for _, ev := range panorama.Timeline {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", ev.Date, tableCell(ev.Event), ev.SourceDoc)
		}
		b.WriteString("\n")
	}
	if len(panorama.DocumentRelationships) > 0 {
		b.WriteString("### Document Relationships\n\n")
		for _, rel := range panorama.DocumentRelationships {
			fmt.Fprintf(&b, "- %s → %s (%s): %s\n", rel.FromDoc, rel.ToDoc, rel.RelationType, rel.Reasoning)
		}
		b.WriteString("\n")
	}

	// Legal analysis
	b.WriteString("## 3. Legal Analysis\n\n")
	writeSection(&b, "### Legal Arguments", result.LegalArguments)
	writeSection(&b, "### Rule Applications", result.RuleApplications)
	if len(in.Rules) > 0 {
		b.WriteString("### Rules Considered\n\n")
		for i, rule := range in.Rules {
			fmt.Fprintf(&b, "%d. %s (weight %.1f)\n", i+1, rule.Rule.Name, rule.AdjustedWeight)
		}
		b.WriteString("\n")
	}
	writeSection(&b, "### Strengths", result.Strengths)
	writeSection(&b, "### Weaknesses", result.Weaknesses)

	// Evidence review
	b.WriteString("## 4. Evidence Review\n\n")
	if len(documents) > 0 {
		b.WriteString("### Documents\n\n")
		for _, doc := range documents {
			status := ""
			if doc.Degraded {
				status = " (extraction failed, raw text only)"
			}
			fmt.Fprintf(&b, "- %s: %s%s\n", doc.DocumentType.Label(), orDash(doc.Filename), status)
		}
		b.WriteString("\n")
	}
	if evidenceTitle != "" {
		fmt.Fprintf(&b, "### %s\n\n", evidenceTitle)
		for _, item := range evidenceActions {
			if in.Scenario == models.ScenarioPreLitigation {
				fmt.Fprintf(&b, "- [ ] %s\n", item)
			} else {
				fmt.Fprintf(&b, "- %s\n", item)
			}
		}
		b.WriteString("\n")
	}

	// Strategy
	b.WriteString("## 5. Strategy Recommendations\n\n")
	if len(result.Strategies) == 0 {
		b.WriteString("No specific strategy was recommended.\n\n")
	}
	for i, s := range result.Strategies {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	if len(result.Strategies) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("## Disclaimer\n\n")
	b.WriteString(reportDisclaimer)
	b.WriteString("\n")

	summary := models.ReportSummary{
		SessionID:         in.SessionID,
		CaseType:          in.CaseType,
		Scenario:          in.Scenario,
		ProcessPosition:   in.ProcessPosition,
		GeneratedAt:       formatTime(in.GeneratedAt),
		WinProbability:    result.WinProbability,
		Assessment:        assessment,
		Confidence:        result.Confidence,
		ChosenBackend:     result.ChosenBackend,
		Summary:           result.Summary,
		CoreDispute:       panorama.CoreDispute,
		DocumentCount:     len(documents),
		DegradedDocuments: countDegraded(documents),
		TimelineEvents:    len(panorama.Timeline),
		AppliedRules:      ruleNames(in.Rules),
		Strengths:         nonNil(result.Strengths),
		Weaknesses:        nonNil(result.Weaknesses),
		EvidenceActions:   nonNil(evidenceActions),
		Strategies:        nonNil(result.Strategies),
		BackendComparison: comparison,
	}

	return b.String(), summary
}

// SummaryJSON encodes a report summary
func SummaryJSON(summary models.ReportSummary) ([]byte, error) {
	return json.MarshalIndent(summary, "", "  ")
}

// evidenceActions returns the scenario-specific evidence list: a missing-evidence
// checklist before filing, an impeachment strategy in defense.
func evidenceActions(
	scenario string,
	result models.SynthesizedResult,
	documents []models.DocumentAnalysis,
	panorama models.CrossDocumentPanorama,
) (string, []string) {
	switch scenario {
	case models.ScenarioPreLitigation:
		if len(result.MissingEvidence) > 0 {
			return "Missing Evidence Checklist", result.MissingEvidence
		}
		return "Missing Evidence Checklist", deriveMissingEvidence(documents, panorama)
	case models.ScenarioDefense:
		if len(result.ImpeachmentPoints) > 0 {
			return "Impeachment Strategy", result.ImpeachmentPoints
		}
		return "Impeachment Strategy", deriveImpeachment(documents)
	default:
		return "", nil
	}
}

func deriveMissingEvidence(documents []models.DocumentAnalysis, panorama models.CrossDocumentPanorama) []string {
	present := make(map[models.DocumentType]bool)
	for _, doc := range documents {
		present[doc.DocumentType] = true
	}

	var items []string
	if !present[models.DocTypeContract] {
		items = append(items, "Signed contract or other written agreement establishing the obligations")
	}
	if !present[models.DocTypeEvidence] {
		items = append(items, "Documentary proof of performance and payment (receipts, bank transfers, delivery notes)")
	}
	if len(panorama.DisputedAmounts) > 0 {
		items = append(items, "Calculation basis for each disputed amount")
	}
	items = append(items, "Written demands or notices sent to the counterparty, to establish the limitation period")
	return items
}

func deriveImpeachment(documents []models.DocumentAnalysis) []string {
	var items []string
	for _, doc := range documents {
		if doc.DocumentType != models.DocTypeEvidence {
			continue
		}
		target := doc.Summary
		if target == "" {
			target = orDash(doc.Filename)
		}
		items = append(items, fmt.Sprintf("Challenge the authenticity, legality and relevance of %s: %s", doc.DocumentID, target))
	}
	if len(items) == 0 {
		items = append(items, "Request the originals of the opposing evidence and reserve objections to authenticity")
	}
	return items
}

// comparisonRows lists the backend comparison in backend name order
func comparisonRows(comparison map[string]models.BackendScore) []models.BackendComparisonRow {
	names := make([]string, 0, len(comparison))
	for name := range comparison {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]models.BackendComparisonRow, 0, len(names))
	for _, name := range names {
		score := comparison[name]
		rows = append(rows, models.BackendComparisonRow{
			Backend:        name,
			WinProbability: score.WinProbability,
			Confidence:     score.Confidence,
		})
	}
	return rows
}

func writeSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(title)
	b.WriteString("\n\n")
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func writeParagraph(b *strings.Builder, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	b.WriteString(text)
	b.WriteString("\n\n")
}

func ruleNames(rules models.WeightedRules) []string {
	names := make([]string, 0, len(rules))
	for _, rule := range rules {
		names = append(names, rule.Rule.Name)
	}
	return names
}

func countDegraded(documents []models.DocumentAnalysis) int {
	n := 0
	for _, doc := range documents {
		if doc.Degraded {
			n++
		}
	}
	return n
}

// percent keeps one decimal unless it is zero, so a value just past a band edge never
// prints as the edge itself.
func percent(v float64) string {
	text := strconv.FormatFloat(v*100, 'f', 1, 64)
	return strings.TrimSuffix(text, ".0") + "%"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

func tableCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", "/"), "\n", " ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
