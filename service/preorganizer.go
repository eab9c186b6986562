package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"caselens-backend/llm"
	"caselens-backend/models"
)

const (
	rawPreviewRunes           = 500
	defaultPreorganizeWorkers = 5
	defaultExtractionTimeout  = 60 * time.Second
)

var errNoExtractionBackend = errors.New("no extraction backend configured")

// Preorganizer turns raw document texts into per-document analyses and a case panorama
type Preorganizer struct {
	backend     llm.Backend
	concurrency int
	timeout     time.Duration
	logger      *log.Logger
}

// PreorganizerOption configures a Preorganizer
type PreorganizerOption func(*Preorganizer)

// PreorganizeWithConcurrency bounds the number of extraction calls in flight
func PreorganizeWithConcurrency(n int) PreorganizerOption {
	return func(p *Preorganizer) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// PreorganizeWithTimeout sets the timeout of each extraction and panorama call
func PreorganizeWithTimeout(d time.Duration) PreorganizerOption {
	return func(p *Preorganizer) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// PreorganizeWithLogger sets the logger
func PreorganizeWithLogger(logger *log.Logger) PreorganizerOption {
	return func(p *Preorganizer) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPreorganizer creates a preorganizer. A nil backend is allowed: every document
// then degrades and the panorama explains why.
func NewPreorganizer(backend llm.Backend, opts ...PreorganizerOption) *Preorganizer {
	p := &Preorganizer{
		backend:     backend,
		concurrency: defaultPreorganizeWorkers,
		timeout:     defaultExtractionTimeout,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Preorganize analyzes every document and builds the cross-document panorama.
// It returns exactly one analysis per input document, in input order.
// Only an empty document set is an error.
func (p *Preorganizer) Preorganize(
	ctx context.Context,
	docs []models.RawDocument,
	caseType string,
	processPosition string,
) (*models.PreorganizedResult, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}

	analyses := make([]models.DocumentAnalysis, len(docs))

	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			analyses[i] = p.analyzeDocument(ctx, doc)
			return nil
		})
	}
	// Per-document failures degrade in place and never fail the group.
	_ = g.Wait()

	panorama := p.buildPanorama(ctx, caseType, processPosition, analyses)

	return &models.PreorganizedResult{
		CaseType:        caseType,
		ProcessPosition: processPosition,
		Documents:       analyses,
		Panorama:        panorama,
	}, nil
}

// extractedDocument is the JSON shape requested from the extraction call
type extractedDocument struct {
	Summary        string            `json:"summary"`
	ExtractedTitle string            `json:"extracted_title"`
	KeyDates       models.StringList `json:"key_dates"`
	KeyFacts       models.StringList `json:"key_facts"`
	KeyAmounts     models.StringList `json:"key_amounts"`
	Parties        []models.Party    `json:"parties"`
	RiskSignals    models.StringList `json:"risk_signals"`
}

func (p *Preorganizer) analyzeDocument(ctx context.Context, doc models.RawDocument) models.DocumentAnalysis {
	docType := ClassifyDocument(doc.Filename, doc.Text)
	preview := firstRunes(strings.TrimSpace(doc.Text), rawPreviewRunes)

	degrade := func(cause error) models.DocumentAnalysis {
		p.logger.Printf("Warning: extraction degraded for document %s: %v", doc.DocumentID, cause)
		return models.NewDegradedAnalysis(doc, docType, preview, cause)
	}

	if strings.TrimSpace(doc.Text) == "" {
		return degrade(errors.New("document has no text"))
	}
	if p.backend == nil {
		return degrade(errNoExtractionBackend)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.backend.Invoke(callCtx, extractionPrompt(doc, docType))
	if err != nil {
		return degrade(fmt.Errorf("extraction call: %w", err))
	}

	var extracted extractedDocument
	if _, err := llm.ExtractJSON(raw, &extracted); err != nil {
		return degrade(fmt.Errorf("extraction response: %w", err))
	}

	analysis := models.DocumentAnalysis{
		DocumentID:     doc.DocumentID,
		Filename:       doc.Filename,
		DocumentType:   docType,
		Summary:        extracted.Summary,
		ExtractedTitle: extracted.ExtractedTitle,
		KeyDates:       extracted.KeyDates,
		KeyFacts:       extracted.KeyFacts,
		KeyAmounts:     extracted.KeyAmounts,
		Parties:        extracted.Parties,
		RiskSignals:    extracted.RiskSignals,
		RawPreview:     preview,
	}
	analysis.Normalize()
	return analysis
}

func (p *Preorganizer) buildPanorama(
	ctx context.Context,
	caseType string,
	processPosition string,
	analyses []models.DocumentAnalysis,
) models.CrossDocumentPanorama {
	relationships := InferRelationships(analyses)

	panorama, err := p.requestPanorama(ctx, caseType, processPosition, analyses)
	if err != nil {
		p.logger.Printf("Warning: panorama generation failed: %v", err)
		panorama = DegradedPanorama(err, len(analyses))
	} else if len(panorama.Timeline) == 0 {
		panorama.Timeline = TimelineFromKeyDates(analyses)
	}

	panorama.DocumentRelationships = relationships
	panorama.Normalize()
	return panorama
}

func (p *Preorganizer) requestPanorama(
	ctx context.Context,
	caseType string,
	processPosition string,
	analyses []models.DocumentAnalysis,
) (models.CrossDocumentPanorama, error) {
	var panorama models.CrossDocumentPanorama
	if p.backend == nil {
		return panorama, errNoExtractionBackend
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.backend.Invoke(callCtx, panoramaPrompt(caseType, processPosition, analyses))
	if err != nil {
		return panorama, fmt.Errorf("panorama call: %w", err)
	}
	if _, err := llm.ExtractJSON(raw, &panorama); err != nil {
		return models.CrossDocumentPanorama{}, fmt.Errorf("panorama response could not be parsed: %w", err)
	}
	panorama.Degraded = false
	return panorama, nil
}

// DegradedPanorama is the empty panorama returned when the panorama call fails
func DegradedPanorama(cause error, documentCount int) models.CrossDocumentPanorama {
	panorama := models.CrossDocumentPanorama{
		Narrative: fmt.Sprintf(
			"The cross-document panorama could not be generated (%v). Review the %d document analyses individually.",
			cause, documentCount,
		),
		Degraded: true,
	}
	panorama.Normalize()
	return panorama
}

// TimelineFromKeyDates builds a chronological timeline from per-document key dates
// of the form "date: event".
func TimelineFromKeyDates(analyses []models.DocumentAnalysis) []models.TimelineEvent {
	timeline := []models.TimelineEvent{}
	for _, a := range analyses {
		for _, entry := range a.KeyDates {
			date, event := splitKeyDate(entry)
			if date == "" {
				continue
			}
			if event == "" {
				event = "Mentioned in " + a.DocumentType.Label()
			}
			timeline = append(timeline, models.TimelineEvent{
				Date:      date,
				Event:     event,
				SourceDoc: a.DocumentID,
				Type:      string(a.DocumentType),
			})
		}
	}
	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Date < timeline[j].Date
	})
	return timeline
}

func splitKeyDate(entry string) (string, string) {
	entry = strings.TrimSpace(entry)
	for _, sep := range []string{": ", "：", " - "} {
		if idx := strings.Index(entry, sep); idx > 0 {
			return strings.TrimSpace(entry[:idx]), strings.TrimSpace(entry[idx+len(sep):])
		}
	}
	return entry, ""
}
