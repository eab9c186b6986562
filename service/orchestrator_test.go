package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"caselens-backend/corpus"
	"caselens-backend/llm"
	"caselens-backend/models"
	"caselens-backend/repository"
)

const extractionReply = `{"summary":"doc","key_dates":["2019-02-01: contract signed","2023-06-01: demand sent"]}`
const panoramaReply = `{"narrative":"Seller delivered; buyer has not paid since 2019.","core_dispute":"unpaid price"}`

type orchestratorFixture struct {
	orchestrator *Orchestrator
	sessions     *memSessionStore
	reports      *memReportStore
	events       *recordingPublisher
}

func newFixture(t *testing.T, backends []llm.Backend, extra ...OrchestratorOption) *orchestratorFixture {
	t.Helper()
	c, err := corpus.Default()
	if err != nil {
		t.Fatalf("load corpus: %v", err)
	}

	f := &orchestratorFixture{
		sessions: newMemSessionStore(),
		reports:  newMemReportStore(),
		events:   &recordingPublisher{},
	}

	var set BackendSet
	var extractor llm.Backend
	if len(backends) > 0 {
		set = mustRegistry("", backends...)
		extractor = backends[0]
	}

	opts := []OrchestratorOption{
		OrchestratorWithSessionStore(f.sessions),
		OrchestratorWithReportStore(f.reports),
		OrchestratorWithProgress(f.events),
		OrchestratorWithPreorganizer(NewPreorganizer(extractor, PreorganizeWithLogger(discardLogger))),
		OrchestratorWithRuleAssembler(NewRuleAssembler(StaticRuleSource{Corpus: c}, DefaultRuleWeights(), discardLogger)),
		OrchestratorWithAnalyzer(NewScenarioAnalyzer(set, time.Second, discardLogger)),
		OrchestratorWithLogger(discardLogger),
	}
	f.orchestrator = NewOrchestrator(append(opts, extra...)...)
	t.Cleanup(f.orchestrator.Wait)
	return f
}

// pipelineBackend answers extraction, panorama and analysis prompts
func pipelineBackend(name, analysis string) *funcBackend {
	return &funcBackend{name: name, fn: func(ctx context.Context, p llm.Prompt) (string, error) {
		switch {
		case isAnalysisPrompt(p):
			return analysis, nil
		case isPanoramaPrompt(p):
			return panoramaReply, nil
		default:
			return extractionReply, nil
		}
	}}
}

func sampleRequest() AnalyzeRequest {
	return AnalyzeRequest{
		Documents: []models.RawDocument{
			{DocumentID: "c", Filename: "complaint.txt", Text: "Complaint for the unpaid price"},
			{DocumentID: "e", Filename: "evidence.txt", Text: "Delivery notes"},
			{DocumentID: "j", Filename: "judgment.txt", Text: "Judgment"},
		},
		CaseType: "contract_dispute",
		Scenario: models.ScenarioPreLitigation,
		Mode:     models.ModeMulti,
	}
}

func TestOrchestratorCompletesSession(t *testing.T) {
	f := newFixture(t, []llm.Backend{pipelineBackend("gemini", analysisReply(0.85))})
	ctx := context.Background()

	session, err := f.orchestrator.StartAnalysis(ctx, sampleRequest())
	if err != nil {
		t.Fatalf("start analysis: %v", err)
	}
	if session.Status != models.SessionPending {
		t.Errorf("expected a pending session, got %s", session.Status)
	}
	f.orchestrator.Wait()

	stored, err := f.orchestrator.Session(ctx, session.ID)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if stored.Status != models.SessionCompleted || stored.Progress != 1 {
		t.Fatalf("expected completed at 1.0, got %s at %v (%v)", stored.Status, stored.Progress, stored.ErrorMessage)
	}
	if stored.ReportRef == nil || stored.CompletedAt == nil || stored.SynthesizedResult == nil {
		t.Fatalf("expected report ref, completion time and result, got %+v", stored)
	}
	if stored.SynthesizedResult.ChosenBackend != "gemini" {
		t.Errorf("expected gemini, got %s", stored.SynthesizedResult.ChosenBackend)
	}
	if len(stored.Preorganized.Documents) != 3 || len(stored.SelectedRules) == 0 {
		t.Errorf("expected preorganized documents and selected rules, got %+v", stored)
	}

	want := []models.SessionStatus{models.SessionPending, models.SessionParsing, models.SessionAnalyzing, models.SessionCompleted}
	if got := f.sessions.History(session.ID); !equalStatuses(got, want) {
		t.Errorf("expected transitions %v, got %v", want, got)
	}

	events := f.events.Events()
	last := -1.0
	for _, e := range events {
		if e.Progress < last {
			t.Errorf("progress went backwards: %+v", events)
		}
		last = e.Progress
	}
	if f.events.count(models.SessionCompleted) != 1 || events[len(events)-1].Status != models.SessionCompleted {
		t.Errorf("expected exactly one trailing completed event, got %+v", events)
	}

	report, contentType, err := f.orchestrator.Report(ctx, session.ID, FormatMarkdown)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.HasPrefix(contentType, "text/markdown") || !strings.Contains(string(report), "Missing Evidence Checklist") {
		t.Errorf("unexpected report %s:\n%s", contentType, report)
	}
	if _, _, err := f.orchestrator.Report(ctx, session.ID, FormatJSON); err != nil {
		t.Errorf("json summary: %v", err)
	}
	if _, _, err := f.orchestrator.Report(ctx, session.ID, FormatPDF); !errors.Is(err, ErrRenderUnavailable) {
		t.Errorf("expected ErrRenderUnavailable, got %v", err)
	}
	if _, _, err := f.orchestrator.Report(ctx, session.ID, "odt"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestOrchestratorAllBackendsFail(t *testing.T) {
	f := newFixture(t, []llm.Backend{
		pipelineBackend("gemini", "Sorry, I cannot answer in JSON."),
		pipelineBackend("qwen", "{{{{"),
	})
	ctx := context.Background()

	session, err := f.orchestrator.StartAnalysis(ctx, sampleRequest())
	if err != nil {
		t.Fatalf("start analysis: %v", err)
	}
	f.orchestrator.Wait()

	stored, err := f.orchestrator.Session(ctx, session.ID)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if stored.Status != models.SessionFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	if stored.ErrorMessage == nil || !strings.Contains(*stored.ErrorMessage, "analysis failed, please retry") {
		t.Errorf("unexpected error message %v", stored.ErrorMessage)
	}

	history := f.sessions.History(session.ID)
	if n := len(history); n < 2 || history[n-2] != models.SessionAnalyzing || history[n-1] != models.SessionFailed {
		t.Errorf("expected analyzing -> failed, got %v", history)
	}
	if n := f.events.count(models.SessionFailed); n != 1 {
		t.Errorf("expected exactly one failed event, got %d", n)
	}
	if _, _, err := f.orchestrator.Report(ctx, session.ID, FormatMarkdown); !errors.Is(err, ErrReportNotReady) {
		t.Errorf("expected ErrReportNotReady, got %v", err)
	}
}

func TestOrchestratorRejectsMissingBackends(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.orchestrator.StartAnalysis(context.Background(), sampleRequest())
	if !errors.Is(err, ErrNoBackendConfigured) {
		t.Fatalf("expected ErrNoBackendConfigured, got %v", err)
	}
	if len(f.sessions.sessions) != 0 || len(f.events.Events()) != 0 {
		t.Error("a rejected request must not create a session or emit events")
	}

	g := newFixture(t, []llm.Backend{pipelineBackend("gemini", analysisReply(0.9))})
	if _, err := g.orchestrator.StartAnalysis(context.Background(), AnalyzeRequest{CaseType: "contract"}); !errors.Is(err, ErrNoAnalysisInput) {
		t.Errorf("expected ErrNoAnalysisInput, got %v", err)
	}
}

func TestOrchestratorCancel(t *testing.T) {
	entered := make(chan struct{})
	backend := &funcBackend{name: "gemini", fn: func(ctx context.Context, p llm.Prompt) (string, error) {
		if !isAnalysisPrompt(p) {
			return extractionReply, nil
		}
		close(entered)
		<-ctx.Done()
		return "", ctx.Err()
	}}
	f := newFixture(t, []llm.Backend{backend})
	ctx := context.Background()

	req := sampleRequest()
	req.Mode = models.ModeSingle
	session, err := f.orchestrator.StartAnalysis(ctx, req)
	if err != nil {
		t.Fatalf("start analysis: %v", err)
	}

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("analysis never reached the model call")
	}

	cancelled, err := f.orchestrator.Cancel(ctx, session.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.SessionFailed || cancelled.ErrorMessage == nil || *cancelled.ErrorMessage != "cancelled by user" {
		t.Errorf("unexpected cancelled session %+v", cancelled)
	}
	f.orchestrator.Wait()

	stored, _ := f.orchestrator.Session(ctx, session.ID)
	if stored.Status != models.SessionFailed || *stored.ErrorMessage != "cancelled by user" {
		t.Errorf("the cancelled run must not overwrite the session, got %s %v", stored.Status, *stored.ErrorMessage)
	}
	if n := f.events.count(models.SessionFailed); n != 1 {
		t.Errorf("expected exactly one failed event, got %d", n)
	}

	if _, err := f.orchestrator.Cancel(ctx, session.ID); !errors.Is(err, repository.ErrStaleTransition) {
		t.Errorf("expected ErrStaleTransition cancelling a terminal session, got %v", err)
	}
	if _, err := f.orchestrator.Cancel(ctx, uuid.New()); !errors.Is(err, repository.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestOrchestratorAdoptsSuppliedPreorganization(t *testing.T) {
	backend := pipelineBackend("gemini", analysisReply(0.9))
	f := newFixture(t, []llm.Backend{backend})
	ctx := context.Background()

	supplied := &models.PreorganizedResult{
		Documents: []models.DocumentAnalysis{
			{DocumentID: "a", DocumentType: models.DocTypeAward},
			{DocumentID: "x", DocumentType: models.DocTypeExecution},
		},
		Panorama: models.CrossDocumentPanorama{Narrative: "Award issued, debtor did not pay."},
	}
	session, err := f.orchestrator.StartAnalysis(ctx, AnalyzeRequest{
		Preorganized: supplied,
		CaseType:     "contract_dispute",
		Scenario:     models.ScenarioExecution,
	})
	if err != nil {
		t.Fatalf("start analysis: %v", err)
	}
	f.orchestrator.Wait()

	stored, _ := f.orchestrator.Session(ctx, session.ID)
	if stored.Status != models.SessionCompleted {
		t.Fatalf("expected completed, got %s (%v)", stored.Status, stored.ErrorMessage)
	}
	if backend.Calls() != 1 {
		t.Errorf("expected only the analysis call, got %d calls", backend.Calls())
	}
	rels := stored.Preorganized.Panorama.DocumentRelationships
	if len(rels) != 1 || rels[0].RelationType != models.RelationEnforces {
		t.Errorf("expected relationships to be recomputed, got %+v", rels)
	}
}

func TestOrchestratorRendersOfficeFormats(t *testing.T) {
	renderer := &fakeRenderer{}
	f := newFixture(t, []llm.Backend{pipelineBackend("gemini", analysisReply(0.9))}, OrchestratorWithRenderer(renderer))
	ctx := context.Background()

	session, err := f.orchestrator.StartAnalysis(ctx, sampleRequest())
	if err != nil {
		t.Fatalf("start analysis: %v", err)
	}
	f.orchestrator.Wait()

	data, contentType, err := f.orchestrator.Report(ctx, session.ID, FormatDOCX)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if string(data) != "docx" || contentType != "application/test" {
		t.Errorf("unexpected rendered report %q %s", data, contentType)
	}
	if !strings.HasPrefix(renderer.markdown, "# Case Analysis Report") {
		t.Errorf("expected the stored markdown to be rendered, got %q", renderer.markdown)
	}
}

type fakeRenderer struct {
	markdown string
}

var _ DocumentRenderer = (*fakeRenderer)(nil)

func (r *fakeRenderer) Render(ctx context.Context, markdown string, format string) ([]byte, string, error) {
	r.markdown = markdown
	return []byte(format), "application/test", nil
}

func equalStatuses(a, b []models.SessionStatus) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
