package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"caselens-backend/models"
	"caselens-backend/repository"
	"caselens-backend/storage"
)

const (
	progressParsing   = 0.1
	progressAnalyzing = 0.4
	progressRules     = 0.5
	progressModels    = 0.8
	progressSynthesis = 0.9
	progressCompleted = 1.0

	maxListedSessions = 100

	cancelledMessage    = "cancelled by user"
	failureWriteTimeout = 10 * time.Second
)

// Report formats
const (
	FormatMarkdown = "md"
	FormatJSON     = "json"
	FormatDOCX     = "docx"
	FormatPDF      = "pdf"
)

// SessionStore persists analysis sessions. Transition only succeeds while the stored
// status still equals from, and Fail only while the session is not terminal; both
// report repository.ErrStaleTransition otherwise.
type SessionStore interface {
	Create(ctx context.Context, session *models.AnalysisSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisSession, error)
	Transition(ctx context.Context, id uuid.UUID, from, to models.SessionStatus, update models.SessionUpdate) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
	ListRecent(ctx context.Context, limit int) ([]models.AnalysisSession, error)
}

// ReportStore keeps rendered reports
type ReportStore interface {
	Put(ctx context.Context, key string, contentType string, data io.Reader) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// DocumentRenderer converts a markdown report into an office format
type DocumentRenderer interface {
	Render(ctx context.Context, markdown string, format string) ([]byte, string, error)
}

// AnalyzeRequest starts a stage-two analysis. Either Preorganized or Documents must be set.
type AnalyzeRequest struct {
	Preorganized    *models.PreorganizedResult
	Documents       []models.RawDocument
	CaseType        string
	ProcessPosition string
	Scenario        string
	RulePackageID   string
	Mode            models.AnalysisMode
	Backend         string
}

// Orchestrator runs analysis sessions through preorganization, rule assembly,
// model analysis, synthesis and reporting.
type Orchestrator struct {
	sessions     SessionStore
	reports      ReportStore
	progress     ProgressPublisher
	preorganizer *Preorganizer
	assembler    *RuleAssembler
	analyzer     *ScenarioAnalyzer
	synthesizer  *Synthesizer
	reportGen    *ReportGenerator
	renderer     DocumentRenderer
	logger       *log.Logger
	now          func() time.Time

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
	wg      sync.WaitGroup
}

// OrchestratorOption is a functional option for configuring the orchestrator
type OrchestratorOption func(*Orchestrator)

// OrchestratorWithSessionStore sets the session store
func OrchestratorWithSessionStore(store SessionStore) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sessions = store
	}
}

// OrchestratorWithReportStore sets the report store
func OrchestratorWithReportStore(store ReportStore) OrchestratorOption {
	return func(o *Orchestrator) {
		o.reports = store
	}
}

// OrchestratorWithProgress sets the progress publisher
func OrchestratorWithProgress(progress ProgressPublisher) OrchestratorOption {
	return func(o *Orchestrator) {
		o.progress = progress
	}
}

// OrchestratorWithPreorganizer sets the preorganizer
func OrchestratorWithPreorganizer(p *Preorganizer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.preorganizer = p
	}
}

// OrchestratorWithRuleAssembler sets the rule assembler
func OrchestratorWithRuleAssembler(a *RuleAssembler) OrchestratorOption {
	return func(o *Orchestrator) {
		o.assembler = a
	}
}

// OrchestratorWithAnalyzer sets the scenario analyzer
func OrchestratorWithAnalyzer(a *ScenarioAnalyzer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.analyzer = a
	}
}

// OrchestratorWithSynthesizer sets the synthesizer
func OrchestratorWithSynthesizer(s *Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.synthesizer = s
	}
}

// OrchestratorWithRenderer sets the office document renderer
func OrchestratorWithRenderer(r DocumentRenderer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.renderer = r
	}
}

// OrchestratorWithLogger sets the logger
func OrchestratorWithLogger(logger *log.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates a new orchestrator with the given options
func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		progress:    noopPublisher{},
		synthesizer: NewSynthesizer("", defaultPrimaryConfidence),
		reportGen:   NewReportGenerator(),
		logger:      log.Default(),
		now:         time.Now,
		running:     make(map[uuid.UUID]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.preorganizer == nil {
		o.preorganizer = NewPreorganizer(nil, PreorganizeWithLogger(o.logger))
	}
	if o.assembler == nil {
		o.assembler = NewRuleAssembler(nil, DefaultRuleWeights(), o.logger)
	}
	if o.analyzer == nil {
		o.analyzer = NewScenarioAnalyzer(nil, 0, o.logger)
	}
	return o
}

// Preorganize runs stage one synchronously
func (o *Orchestrator) Preorganize(
	ctx context.Context,
	docs []models.RawDocument,
	caseType string,
	processPosition string,
) (*models.PreorganizedResult, error) {
	return o.preorganizer.Preorganize(ctx, docs, caseType, processPosition)
}

// PreviewRules returns the rules an analysis with this context would use
func (o *Orchestrator) PreviewRules(ctx context.Context, packageID string, rc RuleContext) models.WeightedRules {
	return o.assembler.Assemble(ctx, packageID, rc)
}

// StartAnalysis validates the request, creates a pending session and runs the pipeline in
// the background. Configuration errors reject the request before any session exists.
func (o *Orchestrator) StartAnalysis(ctx context.Context, req AnalyzeRequest) (*models.AnalysisSession, error) {
	if req.Preorganized == nil && len(req.Documents) == 0 {
		return nil, ErrNoAnalysisInput
	}
	if req.Mode == "" {
		req.Mode = models.ModeSingle
	}
	if _, err := o.analyzer.ResolveBackends(req.Mode, req.Backend); err != nil {
		return nil, err
	}

	now := o.now()
	session := &models.AnalysisSession{
		ID:              uuid.New(),
		Status:          models.SessionPending,
		CaseType:        req.CaseType,
		ProcessStage:    req.Scenario,
		ProcessPosition: req.ProcessPosition,
		RulePackageID:   req.RulePackageID,
		Mode:            req.Mode,
		Backend:         req.Backend,
		CurrentStage:    models.StageCreated,
		SelectedRules:   models.WeightedRules{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := o.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create analysis session: %w", err)
	}
	o.publish(session.ID, models.SessionPending, models.StageCreated, 0, "Analysis session created")

	// The pipeline outlives the request that started it.
	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.running[session.ID] = cancel
	o.mu.Unlock()

	id := session.ID
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer o.forget(id)
		if err := o.Run(runCtx, id, req); err != nil {
			o.logger.Printf("Analysis session %s failed: %v", id, err)
		}
	}()

	return session, nil
}

// Run executes the pipeline for a pending session. Hard errors mark the session failed;
// losing a transition to a concurrent cancel stops the run quietly.
func (o *Orchestrator) Run(ctx context.Context, id uuid.UUID, req AnalyzeRequest) error {
	progress := 0.0

	fail := func(cause error) error {
		if errors.Is(cause, repository.ErrStaleTransition) {
			o.logger.Printf("Analysis session %s stopped: session already terminal", id)
			return nil
		}
		o.markFailed(id, progress, cause)
		return cause
	}

	// Parsing
	if err := o.advance(ctx, id, models.SessionPending, models.SessionParsing,
		models.SessionUpdate{Stage: models.StageParsing, Progress: progressParsing}, "Organizing case documents"); err != nil {
		return fail(err)
	}
	progress = progressParsing

	preorganized, err := o.preorganize(ctx, req)
	if err != nil {
		return fail(err)
	}

	degraded := 0
	for _, doc := range preorganized.Documents {
		if doc.Degraded {
			degraded++
		}
	}
	message := fmt.Sprintf("Organized %d documents", len(preorganized.Documents))
	if degraded > 0 {
		message += fmt.Sprintf(" (%d degraded)", degraded)
	}
	if err := o.advance(ctx, id, models.SessionParsing, models.SessionAnalyzing,
		models.SessionUpdate{Stage: models.StageAnalyzing, Progress: progressAnalyzing, Preorganized: preorganized}, message); err != nil {
		return fail(err)
	}
	progress = progressAnalyzing

	// Rule assembly never fails; the fallback set is used instead.
	rules := o.assembler.Assemble(ctx, req.RulePackageID, RuleContext{
		CaseType: req.CaseType,
		Scenario: req.Scenario,
		Panorama: &preorganized.Panorama,
	})
	if err := o.advance(ctx, id, models.SessionAnalyzing, models.SessionAnalyzing,
		models.SessionUpdate{Stage: models.StageRules, Progress: progressRules, SelectedRules: rules},
		fmt.Sprintf("Selected %d rules", len(rules))); err != nil {
		return fail(err)
	}
	progress = progressRules

	// Model analysis
	input := AnalysisInput{
		CaseType:        req.CaseType,
		Scenario:        req.Scenario,
		ProcessPosition: req.ProcessPosition,
		Preorganized:    preorganized,
	}
	output, err := o.analyzer.Analyze(ctx, input, rules.Instructions(), req.Mode, req.Backend)
	if err != nil {
		return fail(err)
	}
	if err := o.advance(ctx, id, models.SessionAnalyzing, models.SessionAnalyzing,
		models.SessionUpdate{Stage: models.StageModels, Progress: progressModels},
		fmt.Sprintf("Received %d backend responses", len(output.Responses))); err != nil {
		return fail(err)
	}
	progress = progressModels

	result, err := o.synthesizer.Synthesize(output.Responses)
	if err != nil {
		return fail(err)
	}
	if err := o.advance(ctx, id, models.SessionAnalyzing, models.SessionAnalyzing,
		models.SessionUpdate{Stage: models.StageSynthesis, Progress: progressSynthesis, SynthesizedResult: result},
		fmt.Sprintf("Selected the %s analysis", result.ChosenBackend)); err != nil {
		return fail(err)
	}
	progress = progressSynthesis

	// Report
	completedAt := o.now()
	markdown, summary := o.reportGen.Generate(ReportInput{
		SessionID:       id.String(),
		CaseType:        req.CaseType,
		Scenario:        req.Scenario,
		ProcessPosition: req.ProcessPosition,
		GeneratedAt:     completedAt,
		Preorganized:    preorganized,
		Rules:           rules,
		Result:          *result,
	})
	reportRef, err := o.storeReport(ctx, id, markdown, summary)
	if err != nil {
		return fail(err)
	}

	if err := o.advance(ctx, id, models.SessionAnalyzing, models.SessionCompleted,
		models.SessionUpdate{
			Stage:             models.StageCompleted,
			Progress:          progressCompleted,
			SynthesizedResult: result,
			ReportRef:         &reportRef,
			CompletedAt:       &completedAt,
		}, "Analysis completed"); err != nil {
		return fail(err)
	}
	return nil
}

func (o *Orchestrator) preorganize(ctx context.Context, req AnalyzeRequest) (*models.PreorganizedResult, error) {
	if req.Preorganized == nil {
		return o.preorganizer.Preorganize(ctx, req.Documents, req.CaseType, req.ProcessPosition)
	}

	// A supplied result is adopted as is, except for the derived relationships.
	adopted := *req.Preorganized
	adopted.Documents = append([]models.DocumentAnalysis(nil), req.Preorganized.Documents...)
	for i := range adopted.Documents {
		adopted.Documents[i].Normalize()
	}
	if adopted.CaseType == "" {
		adopted.CaseType = req.CaseType
	}
	if adopted.ProcessPosition == "" {
		adopted.ProcessPosition = req.ProcessPosition
	}
	adopted.Panorama.DocumentRelationships = InferRelationships(adopted.Documents)
	adopted.Panorama.Normalize()
	return &adopted, nil
}

func (o *Orchestrator) storeReport(ctx context.Context, id uuid.UUID, markdown string, summary models.ReportSummary) (string, error) {
	if o.reports == nil {
		return "", errors.New("no report store configured")
	}
	ref, err := o.reports.Put(ctx, storage.ReportKey(id, FormatMarkdown), "text/markdown; charset=utf-8", strings.NewReader(markdown))
	if err != nil {
		return "", fmt.Errorf("failed to store report: %w", err)
	}
	data, err := SummaryJSON(summary)
	if err != nil {
		return "", fmt.Errorf("failed to encode report summary: %w", err)
	}
	if _, err := o.reports.Put(ctx, storage.ReportKey(id, FormatJSON), "application/json", bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to store report summary: %w", err)
	}
	return ref, nil
}

// advance persists a guarded status change and then emits its progress event
func (o *Orchestrator) advance(
	ctx context.Context,
	id uuid.UUID,
	from, to models.SessionStatus,
	update models.SessionUpdate,
	message string,
) error {
	if from != to && !models.CanTransition(from, to) {
		return fmt.Errorf("invalid session transition %s -> %s", from, to)
	}
	if err := o.sessions.Transition(ctx, id, from, to, update); err != nil {
		return err
	}
	o.publish(id, to, update.Stage, update.Progress, message)
	return nil
}

// markFailed records a hard failure. The write uses its own context so a cancelled
// run can still persist it; the failed event is only emitted when the write won.
func (o *Orchestrator) markFailed(id uuid.UUID, progress float64, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), failureWriteTimeout)
	defer cancel()

	message := cause.Error()
	if err := o.sessions.Fail(ctx, id, message); err != nil {
		if !errors.Is(err, repository.ErrStaleTransition) {
			o.logger.Printf("Warning: failed to mark session %s as failed: %v", id, err)
		}
		return
	}
	o.publish(id, models.SessionFailed, models.StageFailed, progress, message)
}

// Cancel marks a running session failed and abandons its pipeline
func (o *Orchestrator) Cancel(ctx context.Context, id uuid.UUID) (*models.AnalysisSession, error) {
	session, err := o.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: session is %s", repository.ErrStaleTransition, session.Status)
	}
	if err := o.sessions.Fail(ctx, id, cancelledMessage); err != nil {
		return nil, err
	}
	o.publish(id, models.SessionFailed, models.StageFailed, session.Progress, cancelledMessage)

	o.mu.Lock()
	if cancelRun, ok := o.running[id]; ok {
		cancelRun()
	}
	o.mu.Unlock()

	return o.sessions.GetByID(ctx, id)
}

// Session returns a session snapshot
func (o *Orchestrator) Session(ctx context.Context, id uuid.UUID) (*models.AnalysisSession, error) {
	return o.sessions.GetByID(ctx, id)
}

// RecentSessions lists the latest sessions without their payloads, newest first
func (o *Orchestrator) RecentSessions(ctx context.Context, limit int) ([]models.AnalysisSession, error) {
	if limit <= 0 || limit > maxListedSessions {
		limit = maxListedSessions
	}
	sessions, err := o.sessions.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []models.AnalysisSession{}
	}
	return sessions, nil
}

// Report returns the stored report of a completed session in the requested format
func (o *Orchestrator) Report(ctx context.Context, id uuid.UUID, format string) ([]byte, string, error) {
	session, err := o.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if session.Status != models.SessionCompleted || session.ReportRef == nil || o.reports == nil {
		return nil, "", ErrReportNotReady
	}

	switch format {
	case "", FormatMarkdown:
		data, err := o.readReport(ctx, *session.ReportRef)
		return data, "text/markdown; charset=utf-8", err
	case FormatJSON:
		data, err := o.readReport(ctx, storage.ReportKey(id, FormatJSON))
		return data, "application/json", err
	case FormatDOCX, FormatPDF:
		if o.renderer == nil {
			return nil, "", ErrRenderUnavailable
		}
		markdown, err := o.readReport(ctx, *session.ReportRef)
		if err != nil {
			return nil, "", err
		}
		return o.renderer.Render(ctx, string(markdown), format)
	default:
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func (o *Orchestrator) readReport(ctx context.Context, key string) ([]byte, error) {
	rc, err := o.reports.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Backends lists the configured backend names
func (o *Orchestrator) Backends() []string {
	return o.analyzer.BackendNames()
}

// Wait blocks until every background run has finished
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) forget(id uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cancel, ok := o.running[id]; ok {
		cancel()
		delete(o.running, id)
	}
}

func (o *Orchestrator) publish(id uuid.UUID, status models.SessionStatus, stage string, progress float64, message string) {
	o.progress.Publish(models.ProgressEvent{
		Type:      models.EventProgress,
		SessionID: id,
		Status:    status,
		Stage:     stage,
		Progress:  progress,
		Message:   message,
		Timestamp: o.now(),
	})
}

type noopPublisher struct{}

func (noopPublisher) Publish(models.ProgressEvent) {}
