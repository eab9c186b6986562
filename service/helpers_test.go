package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"caselens-backend/llm"
	"caselens-backend/models"
	"caselens-backend/repository"
	"caselens-backend/storage"
)

var discardLogger = log.New(io.Discard, "", 0)

// funcBackend answers every call through fn
type funcBackend struct {
	name  string
	fn    func(ctx context.Context, prompt llm.Prompt) (string, error)
	calls int32
}

var _ llm.Backend = (*funcBackend)(nil)

func (b *funcBackend) Name() string { return b.name }

func (b *funcBackend) Invoke(ctx context.Context, prompt llm.Prompt) (string, error) {
	atomic.AddInt32(&b.calls, 1)
	return b.fn(ctx, prompt)
}

func (b *funcBackend) Calls() int {
	return int(atomic.LoadInt32(&b.calls))
}

func replyBackend(name, reply string) *funcBackend {
	return &funcBackend{name: name, fn: func(context.Context, llm.Prompt) (string, error) {
		return reply, nil
	}}
}

func isPanoramaPrompt(p llm.Prompt) bool {
	return strings.Contains(p.User, "Combine the documents above")
}

func isAnalysisPrompt(p llm.Prompt) bool {
	return p.System == analysisSystemPrompt
}

func mustRegistry(primary string, backends ...llm.Backend) *llm.Registry {
	r, err := llm.NewRegistry(primary, backends...)
	if err != nil {
		panic(err)
	}
	return r
}

func analysisReply(confidence float64) string {
	return fmt.Sprintf(`{"summary":"s","facts":["f"],"legal_arguments":["a"],"strengths":["x"],
"weaknesses":["w"],"strategies":["st"],"win_probability":0.6,"conclusion":"c","confidence":%v}`, confidence)
}

// memSessionStore mirrors the guarded semantics of the SQL stores
type memSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.AnalysisSession
	history  map[uuid.UUID][]models.SessionStatus
}

var _ SessionStore = (*memSessionStore)(nil)

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{
		sessions: make(map[uuid.UUID]*models.AnalysisSession),
		history:  make(map[uuid.UUID][]models.SessionStatus),
	}
}

func (s *memSessionStore) Create(ctx context.Context, session *models.AnalysisSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.ID] = &copied
	s.history[session.ID] = []models.SessionStatus{session.Status}
	return nil
}

func (s *memSessionStore) GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *memSessionStore) Transition(ctx context.Context, id uuid.UUID, from, to models.SessionStatus, update models.SessionUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	if session.Status != from {
		return fmt.Errorf("%w: %s", repository.ErrStaleTransition, session.Status)
	}
	session.Status = to
	session.CurrentStage = update.Stage
	session.Progress = update.Progress
	if update.Preorganized != nil {
		session.Preorganized = update.Preorganized
	}
	if update.SelectedRules != nil {
		session.SelectedRules = update.SelectedRules
	}
	if update.SynthesizedResult != nil {
		session.SynthesizedResult = update.SynthesizedResult
	}
	if update.ReportRef != nil {
		session.ReportRef = update.ReportRef
	}
	if update.CompletedAt != nil {
		session.CompletedAt = update.CompletedAt
	}
	session.UpdatedAt = time.Now()
	if from != to {
		s.history[id] = append(s.history[id], to)
	}
	return nil
}

func (s *memSessionStore) Fail(ctx context.Context, id uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return repository.ErrSessionNotFound
	}
	if session.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", repository.ErrStaleTransition, session.Status)
	}
	session.Status = models.SessionFailed
	session.ErrorMessage = &message
	s.history[id] = append(s.history[id], models.SessionFailed)
	return nil
}

func (s *memSessionStore) ListRecent(ctx context.Context, limit int) ([]models.AnalysisSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AnalysisSession
	for _, session := range s.sessions {
		out = append(out, *session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memSessionStore) History(id uuid.UUID) []models.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SessionStatus(nil), s.history[id]...)
}

// memReportStore keeps reports in memory
type memReportStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

var _ ReportStore = (*memReportStore)(nil)

func newMemReportStore() *memReportStore {
	return &memReportStore{objects: make(map[string][]byte)}
}

func (s *memReportStore) Put(ctx context.Context, key string, contentType string, data io.Reader) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = b
	return key, nil
}

func (s *memReportStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// recordingPublisher collects published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ProgressEvent
}

var _ ProgressPublisher = (*recordingPublisher)(nil)

func (p *recordingPublisher) Publish(event models.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Events() []models.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.ProgressEvent(nil), p.events...)
}

func (p *recordingPublisher) count(status models.SessionStatus) int {
	n := 0
	for _, e := range p.Events() {
		if e.Status == status {
			n++
		}
	}
	return n
}
