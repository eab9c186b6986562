package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"caselens-backend/models"

	"github.com/google/uuid"
)

func openTestStore(t *testing.T) *SQLiteSessionStore {
	t.Helper()
	store, err := OpenSQLiteSessionStore(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestSession() *models.AnalysisSession {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	return &models.AnalysisSession{
		ID:           uuid.New(),
		Status:       models.SessionPending,
		CaseType:     "contract_dispute",
		ProcessStage: models.ScenarioPreLitigation,
		Mode:         models.ModeSingle,
		CurrentStage: "created",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestSQLiteSessionLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	session := newTestSession()

	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.SessionPending || got.CaseType != "contract_dispute" {
		t.Errorf("unexpected session %+v", got)
	}
	if !got.CreatedAt.Equal(session.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", session.CreatedAt, got.CreatedAt)
	}
	if got.SelectedRules == nil || len(got.SelectedRules) != 0 {
		t.Errorf("expected empty rule selection, got %v", got.SelectedRules)
	}

	pre := &models.PreorganizedResult{}
	if err := store.Transition(ctx, session.ID, models.SessionPending, models.SessionParsing, models.SessionUpdate{Stage: "parsing", Progress: 0.1}); err != nil {
		t.Fatalf("pending -> parsing: %v", err)
	}
	if err := store.Transition(ctx, session.ID, models.SessionParsing, models.SessionAnalyzing, models.SessionUpdate{Stage: "preorganized", Progress: 0.4, Preorganized: pre}); err != nil {
		t.Fatalf("parsing -> analyzing: %v", err)
	}

	rules := models.WeightedRules{{Rule: models.RuleDefinition{ID: "r1", Name: "Rule"}, AdjustedWeight: 2, Instruction: "check"}}
	if err := store.Transition(ctx, session.ID, models.SessionAnalyzing, models.SessionAnalyzing, models.SessionUpdate{Stage: "rules", Progress: 0.5, SelectedRules: rules}); err != nil {
		t.Fatalf("progress update: %v", err)
	}

	ref := "reports/ab/report.md"
	done := time.Date(2024, 3, 1, 9, 31, 0, 0, time.UTC)
	if err := store.Transition(ctx, session.ID, models.SessionAnalyzing, models.SessionCompleted, models.SessionUpdate{Stage: "completed", Progress: 1, ReportRef: &ref, CompletedAt: &done}); err != nil {
		t.Fatalf("analyzing -> completed: %v", err)
	}

	got, err = store.GetByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.SessionCompleted || got.Progress != 1 {
		t.Errorf("expected completed at progress 1, got %s %v", got.Status, got.Progress)
	}
	if got.Preorganized == nil {
		t.Error("expected preorganized result to be kept")
	}
	if len(got.SelectedRules) != 1 || got.SelectedRules[0].Rule.ID != "r1" {
		t.Errorf("expected selected rules to be kept, got %v", got.SelectedRules)
	}
	if got.ReportRef == nil || *got.ReportRef != ref {
		t.Errorf("expected report ref %s, got %v", ref, got.ReportRef)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
		t.Errorf("expected completed_at %v, got %v", done, got.CompletedAt)
	}
}

func TestSQLiteTransitionIsGuarded(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	session := newTestSession()
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := store.Transition(ctx, session.ID, models.SessionParsing, models.SessionAnalyzing, models.SessionUpdate{})
	if !errors.Is(err, ErrStaleTransition) {
		t.Errorf("expected ErrStaleTransition, got %v", err)
	}

	err = store.Transition(ctx, session.ID, models.SessionPending, models.SessionCompleted, models.SessionUpdate{})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	err = store.Transition(ctx, uuid.New(), models.SessionPending, models.SessionParsing, models.SessionUpdate{})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSQLiteFailOnlyOnce(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	session := newTestSession()
	if err := store.Create(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.Fail(ctx, session.ID, "cancelled by user"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := store.Fail(ctx, session.ID, "again"); !errors.Is(err, ErrStaleTransition) {
		t.Errorf("expected ErrStaleTransition on second fail, got %v", err)
	}
	if err := store.Transition(ctx, session.ID, models.SessionPending, models.SessionParsing, models.SessionUpdate{}); !errors.Is(err, ErrStaleTransition) {
		t.Errorf("expected writes after failure to be stale, got %v", err)
	}

	got, err := store.GetByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.SessionFailed {
		t.Errorf("expected failed, got %s", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "cancelled by user" {
		t.Errorf("expected first error message to stick, got %v", got.ErrorMessage)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetByID(context.Background(), uuid.New()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSQLiteListRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		session := newTestSession()
		session.CreatedAt = session.CreatedAt.Add(time.Duration(i) * time.Hour)
		session.UpdatedAt = session.CreatedAt
		if err := store.Create(ctx, session); err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, session.ID)
	}
	if err := store.Fail(ctx, ids[0], "boom"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	sessions, err := store.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != ids[2] || sessions[1].ID != ids[1] {
		t.Fatalf("expected the two newest sessions first, got %+v", sessions)
	}

	all, err := store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	oldest := all[len(all)-1]
	if oldest.ID != ids[0] || oldest.Status != models.SessionFailed || oldest.ErrorMessage == nil || *oldest.ErrorMessage != "boom" {
		t.Errorf("unexpected oldest session %+v", oldest)
	}
}
