package repository

import (
	"context"
	"errors"
	"fmt"

	"caselens-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInvalidTransition is returned for a status change the state machine forbids
var ErrInvalidTransition = errors.New("invalid session transition")

// SessionRepository handles database operations for analysis sessions
type SessionRepository struct {
	db *pgxpool.Pool
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new session
func (r *SessionRepository) Create(ctx context.Context, session *models.AnalysisSession) error {
	if session.SelectedRules == nil {
		session.SelectedRules = models.WeightedRules{}
	}
	query := `
		INSERT INTO analysis_sessions (
			id, status, case_type, process_stage, process_position, rule_package_id,
			mode, backend, current_stage, progress, selected_rules, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.Exec(
		ctx, query,
		session.ID,
		session.Status,
		session.CaseType,
		session.ProcessStage,
		session.ProcessPosition,
		session.RulePackageID,
		session.Mode,
		session.Backend,
		session.CurrentStage,
		session.Progress,
		session.SelectedRules,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by ID
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisSession, error) {
	session := &models.AnalysisSession{}
	var preorganized, rules, synthesized []byte
	query := `
		SELECT id, status, case_type, process_stage, process_position, rule_package_id,
			mode, backend, current_stage, progress, preorganized, selected_rules,
			synthesized_result, report_ref, error_message, created_at, updated_at, completed_at
		FROM analysis_sessions
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&session.ID,
		&session.Status,
		&session.CaseType,
		&session.ProcessStage,
		&session.ProcessPosition,
		&session.RulePackageID,
		&session.Mode,
		&session.Backend,
		&session.CurrentStage,
		&session.Progress,
		&preorganized,
		&rules,
		&synthesized,
		&session.ReportRef,
		&session.ErrorMessage,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := decodeSessionJSON(session, preorganized, rules, synthesized); err != nil {
		return nil, err
	}
	return session, nil
}

// Transition moves a session from one status to another and writes the update in the
// same statement. It fails with ErrStaleTransition when the stored status is no longer
// from. A transition to the same status only records progress.
func (r *SessionRepository) Transition(
	ctx context.Context,
	id uuid.UUID,
	from, to models.SessionStatus,
	update models.SessionUpdate,
) error {
	if from != to && !models.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	params, err := encodeUpdate(update)
	if err != nil {
		return err
	}

	query := `
		UPDATE analysis_sessions
		SET status = $3,
			current_stage = $4,
			progress = $5,
			preorganized = COALESCE($6::jsonb, preorganized),
			selected_rules = COALESCE($7::jsonb, selected_rules),
			synthesized_result = COALESCE($8::jsonb, synthesized_result),
			report_ref = COALESCE($9, report_ref),
			completed_at = COALESCE($10, completed_at),
			updated_at = NOW()
		WHERE id = $1 AND status = $2`

	tag, err := r.db.Exec(
		ctx, query,
		id,
		from,
		to,
		update.Stage,
		update.Progress,
		params.preorganized,
		params.rules,
		params.synthesized,
		update.ReportRef,
		update.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("transition session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrStale(ctx, id, from)
	}
	return nil
}

// Fail marks a non-terminal session as failed
func (r *SessionRepository) Fail(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE analysis_sessions
		SET status = 'failed', error_message = $2, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`

	tag, err := r.db.Exec(ctx, query, id, message)
	if err != nil {
		return fmt.Errorf("fail session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrStale(ctx, id, "")
	}
	return nil
}

// ListRecent returns the latest sessions, newest first
func (r *SessionRepository) ListRecent(ctx context.Context, limit int) ([]models.AnalysisSession, error) {
	query := `
		SELECT id, status, case_type, process_stage, mode, current_stage, progress,
			error_message, created_at, updated_at, completed_at
		FROM analysis_sessions
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.AnalysisSession
	for rows.Next() {
		var s models.AnalysisSession
		if err := rows.Scan(
			&s.ID,
			&s.Status,
			&s.CaseType,
			&s.ProcessStage,
			&s.Mode,
			&s.CurrentStage,
			&s.Progress,
			&s.ErrorMessage,
			&s.CreatedAt,
			&s.UpdatedAt,
			&s.CompletedAt,
		); err != nil {
			return nil, err
		}
		s.SelectedRules = models.WeightedRules{}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepository) missingOrStale(ctx context.Context, id uuid.UUID, expected models.SessionStatus) error {
	var current models.SessionStatus
	err := r.db.QueryRow(ctx, `SELECT status FROM analysis_sessions WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	return staleError(id, expected, current)
}

func staleError(id uuid.UUID, expected, current models.SessionStatus) error {
	if expected == "" {
		return fmt.Errorf("%w: session %s is already %s", ErrStaleTransition, id, current)
	}
	return fmt.Errorf("%w: session %s is %s, expected %s", ErrStaleTransition, id, current, expected)
}
