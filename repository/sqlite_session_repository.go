package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"caselens-backend/models"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteSessionStore persists analysis sessions in a SQLite file. It backs local runs
// and the CLI where no PostgreSQL server is available.
type SQLiteSessionStore struct {
	db *sql.DB
}

// OpenSQLiteSessionStore opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func OpenSQLiteSessionStore(path string) (*SQLiteSessionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to :memory: is its own database, and SQLite serializes writers anyway
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if _, err := db.Exec(SQLiteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteSessionStore{db: db}, nil
}

// Close closes the database
func (s *SQLiteSessionStore) Close() error {
	return s.db.Close()
}

// Create inserts a new session
func (s *SQLiteSessionStore) Create(ctx context.Context, session *models.AnalysisSession) error {
	if session.SelectedRules == nil {
		session.SelectedRules = models.WeightedRules{}
	}
	rules, err := jsonParam(session.SelectedRules, true)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_sessions (
			id, status, case_type, process_stage, process_position, rule_package_id,
			mode, backend, current_stage, progress, selected_rules, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID.String(),
		string(session.Status),
		session.CaseType,
		session.ProcessStage,
		session.ProcessPosition,
		session.RulePackageID,
		string(session.Mode),
		session.Backend,
		session.CurrentStage,
		session.Progress,
		*rules,
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert analysis session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by ID
func (s *SQLiteSessionStore) GetByID(ctx context.Context, id uuid.UUID) (*models.AnalysisSession, error) {
	var (
		session                   models.AnalysisSession
		rawID, status, mode       string
		preorganized, synthesized sql.NullString
		rules                     string
		reportRef, errorMessage   sql.NullString
		createdAt, updatedAt      string
		completedAt               sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, case_type, process_stage, process_position, rule_package_id,
			mode, backend, current_stage, progress, preorganized, selected_rules,
			synthesized_result, report_ref, error_message, created_at, updated_at, completed_at
		FROM analysis_sessions
		WHERE id = ?`, id.String()).Scan(
		&rawID,
		&status,
		&session.CaseType,
		&session.ProcessStage,
		&session.ProcessPosition,
		&session.RulePackageID,
		&mode,
		&session.Backend,
		&session.CurrentStage,
		&session.Progress,
		&preorganized,
		&rules,
		&synthesized,
		&reportRef,
		&errorMessage,
		&createdAt,
		&updatedAt,
		&completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	if session.ID, err = uuid.Parse(rawID); err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	session.Status = models.SessionStatus(status)
	session.Mode = models.AnalysisMode(mode)
	session.ReportRef = nullString(reportRef)
	session.ErrorMessage = nullString(errorMessage)
	if session.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		session.CompletedAt = &t
	}

	if err := decodeSessionJSON(&session, []byte(preorganized.String), []byte(rules), []byte(synthesized.String)); err != nil {
		return nil, err
	}
	return &session, nil
}

// Transition mirrors SessionRepository.Transition
func (s *SQLiteSessionStore) Transition(
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
	var completedAt *string
	if update.CompletedAt != nil {
		v := formatTime(*update.CompletedAt)
		completedAt = &v
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE analysis_sessions
		SET status = ?,
			current_stage = ?,
			progress = ?,
			preorganized = COALESCE(?, preorganized),
			selected_rules = COALESCE(?, selected_rules),
			synthesized_result = COALESCE(?, synthesized_result),
			report_ref = COALESCE(?, report_ref),
			completed_at = COALESCE(?, completed_at),
			updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to),
		update.Stage,
		update.Progress,
		params.preorganized,
		params.rules,
		params.synthesized,
		update.ReportRef,
		completedAt,
		formatTime(time.Now()),
		id.String(),
		string(from),
	)
	if err != nil {
		return fmt.Errorf("transition session %s: %w", id, err)
	}
	return s.checkAffected(ctx, res, id, from)
}

// Fail marks a non-terminal session as failed
func (s *SQLiteSessionStore) Fail(ctx context.Context, id uuid.UUID, message string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE analysis_sessions
		SET status = 'failed', error_message = ?, updated_at = ?
		WHERE id = ? AND status NOT IN ('completed', 'failed')`,
		message, formatTime(time.Now()), id.String())
	if err != nil {
		return fmt.Errorf("fail session %s: %w", id, err)
	}
	return s.checkAffected(ctx, res, id, "")
}

// ListRecent mirrors SessionRepository.ListRecent
func (s *SQLiteSessionStore) ListRecent(ctx context.Context, limit int) ([]models.AnalysisSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, case_type, process_stage, mode, current_stage, progress,
			error_message, created_at, updated_at, completed_at
		FROM analysis_sessions
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.AnalysisSession
	for rows.Next() {
		var (
			session                   models.AnalysisSession
			rawID, status, mode       string
			errorMessage, completedAt sql.NullString
			createdAt, updatedAt      string
		)
		if err := rows.Scan(
			&rawID,
			&status,
			&session.CaseType,
			&session.ProcessStage,
			&mode,
			&session.CurrentStage,
			&session.Progress,
			&errorMessage,
			&createdAt,
			&updatedAt,
			&completedAt,
		); err != nil {
			return nil, err
		}
		if session.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("parse session id: %w", err)
		}
		session.Status = models.SessionStatus(status)
		session.Mode = models.AnalysisMode(mode)
		session.ErrorMessage = nullString(errorMessage)
		session.SelectedRules = models.WeightedRules{}
		if session.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if session.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			t, err := parseTime(completedAt.String)
			if err != nil {
				return nil, err
			}
			session.CompletedAt = &t
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *SQLiteSessionStore) checkAffected(ctx context.Context, res sql.Result, id uuid.UUID, expected models.SessionStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM analysis_sessions WHERE id = ?`, id.String()).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	return staleError(id, expected, models.SessionStatus(current))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
