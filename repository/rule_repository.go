package repository

import (
	"context"
	"errors"
	"fmt"

	"caselens-backend/corpus"
	"caselens-backend/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RuleRepository stores rule definitions so the corpus can be edited without a redeploy
type RuleRepository struct {
	db *pgxpool.Pool
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *pgxpool.Pool) *RuleRepository {
	return &RuleRepository{db: db}
}

const ruleColumns = `id, package_id, name, category, legal_source, prompt_template,
	case_type_keywords, scenario_scope, check_points, base_weight`

// ListAll returns every rule ordered by package and position
func (r *RuleRepository) ListAll(ctx context.Context) ([]models.RuleDefinition, error) {
	query := `SELECT ` + ruleColumns + ` FROM rule_definitions ORDER BY package_id, position, id`
	return r.list(ctx, query)
}

// ListByPackage returns the rules of one package
func (r *RuleRepository) ListByPackage(ctx context.Context, packageID string) ([]models.RuleDefinition, error) {
	query := `SELECT ` + ruleColumns + ` FROM rule_definitions WHERE package_id = $1 ORDER BY position, id`
	return r.list(ctx, query, packageID)
}

func (r *RuleRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.RuleDefinition, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.RuleDefinition
	for rows.Next() {
		var (
			rule                         models.RuleDefinition
			keywords, scope, checkPoints models.StringList
		)
		if err := rows.Scan(
			&rule.ID,
			&rule.PackageID,
			&rule.Name,
			&rule.Category,
			&rule.LegalSource,
			&rule.PromptTemplate,
			&keywords,
			&scope,
			&checkPoints,
			&rule.BaseWeight,
		); err != nil {
			return nil, err
		}
		rule.CaseTypeKeywords = keywords
		rule.ScenarioScope = scope
		rule.CheckPoints = checkPoints
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Upsert inserts or replaces a rule at the given position within its package
func (r *RuleRepository) Upsert(ctx context.Context, rule models.RuleDefinition, position int) error {
	query := `
		INSERT INTO rule_definitions (
			id, package_id, name, category, legal_source, prompt_template,
			case_type_keywords, scenario_scope, check_points, base_weight, position
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			package_id = EXCLUDED.package_id,
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			legal_source = EXCLUDED.legal_source,
			prompt_template = EXCLUDED.prompt_template,
			case_type_keywords = EXCLUDED.case_type_keywords,
			scenario_scope = EXCLUDED.scenario_scope,
			check_points = EXCLUDED.check_points,
			base_weight = EXCLUDED.base_weight,
			position = EXCLUDED.position,
			updated_at = NOW()`

	_, err := r.db.Exec(
		ctx, query,
		rule.ID,
		rule.PackageID,
		rule.Name,
		rule.Category,
		rule.LegalSource,
		rule.PromptTemplate,
		models.StringList(rule.CaseTypeKeywords),
		models.StringList(rule.ScenarioScope),
		models.StringList(rule.CheckPoints),
		rule.BaseWeight,
		position,
	)
	if err != nil {
		return fmt.Errorf("upsert rule %s: %w", rule.ID, err)
	}
	return nil
}

// Delete removes a rule
func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM rule_definitions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Count returns the number of stored rules
func (r *RuleRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM rule_definitions`).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// Load builds a corpus from the stored rules, so the repository can act as the
// rule assembler's source. An empty table yields corpus.ErrEmptyCorpus.
func (r *RuleRepository) Load(ctx context.Context) (*corpus.Corpus, error) {
	rules, err := r.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, corpus.ErrEmptyCorpus
	}
	return corpus.FromRules(rules)
}
