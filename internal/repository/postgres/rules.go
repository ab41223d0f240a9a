package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/lead-router/internal/domain"
)

// ErrRuleNotFound is returned when no rule row exists for the id.
var ErrRuleNotFound = errors.New("assignment rule not found")

// RulesRepo manages the assignment_rules table: the mutable rule source
// behind the ops API, and one of the two sources the rule cache can read.
type RulesRepo struct{ db *sql.DB }

// NewRulesRepo creates a rules repository.
func NewRulesRepo(db *sql.DB) *RulesRepo { return &RulesRepo{db: db} }

const ruleColumns = `id, funnel_id, target_type, target_id, org_id,
	       zip_patterns, priority, daily_cap, monthly_cap, active`

func scanRule(scan func(...any) error) (domain.AssignmentRule, error) {
	var r domain.AssignmentRule
	var patterns pq.StringArray
	var daily, monthly sql.NullInt64
	err := scan(
		&r.RuleID, &r.FunnelID, &r.TargetType, &r.TargetID, &r.OrgID,
		&patterns, &r.Priority, &daily, &monthly, &r.Active,
	)
	if err != nil {
		return r, err
	}
	r.ZipPatterns = []string(patterns)
	if daily.Valid {
		v := int(daily.Int64)
		r.DailyCap = &v
	}
	if monthly.Valid {
		v := int(monthly.Int64)
		r.MonthlyCap = &v
	}
	return r, nil
}

// ListRules returns every rule, active or not, ordered by priority. This is
// the fetch behind the rule cache when the source is "postgres"; filtering
// to active rules happens at match time.
func (r *RulesRepo) ListRules(ctx context.Context) ([]domain.AssignmentRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM assignment_rules
		ORDER BY priority, id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	defer rows.Close()

	var out []domain.AssignmentRule
	for rows.Next() {
		rule, err := scanRule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// GetRule returns one rule. Returns ErrRuleNotFound when no row exists.
func (r *RulesRepo) GetRule(ctx context.Context, ruleID string) (*domain.AssignmentRule, error) {
	rule, err := scanRule(r.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM assignment_rules WHERE id = $1
	`, ruleID).Scan)
	if err == sql.ErrNoRows {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting rule %s: %w", ruleID, err)
	}
	return &rule, nil
}

// CreateRule inserts a new rule and returns its id. An empty RuleID gets a
// generated uuid.
func (r *RulesRepo) CreateRule(ctx context.Context, rule *domain.AssignmentRule) (string, error) {
	if rule.RuleID == "" {
		rule.RuleID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assignment_rules
			(id, funnel_id, target_type, target_id, org_id,
			 zip_patterns, priority, daily_cap, monthly_cap, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		rule.RuleID, rule.FunnelID, rule.TargetType, rule.TargetID, rule.OrgID,
		pq.Array(rule.ZipPatterns), rule.Priority,
		capValue(rule.DailyCap), capValue(rule.MonthlyCap), rule.Active,
	)
	if err != nil {
		return "", fmt.Errorf("creating rule: %w", err)
	}
	return rule.RuleID, nil
}

// UpdateRule replaces every mutable field of a rule.
func (r *RulesRepo) UpdateRule(ctx context.Context, rule *domain.AssignmentRule) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE assignment_rules
		SET funnel_id = $2, target_type = $3, target_id = $4, org_id = $5,
		    zip_patterns = $6, priority = $7, daily_cap = $8, monthly_cap = $9,
		    active = $10, updated_at = NOW()
		WHERE id = $1
	`,
		rule.RuleID, rule.FunnelID, rule.TargetType, rule.TargetID, rule.OrgID,
		pq.Array(rule.ZipPatterns), rule.Priority,
		capValue(rule.DailyCap), capValue(rule.MonthlyCap), rule.Active,
	)
	if err != nil {
		return fmt.Errorf("updating rule %s: %w", rule.RuleID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// DeleteRule removes a rule.
func (r *RulesRepo) DeleteRule(ctx context.Context, ruleID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assignment_rules WHERE id = $1`, ruleID)
	if err != nil {
		return fmt.Errorf("deleting rule %s: %w", ruleID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func capValue(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
