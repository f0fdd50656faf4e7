// Package repository implements SQLite-backed persistence for approval rules,
// flows and flow history.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/finflow/expense-approval/internal/domain/rule"
)

// ErrRuleNotFound is returned by lookups for unknown rule IDs.
var ErrRuleNotFound = errors.New("rule not found")

// RuleRepository handles approval rule database operations
type RuleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *sql.DB, logger *zap.Logger) *RuleRepository {
	return &RuleRepository{db: db, logger: logger}
}

// Create persists a new approval rule. The rule is validated first so a
// malformed configuration is rejected before it can ever select a flow.
func (r *RuleRepository) Create(ctx context.Context, ar *rule.Rule) error {
	if err := ar.Validate(); err != nil {
		return err
	}

	conditions, logic, steps, escalation, err := marshalRule(ar)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO approval_rules (
			id, company_id, name, priority, conditions, logic, steps,
			escalation, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		ar.ID, ar.CompanyID, ar.Name, ar.Priority,
		conditions, logic, steps, escalation,
		ar.IsActive, ar.CreatedAt, ar.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create rule", zap.Error(err), zap.String("name", ar.Name))
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// GetByID retrieves a rule by ID
func (r *RuleRepository) GetByID(ctx context.Context, id string) (*rule.Rule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, company_id, name, priority, conditions, logic, steps,
		       escalation, is_active, created_at, updated_at
		FROM approval_rules WHERE id = ?
	`, id)

	ar, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return ar, err
}

// ListActive returns the company's active rules sorted for selection:
// ascending priority, creation time as the deterministic tiebreak.
func (r *RuleRepository) ListActive(ctx context.Context, companyID string) ([]*rule.Rule, error) {
	return r.list(ctx, `
		SELECT id, company_id, name, priority, conditions, logic, steps,
		       escalation, is_active, created_at, updated_at
		FROM approval_rules
		WHERE company_id = ? AND is_active = 1
		ORDER BY priority ASC, created_at ASC
	`, companyID)
}

// List returns a paginated list of the company's rules, active or not.
func (r *RuleRepository) List(ctx context.Context, companyID string, limit, offset int) ([]*rule.Rule, error) {
	return r.list(ctx, `
		SELECT id, company_id, name, priority, conditions, logic, steps,
		       escalation, is_active, created_at, updated_at
		FROM approval_rules
		WHERE company_id = ?
		ORDER BY priority ASC, created_at ASC
		LIMIT ? OFFSET ?
	`, companyID, limit, offset)
}

// SetActive toggles a rule without touching in-flight flows, which hold a
// frozen copy of the settings.
func (r *RuleRepository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE approval_rules SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		active, id)
	if err != nil {
		return fmt.Errorf("failed to toggle rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return nil
}

func (r *RuleRepository) list(ctx context.Context, query string, args ...interface{}) ([]*rule.Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list rules", zap.Error(err))
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*rule.Rule
	for rows.Next() {
		ar, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, ar)
	}
	return rules, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row scanner) (*rule.Rule, error) {
	var ar rule.Rule
	var conditions, logic, steps, escalation string

	err := row.Scan(
		&ar.ID, &ar.CompanyID, &ar.Name, &ar.Priority,
		&conditions, &logic, &steps, &escalation,
		&ar.IsActive, &ar.CreatedAt, &ar.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(conditions), &ar.Conditions); err != nil {
		return nil, fmt.Errorf("unmarshal rule conditions: %w", err)
	}
	if err := json.Unmarshal([]byte(logic), &ar.Logic); err != nil {
		return nil, fmt.Errorf("unmarshal rule logic: %w", err)
	}
	if err := json.Unmarshal([]byte(steps), &ar.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal rule steps: %w", err)
	}
	if err := json.Unmarshal([]byte(escalation), &ar.Escalation); err != nil {
		return nil, fmt.Errorf("unmarshal rule escalation: %w", err)
	}
	return &ar, nil
}

func marshalRule(ar *rule.Rule) (conditions, logic, steps, escalation string, err error) {
	c, err := json.Marshal(ar.Conditions)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal rule conditions: %w", err)
	}
	l, err := json.Marshal(ar.Logic)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal rule logic: %w", err)
	}
	s, err := json.Marshal(ar.Steps)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal rule steps: %w", err)
	}
	e, err := json.Marshal(ar.Escalation)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal rule escalation: %w", err)
	}
	return string(c), string(l), string(s), string(e), nil
}
