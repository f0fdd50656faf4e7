package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/finflow/expense-approval/internal/domain/flow"
)

// FlowRepository handles approval flow database operations. The expense
// snapshot, frozen rule settings and step instances are stored as JSON
// columns; the columns queried by the engine (status, current step) are flat.
type FlowRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFlowRepository creates a new flow repository
func NewFlowRepository(db *sql.DB, logger *zap.Logger) *FlowRepository {
	return &FlowRepository{db: db, logger: logger}
}

// Create persists a newly built flow
func (r *FlowRepository) Create(ctx context.Context, f *flow.Flow) error {
	expenseJSON, ruleJSON, stepsJSON, err := marshalFlow(f)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO approval_flows (
			id, expense_id, company_id, status, current_step,
			expense, rule_snapshot, steps, created_at, updated_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		f.ID, f.Expense.ExpenseID, f.Expense.CompanyID, f.Status, f.CurrentStep,
		expenseJSON, ruleJSON, stepsJSON, f.CreatedAt, f.UpdatedAt, f.ResolvedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create flow", zap.Error(err), zap.String("flow_id", f.ID))
		return fmt.Errorf("failed to create flow: %w", err)
	}
	return nil
}

// GetByID retrieves a flow by ID
func (r *FlowRepository) GetByID(ctx context.Context, id string) (*flow.Flow, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, status, current_step, expense, rule_snapshot, steps,
		       created_at, updated_at, resolved_at
		FROM approval_flows WHERE id = ?
	`, id)

	f, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", flow.ErrFlowNotFound, id)
	}
	return f, err
}

// Update persists the flow's mutable state after a vote, tick or cancellation
func (r *FlowRepository) Update(ctx context.Context, f *flow.Flow) error {
	_, ruleJSON, stepsJSON, err := marshalFlow(f)
	if err != nil {
		return err
	}

	query := `
		UPDATE approval_flows
		SET status = ?, current_step = ?, rule_snapshot = ?, steps = ?,
		    updated_at = ?, resolved_at = ?
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		f.Status, f.CurrentStep, ruleJSON, stepsJSON, f.UpdatedAt, f.ResolvedAt, f.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update flow", zap.Error(err), zap.String("flow_id", f.ID))
		return fmt.Errorf("failed to update flow: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", flow.ErrFlowNotFound, f.ID)
	}
	return nil
}

// ListActive returns up to limit flows still in active state, oldest first,
// for the escalation poller.
func (r *FlowRepository) ListActive(ctx context.Context, limit int) ([]*flow.Flow, error) {
	return r.list(ctx, `
		SELECT id, status, current_step, expense, rule_snapshot, steps,
		       created_at, updated_at, resolved_at
		FROM approval_flows
		WHERE status = ?
		ORDER BY created_at ASC
		LIMIT ?
	`, flow.StatusActive, limit)
}

// List returns a paginated list of flows, newest first
func (r *FlowRepository) List(ctx context.Context, limit, offset int) ([]*flow.Flow, error) {
	return r.list(ctx, `
		SELECT id, status, current_step, expense, rule_snapshot, steps,
		       created_at, updated_at, resolved_at
		FROM approval_flows
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
}

func (r *FlowRepository) list(ctx context.Context, query string, args ...interface{}) ([]*flow.Flow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list flows", zap.Error(err))
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	defer rows.Close()

	var flows []*flow.Flow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

func scanFlow(row scanner) (*flow.Flow, error) {
	var f flow.Flow
	var expenseJSON, ruleJSON, stepsJSON string

	err := row.Scan(
		&f.ID, &f.Status, &f.CurrentStep,
		&expenseJSON, &ruleJSON, &stepsJSON,
		&f.CreatedAt, &f.UpdatedAt, &f.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(expenseJSON), &f.Expense); err != nil {
		return nil, fmt.Errorf("unmarshal flow expense: %w", err)
	}
	if err := json.Unmarshal([]byte(ruleJSON), &f.Rule); err != nil {
		return nil, fmt.Errorf("unmarshal flow rule snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(stepsJSON), &f.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal flow steps: %w", err)
	}
	for _, step := range f.Steps {
		if step.Votes == nil {
			step.Votes = make(map[string]flow.Vote)
		}
	}
	return &f, nil
}

func marshalFlow(f *flow.Flow) (expenseJSON, ruleJSON, stepsJSON string, err error) {
	e, err := json.Marshal(f.Expense)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal flow expense: %w", err)
	}
	r, err := json.Marshal(f.Rule)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal flow rule snapshot: %w", err)
	}
	s, err := json.Marshal(f.Steps)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal flow steps: %w", err)
	}
	return string(e), string(r), string(s), nil
}
