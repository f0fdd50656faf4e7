package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/finflow/expense-approval/internal/domain/flow"
)

// HistoryRepository handles the append-only flow audit trail
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{db: db, logger: logger}
}

// Append writes one audit row
func (r *HistoryRepository) Append(ctx context.Context, entry *flow.HistoryEntry) error {
	query := `
		INSERT INTO flow_history (flow_id, step_number, actor_id, action, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	res, err := r.db.ExecContext(ctx, query,
		entry.FlowID, entry.StepNumber, entry.ActorID, entry.Action, entry.Detail, entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append history", zap.Error(err), zap.String("flow_id", entry.FlowID))
		return fmt.Errorf("failed to append history: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListByFlow returns a flow's audit trail in insertion order
func (r *HistoryRepository) ListByFlow(ctx context.Context, flowID string) ([]*flow.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, flow_id, step_number, actor_id, action, detail, created_at
		FROM flow_history
		WHERE flow_id = ?
		ORDER BY id ASC
	`, flowID)
	if err != nil {
		r.logger.Error("Failed to list history", zap.Error(err), zap.String("flow_id", flowID))
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []*flow.HistoryEntry
	for rows.Next() {
		var e flow.HistoryEntry
		if err := rows.Scan(&e.ID, &e.FlowID, &e.StepNumber, &e.ActorID, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
