// Package port declares the persistence and directory interfaces the
// application layer depends on. Concrete implementations live under
// internal/repository and internal/directory.
package port

import (
	"context"

	"github.com/finflow/expense-approval/internal/domain/flow"
	"github.com/finflow/expense-approval/internal/domain/rule"
)

// RuleRepository persists approval rule configuration.
type RuleRepository interface {
	Create(ctx context.Context, r *rule.Rule) error
	GetByID(ctx context.Context, id string) (*rule.Rule, error)
	ListActive(ctx context.Context, companyID string) ([]*rule.Rule, error)
	List(ctx context.Context, companyID string, limit, offset int) ([]*rule.Rule, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// FlowRepository persists approval flow instances.
type FlowRepository interface {
	Create(ctx context.Context, f *flow.Flow) error
	GetByID(ctx context.Context, id string) (*flow.Flow, error)
	Update(ctx context.Context, f *flow.Flow) error
	ListActive(ctx context.Context, limit int) ([]*flow.Flow, error)
	List(ctx context.Context, limit, offset int) ([]*flow.Flow, error)
}

// HistoryRepository appends to and reads a flow's immutable audit trail.
type HistoryRepository interface {
	Append(ctx context.Context, entry *flow.HistoryEntry) error
	ListByFlow(ctx context.Context, flowID string) ([]*flow.HistoryEntry, error)
}
