package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/finflow/expense-approval/internal/application/port"
	"github.com/finflow/expense-approval/internal/domain/rule"
)

// RuleService manages approval rule configuration. Mutation is admin-facing
// plumbing; the engine itself only ever reads the active rule set.
type RuleService interface {
	CreateRule(ctx context.Context, r *rule.Rule) (*rule.Rule, error)
	GetRule(ctx context.Context, id string) (*rule.Rule, error)
	ListRules(ctx context.Context, companyID string, limit, offset int) ([]*rule.Rule, error)
	SetRuleActive(ctx context.Context, id string, active bool) error
}

type ruleServiceImpl struct {
	ruleRepo port.RuleRepository
	logger   Logger
}

// NewRuleService creates a new RuleService
func NewRuleService(ruleRepo port.RuleRepository, logger Logger) RuleService {
	return &ruleServiceImpl{ruleRepo: ruleRepo, logger: logger}
}

// CreateRule validates and persists a new rule. Configuration errors are
// surfaced to the authoring admin, never silently defaulted.
func (s *ruleServiceImpl) CreateRule(ctx context.Context, r *rule.Rule) (*rule.Rule, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	if err := s.ruleRepo.Create(ctx, r); err != nil {
		s.logger.Error("Failed to create rule", "error", err, "name", r.Name)
		return nil, err
	}

	s.logger.Info("Rule created", "rule_id", r.ID, "name", r.Name, "priority", r.Priority)
	return r, nil
}

func (s *ruleServiceImpl) GetRule(ctx context.Context, id string) (*rule.Rule, error) {
	return s.ruleRepo.GetByID(ctx, id)
}

func (s *ruleServiceImpl) ListRules(ctx context.Context, companyID string, limit, offset int) ([]*rule.Rule, error) {
	return s.ruleRepo.List(ctx, companyID, limit, offset)
}

// SetRuleActive toggles a rule. In-flight flows keep their frozen settings.
func (s *ruleServiceImpl) SetRuleActive(ctx context.Context, id string, active bool) error {
	if err := s.ruleRepo.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.logger.Info("Rule toggled", "rule_id", id, "active", active)
	return nil
}
