package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finflow/expense-approval/internal/domain/expense"
	"github.com/finflow/expense-approval/internal/domain/rule"
)

// Directory resolves role and department membership at flow-build time.
// Implementations must return only active users. The engine resolves
// hierarchical selectors exactly once, at build time; membership changes
// after that never alter an in-flight flow's approver sets.
type Directory interface {
	UsersByRole(ctx context.Context, companyID, role string) ([]string, error)
	DepartmentManagers(ctx context.Context, companyID, department string) ([]string, error)
}

// Directory roles understood by the hierarchical selectors.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
)

// Builder materializes approval flows from a selected rule.
type Builder struct {
	dir Directory
	now func() time.Time
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBuilderClock overrides the clock, for tests.
func WithBuilderClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// NewBuilder creates a flow builder backed by the given directory.
func NewBuilder(dir Directory, opts ...BuilderOption) *Builder {
	b := &Builder{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build materializes a flow for the expense from the given rule. Approver
// selectors are expanded into concrete, deduplicated user sets; the rule's
// settings are deep-copied into the flow so later rule edits cannot reach it.
// A required step resolving to an empty set fails with ErrUnresolvableStep;
// an optional one is marked skipped up front. The first actionable step is
// made pending and, when it can escalate, its deadline clock starts now.
func (b *Builder) Build(ctx context.Context, e expense.Snapshot, r *rule.Rule) (*Flow, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	frozen := r.Clone()
	now := b.now()

	f := &Flow{
		ID:      uuid.NewString(),
		Expense: e,
		Rule: RuleSnapshot{
			RuleID:     frozen.ID,
			RuleName:   frozen.Name,
			Logic:      frozen.Logic,
			Escalation: frozen.Escalation,
		},
		CurrentStep: 0,
		Status:      StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	actionable := 0
	for _, tmpl := range frozen.Steps {
		approvers, err := b.resolveSelectors(ctx, e.CompanyID, tmpl.Selectors)
		if err != nil {
			return nil, err
		}

		step := &Step{
			Number:      tmpl.Number,
			Approvers:   approvers,
			Votes:       make(map[string]Vote),
			Required:    tmpl.Required,
			CanEscalate: tmpl.CanEscalate,
		}

		if len(approvers) == 0 {
			if tmpl.Required {
				return nil, fmt.Errorf("%w: step %d of rule %q (required)", ErrUnresolvableStep, tmpl.Number, frozen.Name)
			}
			step.Status = StepSkipped
		} else {
			actionable++
		}

		f.Steps = append(f.Steps, step)
	}

	if actionable == 0 {
		return nil, fmt.Errorf("%w: rule %q has no actionable steps", ErrUnresolvableStep, frozen.Name)
	}

	// Position at the first non-skipped step and start its clock.
	for f.Steps[f.CurrentStep].Status == StepSkipped {
		f.CurrentStep++
	}
	enterStep(f, f.CurrentStep, now)

	return f, nil
}

// resolveSelectors expands a step's selectors into a deduplicated user set,
// preserving first-seen order.
func (b *Builder) resolveSelectors(ctx context.Context, companyID string, selectors []rule.ApproverSelector) ([]string, error) {
	var resolved []string
	seen := make(map[string]bool)

	add := func(ids ...string) {
		for _, id := range ids {
			if id != "" && !seen[id] {
				seen[id] = true
				resolved = append(resolved, id)
			}
		}
	}

	for _, sel := range selectors {
		switch sel.Kind {
		case rule.SelectorUser:
			add(sel.UserID)
		case rule.SelectorAllAdmins:
			ids, err := b.dir.UsersByRole(ctx, companyID, RoleAdmin)
			if err != nil {
				return nil, fmt.Errorf("resolve all admins: %w", err)
			}
			add(ids...)
		case rule.SelectorAllManagers:
			ids, err := b.dir.UsersByRole(ctx, companyID, RoleManager)
			if err != nil {
				return nil, fmt.Errorf("resolve all managers: %w", err)
			}
			add(ids...)
		case rule.SelectorDepartmentManagers:
			ids, err := b.dir.DepartmentManagers(ctx, companyID, sel.Department)
			if err != nil {
				return nil, fmt.Errorf("resolve %s managers: %w", sel.Department, err)
			}
			add(ids...)
		default:
			return nil, fmt.Errorf("%w: unknown selector kind %q", rule.ErrConfiguration, sel.Kind)
		}
	}

	return resolved, nil
}

// enterStep marks a step pending and starts its escalation clock.
func enterStep(f *Flow, index int, now time.Time) {
	step := f.Steps[index]
	step.Status = StepPending
	started := now
	step.StartedAt = &started
	if step.CanEscalate && f.Rule.Escalation.Enabled {
		deadline := now.Add(time.Duration(f.Rule.Escalation.TimeoutHours) * time.Hour)
		step.Deadline = &deadline
	}
}
