// Package rule defines approval rule configuration: applicability conditions,
// the approval logic union, step templates and escalation policy, plus the
// pure evaluation used to select the rule that applies to an expense.
package rule

import (
	"fmt"
	"time"
)

// SelectorKind names how a step template references its approvers.
type SelectorKind string

const (
	// SelectorUser references one explicit user ID.
	SelectorUser SelectorKind = "user"
	// SelectorAllAdmins expands to every active user with the admin role.
	SelectorAllAdmins SelectorKind = "all_admins"
	// SelectorAllManagers expands to every active user with the manager role.
	SelectorAllManagers SelectorKind = "all_managers"
	// SelectorDepartmentManagers expands to the managers of one department.
	SelectorDepartmentManagers SelectorKind = "department_managers"
)

// ApproverSelector is one (possibly hierarchical) approver reference in a step
// template. Hierarchical selectors are resolved to concrete user IDs exactly
// once, at flow-build time.
type ApproverSelector struct {
	Kind       SelectorKind `json:"kind"`
	UserID     string       `json:"user_id,omitempty"`
	Department string       `json:"department,omitempty"`
}

// Step is one step template inside a rule.
type Step struct {
	Number      int                `json:"number"`
	Selectors   []ApproverSelector `json:"selectors"`
	Required    bool               `json:"required"`
	CanEscalate bool               `json:"can_escalate"`
}

// EscalationPolicy configures time-based escalation for steps that allow it.
// An empty EscalateTo means escalation only surfaces as an event.
type EscalationPolicy struct {
	Enabled      bool   `json:"enabled"`
	TimeoutHours int    `json:"timeout_hours"`
	EscalateTo   string `json:"escalate_to,omitempty"`
}

// Rule is an approval rule as authored by a company admin. It is treated as
// immutable once a flow has been built from it: flows carry a frozen copy of
// the relevant settings, never a live reference.
type Rule struct {
	ID         string           `json:"id"`
	CompanyID  string           `json:"company_id"`
	Name       string           `json:"name"`
	Priority   int              `json:"priority"` // lower = evaluated first
	Conditions Conditions       `json:"conditions"`
	Logic      ApprovalLogic    `json:"logic"`
	Steps      []Step           `json:"steps"`
	Escalation EscalationPolicy `json:"escalation"`
	IsActive   bool             `json:"is_active"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Validate checks the structural invariants of a rule: at least one step,
// step numbers forming a contiguous 1..N sequence, each step carrying at
// least one selector, and logic settings matching the logic type.
func (r *Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: rule name is required", ErrConfiguration)
	}
	if len(r.Steps) == 0 {
		return fmt.Errorf("%w: rule %q has no approval steps", ErrConfiguration, r.Name)
	}
	for i, s := range r.Steps {
		if s.Number != i+1 {
			return fmt.Errorf("%w: rule %q step numbers must be contiguous from 1, got %d at position %d",
				ErrConfiguration, r.Name, s.Number, i)
		}
		if len(s.Selectors) == 0 {
			return fmt.Errorf("%w: rule %q step %d has no approver selectors", ErrConfiguration, r.Name, s.Number)
		}
		for _, sel := range s.Selectors {
			if err := sel.validate(); err != nil {
				return fmt.Errorf("rule %q step %d: %w", r.Name, s.Number, err)
			}
		}
	}
	if r.Escalation.Enabled && r.Escalation.TimeoutHours <= 0 {
		return fmt.Errorf("%w: rule %q escalation enabled with non-positive timeout", ErrConfiguration, r.Name)
	}
	return r.Logic.Validate()
}

func (s ApproverSelector) validate() error {
	switch s.Kind {
	case SelectorUser:
		if s.UserID == "" {
			return fmt.Errorf("%w: user selector without user id", ErrConfiguration)
		}
	case SelectorDepartmentManagers:
		if s.Department == "" {
			return fmt.Errorf("%w: department_managers selector without department", ErrConfiguration)
		}
	case SelectorAllAdmins, SelectorAllManagers:
	default:
		return fmt.Errorf("%w: unknown selector kind %q", ErrConfiguration, s.Kind)
	}
	return nil
}

// Clone returns a deep copy of the rule, used to freeze settings into flows.
func (r *Rule) Clone() *Rule {
	out := *r
	out.Conditions = r.Conditions.Clone()
	out.Logic = r.Logic.Clone()
	out.Steps = make([]Step, len(r.Steps))
	for i, s := range r.Steps {
		cs := s
		cs.Selectors = append([]ApproverSelector(nil), s.Selectors...)
		out.Steps[i] = cs
	}
	return &out
}
