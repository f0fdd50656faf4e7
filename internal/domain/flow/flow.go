// Package flow implements the approval workflow instance: flow and step
// state, flow materialization from a rule, the vote-driven step progression
// state machine, conditional rule evaluation and time-driven escalation.
package flow

import (
	"time"

	"github.com/finflow/expense-approval/internal/domain/expense"
	"github.com/finflow/expense-approval/internal/domain/rule"
)

// Status is the lifecycle status of a flow.
type Status string

const (
	StatusActive    Status = "active"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

// StepStatus is the status of one step instance.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepApproved  StepStatus = "approved"
	StepRejected  StepStatus = "rejected"
	StepSkipped   StepStatus = "skipped"
	StepEscalated StepStatus = "escalated"
)

// Decision is an approver's verdict on a step.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Vote is one recorded approver decision.
type Vote struct {
	ApproverID string    `json:"approver_id"`
	Decision   Decision  `json:"decision"`
	Comment    string    `json:"comment,omitempty"`
	VotedAt    time.Time `json:"voted_at"`
}

// Step is a concrete step instance with its approver set resolved.
type Step struct {
	Number      int             `json:"number"`
	Approvers   []string        `json:"approvers"` // resolved, deduplicated
	Votes       map[string]Vote `json:"votes"`
	Status      StepStatus      `json:"status"`
	Required    bool            `json:"required"`
	CanEscalate bool            `json:"can_escalate"`

	// StartedAt and Deadline are set when the step becomes the current one,
	// not at flow creation; escalation clocks start on step entry.
	StartedAt *time.Time `json:"started_at,omitempty"`
	Deadline  *time.Time `json:"deadline,omitempty"`

	// EscalatedAt marks the step as escalated; escalation is monotonic and
	// survives later resolution of the step.
	EscalatedAt      *time.Time `json:"escalated_at,omitempty"`
	EscalationTarget string     `json:"escalation_target,omitempty"`
}

// HasApprover reports whether userID is in the step's resolved approver set.
func (s *Step) HasApprover(userID string) bool {
	for _, a := range s.Approvers {
		if a == userID {
			return true
		}
	}
	return false
}

// AddApprovers widens the approver set in place, skipping duplicates.
// Steps are only ever widened, never narrowed, while in progress.
func (s *Step) AddApprovers(userIDs ...string) {
	for _, id := range userIDs {
		if id != "" && !s.HasApprover(id) {
			s.Approvers = append(s.Approvers, id)
		}
	}
}

func (s *Step) tally() (approve, reject int) {
	for _, v := range s.Votes {
		switch v.Decision {
		case DecisionApprove:
			approve++
		case DecisionReject:
			reject++
		}
	}
	return approve, reject
}

// RuleSnapshot is the frozen copy of the rule settings a flow was built from.
// Later edits to the source rule never affect in-flight flows.
type RuleSnapshot struct {
	RuleID     string                `json:"rule_id"`
	RuleName   string                `json:"rule_name"`
	Logic      rule.ApprovalLogic    `json:"logic"`
	Escalation rule.EscalationPolicy `json:"escalation"`
}

// Flow is one instantiated approval process for a single expense. It is
// mutated only by the progression engine and the escalation tick, and is
// immutable once its status is terminal.
type Flow struct {
	ID          string           `json:"id"`
	Expense     expense.Snapshot `json:"expense"`
	Rule        RuleSnapshot     `json:"rule"`
	Steps       []*Step          `json:"steps"`
	CurrentStep int              `json:"current_step"`
	Status      Status           `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
}

// Current returns the step at CurrentStep, or nil for an empty flow.
func (f *Flow) Current() *Step {
	if f.CurrentStep < 0 || f.CurrentStep >= len(f.Steps) {
		return nil
	}
	return f.Steps[f.CurrentStep]
}

// PendingApprovers returns the approvers of the current step who have not
// voted yet, or nil when the flow is terminal.
func (f *Flow) PendingApprovers() []string {
	if f.Status.IsTerminal() {
		return nil
	}
	step := f.Current()
	if step == nil {
		return nil
	}
	var out []string
	for _, a := range step.Approvers {
		if _, voted := step.Votes[a]; !voted {
			out = append(out, a)
		}
	}
	return out
}

// HistoryEntry is one immutable record in a flow's audit trail.
type HistoryEntry struct {
	ID         int64     `json:"id"`
	FlowID     string    `json:"flow_id"`
	StepNumber int       `json:"step_number"`
	ActorID    string    `json:"actor_id,omitempty"`
	Action     string    `json:"action"` // created | vote | step_resolved | advanced | escalated | conditional | resolved | cancelled
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
