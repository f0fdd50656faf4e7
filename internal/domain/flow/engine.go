package flow

import (
	"fmt"
	"time"

	"github.com/finflow/expense-approval/internal/domain/rule"
)

// Engine is the step progression state machine. It mutates flows in place;
// callers are responsible for per-flow mutual exclusion (see the application
// service), which makes each transition atomic as observed from outside.
type Engine struct {
	now func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides the engine clock, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a progression engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result describes what a single transition did, so callers can persist the
// flow and emit the matching events without re-deriving the outcome.
type Result struct {
	Status           Status      // flow status after the transition
	StepResolved     bool        // the step left pending/escalated state
	StepStatus       StepStatus  // status of the acted-on step
	AdvancedTo       int         // index of the newly pending step, -1 when none
	PendingApprovers []string    // approvers of the newly pending step
	Applied          rule.Action // conditional action applied, empty when none
	Escalated        bool        // an escalation fired during this transition
	EscalationTarget string
	Informational    bool // vote recorded on an escalated step with no effect
}

// stepOutcome is the tally verdict for the current step.
type stepOutcome int

const (
	outcomePending stepOutcome = iota
	outcomeApproved
	outcomeRejected
	// outcomeFlowApproved short-circuits the remaining steps, used by the
	// specific-approver override.
	outcomeFlowApproved
)

// Vote applies one approver decision to the flow's current step.
//
// The transition sequence is: usage checks, record the vote, conditional rule
// evaluation (which takes precedence over tallying), then normal resolution
// per the frozen rule's logic type. A rejected step rejects the whole flow;
// an approved step advances the flow or, on the last step, approves it.
func (e *Engine) Vote(f *Flow, stepIndex int, approverID string, decision Decision, comment string) (*Result, error) {
	if f.Status != StatusActive {
		return nil, fmt.Errorf("%w: flow %s is %s", ErrFlowTerminal, f.ID, f.Status)
	}
	if stepIndex != f.CurrentStep {
		return nil, fmt.Errorf("%w: step %d, current is %d", ErrNotCurrentStep, stepIndex, f.CurrentStep)
	}
	step := f.Current()
	if !step.HasApprover(approverID) {
		return nil, fmt.Errorf("%w: %s on step %d", ErrNotAnApprover, approverID, step.Number)
	}
	if _, voted := step.Votes[approverID]; voted {
		return nil, fmt.Errorf("%w: %s on step %d", ErrDuplicateVote, approverID, step.Number)
	}

	now := e.now()
	step.Votes[approverID] = Vote{
		ApproverID: approverID,
		Decision:   decision,
		Comment:    comment,
		VotedAt:    now,
	}
	f.UpdatedAt = now

	res := &Result{Status: f.Status, StepStatus: step.Status, AdvancedTo: -1}

	// Conditional rules take precedence over normal tallying.
	condRules, op := f.Rule.Logic.ConditionalRules()
	if len(condRules) > 0 {
		fired, err := EvaluateConditional(condRules, op, f.Expense)
		if err != nil {
			return nil, err
		}
		if fired != nil {
			if terminal := e.applyConditionalAction(f, step, fired, res, now); terminal {
				return res, nil
			}
		}
	}

	// Ordinary votes on an escalated step are recorded but informational;
	// only the escalation target's decision can still resolve it.
	if step.Status == StepEscalated {
		if approverID != step.EscalationTarget {
			res.Informational = true
			return res, nil
		}
		e.resolveStep(f, step, decisionOutcome(decision), res, now)
		return res, nil
	}

	outcome, err := e.tallyStep(f, step, decision)
	if err != nil {
		return nil, err
	}
	e.resolveStep(f, step, outcome, res, now)
	return res, nil
}

// Cancel is the one-way terminal transition used when the expense is
// withdrawn. Late votes and ticks on a cancelled flow fail with
// ErrFlowTerminal.
func (e *Engine) Cancel(f *Flow) error {
	if f.Status.IsTerminal() {
		return fmt.Errorf("%w: flow %s is %s", ErrFlowTerminal, f.ID, f.Status)
	}
	now := e.now()
	f.Status = StatusCancelled
	f.UpdatedAt = now
	f.ResolvedAt = &now
	return nil
}

// applyConditionalAction applies a fired conditional rule. auto_approve,
// auto_reject and skip_step short-circuit the transition (terminal=true);
// require_additional widens the current step and lets tallying proceed with
// the larger approver set.
func (e *Engine) applyConditionalAction(f *Flow, step *Step, fired *rule.ConditionalRule, res *Result, now time.Time) (terminal bool) {
	res.Applied = fired.Action

	switch fired.Action {
	case rule.ActionAutoApprove:
		e.resolveStep(f, step, outcomeFlowApproved, res, now)
		return true
	case rule.ActionAutoReject:
		e.resolveStep(f, step, outcomeRejected, res, now)
		return true
	case rule.ActionSkipStep:
		step.Status = StepSkipped
		res.StepResolved = true
		res.StepStatus = StepSkipped
		e.advance(f, res, now)
		return true
	case rule.ActionRequireAdditional:
		step.AddApprovers(fired.AdditionalApprovers...)
		return false
	default:
		return false
	}
}

// tallyStep resolves the current step per the frozen logic type.
func (e *Engine) tallyStep(f *Flow, step *Step, incoming Decision) (stepOutcome, error) {
	logic := f.Rule.Logic
	approve, reject := step.tally()
	total := len(step.Approvers)

	switch logic.Type {
	case rule.LogicSequential:
		// One expected approver per step: the lone vote resolves it.
		return decisionOutcome(incoming), nil

	case rule.LogicHierarchical:
		if logic.Hierarchical.RequireAll {
			return tallyRequireAll(approve, reject, total), nil
		}
		return tallyMajority(approve, reject, total), nil

	case rule.LogicPercentage:
		return tallyPercentage(approve, reject, total, logic.Percentage.Percentage), nil

	case rule.LogicSpecificApprover:
		// The designated approver's approval is dispositive for the whole
		// flow. Their rejection alone resolves nothing; everyone's votes
		// (theirs included) keep tallying under majority as the secondary
		// policy.
		if v, ok := step.Votes[logic.SpecificApprover.ApproverID]; ok && v.Decision == DecisionApprove {
			return outcomeFlowApproved, nil
		}
		return tallyMajority(approve, reject, total), nil

	case rule.LogicHybrid, rule.LogicConditional:
		// Conditional rules have already had their chance; tallying falls
		// back to all-required consensus.
		return tallyRequireAll(approve, reject, total), nil

	default:
		return outcomePending, fmt.Errorf("%w: unknown approval logic type %q", rule.ErrConfiguration, logic.Type)
	}
}

func tallyRequireAll(approve, reject, total int) stepOutcome {
	if reject > 0 {
		return outcomeRejected // fail-fast, no waiting for remaining votes
	}
	if approve == total {
		return outcomeApproved
	}
	return outcomePending
}

// tallyMajority resolves on a strict majority (>50%) either way.
func tallyMajority(approve, reject, total int) stepOutcome {
	if approve*2 > total {
		return outcomeApproved
	}
	if reject*2 > total {
		return outcomeRejected
	}
	return outcomePending
}

// tallyPercentage approves once approve/total >= pct/100 and rejects as soon
// as the threshold is mathematically out of reach for the remaining voters.
func tallyPercentage(approve, reject, total int, pct float64) stepOutcome {
	required := pct * float64(total)
	if float64(approve*100) >= required {
		return outcomeApproved
	}
	possible := approve + (total - approve - reject)
	if float64(possible*100) < required {
		return outcomeRejected
	}
	return outcomePending
}

// resolveStep applies a tally outcome: finalize the flow, advance it, or
// leave the step pending.
func (e *Engine) resolveStep(f *Flow, step *Step, outcome stepOutcome, res *Result, now time.Time) {
	switch outcome {
	case outcomePending:
		return

	case outcomeRejected:
		step.Status = StepRejected
		res.StepResolved = true
		res.StepStatus = StepRejected
		e.finalize(f, StatusRejected, res, now)

	case outcomeApproved:
		step.Status = StepApproved
		res.StepResolved = true
		res.StepStatus = StepApproved
		e.advance(f, res, now)

	case outcomeFlowApproved:
		step.Status = StepApproved
		res.StepResolved = true
		res.StepStatus = StepApproved
		e.finalize(f, StatusApproved, res, now)
	}
}

// advance moves the flow to the next actionable step, or approves it when the
// resolved step was the last one. The next step's escalation clock starts on
// entry, not at flow creation.
func (e *Engine) advance(f *Flow, res *Result, now time.Time) {
	next := f.CurrentStep + 1
	for next < len(f.Steps) && f.Steps[next].Status == StepSkipped {
		next++
	}
	if next >= len(f.Steps) {
		e.finalize(f, StatusApproved, res, now)
		return
	}

	f.CurrentStep = next
	enterStep(f, next, now)
	res.AdvancedTo = next
	res.PendingApprovers = append([]string(nil), f.Steps[next].Approvers...)
	res.Status = f.Status
}

func (e *Engine) finalize(f *Flow, status Status, res *Result, now time.Time) {
	f.Status = status
	f.UpdatedAt = now
	f.ResolvedAt = &now
	res.Status = status
}

func decisionOutcome(d Decision) stepOutcome {
	if d == DecisionApprove {
		return outcomeApproved
	}
	return outcomeRejected
}
