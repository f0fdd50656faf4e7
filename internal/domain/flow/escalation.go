package flow

import "fmt"

// Tick evaluates time-based escalation for the flow's current step. It is
// intended to be invoked periodically per active flow, under the same
// per-flow exclusion as Vote so a vote and a tick can never race.
//
// A nil result means nothing fired: the step cannot escalate, its deadline
// has not passed, or it already escalated (the tick is idempotent). On
// firing, the step becomes escalated; if the frozen policy names a target,
// that user's decision becomes dispositive for the step and they are added
// to the approver set so their vote passes the usual checks. A target who
// already voted as an ordinary approver has spoken: their recorded decision
// resolves the step on firing, so the flow never waits for a vote the
// duplicate guard would reject. Without a target the escalation only
// surfaces as an event and the flow stays active in a flagged state.
// Escalation is monotonic: the step never reverts to normal resolution.
func (e *Engine) Tick(f *Flow) (*Result, error) {
	if f.Status != StatusActive {
		return nil, fmt.Errorf("%w: flow %s is %s", ErrFlowTerminal, f.ID, f.Status)
	}

	step := f.Current()
	if step == nil || step.Status != StepPending {
		return nil, nil
	}
	if !step.CanEscalate || step.Deadline == nil {
		return nil, nil
	}

	now := e.now()
	if now.Before(*step.Deadline) {
		return nil, nil
	}

	step.Status = StepEscalated
	step.EscalatedAt = &now
	f.UpdatedAt = now

	res := &Result{
		Status:     f.Status,
		StepStatus: StepEscalated,
		AdvancedTo: -1,
		Escalated:  true,
	}

	if target := f.Rule.Escalation.EscalateTo; target != "" {
		step.EscalationTarget = target
		step.AddApprovers(target)
		res.EscalationTarget = target
		if v, ok := step.Votes[target]; ok {
			e.resolveStep(f, step, decisionOutcome(v.Decision), res, now)
		}
	}

	return res, nil
}
