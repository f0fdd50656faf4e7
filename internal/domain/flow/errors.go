package flow

import "errors"

var (
	// ErrUnresolvableStep is returned when a required step's selectors resolve
	// to an empty approver set at build time. The flow is never created; the
	// caller must fall back to a default rule or alert an admin.
	ErrUnresolvableStep = errors.New("approval step resolves to no approvers")

	// ErrNotCurrentStep is returned for votes aimed at a step other than the
	// flow's current one.
	ErrNotCurrentStep = errors.New("vote is not for the current step")

	// ErrNotAnApprover is returned when the voter is not in the current
	// step's resolved approver set.
	ErrNotAnApprover = errors.New("voter is not an approver for this step")

	// ErrDuplicateVote is returned when an approver votes twice on the same
	// step. Resubmission is an error, never a silent overwrite.
	ErrDuplicateVote = errors.New("approver has already voted on this step")

	// ErrFlowTerminal is returned for votes, ticks or cancellations on a flow
	// that has already reached a terminal status.
	ErrFlowTerminal = errors.New("flow is already terminal")

	// ErrFlowNotFound is returned by lookups for unknown flow IDs.
	ErrFlowNotFound = errors.New("flow not found")
)
