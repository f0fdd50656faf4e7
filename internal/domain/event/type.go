package event

// Type identifies the type of domain event
type Type string

const (
	TypeFlowCreated   Type = "flow.created"
	TypeVoteRecorded  Type = "flow.vote_recorded"
	TypeStepAdvanced  Type = "flow.step_advanced"
	TypeFlowResolved  Type = "flow.resolved"
	TypeEscalated     Type = "flow.escalated"
	TypeFlowCancelled Type = "flow.cancelled"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeFlowCreated,
		TypeVoteRecorded,
		TypeStepAdvanced,
		TypeFlowResolved,
		TypeEscalated,
		TypeFlowCancelled:
		return true
	default:
		return false
	}
}
