package rule

import "fmt"

// LogicType selects how a flow's steps are resolved. It governs how approval
// is granted, never whether the rule applies to an expense.
type LogicType string

const (
	LogicSequential       LogicType = "sequential"
	LogicHierarchical     LogicType = "hierarchical"
	LogicPercentage       LogicType = "percentage"
	LogicSpecificApprover LogicType = "specific_approver"
	LogicHybrid           LogicType = "hybrid"
	LogicConditional      LogicType = "conditional"
)

// Operator combines the outcomes of a conditional rule set.
type Operator string

const (
	OperatorAnd Operator = "and"
	OperatorOr  Operator = "or"
)

// Action is the side effect a fired conditional rule applies to a flow.
type Action string

const (
	ActionAutoApprove       Action = "auto_approve"
	ActionAutoReject        Action = "auto_reject"
	ActionSkipStep          Action = "skip_step"
	ActionRequireAdditional Action = "require_additional"
)

// ConditionalRule is a condition→action pair evaluated before normal vote
// tallying on every vote arrival.
type ConditionalRule struct {
	Name                string    `json:"name"`
	Condition           Condition `json:"condition"`
	Action              Action    `json:"action"`
	AdditionalApprovers []string  `json:"additional_approvers,omitempty"`
}

// HierarchicalSettings configures hierarchical resolution. Exactly one of
// RequireAll and AllowPartial should be set; RequireAll wins when both are.
type HierarchicalSettings struct {
	RequireAll   bool `json:"require_all"`
	AllowPartial bool `json:"allow_partial"`
}

// PercentageSettings configures percentage resolution.
type PercentageSettings struct {
	Percentage float64 `json:"percentage"` // 0 < p <= 100
}

// SpecificApproverSettings designates the approver whose approval is
// dispositive for the step.
type SpecificApproverSettings struct {
	ApproverID string `json:"approver_id"`
}

// ConditionalSettings carries the conditional rule set for the conditional
// and hybrid logic types.
type ConditionalSettings struct {
	Operator Operator          `json:"operator"`
	Rules    []ConditionalRule `json:"rules"`
}

// ApprovalLogic is a tagged union: Type names the variant and exactly the
// matching settings pointer is populated. Validate enforces the pairing so a
// flow can never run with the wrong settings for its type.
type ApprovalLogic struct {
	Type             LogicType                 `json:"type"`
	Hierarchical     *HierarchicalSettings     `json:"hierarchical,omitempty"`
	Percentage       *PercentageSettings       `json:"percentage,omitempty"`
	SpecificApprover *SpecificApproverSettings `json:"specific_approver,omitempty"`
	Conditional      *ConditionalSettings      `json:"conditional,omitempty"`
}

// Validate checks that the settings present match the declared type.
func (l ApprovalLogic) Validate() error {
	switch l.Type {
	case LogicSequential:
		// No settings.
	case LogicHierarchical:
		if l.Hierarchical == nil {
			return fmt.Errorf("%w: hierarchical logic requires hierarchical settings", ErrConfiguration)
		}
		if !l.Hierarchical.RequireAll && !l.Hierarchical.AllowPartial {
			return fmt.Errorf("%w: hierarchical logic requires require_all or allow_partial", ErrConfiguration)
		}
	case LogicPercentage:
		if l.Percentage == nil {
			return fmt.Errorf("%w: percentage logic requires percentage settings", ErrConfiguration)
		}
		if l.Percentage.Percentage <= 0 || l.Percentage.Percentage > 100 {
			return fmt.Errorf("%w: percentage must be in (0, 100], got %v", ErrConfiguration, l.Percentage.Percentage)
		}
	case LogicSpecificApprover:
		if l.SpecificApprover == nil || l.SpecificApprover.ApproverID == "" {
			return fmt.Errorf("%w: specific_approver logic requires an approver id", ErrConfiguration)
		}
	case LogicHybrid, LogicConditional:
		if l.Conditional == nil || len(l.Conditional.Rules) == 0 {
			return fmt.Errorf("%w: %s logic requires conditional rules", ErrConfiguration, l.Type)
		}
		if l.Conditional.Operator != OperatorAnd && l.Conditional.Operator != OperatorOr {
			return fmt.Errorf("%w: unknown conditional operator %q", ErrConfiguration, l.Conditional.Operator)
		}
		for _, cr := range l.Conditional.Rules {
			if err := cr.validate(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown approval logic type %q", ErrConfiguration, l.Type)
	}
	return nil
}

func (cr ConditionalRule) validate() error {
	switch cr.Action {
	case ActionAutoApprove, ActionAutoReject, ActionSkipStep:
	case ActionRequireAdditional:
		if len(cr.AdditionalApprovers) == 0 {
			return fmt.Errorf("%w: require_additional rule %q without additional approvers", ErrConfiguration, cr.Name)
		}
	default:
		return fmt.Errorf("%w: unknown conditional action %q", ErrConfiguration, cr.Action)
	}
	return nil
}

// ConditionalRules returns the conditional rule set carried by the hybrid and
// conditional variants, or nil for the plain tallying types.
func (l ApprovalLogic) ConditionalRules() ([]ConditionalRule, Operator) {
	if l.Conditional == nil {
		return nil, ""
	}
	return l.Conditional.Rules, l.Conditional.Operator
}

// Clone returns a deep copy of the logic union.
func (l ApprovalLogic) Clone() ApprovalLogic {
	out := ApprovalLogic{Type: l.Type}
	if l.Hierarchical != nil {
		v := *l.Hierarchical
		out.Hierarchical = &v
	}
	if l.Percentage != nil {
		v := *l.Percentage
		out.Percentage = &v
	}
	if l.SpecificApprover != nil {
		v := *l.SpecificApprover
		out.SpecificApprover = &v
	}
	if l.Conditional != nil {
		v := ConditionalSettings{Operator: l.Conditional.Operator}
		for _, cr := range l.Conditional.Rules {
			c := cr
			c.AdditionalApprovers = append([]string(nil), cr.AdditionalApprovers...)
			c.Condition.Values = append([]string(nil), cr.Condition.Values...)
			if cr.Condition.Threshold != nil {
				t := *cr.Condition.Threshold
				c.Condition.Threshold = &t
			}
			v.Rules = append(v.Rules, c)
		}
		out.Conditional = &v
	}
	return out
}
