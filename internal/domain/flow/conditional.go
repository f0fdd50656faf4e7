package flow

import (
	"github.com/finflow/expense-approval/internal/domain/expense"
	"github.com/finflow/expense-approval/internal/domain/rule"
)

// EvaluateConditional checks a conditional rule set against the expense and
// returns the rule whose action should be applied, or nil when none fires.
//
// Operator semantics: with "or", the first rule whose condition is true fires
// its own action. With "and", every condition must be true and the FIRST
// rule's action is applied; the other rules contribute only their conditions.
// The and-asymmetry is deliberate and covered by tests.
func EvaluateConditional(rules []rule.ConditionalRule, op rule.Operator, e expense.Snapshot) (*rule.ConditionalRule, error) {
	if len(rules) == 0 {
		return nil, nil
	}

	switch op {
	case rule.OperatorOr:
		for i := range rules {
			ok, err := rules[i].Condition.Evaluate(e)
			if err != nil {
				return nil, err
			}
			if ok {
				return &rules[i], nil
			}
		}
		return nil, nil

	default: // and
		for i := range rules {
			ok, err := rules[i].Condition.Evaluate(e)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, nil
			}
		}
		return &rules[0], nil
	}
}
