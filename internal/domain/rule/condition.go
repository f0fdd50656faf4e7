package rule

import (
	"fmt"

	"github.com/finflow/expense-approval/internal/domain/expense"
)

// ConditionKind identifies what an individual condition inspects on the expense.
type ConditionKind string

const (
	ConditionAmountThreshold ConditionKind = "amount_threshold"
	ConditionCategory        ConditionKind = "category"
	ConditionDepartment      ConditionKind = "department"
	ConditionEmployee        ConditionKind = "employee"
)

// Condition is a single condition descriptor, used both by rule matching and
// by conditional approval rules. Threshold is set only for amount_threshold;
// Values only for the membership kinds.
type Condition struct {
	Kind      ConditionKind `json:"kind"`
	Threshold *float64      `json:"threshold,omitempty"`
	Values    []string      `json:"values,omitempty"`
}

// Evaluate checks the condition against an expense snapshot. It is pure and
// stateless; the only possible error is a malformed condition payload.
func (c Condition) Evaluate(e expense.Snapshot) (bool, error) {
	switch c.Kind {
	case ConditionAmountThreshold:
		if c.Threshold == nil {
			return false, fmt.Errorf("%w: amount_threshold condition without threshold", ErrConfiguration)
		}
		// Inclusive boundary: an expense at exactly the threshold matches.
		return e.Amount >= *c.Threshold, nil

	case ConditionCategory:
		return memberOrUnrestricted(c.Values, e.Category), nil

	case ConditionDepartment:
		return memberOrUnrestricted(c.Values, e.Department), nil

	case ConditionEmployee:
		return memberOrUnrestricted(c.Values, e.EmployeeID), nil

	default:
		return false, fmt.Errorf("%w: unknown condition kind %q", ErrConfiguration, c.Kind)
	}
}

// memberOrUnrestricted treats an empty set as "no restriction".
func memberOrUnrestricted(set []string, value string) bool {
	if len(set) == 0 {
		return true
	}
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}

// Conditions is the AND-ed applicability block of an approval rule. Every
// field is optional; an unset field matches any expense.
type Conditions struct {
	AmountThreshold *float64 `json:"amount_threshold,omitempty"`
	Categories      []string `json:"categories,omitempty"`
	Departments     []string `json:"departments,omitempty"`
	Employees       []string `json:"employees,omitempty"`
}

// Match reports whether every configured condition holds for the expense.
// Unset conditions are vacuously true.
func (c Conditions) Match(e expense.Snapshot) bool {
	if c.AmountThreshold != nil && e.Amount < *c.AmountThreshold {
		return false
	}
	if !memberOrUnrestricted(c.Categories, e.Category) {
		return false
	}
	if !memberOrUnrestricted(c.Departments, e.Department) {
		return false
	}
	if !memberOrUnrestricted(c.Employees, e.EmployeeID) {
		return false
	}
	return true
}

// Clone returns a deep copy of the conditions block.
func (c Conditions) Clone() Conditions {
	out := Conditions{
		Categories:  append([]string(nil), c.Categories...),
		Departments: append([]string(nil), c.Departments...),
		Employees:   append([]string(nil), c.Employees...),
	}
	if c.AmountThreshold != nil {
		v := *c.AmountThreshold
		out.AmountThreshold = &v
	}
	return out
}
