package flow

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/finflow/expense-approval/internal/domain/expense"
	"github.com/finflow/expense-approval/internal/domain/rule"
)

// stubDirectory resolves roles and departments from fixed maps.
type stubDirectory struct {
	byRole       map[string][]string
	byDepartment map[string][]string
	err          error
}

func (d *stubDirectory) UsersByRole(_ context.Context, _, role string) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.byRole[role], nil
}

func (d *stubDirectory) DepartmentManagers(_ context.Context, _, department string) ([]string, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.byDepartment[department], nil
}

func testExpense() expense.Snapshot {
	return expense.Snapshot{
		ExpenseID:  "exp-1",
		CompanyID:  "co-1",
		EmployeeID: "u-emp",
		Amount:     1200,
		Currency:   "USD",
		Category:   "travel",
		Department: "engineering",
	}
}

func userStep(number int, required bool, users ...string) rule.Step {
	s := rule.Step{Number: number, Required: required}
	for _, u := range users {
		s.Selectors = append(s.Selectors, rule.ApproverSelector{Kind: rule.SelectorUser, UserID: u})
	}
	return s
}

func buildableRule(steps ...rule.Step) *rule.Rule {
	return &rule.Rule{
		ID:        "rule-1",
		CompanyID: "co-1",
		Name:      "test rule",
		Logic:     rule.ApprovalLogic{Type: rule.LogicSequential},
		Steps:     steps,
		IsActive:  true,
	}
}

func TestBuilder_BuildResolvesSelectors(t *testing.T) {
	dir := &stubDirectory{
		byRole:       map[string][]string{RoleAdmin: {"admin-1", "admin-2"}},
		byDepartment: map[string][]string{"engineering": {"mgr-eng"}},
	}
	b := NewBuilder(dir)

	r := buildableRule(
		rule.Step{Number: 1, Required: true, Selectors: []rule.ApproverSelector{
			{Kind: rule.SelectorDepartmentManagers, Department: "engineering"},
		}},
		rule.Step{Number: 2, Required: true, Selectors: []rule.ApproverSelector{
			{Kind: rule.SelectorAllAdmins},
		}},
	)

	f, err := b.Build(context.Background(), testExpense(), r)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if f.ID == "" {
		t.Error("Build() should assign a flow ID")
	}
	if f.Status != StatusActive {
		t.Errorf("flow status = %v, want %v", f.Status, StatusActive)
	}
	if !reflect.DeepEqual(f.Steps[0].Approvers, []string{"mgr-eng"}) {
		t.Errorf("step 1 approvers = %v", f.Steps[0].Approvers)
	}
	if !reflect.DeepEqual(f.Steps[1].Approvers, []string{"admin-1", "admin-2"}) {
		t.Errorf("step 2 approvers = %v", f.Steps[1].Approvers)
	}
	if f.CurrentStep != 0 {
		t.Errorf("current step = %d, want 0", f.CurrentStep)
	}
	if f.Steps[0].Status != StepPending {
		t.Errorf("first step status = %v, want pending", f.Steps[0].Status)
	}
	if f.Steps[0].StartedAt == nil {
		t.Error("first step should have a start time")
	}
	if f.Steps[1].StartedAt != nil {
		t.Error("later steps must not start their clocks at build time")
	}
}

func TestBuilder_BuildDeduplicatesApprovers(t *testing.T) {
	dir := &stubDirectory{
		byRole:       map[string][]string{RoleManager: {"mgr-1", "mgr-2"}},
		byDepartment: map[string][]string{"sales": {"mgr-1"}},
	}
	b := NewBuilder(dir)

	r := buildableRule(rule.Step{Number: 1, Required: true, Selectors: []rule.ApproverSelector{
		{Kind: rule.SelectorUser, UserID: "mgr-1"},
		{Kind: rule.SelectorAllManagers},
		{Kind: rule.SelectorDepartmentManagers, Department: "sales"},
	}})

	f, err := b.Build(context.Background(), testExpense(), r)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// First-seen order, overlapping members collapsed.
	want := []string{"mgr-1", "mgr-2"}
	if !reflect.DeepEqual(f.Steps[0].Approvers, want) {
		t.Errorf("approvers = %v, want %v", f.Steps[0].Approvers, want)
	}
}

func TestBuilder_BuildRequiredStepUnresolvable(t *testing.T) {
	b := NewBuilder(&stubDirectory{})

	r := buildableRule(rule.Step{Number: 1, Required: true, Selectors: []rule.ApproverSelector{
		{Kind: rule.SelectorAllAdmins},
	}})

	_, err := b.Build(context.Background(), testExpense(), r)
	if !errors.Is(err, ErrUnresolvableStep) {
		t.Errorf("Build() error = %v, want ErrUnresolvableStep", err)
	}
}

func TestBuilder_BuildSkipsEmptyOptionalStep(t *testing.T) {
	dir := &stubDirectory{byRole: map[string][]string{RoleAdmin: {"admin-1"}}}
	b := NewBuilder(dir)

	r := buildableRule(
		rule.Step{Number: 1, Required: false, Selectors: []rule.ApproverSelector{
			{Kind: rule.SelectorDepartmentManagers, Department: "ghost"},
		}},
		rule.Step{Number: 2, Required: true, Selectors: []rule.ApproverSelector{
			{Kind: rule.SelectorAllAdmins},
		}},
	)

	f, err := b.Build(context.Background(), testExpense(), r)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if f.Steps[0].Status != StepSkipped {
		t.Errorf("empty optional step status = %v, want skipped", f.Steps[0].Status)
	}
	if f.CurrentStep != 1 {
		t.Errorf("current step = %d, want 1 (past the skipped step)", f.CurrentStep)
	}
	if f.Steps[1].Status != StepPending {
		t.Errorf("step 2 status = %v, want pending", f.Steps[1].Status)
	}
}

func TestBuilder_BuildAllStepsSkippedFails(t *testing.T) {
	b := NewBuilder(&stubDirectory{})

	r := buildableRule(rule.Step{Number: 1, Required: false, Selectors: []rule.ApproverSelector{
		{Kind: rule.SelectorAllManagers},
	}})

	_, err := b.Build(context.Background(), testExpense(), r)
	if !errors.Is(err, ErrUnresolvableStep) {
		t.Errorf("Build() error = %v, want ErrUnresolvableStep", err)
	}
}

func TestBuilder_BuildRejectsInvalidRule(t *testing.T) {
	b := NewBuilder(&stubDirectory{})

	r := buildableRule(userStep(1, true, "u-1"))
	r.Logic = rule.ApprovalLogic{Type: rule.LogicPercentage} // settings missing

	_, err := b.Build(context.Background(), testExpense(), r)
	if !errors.Is(err, rule.ErrConfiguration) {
		t.Errorf("Build() error = %v, want ErrConfiguration", err)
	}
}

func TestBuilder_BuildDirectoryError(t *testing.T) {
	b := NewBuilder(&stubDirectory{err: fmt.Errorf("directory unavailable")})

	r := buildableRule(rule.Step{Number: 1, Required: true, Selectors: []rule.ApproverSelector{
		{Kind: rule.SelectorAllAdmins},
	}})

	if _, err := b.Build(context.Background(), testExpense(), r); err == nil {
		t.Error("Build() should propagate directory errors")
	}
}

func TestBuilder_BuildFreezesRuleSettings(t *testing.T) {
	b := NewBuilder(&stubDirectory{})

	r := buildableRule(userStep(1, true, "u-1"))
	r.Logic = rule.ApprovalLogic{
		Type:       rule.LogicPercentage,
		Percentage: &rule.PercentageSettings{Percentage: 60},
	}
	r.Escalation = rule.EscalationPolicy{Enabled: true, TimeoutHours: 24, EscalateTo: "cfo"}

	f, err := b.Build(context.Background(), testExpense(), r)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// Mutating the source rule after the fact must not reach the flow.
	r.Logic.Percentage.Percentage = 100
	r.Escalation.EscalateTo = "someone-else"

	if f.Rule.Logic.Percentage.Percentage != 60 {
		t.Errorf("frozen percentage = %v, want 60", f.Rule.Logic.Percentage.Percentage)
	}
	if f.Rule.Escalation.EscalateTo != "cfo" {
		t.Errorf("frozen escalation target = %q, want cfo", f.Rule.Escalation.EscalateTo)
	}
}

func TestBuilder_BuildStartsEscalationClock(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b := NewBuilder(&stubDirectory{}, WithBuilderClock(func() time.Time { return start }))

	r := buildableRule(rule.Step{
		Number:      1,
		Required:    true,
		CanEscalate: true,
		Selectors:   []rule.ApproverSelector{{Kind: rule.SelectorUser, UserID: "u-1"}},
	})
	r.Escalation = rule.EscalationPolicy{Enabled: true, TimeoutHours: 48, EscalateTo: "cfo"}

	f, err := b.Build(context.Background(), testExpense(), r)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	step := f.Steps[0]
	if step.Deadline == nil {
		t.Fatal("escalatable step should get a deadline on entry")
	}
	if want := start.Add(48 * time.Hour); !step.Deadline.Equal(want) {
		t.Errorf("deadline = %v, want %v", step.Deadline, want)
	}
}

func TestBuilder_BuildNoDeadlineWhenEscalationDisabled(t *testing.T) {
	b := NewBuilder(&stubDirectory{})

	r := buildableRule(rule.Step{
		Number:      1,
		Required:    true,
		CanEscalate: true,
		Selectors:   []rule.ApproverSelector{{Kind: rule.SelectorUser, UserID: "u-1"}},
	})

	f, err := b.Build(context.Background(), testExpense(), r)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if f.Steps[0].Deadline != nil {
		t.Error("step must not get a deadline when the rule's escalation policy is disabled")
	}
}
