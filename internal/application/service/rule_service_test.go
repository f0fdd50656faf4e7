package service

import (
	"context"
	"errors"
	"testing"

	"github.com/finflow/expense-approval/internal/domain/rule"
)

func TestRuleService_CreateRule(t *testing.T) {
	repo := &mockRuleRepo{}
	svc := NewRuleService(repo, nopLogger{})

	r := twoApproverRule()
	r.ID = ""
	r.CreatedAt = r.CreatedAt.AddDate(0, 0, -1)

	created, err := svc.CreateRule(context.Background(), r)
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	if created.ID == "" {
		t.Error("CreateRule() should assign an ID")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("CreateRule() should stamp creation times")
	}
}

func TestRuleService_CreateRuleRejectsInvalidConfiguration(t *testing.T) {
	repo := &mockRuleRepo{}
	svc := NewRuleService(repo, nopLogger{})

	r := twoApproverRule()
	r.Logic = rule.ApprovalLogic{Type: rule.LogicPercentage} // settings missing

	_, err := svc.CreateRule(context.Background(), r)
	if !errors.Is(err, rule.ErrConfiguration) {
		t.Errorf("error = %v, want ErrConfiguration", err)
	}
}

func TestRuleService_CreateRuleKeepsCallerID(t *testing.T) {
	repo := &mockRuleRepo{}
	svc := NewRuleService(repo, nopLogger{})

	r := twoApproverRule()
	r.ID = "rule-fixed"

	created, err := svc.CreateRule(context.Background(), r)
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	if created.ID != "rule-fixed" {
		t.Errorf("ID = %q, want rule-fixed", created.ID)
	}
}
