package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finflow/expense-approval/internal/domain/expense"
	"github.com/finflow/expense-approval/internal/domain/flow"
	"github.com/finflow/expense-approval/internal/domain/rule"
	"github.com/finflow/expense-approval/pkg/database"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrator := database.NewMigrator(db, zap.NewNop())
	require.NoError(t, migrator.RunMigrations(filepath.Join("..", "..", "migrations")))
	return db
}

func storedRule() *rule.Rule {
	now := time.Now().UTC().Truncate(time.Second)
	return &rule.Rule{
		ID:        uuid.NewString(),
		CompanyID: "co-1",
		Name:      "high value",
		Priority:  1,
		Conditions: rule.Conditions{
			AmountThreshold: f64(1000),
			Categories:      []string{"travel"},
		},
		Logic: rule.ApprovalLogic{
			Type:         rule.LogicHierarchical,
			Hierarchical: &rule.HierarchicalSettings{RequireAll: true},
		},
		Steps: []rule.Step{
			{Number: 1, Required: true, Selectors: []rule.ApproverSelector{
				{Kind: rule.SelectorDepartmentManagers, Department: "engineering"},
			}},
			{Number: 2, Required: true, CanEscalate: true, Selectors: []rule.ApproverSelector{
				{Kind: rule.SelectorAllAdmins},
			}},
		},
		Escalation: rule.EscalationPolicy{Enabled: true, TimeoutHours: 48, EscalateTo: "cfo"},
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func f64(v float64) *float64 { return &v }

func TestRuleRepository_RoundTrip(t *testing.T) {
	db := testDB(t)
	repo := NewRuleRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	r := storedRule()
	require.NoError(t, repo.Create(ctx, r))

	got, err := repo.GetByID(ctx, r.ID)
	require.NoError(t, err)

	assert.Equal(t, r.Name, got.Name)
	assert.Equal(t, r.Priority, got.Priority)
	assert.Equal(t, *r.Conditions.AmountThreshold, *got.Conditions.AmountThreshold)
	assert.Equal(t, rule.LogicHierarchical, got.Logic.Type)
	require.NotNil(t, got.Logic.Hierarchical)
	assert.True(t, got.Logic.Hierarchical.RequireAll)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, rule.SelectorDepartmentManagers, got.Steps[0].Selectors[0].Kind)
	assert.Equal(t, "cfo", got.Escalation.EscalateTo)
	assert.NoError(t, got.Validate())
}

func TestRuleRepository_CreateRejectsInvalidRule(t *testing.T) {
	db := testDB(t)
	repo := NewRuleRepository(db.DB, zap.NewNop())

	r := storedRule()
	r.Steps = nil
	err := repo.Create(context.Background(), r)
	assert.ErrorIs(t, err, rule.ErrConfiguration)
}

func TestRuleRepository_GetByIDNotFound(t *testing.T) {
	db := testDB(t)
	repo := NewRuleRepository(db.DB, zap.NewNop())

	_, err := repo.GetByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestRuleRepository_ListActiveOrdering(t *testing.T) {
	db := testDB(t)
	repo := NewRuleRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)

	low := storedRule()
	low.Name = "low priority"
	low.Priority = 10
	low.CreatedAt = base

	tieOld := storedRule()
	tieOld.Name = "tie old"
	tieOld.Priority = 1
	tieOld.CreatedAt = base.Add(-time.Hour)

	tieNew := storedRule()
	tieNew.Name = "tie new"
	tieNew.Priority = 1
	tieNew.CreatedAt = base

	inactive := storedRule()
	inactive.Name = "inactive"
	inactive.Priority = 0
	inactive.IsActive = false

	for _, r := range []*rule.Rule{low, tieNew, tieOld, inactive} {
		require.NoError(t, repo.Create(ctx, r))
	}

	got, err := repo.ListActive(ctx, "co-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "tie old", got[0].Name)
	assert.Equal(t, "tie new", got[1].Name)
	assert.Equal(t, "low priority", got[2].Name)
}

func TestRuleRepository_SetActive(t *testing.T) {
	db := testDB(t)
	repo := NewRuleRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	r := storedRule()
	require.NoError(t, repo.Create(ctx, r))

	require.NoError(t, repo.SetActive(ctx, r.ID, false))
	active, err := repo.ListActive(ctx, "co-1")
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.ErrorIs(t, repo.SetActive(ctx, "ghost", true), ErrRuleNotFound)
}

func storedFlow() *flow.Flow {
	now := time.Now().UTC().Truncate(time.Second)
	return &flow.Flow{
		ID: uuid.NewString(),
		Expense: expense.Snapshot{
			ExpenseID:  "exp-1",
			CompanyID:  "co-1",
			EmployeeID: "u-emp",
			Amount:     1500,
			Currency:   "USD",
			Category:   "travel",
			Department: "engineering",
		},
		Rule: flow.RuleSnapshot{
			RuleID:   "rule-1",
			RuleName: "high value",
			Logic: rule.ApprovalLogic{
				Type:         rule.LogicHierarchical,
				Hierarchical: &rule.HierarchicalSettings{RequireAll: true},
			},
			Escalation: rule.EscalationPolicy{Enabled: true, TimeoutHours: 48, EscalateTo: "cfo"},
		},
		Steps: []*flow.Step{
			{
				Number:    1,
				Approvers: []string{"mgr-1", "mgr-2"},
				Votes: map[string]flow.Vote{
					"mgr-1": {ApproverID: "mgr-1", Decision: flow.DecisionApprove, Comment: "ok", VotedAt: now},
				},
				Status:    flow.StepPending,
				Required:  true,
				StartedAt: &now,
			},
			{Number: 2, Approvers: []string{"admin-1"}, Votes: map[string]flow.Vote{}, Required: true},
		},
		CurrentStep: 0,
		Status:      flow.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestFlowRepository_RoundTrip(t *testing.T) {
	db := testDB(t)
	repo := NewFlowRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	f := storedFlow()
	require.NoError(t, repo.Create(ctx, f))

	got, err := repo.GetByID(ctx, f.ID)
	require.NoError(t, err)

	assert.Equal(t, f.Expense.ExpenseID, got.Expense.ExpenseID)
	assert.Equal(t, f.Expense.Amount, got.Expense.Amount)
	assert.Equal(t, "high value", got.Rule.RuleName)
	assert.Equal(t, rule.LogicHierarchical, got.Rule.Logic.Type)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, []string{"mgr-1", "mgr-2"}, got.Steps[0].Approvers)
	assert.Equal(t, flow.DecisionApprove, got.Steps[0].Votes["mgr-1"].Decision)
	assert.NotNil(t, got.Steps[1].Votes, "empty vote maps must come back usable")
	assert.Equal(t, flow.StatusActive, got.Status)
}

func TestFlowRepository_Update(t *testing.T) {
	db := testDB(t)
	repo := NewFlowRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	f := storedFlow()
	require.NoError(t, repo.Create(ctx, f))

	now := time.Now().UTC().Truncate(time.Second)
	f.Steps[0].Status = flow.StepApproved
	f.CurrentStep = 1
	f.Status = flow.StatusActive
	f.UpdatedAt = now
	require.NoError(t, repo.Update(ctx, f))

	got, err := repo.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentStep)
	assert.Equal(t, flow.StepApproved, got.Steps[0].Status)

	ghost := storedFlow()
	assert.ErrorIs(t, repo.Update(ctx, ghost), flow.ErrFlowNotFound)
}

func TestFlowRepository_GetByIDNotFound(t *testing.T) {
	db := testDB(t)
	repo := NewFlowRepository(db.DB, zap.NewNop())

	_, err := repo.GetByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, flow.ErrFlowNotFound)
}

func TestFlowRepository_ListActive(t *testing.T) {
	db := testDB(t)
	repo := NewFlowRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	active := storedFlow()
	require.NoError(t, repo.Create(ctx, active))

	resolved := storedFlow()
	resolved.Status = flow.StatusApproved
	now := time.Now().UTC()
	resolved.ResolvedAt = &now
	require.NoError(t, repo.Create(ctx, resolved))

	got, err := repo.ListActive(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, active.ID, got[0].ID)
}

func TestHistoryRepository_AppendAndList(t *testing.T) {
	db := testDB(t)
	repo := NewHistoryRepository(db.DB, zap.NewNop())
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	entries := []*flow.HistoryEntry{
		{FlowID: "flow-1", StepNumber: 1, ActorID: "u-emp", Action: "created", Detail: "from rule", CreatedAt: now},
		{FlowID: "flow-1", StepNumber: 1, ActorID: "mgr-1", Action: "vote", Detail: "approve: ok", CreatedAt: now},
		{FlowID: "flow-other", StepNumber: 1, Action: "created", CreatedAt: now},
	}
	for _, e := range entries {
		require.NoError(t, repo.Append(ctx, e))
		assert.NotZero(t, e.ID, "Append should back-fill the row ID")
	}

	got, err := repo.ListByFlow(ctx, "flow-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "created", got[0].Action)
	assert.Equal(t, "vote", got[1].Action)
	assert.True(t, got[0].ID < got[1].ID, "trail is returned in insertion order")
}
