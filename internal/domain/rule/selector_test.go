package rule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finflow/expense-approval/internal/domain/expense"
)

func testRule(id string, priority int, created time.Time, conds Conditions) *Rule {
	return &Rule{
		ID:         id,
		CompanyID:  "co-1",
		Name:       id,
		Priority:   priority,
		Conditions: conds,
		Logic:      ApprovalLogic{Type: LogicSequential},
		Steps: []Step{
			{Number: 1, Selectors: []ApproverSelector{{Kind: SelectorUser, UserID: "u-1"}}, Required: true},
		},
		IsActive:  true,
		CreatedAt: created,
	}
}

func TestSelect_LowestPriorityWins(t *testing.T) {
	now := time.Now()
	broad := testRule("broad", 10, now, Conditions{})
	specific := testRule("specific", 1, now, Conditions{AmountThreshold: f64(100)})

	// Declaration order must not matter.
	got, err := Select(expense.Snapshot{Amount: 500}, []*Rule{broad, specific})
	require.NoError(t, err)
	assert.Equal(t, "specific", got.ID)
}

func TestSelect_FallsThroughToNextPriority(t *testing.T) {
	now := time.Now()
	high := testRule("high-value", 1, now, Conditions{AmountThreshold: f64(10000)})
	catchAll := testRule("catch-all", 10, now, Conditions{})

	got, err := Select(expense.Snapshot{Amount: 500}, []*Rule{high, catchAll})
	require.NoError(t, err)
	assert.Equal(t, "catch-all", got.ID)
}

func TestSelect_CreationTimeBreaksPriorityTies(t *testing.T) {
	base := time.Now()
	older := testRule("older", 5, base, Conditions{})
	newer := testRule("newer", 5, base.Add(time.Minute), Conditions{})

	got, err := Select(expense.Snapshot{Amount: 500}, []*Rule{newer, older})
	require.NoError(t, err)
	assert.Equal(t, "older", got.ID)
}

func TestSelect_AllConditionsMustHold(t *testing.T) {
	now := time.Now()
	r := testRule("travel-eng", 1, now, Conditions{
		AmountThreshold: f64(100),
		Categories:      []string{"travel"},
		Departments:     []string{"engineering"},
	})
	fallback := testRule("fallback", 9, now, Conditions{})

	e := expense.Snapshot{Amount: 500, Category: "travel", Department: "sales"}
	got, err := Select(e, []*Rule{r, fallback})
	require.NoError(t, err)
	assert.Equal(t, "fallback", got.ID, "a failing department condition must disqualify the rule")
}

func TestSelect_SkipsInactiveRules(t *testing.T) {
	now := time.Now()
	inactive := testRule("inactive", 1, now, Conditions{})
	inactive.IsActive = false
	active := testRule("active", 2, now, Conditions{})

	got, err := Select(expense.Snapshot{Amount: 10}, []*Rule{inactive, active})
	require.NoError(t, err)
	assert.Equal(t, "active", got.ID)
}

func TestSelect_NoRuleMatched(t *testing.T) {
	now := time.Now()
	r := testRule("high-only", 1, now, Conditions{AmountThreshold: f64(10000)})

	_, err := Select(expense.Snapshot{Amount: 50}, []*Rule{r})
	assert.ErrorIs(t, err, ErrNoRuleMatched)

	_, err = Select(expense.Snapshot{Amount: 50}, nil)
	assert.ErrorIs(t, err, ErrNoRuleMatched)
}
