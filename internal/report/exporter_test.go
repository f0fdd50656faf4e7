package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/finflow/expense-approval/internal/domain/expense"
	"github.com/finflow/expense-approval/internal/domain/flow"
)

func exportFixture() ([]*flow.Flow, map[string][]*flow.HistoryEntry) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resolved := now.Add(2 * time.Hour)

	f := &flow.Flow{
		ID: "flow-1",
		Expense: expense.Snapshot{
			ExpenseID: "exp-1", CompanyID: "co-1", EmployeeID: "u-emp",
			Amount: 1250.5, Currency: "USD", Category: "travel", Department: "engineering",
		},
		Rule:       flow.RuleSnapshot{RuleID: "rule-1", RuleName: "high value"},
		Status:     flow.StatusApproved,
		CreatedAt:  now,
		UpdatedAt:  resolved,
		ResolvedAt: &resolved,
	}

	history := map[string][]*flow.HistoryEntry{
		"flow-1": {
			{FlowID: "flow-1", StepNumber: 1, ActorID: "u-emp", Action: "created", CreatedAt: now},
			{FlowID: "flow-1", StepNumber: 1, ActorID: "mgr-1", Action: "vote", Detail: "approve: ok", CreatedAt: resolved},
		},
	}
	return []*flow.Flow{f}, history
}

func TestExporter_Export(t *testing.T) {
	exporter := NewExporter(t.TempDir(), zap.NewNop())

	flows, history := exportFixture()
	path, err := exporter.Export(flows, history)
	require.NoError(t, err)
	require.NotEmpty(t, path)

	wb, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer wb.Close()

	got, err := wb.GetCellValue("Flows", "A2")
	require.NoError(t, err)
	assert.Equal(t, "flow-1", got)

	got, err = wb.GetCellValue("Flows", "I2")
	require.NoError(t, err)
	assert.Equal(t, "approved", got)

	got, err = wb.GetCellValue("History", "D3")
	require.NoError(t, err)
	assert.Equal(t, "vote", got)
}

func TestExporter_ExportEmpty(t *testing.T) {
	exporter := NewExporter(t.TempDir(), zap.NewNop())

	path, err := exporter.Export(nil, nil)
	require.NoError(t, err)

	wb, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer wb.Close()

	header, err := wb.GetCellValue("Flows", "A1")
	require.NoError(t, err)
	assert.Equal(t, "Flow ID", header)
}
