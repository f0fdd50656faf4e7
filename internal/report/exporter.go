// Package report exports resolved approval flows to spreadsheets for the
// finance team.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/finflow/expense-approval/internal/domain/flow"
)

const (
	flowSheet    = "Flows"
	historySheet = "History"
)

// Exporter writes flow reports as .xlsx workbooks.
type Exporter struct {
	outputDir string
	logger    *zap.Logger
}

// NewExporter creates an exporter writing into outputDir.
func NewExporter(outputDir string, logger *zap.Logger) *Exporter {
	return &Exporter{outputDir: outputDir, logger: logger}
}

// Export writes the given flows and their audit trails to a timestamped
// workbook and returns its path.
func (e *Exporter) Export(flows []*flow.Flow, history map[string][]*flow.HistoryEntry) (string, error) {
	if err := os.MkdirAll(e.outputDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", flowSheet)
	if _, err := f.NewSheet(historySheet); err != nil {
		return "", fmt.Errorf("create history sheet: %w", err)
	}

	flowHeaders := []string{"Flow ID", "Expense ID", "Employee", "Amount", "Currency", "Category", "Department", "Rule", "Status", "Created", "Resolved"}
	for i, h := range flowHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(flowSheet, cell, h); err != nil {
			return "", fmt.Errorf("write header: %w", err)
		}
	}

	for row, fl := range flows {
		resolved := ""
		if fl.ResolvedAt != nil {
			resolved = fl.ResolvedAt.Format(time.RFC3339)
		}
		values := []interface{}{
			fl.ID, fl.Expense.ExpenseID, fl.Expense.EmployeeID,
			fl.Expense.Amount, fl.Expense.Currency, fl.Expense.Category,
			fl.Expense.Department, fl.Rule.RuleName, string(fl.Status),
			fl.CreatedAt.Format(time.RFC3339), resolved,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(flowSheet, cell, v); err != nil {
				return "", fmt.Errorf("write flow row: %w", err)
			}
		}
	}

	historyHeaders := []string{"Flow ID", "Step", "Actor", "Action", "Detail", "Timestamp"}
	for i, h := range historyHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(historySheet, cell, h); err != nil {
			return "", fmt.Errorf("write history header: %w", err)
		}
	}

	row := 2
	for _, fl := range flows {
		for _, entry := range history[fl.ID] {
			values := []interface{}{
				entry.FlowID, entry.StepNumber, entry.ActorID,
				entry.Action, entry.Detail, entry.CreatedAt.Format(time.RFC3339),
			}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				if err := f.SetCellValue(historySheet, cell, v); err != nil {
					return "", fmt.Errorf("write history row: %w", err)
				}
			}
			row++
		}
	}

	path := filepath.Join(e.outputDir, fmt.Sprintf("approval_flows_%s.xlsx", time.Now().Format("20060102_150405")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}

	e.logger.Info("Flow report exported",
		zap.String("path", path),
		zap.Int("flows", len(flows)))
	return path, nil
}
