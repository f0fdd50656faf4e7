// Package expense defines the read-only expense snapshot the approval engine
// evaluates. The full expense record (receipts, currency conversion, ledger
// entries) lives in the surrounding application; the engine only ever sees
// this projection, captured at submission time.
package expense

// Snapshot is the view of an expense used for rule matching and conditional
// evaluation. It is immutable once a flow has been built from it.
type Snapshot struct {
	ExpenseID  string  `json:"expense_id"`
	CompanyID  string  `json:"company_id"`
	EmployeeID string  `json:"employee_id"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	Category   string  `json:"category"`
	Department string  `json:"department"`
}
