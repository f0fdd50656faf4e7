package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/finflow/expense-approval/internal/application/service"
	"github.com/finflow/expense-approval/internal/domain/expense"
	"github.com/finflow/expense-approval/internal/domain/flow"
	"github.com/finflow/expense-approval/internal/domain/rule"
	"github.com/finflow/expense-approval/internal/report"
	"github.com/finflow/expense-approval/internal/repository"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	flows    service.FlowService
	rules    service.RuleService
	exporter *report.Exporter
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(flows service.FlowService, rules service.RuleService, exporter *report.Exporter, logger Logger) *Handlers {
	return &Handlers{flows: flows, rules: rules, exporter: exporter, logger: logger}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SubmitExpenseRequest is the expense snapshot submitted for approval
type SubmitExpenseRequest struct {
	ExpenseID  string  `json:"expense_id" binding:"required"`
	CompanyID  string  `json:"company_id" binding:"required"`
	EmployeeID string  `json:"employee_id" binding:"required"`
	Amount     float64 `json:"amount" binding:"required,gt=0"`
	Currency   string  `json:"currency" binding:"required"`
	Category   string  `json:"category"`
	Department string  `json:"department"`
}

// VoteRequest is one approver decision on a flow step
type VoteRequest struct {
	StepIndex  *int   `json:"step_index" binding:"required"`
	ApproverID string `json:"approver_id" binding:"required"`
	Decision   string `json:"decision" binding:"required,oneof=approve reject"`
	Comment    string `json:"comment"`
}

// CancelRequest carries the cancellation context
type CancelRequest struct {
	CancelledBy string `json:"cancelled_by" binding:"required"`
	Reason      string `json:"reason"`
}

// ToggleRequest toggles a rule's active state
type ToggleRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// Health handles the health check endpoint
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SubmitExpense selects a rule and materializes an approval flow
func (h *Handlers) SubmitExpense(c *gin.Context) {
	var req SubmitExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	f, err := h.flows.SubmitExpense(c.Request.Context(), expense.Snapshot{
		ExpenseID:  req.ExpenseID,
		CompanyID:  req.CompanyID,
		EmployeeID: req.EmployeeID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		Category:   req.Category,
		Department: req.Department,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: f})
}

// CastVote applies one approver decision to a flow
func (h *Handlers) CastVote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	f, err := h.flows.CastVote(c.Request.Context(), c.Param("id"),
		*req.StepIndex, req.ApproverID, flow.Decision(req.Decision), req.Comment)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: f})
}

// CancelFlow cancels an active flow for a withdrawn expense
func (h *Handlers) CancelFlow(c *gin.Context) {
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	if err := h.flows.CancelFlow(c.Request.Context(), c.Param("id"), req.CancelledBy, req.Reason); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// GetFlow returns one flow with its steps and votes
func (h *Handlers) GetFlow(c *gin.Context) {
	f, err := h.flows.GetFlow(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: f})
}

// ListFlows returns a paginated flow list
func (h *Handlers) ListFlows(c *gin.Context) {
	limit, offset := pagination(c)
	flows, err := h.flows.ListFlows(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: flows})
}

// FlowHistory returns a flow's audit trail
func (h *Handlers) FlowHistory(c *gin.Context) {
	entries, err := h.flows.FlowHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// CreateRule creates a new approval rule
func (h *Handlers) CreateRule(c *gin.Context) {
	var r rule.Rule
	if err := c.ShouldBindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	created, err := h.rules.CreateRule(c.Request.Context(), &r)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: created})
}

// GetRule returns one rule
func (h *Handlers) GetRule(c *gin.Context) {
	r, err := h.rules.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: r})
}

// ListRules returns a company's rules
func (h *Handlers) ListRules(c *gin.Context) {
	companyID := c.Query("company_id")
	if companyID == "" {
		c.JSON(http.StatusBadRequest, Response{Error: "company_id is required"})
		return
	}

	limit, offset := pagination(c)
	rules, err := h.rules.ListRules(c.Request.Context(), companyID, limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: rules})
}

// ToggleRule flips a rule's active state
func (h *Handlers) ToggleRule(c *gin.Context) {
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	if err := h.rules.SetRuleActive(c.Request.Context(), c.Param("id"), *req.Active); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// ExportReport writes recent flows and their audit trails to a spreadsheet
// and returns the file path.
func (h *Handlers) ExportReport(c *gin.Context) {
	limit, offset := pagination(c)
	flows, err := h.flows.ListFlows(c.Request.Context(), limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}

	history := make(map[string][]*flow.HistoryEntry, len(flows))
	for _, f := range flows {
		entries, err := h.flows.FlowHistory(c.Request.Context(), f.ID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		history[f.ID] = entries
	}

	path, err := h.exporter.Export(flows, history)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"file_path": path}})
}

// respondError maps engine errors to HTTP statuses. Usage errors on the vote
// transition are reported to the caller as rejected actions, never 500s.
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, flow.ErrFlowNotFound), errors.Is(err, repository.ErrRuleNotFound):
		status = http.StatusNotFound
	case errors.Is(err, flow.ErrNotAnApprover):
		status = http.StatusForbidden
	case errors.Is(err, flow.ErrNotCurrentStep),
		errors.Is(err, flow.ErrDuplicateVote),
		errors.Is(err, flow.ErrFlowTerminal):
		status = http.StatusConflict
	case errors.Is(err, rule.ErrNoRuleMatched),
		errors.Is(err, rule.ErrConfiguration),
		errors.Is(err, flow.ErrUnresolvableStep):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, Response{Error: err.Error()})
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
