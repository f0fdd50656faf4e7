package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/finflow/expense-approval/internal/application/dispatcher"
	"github.com/finflow/expense-approval/internal/application/port"
	"github.com/finflow/expense-approval/internal/domain/event"
	"github.com/finflow/expense-approval/internal/domain/expense"
	"github.com/finflow/expense-approval/internal/domain/flow"
	"github.com/finflow/expense-approval/internal/domain/rule"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// FlowService orchestrates the approval engine: rule selection and flow build
// on submission, vote and cancellation transitions, and escalation ticks.
type FlowService interface {
	SubmitExpense(ctx context.Context, e expense.Snapshot) (*flow.Flow, error)
	CastVote(ctx context.Context, flowID string, stepIndex int, approverID string, decision flow.Decision, comment string) (*flow.Flow, error)
	CancelFlow(ctx context.Context, flowID, cancelledBy, reason string) error
	EscalateDue(ctx context.Context, batchSize int) (int, error)
	GetFlow(ctx context.Context, flowID string) (*flow.Flow, error)
	ListFlows(ctx context.Context, limit, offset int) ([]*flow.Flow, error)
	FlowHistory(ctx context.Context, flowID string) ([]*flow.HistoryEntry, error)
}

type flowServiceImpl struct {
	ruleRepo    port.RuleRepository
	flowRepo    port.FlowRepository
	historyRepo port.HistoryRepository
	builder     *flow.Builder
	engine      *flow.Engine
	events      dispatcher.Dispatcher
	logger      Logger

	// Per-flow exclusion: only one transition runs at a time for a given
	// flow; transitions on different flows proceed in parallel.
	locksMu sync.Mutex
	locks   map[string]*flowLock
}

// flowLock is a refcounted per-flow mutex. Entries leave the map once no
// transition holds or waits for them, so the map does not grow with every
// flow the process has ever touched.
type flowLock struct {
	mu   sync.Mutex
	refs int
}

// NewFlowService creates a new FlowService
func NewFlowService(
	ruleRepo port.RuleRepository,
	flowRepo port.FlowRepository,
	historyRepo port.HistoryRepository,
	builder *flow.Builder,
	engine *flow.Engine,
	events dispatcher.Dispatcher,
	logger Logger,
) FlowService {
	return &flowServiceImpl{
		ruleRepo:    ruleRepo,
		flowRepo:    flowRepo,
		historyRepo: historyRepo,
		builder:     builder,
		engine:      engine,
		events:      events,
		logger:      logger,
		locks:       make(map[string]*flowLock),
	}
}

// lockFlow acquires the flow's mutex and returns the unlock function.
func (s *flowServiceImpl) lockFlow(flowID string) func() {
	s.locksMu.Lock()
	l, ok := s.locks[flowID]
	if !ok {
		l = &flowLock{}
		s.locks[flowID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, flowID)
		}
		s.locksMu.Unlock()
	}
}

// SubmitExpense selects the applicable rule for the expense, materializes a
// flow from it and persists it in active state. The rule-selection and
// build errors (rule.ErrNoRuleMatched, flow.ErrUnresolvableStep) pass
// through for the caller's fallback policy.
func (s *flowServiceImpl) SubmitExpense(ctx context.Context, e expense.Snapshot) (*flow.Flow, error) {
	rules, err := s.ruleRepo.ListActive(ctx, e.CompanyID)
	if err != nil {
		s.logger.Error("Failed to load active rules", "error", err, "company_id", e.CompanyID)
		return nil, fmt.Errorf("load active rules: %w", err)
	}

	selected, err := rule.Select(e, rules)
	if err != nil {
		return nil, err
	}

	f, err := s.builder.Build(ctx, e, selected)
	if err != nil {
		return nil, err
	}

	if err := s.flowRepo.Create(ctx, f); err != nil {
		s.logger.Error("Failed to persist flow", "error", err, "expense_id", e.ExpenseID)
		return nil, fmt.Errorf("create flow: %w", err)
	}

	s.appendHistory(ctx, f.ID, f.Current().Number, e.EmployeeID, "created",
		fmt.Sprintf("flow created from rule %q", selected.Name))

	s.events.DispatchAsync(ctx, event.NewEvent(event.TypeFlowCreated, f.ID, e.ExpenseID, map[string]interface{}{
		"rule_id":           selected.ID,
		"rule_name":         selected.Name,
		"pending_approvers": f.PendingApprovers(),
	}))

	s.logger.Info("Flow created",
		"flow_id", f.ID,
		"expense_id", e.ExpenseID,
		"rule_name", selected.Name,
		"steps", len(f.Steps))
	return f, nil
}

// CastVote applies one approver decision under the per-flow lock. The whole
// sequence (record vote, conditional check, resolution, advance, persist) is
// atomic with respect to other votes and escalation ticks on the same flow.
func (s *flowServiceImpl) CastVote(ctx context.Context, flowID string, stepIndex int, approverID string, decision flow.Decision, comment string) (*flow.Flow, error) {
	unlock := s.lockFlow(flowID)
	defer unlock()

	f, err := s.flowRepo.GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.Vote(f, stepIndex, approverID, decision, comment)
	if err != nil {
		return nil, err
	}

	if err := s.flowRepo.Update(ctx, f); err != nil {
		s.logger.Error("Failed to persist vote", "error", err, "flow_id", flowID)
		return nil, fmt.Errorf("update flow: %w", err)
	}

	stepNumber := stepIndex + 1
	s.appendHistory(ctx, flowID, stepNumber, approverID, "vote",
		fmt.Sprintf("%s: %s", decision, comment))
	s.emitTransition(ctx, f, res, stepNumber, approverID)

	return f, nil
}

// CancelFlow is the one-way terminal transition for a withdrawn expense.
func (s *flowServiceImpl) CancelFlow(ctx context.Context, flowID, cancelledBy, reason string) error {
	unlock := s.lockFlow(flowID)
	defer unlock()

	f, err := s.flowRepo.GetByID(ctx, flowID)
	if err != nil {
		return err
	}

	if err := s.engine.Cancel(f); err != nil {
		return err
	}

	if err := s.flowRepo.Update(ctx, f); err != nil {
		s.logger.Error("Failed to persist cancellation", "error", err, "flow_id", flowID)
		return fmt.Errorf("update flow: %w", err)
	}

	s.appendHistory(ctx, flowID, f.Current().Number, cancelledBy, "cancelled", reason)
	s.events.DispatchAsync(ctx, event.NewEvent(event.TypeFlowCancelled, f.ID, f.Expense.ExpenseID, map[string]interface{}{
		"cancelled_by": cancelledBy,
		"reason":       reason,
	}))

	s.logger.Info("Flow cancelled", "flow_id", flowID, "cancelled_by", cancelledBy)
	return nil
}

// EscalateDue runs an escalation tick over active flows and returns how many
// escalations fired. Each flow's tick runs under the same lock as its votes.
func (s *flowServiceImpl) EscalateDue(ctx context.Context, batchSize int) (int, error) {
	flows, err := s.flowRepo.ListActive(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("list active flows: %w", err)
	}

	fired := 0
	for _, stale := range flows {
		n, err := s.tickFlow(ctx, stale.ID)
		if err != nil {
			s.logger.Error("Escalation tick failed", "error", err, "flow_id", stale.ID)
			continue
		}
		fired += n
	}
	return fired, nil
}

func (s *flowServiceImpl) tickFlow(ctx context.Context, flowID string) (int, error) {
	unlock := s.lockFlow(flowID)
	defer unlock()

	// Reload under the lock; the listed snapshot may be stale by now.
	f, err := s.flowRepo.GetByID(ctx, flowID)
	if err != nil {
		return 0, err
	}
	if f.Status != flow.StatusActive {
		return 0, nil
	}
	stepNumber := f.Current().Number

	res, err := s.engine.Tick(f)
	if err != nil {
		return 0, err
	}
	if res == nil {
		return 0, nil
	}

	if err := s.flowRepo.Update(ctx, f); err != nil {
		return 0, fmt.Errorf("update flow: %w", err)
	}

	s.appendHistory(ctx, f.ID, stepNumber, "", "escalated",
		fmt.Sprintf("step escalated to %q", res.EscalationTarget))
	s.events.DispatchAsync(ctx, event.NewEvent(event.TypeEscalated, f.ID, f.Expense.ExpenseID, map[string]interface{}{
		"step_index": stepNumber - 1,
		"target":     res.EscalationTarget,
	}))

	// A target who voted before the deadline resolves the step on firing.
	if res.StepResolved {
		s.appendHistory(ctx, f.ID, stepNumber, res.EscalationTarget, "step_resolved", string(res.StepStatus))
	}
	s.emitResolution(ctx, f, res, stepNumber)

	s.logger.Info("Step escalated",
		"flow_id", f.ID,
		"step", stepNumber,
		"target", res.EscalationTarget)
	return 1, nil
}

// GetFlow retrieves a flow by ID
func (s *flowServiceImpl) GetFlow(ctx context.Context, flowID string) (*flow.Flow, error) {
	return s.flowRepo.GetByID(ctx, flowID)
}

// ListFlows retrieves a paginated list of flows
func (s *flowServiceImpl) ListFlows(ctx context.Context, limit, offset int) ([]*flow.Flow, error) {
	return s.flowRepo.List(ctx, limit, offset)
}

// FlowHistory retrieves a flow's audit trail
func (s *flowServiceImpl) FlowHistory(ctx context.Context, flowID string) ([]*flow.HistoryEntry, error) {
	return s.historyRepo.ListByFlow(ctx, flowID)
}

// emitTransition turns a vote result into the matching events.
func (s *flowServiceImpl) emitTransition(ctx context.Context, f *flow.Flow, res *flow.Result, stepNumber int, approverID string) {
	expenseID := f.Expense.ExpenseID

	s.events.DispatchAsync(ctx, event.NewEvent(event.TypeVoteRecorded, f.ID, expenseID, map[string]interface{}{
		"step_number": stepNumber,
		"approver_id": approverID,
	}))

	if res.Applied != "" {
		s.appendHistory(ctx, f.ID, stepNumber, approverID, "conditional", string(res.Applied))
	}
	if res.StepResolved {
		s.appendHistory(ctx, f.ID, stepNumber, approverID, "step_resolved", string(res.StepStatus))
	}

	s.emitResolution(ctx, f, res, stepNumber)
}

// emitResolution emits the advance and terminal events a resolved step
// produces, shared by the vote and tick transitions.
func (s *flowServiceImpl) emitResolution(ctx context.Context, f *flow.Flow, res *flow.Result, stepNumber int) {
	expenseID := f.Expense.ExpenseID

	if res.AdvancedTo >= 0 {
		s.appendHistory(ctx, f.ID, res.AdvancedTo+1, "", "advanced", "")
		s.events.DispatchAsync(ctx, event.NewEvent(event.TypeStepAdvanced, f.ID, expenseID, map[string]interface{}{
			"new_step_index":    res.AdvancedTo,
			"pending_approvers": res.PendingApprovers,
		}))
	}

	if res.Status.IsTerminal() {
		s.appendHistory(ctx, f.ID, stepNumber, "", "resolved", string(res.Status))
		s.events.DispatchAsync(ctx, event.NewEvent(event.TypeFlowResolved, f.ID, expenseID, map[string]interface{}{
			"outcome": string(res.Status),
		}))
		s.logger.Info("Flow resolved", "flow_id", f.ID, "outcome", res.Status)
	}
}

// appendHistory writes one audit row; failures are logged, never fatal to
// the transition that already committed.
func (s *flowServiceImpl) appendHistory(ctx context.Context, flowID string, stepNumber int, actorID, action, detail string) {
	entry := &flow.HistoryEntry{
		FlowID:     flowID,
		StepNumber: stepNumber,
		ActorID:    actorID,
		Action:     action,
		Detail:     detail,
		CreatedAt:  time.Now(),
	}
	if err := s.historyRepo.Append(ctx, entry); err != nil {
		s.logger.Error("Failed to append flow history", "error", err, "flow_id", flowID, "action", action)
	}
}
