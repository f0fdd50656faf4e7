package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finflow/expense-approval/internal/application/service"
)

// EscalationPoller periodically runs the escalation tick over active flows.
// Escalation is time-driven, not vote-driven: the poller observes elapsed
// time and injects escalation events through the same per-flow exclusion the
// vote path uses, so a tick and a vote can never race on one flow.
type EscalationPoller struct {
	flows  service.FlowService
	logger *zap.Logger

	pollInterval time.Duration
	batchSize    int

	mu        sync.Mutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewEscalationPoller creates a new escalation poller
func NewEscalationPoller(flows service.FlowService, pollInterval time.Duration, batchSize int, logger *zap.Logger) *EscalationPoller {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &EscalationPoller{
		flows:        flows,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
	}
}

// Start starts the polling loop
func (p *EscalationPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("escalation poller is already running")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.isRunning = true

	p.logger.Info("EscalationPoller started",
		zap.Duration("poll_interval", p.pollInterval),
		zap.Int("batch_size", p.batchSize))

	go p.pollLoop()
	return nil
}

// Stop stops the polling loop
func (p *EscalationPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isRunning {
		return
	}
	p.isRunning = false
	if p.cancel != nil {
		p.cancel()
	}
	p.logger.Info("EscalationPoller stopped")
}

// Name returns the worker name for identification
func (p *EscalationPoller) Name() string {
	return "EscalationPoller"
}

func (p *EscalationPoller) pollLoop() {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	// Tick immediately on start to catch deadlines missed during downtime
	p.tick()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *EscalationPoller) tick() {
	ctx, cancel := context.WithTimeout(p.ctx, 30*time.Second)
	defer cancel()

	fired, err := p.flows.EscalateDue(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("Escalation sweep failed", zap.Error(err))
		return
	}
	if fired > 0 {
		p.logger.Info("Escalation sweep completed", zap.Int("escalated", fired))
	}
}
