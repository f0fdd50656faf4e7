package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/finflow/expense-approval/internal/application/dispatcher"
	"github.com/finflow/expense-approval/internal/application/service"
	"github.com/finflow/expense-approval/internal/config"
	"github.com/finflow/expense-approval/internal/directory"
	"github.com/finflow/expense-approval/internal/domain/event"
	"github.com/finflow/expense-approval/internal/domain/flow"
	httpserver "github.com/finflow/expense-approval/internal/interfaces/http"
	"github.com/finflow/expense-approval/internal/report"
	"github.com/finflow/expense-approval/internal/repository"
	"github.com/finflow/expense-approval/internal/worker"
	"github.com/finflow/expense-approval/pkg/database"
	"github.com/finflow/expense-approval/pkg/utils"
)

func main() {
	// Local overrides from .env, if present
	_ = gotenv.Load()

	configPath := os.Getenv("APPROVAL_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting expense approval engine",
		zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	appLogger := &zapLoggerAdapter{logger: logger}

	// Repositories
	ruleRepo := repository.NewRuleRepository(db.DB, logger)
	flowRepo := repository.NewFlowRepository(db.DB, logger)
	historyRepo := repository.NewHistoryRepository(db.DB, logger)

	// Directory for hierarchical selector resolution
	dir := directory.NewMemory(cfg.Directory.Users)

	// Event bus; the surrounding application registers real collaborators
	// here. The default subscriber just logs resolutions.
	events := dispatcher.NewDispatcher(dispatcher.WithLogger(appLogger))
	events.Subscribe(event.TypeFlowResolved, "resolution-log", func(_ context.Context, evt *event.Event) error {
		logger.Info("Flow resolved",
			zap.String("flow_id", evt.FlowID),
			zap.String("expense_id", evt.ExpenseID),
			zap.String("outcome", evt.GetPayloadString("outcome")))
		return nil
	})
	defer events.Close()

	// Engine and application services
	builder := flow.NewBuilder(dir)
	engine := flow.NewEngine()
	flowService := service.NewFlowService(ruleRepo, flowRepo, historyRepo, builder, engine, events, appLogger)
	ruleService := service.NewRuleService(ruleRepo, appLogger)

	// Background workers
	workers := worker.NewManager(logger)
	workers.Register(worker.NewEscalationPoller(
		flowService,
		cfg.Engine.EscalationPollInterval,
		cfg.Engine.EscalationBatchSize,
		logger,
	))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := workers.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}
	defer workers.StopAll()

	exporter := report.NewExporter(cfg.Export.OutputDir, logger)

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, flowService, ruleService, exporter, appLogger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// zapLoggerAdapter adapts zap.Logger to the structured Logger interfaces
// used by the service, dispatcher, and HTTP layers.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, toZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, toZapFields(keysAndValues...)...)
}

func toZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
