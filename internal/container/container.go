// Package container wires application dependencies together with ordered
// initialization and reverse-order teardown.
package container

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/oakcrm/quote-approval/internal/application/dispatcher"
	"github.com/oakcrm/quote-approval/internal/application/port"
	"github.com/oakcrm/quote-approval/internal/application/service"
	"github.com/oakcrm/quote-approval/internal/config"
	"github.com/oakcrm/quote-approval/internal/domain/event"
	"github.com/oakcrm/quote-approval/internal/infrastructure/persistence/repository"
	"github.com/oakcrm/quote-approval/internal/infrastructure/persistence/sqlite"
	"github.com/oakcrm/quote-approval/internal/worker"
	"github.com/oakcrm/quote-approval/pkg/database"
)

// Container owns the application's wired components
type Container struct {
	config *config.Config
	logger *zap.Logger

	sqlDB        *sql.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	workers *worker.Manager

	mu     sync.Mutex
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access
type RepositoryBundle struct {
	Workflow port.WorkflowRepository
	Approval port.ApprovalRepository
	User     port.UserRepository
}

// ServiceBundle groups all application services
type ServiceBundle struct {
	Approval service.ApprovalService
	Workflow service.WorkflowService
	Export   service.ExportService
}

// New creates a container from configuration. Components are not
// initialized until Start is called.
func New(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// database and repositories, event dispatcher, services, then workers.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	ctx, c.cancel = context.WithCancel(ctx)

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	c.initDispatcher()
	c.initServices()
	c.logger.Info("Application services initialized")

	if err := c.initWorkers(ctx); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers started")

	c.ready.Store(true)
	return nil
}

// Close shuts down all components in reverse initialization order
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Swap(true) {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	if c.cancel != nil {
		c.cancel()
	}

	var errs []error
	if c.workers != nil {
		c.workers.StopAll()
	}
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}
	if c.sqlDB != nil {
		if err := c.sqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("container close errors: %v", errs)
	}
	c.logger.Info("Container closed")
	return nil
}

// Services returns the application services. Only valid after Start.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

func (c *Container) initDatabase() error {
	sqlDB, err := database.Open(database.Config{
		Path:            c.config.Database.Path,
		MaxOpenConns:    c.config.Database.MaxOpenConns,
		MaxIdleConns:    c.config.Database.MaxIdleConns,
		ConnMaxLifetime: c.config.Database.ConnMaxLifetime,
	}, c.logger)
	if err != nil {
		return err
	}
	c.sqlDB = sqlDB

	migrator := database.NewMigrator(sqlDB, c.logger)
	if err := migrator.Run(c.config.Database.MigrationsDir); err != nil {
		return err
	}

	c.db = sqlite.NewDB(sqlDB, c.logger)
	c.repositories = &RepositoryBundle{
		Workflow: repository.NewWorkflowRepository(c.db, c.logger),
		Approval: repository.NewApprovalRepository(c.db, c.logger),
		User:     repository.NewUserRepository(c.db, c.logger),
	}
	return nil
}

func (c *Container) initDispatcher() {
	c.dispatcher = dispatcher.New(&LoggerAdapter{logger: c.logger})

	// Audit trail of every lifecycle event
	auditLogger := c.logger.Named("audit")
	for _, t := range []event.Type{
		event.TypeApprovalRequested,
		event.TypeActionRecorded,
		event.TypeStepAdvanced,
		event.TypeApprovalApproved,
		event.TypeApprovalRejected,
		event.TypeApprovalCancelled,
		event.TypeApprovalExpired,
	} {
		c.dispatcher.Subscribe(t, "audit_log", func(ctx context.Context, evt *event.Event) error {
			auditLogger.Info("Approval event",
				zap.String("type", evt.Type.String()),
				zap.String("approval_id", evt.ApprovalID),
				zap.String("quote_id", evt.QuoteID),
				zap.Any("payload", evt.Payload))
			return nil
		})
	}
}

func (c *Container) initServices() {
	svcLogger := &LoggerAdapter{logger: c.logger}

	c.services = &ServiceBundle{
		Approval: service.NewApprovalService(
			c.repositories.Approval,
			c.repositories.Workflow,
			c.db,
			c.dispatcher,
			svcLogger,
		),
		Workflow: service.NewWorkflowService(c.repositories.Workflow, svcLogger),
		Export:   service.NewExportService(c.repositories.Approval, c.repositories.User, svcLogger),
	}
}

func (c *Container) initWorkers(ctx context.Context) error {
	c.workers = worker.NewManager(c.logger)
	c.workers.Register(worker.NewExpirySweeper(
		c.services.Approval,
		c.config.Scheduler.ExpiryInterval,
		c.config.Scheduler.ExpiryBatchSize,
		c.logger,
	))
	return c.workers.StartAll(ctx)
}

// LoggerAdapter adapts zap.Logger to the key-value Logger interfaces
// used by the application and interface layers
type LoggerAdapter struct {
	logger *zap.Logger
}

func (a *LoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, toZapFields(keysAndValues...)...)
}

func (a *LoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
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

// NewHTTPLogger returns a logger adapter for the HTTP server
func (c *Container) NewHTTPLogger() *LoggerAdapter {
	return &LoggerAdapter{logger: c.logger.Named("http")}
}
