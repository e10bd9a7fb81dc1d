// Package app assembles stores, executors, and services from configuration.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	appActivity "github.com/agentdesk/agentdesk/internal/application/activity"
	"github.com/agentdesk/agentdesk/internal/application/dispatcher"
	"github.com/agentdesk/agentdesk/internal/application/executor"
	"github.com/agentdesk/agentdesk/internal/application/router"
	"github.com/agentdesk/agentdesk/internal/application/scheduler"
	appTask "github.com/agentdesk/agentdesk/internal/application/task"
	appWorkflow "github.com/agentdesk/agentdesk/internal/application/workflow"
	"github.com/agentdesk/agentdesk/internal/config"
	"github.com/agentdesk/agentdesk/internal/domain/activity"
	"github.com/agentdesk/agentdesk/internal/domain/task"
	"github.com/agentdesk/agentdesk/internal/domain/workflow"
	"github.com/agentdesk/agentdesk/internal/infrastructure/content"
	"github.com/agentdesk/agentdesk/internal/infrastructure/memory"
	"github.com/agentdesk/agentdesk/internal/infrastructure/notify"
	"github.com/agentdesk/agentdesk/internal/infrastructure/postgres"
	"github.com/agentdesk/agentdesk/internal/infrastructure/sqlite"
	"github.com/agentdesk/agentdesk/internal/infrastructure/sse"
	"github.com/agentdesk/agentdesk/internal/telemetry"
)

// NewLogger returns the process root logger at the named level.
func NewLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Stores groups the repositories of one backend.
type Stores struct {
	Tasks     task.Repository
	Workflows workflow.Repository
	Activity  activity.Repository
	close     func()
}

// MemoryStores returns a fresh in-process backend.
func MemoryStores() Stores {
	return Stores{
		Tasks:     memory.NewTaskRepository(),
		Workflows: memory.NewWorkflowRepository(),
		Activity:  memory.NewActivityRepository(),
	}
}

// OpenStores opens the backend named by cfg.StoreDriver.
func OpenStores(ctx context.Context, cfg *config.Config) (Stores, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return MemoryStores(), nil
	case config.StoreSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return Stores{}, err
		}
		return Stores{
			Tasks:     sqlite.NewTaskRepository(db),
			Workflows: sqlite.NewWorkflowRepository(db),
			Activity:  sqlite.NewActivityRepository(db),
			close:     func() { _ = db.Close() },
		}, nil
	case config.StorePostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return Stores{}, fmt.Errorf("db error: %w", err)
		}
		if err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return Stores{}, fmt.Errorf("migration error: %w", err)
		}
		return Stores{
			Tasks:     postgres.NewTaskRepository(pool),
			Workflows: postgres.NewWorkflowRepository(pool),
			Activity:  postgres.NewActivityRepository(pool),
			close:     pool.Close,
		}, nil
	default:
		return Stores{}, fmt.Errorf("%w: %q", config.ErrInvalidStoreDriver, cfg.StoreDriver)
	}
}

// Close releases the backend, if it holds resources.
func (s Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// App is the assembled dashboard core.
type App struct {
	Config     *config.Config
	Router     *router.Router
	Registry   *executor.Registry
	Tasks      *appTask.Service
	Dispatcher *dispatcher.Dispatcher
	Workflows  *appWorkflow.Service
	Activity   *appActivity.Log
	Hub        *sse.Hub
	Scheduler  *scheduler.Scheduler
	Tracer     trace.Tracer

	pubsub   *gochannel.GoChannel
	stores   Stores
	shutdown func(context.Context) error
	cancel   context.CancelFunc
	logger   zerolog.Logger
}

// New builds an App on stores. Ports left nil in ports are filled from cfg.
// On error the caller still owns stores.
func New(ctx context.Context, cfg *config.Config, stores Stores, ports executor.Ports, logger zerolog.Logger) (*App, error) {
	tracer, shutdown, err := telemetry.Setup(ctx, cfg.OTelEnabled, cfg.OTelServiceName)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	if ports.Content == nil {
		w, err := content.NewOSWriter(cfg.ContentDir)
		if err != nil {
			return nil, err
		}
		ports.Content = w
	}
	if ports.Notifier == nil {
		if cfg.NotifyWebhookURL != "" {
			ports.Notifier = notify.NewWebhookNotifier(cfg.NotifyWebhookURL, logger)
		} else {
			ports.Notifier = notify.NewLogNotifier(logger)
		}
	}

	pubsub := appActivity.NewPubSub(logger)
	activityLog := appActivity.NewLog(stores.Activity, pubsub, pubsub, logger)

	rt := router.NewDefault()
	registry := executor.NewBuiltinRegistry(ports, logger)
	tasks := appTask.NewService(stores.Tasks, rt, logger)
	disp := dispatcher.New(tasks, registry, activityLog, logger,
		dispatcher.WithTimeout(cfg.DispatchTimeout),
		dispatcher.WithReapMargin(cfg.ReapMargin),
		dispatcher.WithTracer(tracer),
	)
	graph := appWorkflow.NewGraphExecutor(tasks, disp, appWorkflow.GovaluateEvaluator{},
		appWorkflow.DefaultActions(ports.Notifier, logger), logger).WithTracer(tracer)
	workflows := appWorkflow.NewService(stores.Workflows, graph, activityLog, logger)

	a := &App{
		Config:     cfg,
		Router:     rt,
		Registry:   registry,
		Tasks:      tasks,
		Dispatcher: disp,
		Workflows:  workflows,
		Activity:   activityLog,
		Hub:        sse.NewHub(),
		Tracer:     tracer,
		pubsub:     pubsub,
		stores:     stores,
		shutdown:   shutdown,
		logger:     logger.With().Str("service", "app").Logger(),
	}
	if cfg.DispatchSchedule != "" {
		s, err := scheduler.New(disp, cfg.DispatchSchedule, cfg.DispatchBatch, logger)
		if err != nil {
			_ = pubsub.Close()
			_ = shutdown(ctx)
			return nil, err
		}
		a.Scheduler = s
	}
	return a, nil
}

// Start forwards activity to SSE clients and starts the scheduler, if any.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	if err := a.Activity.Subscribe(ctx, BroadcastTo(a.Hub)); err != nil {
		return fmt.Errorf("subscribe activity: %w", err)
	}
	if a.Scheduler != nil {
		a.Scheduler.Start(ctx)
	}
	return nil
}

// Close stops background work and releases the stores.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Scheduler != nil {
		if err := a.Scheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.Hub != nil {
		a.Hub.Stop()
	}
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub: %w", err))
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	a.stores.Close()
	return errors.Join(errs...)
}

// BroadcastTo forwards activity entries to SSE clients, using the entry kind as event name.
func BroadcastTo(hub *sse.Hub) func(activity.Entry) {
	return func(e activity.Entry) {
		data, err := json.Marshal(e)
		if err != nil {
			return
		}
		hub.Broadcast(&sse.Message{ID: e.ID.String(), Event: string(e.Kind), Data: data, Timestamp: e.CreatedAt})
	}
}
