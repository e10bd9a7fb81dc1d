package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/agentdesk/agentdesk/internal/application/dispatcher"
)

// Drainer dispatches pending tasks in batches and fails abandoned claims.
type Drainer interface {
	Drain(ctx context.Context, max int) ([]dispatcher.Outcome, error)
	ReapStale(ctx context.Context) (int, error)
}

// Scheduler drains the task queue on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	drainer Drainer
	spec    string
	batch   int
	logger  zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New validates spec (standard cron or descriptors such as "@every 10s").
func New(drainer Drainer, spec string, batch int, logger zerolog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid dispatch schedule %q: %w", spec, err)
	}
	log := logger.With().Str("service", "scheduler").Logger()
	cl := cronLogger{logger: log}
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cl),
			cron.Recover(cl),
		), cron.WithLogger(cl)),
		drainer: drainer,
		spec:    spec,
		batch:   batch,
		logger:  log,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("failed to add dispatch job: %w", err)
	}
	return s, nil
}

// Start begins ticking. Jobs run with a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info().Str("schedule", s.spec).Int("batch", s.batch).Msg("dispatch scheduler started")
}

// Stop halts scheduling and waits for a running drain, or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.logger.Info().Msg("dispatch scheduler stopped")
	return nil
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if reaped, err := s.drainer.ReapStale(ctx); err != nil {
		s.logger.Error().Err(err).Msg("stale task reap failed")
	} else if reaped > 0 {
		s.logger.Warn().Int("reaped", reaped).Msg("failed stale processing tasks")
	}

	outcomes, err := s.drainer.Drain(ctx, s.batch)
	if err != nil {
		s.logger.Error().Err(err).Int("dispatched", len(outcomes)).Msg("scheduled dispatch failed")
		return
	}
	if len(outcomes) == 0 {
		return
	}
	failed := 0
	for _, o := range outcomes {
		if !o.Success {
			failed++
		}
	}
	s.logger.Info().Int("dispatched", len(outcomes)).Int("failed", failed).Msg("scheduled dispatch finished")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
