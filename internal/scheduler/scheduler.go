// Package scheduler triggers ingestion cycles on a cron schedule inside the
// server process.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-ingest-service/internal/domain"
	"github.com/helixir/paper-ingest-service/internal/ingest"
)

// CycleRunner runs one ingestion cycle. *ingest.Engine implements it.
type CycleRunner interface {
	RunCycle(ctx context.Context, trigger ingest.Trigger) (ingest.CycleResult, error)
}

// Config holds scheduler settings.
type Config struct {
	// Spec is a standard five-field cron expression or a descriptor such as "@every 10m".
	Spec string
	// RunOnStart triggers one cycle as soon as the scheduler starts.
	RunOnStart bool
}

// Scheduler runs cycles on a cron schedule. A tick that fires while the
// previous scheduled cycle is still running is skipped.
type Scheduler struct {
	cron    *cron.Cron
	entryID cron.EntryID
	runner  CycleRunner
	cfg     Config
	logger  zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. The schedule is validated immediately.
func New(cfg Config, runner CycleRunner, logger zerolog.Logger) (*Scheduler, error) {
	logger = logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger: logger}

	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner: runner,
		cfg:    cfg,
		logger: logger,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	id, err := s.cron.AddFunc(cfg.Spec, s.tick)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Spec, err)
	}
	s.entryID = id
	return s, nil
}

// Start begins firing the schedule.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().
		Str("spec", s.cfg.Spec).
		Time("next_run", s.Next()).
		Msg("scheduler started")

	if s.cfg.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(ingest.TriggerStartup)
		}()
	}
}

// Next returns the next scheduled run, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Stop stops firing the schedule, cancels any running cycle and waits for
// it to return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	cronDone := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for scheduled cycle: %w", ctx.Err())
	}
}

func (s *Scheduler) tick() {
	s.run(ingest.TriggerSchedule)
}

func (s *Scheduler) run(trigger ingest.Trigger) {
	result, err := s.runner.RunCycle(s.ctx, trigger)
	switch {
	case errors.Is(err, domain.ErrCycleInProgress):
		s.logger.Debug().Str("trigger", string(trigger)).Msg("cycle already running, tick skipped")
	case err != nil:
		s.logger.Error().Err(err).
			Str("trigger", string(trigger)).
			Str("cycle_id", result.CycleID).
			Msg("scheduled cycle failed")
	default:
		s.logger.Debug().
			Str("trigger", string(trigger)).
			Str("cycle_id", result.CycleID).
			Str("outcome", string(result.Outcome)).
			Msg("scheduled cycle finished")
	}
}

// cronLogger routes cron's own logging to zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
