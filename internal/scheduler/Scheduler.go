/*

This file contains the cron wiring for the three recurring triggers: the
daily full rebalancing run, the periodic non-executing drift check, and the
daily vault data sync. All schedules are evaluated in UTC.

*/

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/yieldpilot/vrm/internal/logger"
	"github.com/yieldpilot/vrm/internal/orchestrator"
)

var ErrInvalidSchedule = errors.New("invalid cron schedule")

// Per-trigger ceiling; a hung run must not block the next day's trigger
// forever.
const TRIGGER_TIMEOUT = 2 * time.Hour

// Config holds the cron expressions for the three triggers.
type Config struct {
	DailySchedule      string // full rebalancing run
	DriftCheckSchedule string // log-only drift check
	SyncSchedule       string // vault data sync
}

// Scheduler owns the cron runner.
type Scheduler struct {
	logger zerolog.Logger
	cron   *cron.Cron
	orch   *orchestrator.Orchestrator
}

// New builds a Scheduler with all three triggers registered. Invalid cron
// expressions fail here, before anything starts.
func New(cfg Config, orch *orchestrator.Orchestrator) (*Scheduler, error) {
	if orch == nil {
		return nil, errors.New("orchestrator cannot be nil")
	}

	s := &Scheduler{
		logger: logger.GetForComponent("scheduler"),
		cron:   cron.New(cron.WithLocation(time.UTC)),
		orch:   orch,
	}

	jobs := []struct {
		name     string
		schedule string
		run      func(ctx context.Context) error
	}{
		{"daily_rebalance", cfg.DailySchedule, s.runDaily},
		{"drift_check", cfg.DriftCheckSchedule, s.runDriftCheck},
		{"vault_sync", cfg.SyncSchedule, s.runSync},
	}
	for _, job := range jobs {
		job := job
		_, err := s.cron.AddFunc(job.schedule, func() { s.trigger(job.name, job.run) })
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q: %v", ErrInvalidSchedule, job.name, job.schedule, err)
		}
		s.logger.Info().
			Str("job", job.name).
			Str("schedule", job.schedule).
			Msg("Registered scheduled job")
	}

	return s, nil
}

// Start launches the cron runner in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("Scheduler started")
}

// Stop halts the cron runner and waits for any in-flight trigger to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) trigger(name string, run func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), TRIGGER_TIMEOUT)
	defer cancel()

	started := time.Now()
	s.logger.Info().Str("job", name).Msg("Scheduled job triggered")

	if err := run(ctx); err != nil {
		s.logger.Error().
			Err(err).
			Str("job", name).
			Dur("elapsed", time.Since(started)).
			Msg("Scheduled job failed")
		return
	}

	s.logger.Info().
		Str("job", name).
		Dur("elapsed", time.Since(started)).
		Msg("Scheduled job finished")
}

func (s *Scheduler) runDaily(ctx context.Context) error {
	_, err := s.orch.RunDaily(ctx)
	if errors.Is(err, orchestrator.ErrAlreadyRunning) {
		// Rejected, not failed; the active run covers this trigger.
		s.logger.Warn().Msg("Daily run skipped: previous run still in progress")
		return nil
	}
	return err
}

func (s *Scheduler) runDriftCheck(ctx context.Context) error {
	_, err := s.orch.DriftCheck(ctx)
	return err
}

func (s *Scheduler) runSync(ctx context.Context) error {
	return s.orch.SyncVaultData(ctx)
}
