/*

This file contains the orchestrator core: its collaborator interfaces,
dependency-injected construction, and the run-state guard that enforces
single-flight execution.

*/

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yieldpilot/vrm/internal/config"
	"github.com/yieldpilot/vrm/internal/datasource"
	"github.com/yieldpilot/vrm/internal/executor"
	"github.com/yieldpilot/vrm/internal/logger"
	"github.com/yieldpilot/vrm/internal/types"
)

var (
	ErrAlreadyRunning = errors.New("orchestration run already in progress")
	ErrInvalidConfig  = errors.New("orchestrator configuration is invalid")
)

// Store is the persistence surface the orchestrator needs.
type Store interface {
	ListUsers() ([]types.UserProfile, error)
	GetActiveInvestments(userWallet string) ([]types.UserInvestment, error)
	GetLatestSnapshot(address string, chainID int64) (types.VaultMetricSnapshot, error)
	GetSnapshotHistory(address string, chainID int64, days int) ([]types.VaultMetricSnapshot, error)
	UpsertVaultRecord(record types.VaultRecord) error
	UpsertSnapshot(snapshot types.VaultMetricSnapshot) error

	CreateJob(job types.RebalanceJob) error
	MarkJobProcessing(jobID string) error
	CompleteJob(jobID string, executedAt time.Time, fromVaults, toVaults []types.RebalanceLeg) error
	FailJob(jobID string, executedAt time.Time, errorMessage string, fromVaults, toVaults []types.RebalanceLeg) error
	LatestJobForUser(userWallet string) (types.RebalanceJob, error)
	ApplyDeposit(userWallet string, leg types.RebalanceLeg, executedAt time.Time) error
	ApplyWithdrawal(userWallet string, leg types.RebalanceLeg, executedAt time.Time) error
	SaveRunReport(report types.RunReport) error
}

// DataSource provides current vault metrics from the external provider.
type DataSource interface {
	FetchVaults(ctx context.Context, refs []types.VaultRef) ([]types.VaultMetricSnapshot, []datasource.FetchFailure, error)
}

// Config holds the collaborators and tuning for an Orchestrator.
type Config struct {
	Store      Store
	DataSource DataSource
	Executor   executor.TxExecutor
	Registry   *config.Registry

	// Minimum hours between rebalance attempts for the same user.
	MaxRebalanceFrequencyHours int
	// History window fed into volatility and trend calculations.
	HistoryDays int
}

// Orchestrator drives the full rebalancing pipeline for the user population.
type Orchestrator struct {
	logger     zerolog.Logger
	store      Store
	dataSource DataSource
	executor   executor.TxExecutor
	registry   *config.Registry

	cooldown    time.Duration
	historyDays int

	run *runState
}

// New creates an Orchestrator with dependency injection.
func New(cfg Config) (*Orchestrator, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("orchestrator configuration validation failed: %w", err)
	}

	historyDays := cfg.HistoryDays
	if historyDays <= 0 {
		historyDays = 30
	}

	o := &Orchestrator{
		logger:      logger.GetForComponent("orchestrator"),
		store:       cfg.Store,
		dataSource:  cfg.DataSource,
		executor:    cfg.Executor,
		registry:    cfg.Registry,
		cooldown:    time.Duration(cfg.MaxRebalanceFrequencyHours) * time.Hour,
		historyDays: historyDays,
		run:         &runState{},
	}

	o.logger.Info().
		Dur("cooldown", o.cooldown).
		Int("history_days", o.historyDays).
		Msg("Orchestrator created")

	return o, nil
}

func validateConfig(cfg Config) error {
	if cfg.Store == nil {
		return fmt.Errorf("%w: store cannot be nil", ErrInvalidConfig)
	}
	if cfg.DataSource == nil {
		return fmt.Errorf("%w: data source cannot be nil", ErrInvalidConfig)
	}
	if cfg.Executor == nil {
		return fmt.Errorf("%w: transaction executor cannot be nil", ErrInvalidConfig)
	}
	if cfg.Registry == nil {
		return fmt.Errorf("%w: vault registry cannot be nil", ErrInvalidConfig)
	}
	if cfg.MaxRebalanceFrequencyHours <= 0 {
		return fmt.Errorf("%w: max rebalance frequency must be positive hours", ErrInvalidConfig)
	}
	return nil
}

// runState guards against overlapping orchestration runs. It is an explicit
// object owned by the Orchestrator, not package-global state, so separate
// instances (and tests) do not interfere with each other.
type runState struct {
	mu        sync.Mutex
	running   bool
	startedAt time.Time
}

// begin claims the run slot. It fails immediately with ErrAlreadyRunning
// when a run is active; callers are rejected, never queued.
func (r *runState) begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("%w: active since %s", ErrAlreadyRunning, r.startedAt.Format(time.RFC3339))
	}
	r.running = true
	r.startedAt = time.Now().UTC()
	return nil
}

func (r *runState) end() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
}

// Running reports whether an orchestration run is currently active.
func (o *Orchestrator) Running() bool {
	o.run.mu.Lock()
	defer o.run.mu.Unlock()
	return o.run.running
}
