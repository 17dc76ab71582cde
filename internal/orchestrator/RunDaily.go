/*

This file contains the main orchestration run: scan the user population,
recompute each user's optimal allocation, measure drift, and execute a
rebalance job where warranted.

Users are processed sequentially. One user's failure is recorded on their
job and never aborts the run for everyone else.

*/

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yieldpilot/vrm/internal/analyzer"
	"github.com/yieldpilot/vrm/internal/planner"
	"github.com/yieldpilot/vrm/internal/state"
	"github.com/yieldpilot/vrm/internal/types"
)

// RunDaily executes one full rebalancing pass over all users. A second
// invocation while one is active returns ErrAlreadyRunning without touching
// any state.
func (o *Orchestrator) RunDaily(ctx context.Context) (types.RunReport, error) {
	return o.runAll(ctx, types.JobTypeDaily)
}

// RunManual is an operator-triggered full pass, identical to the daily run
// except for the job type recorded on the resulting jobs.
func (o *Orchestrator) RunManual(ctx context.Context) (types.RunReport, error) {
	return o.runAll(ctx, types.JobTypeManual)
}

func (o *Orchestrator) runAll(ctx context.Context, jobType types.JobType) (types.RunReport, error) {
	if err := o.run.begin(); err != nil {
		o.logger.Warn().Err(err).Msg("Rejected overlapping orchestration run")
		return types.RunReport{}, err
	}
	defer o.run.end()

	report := types.RunReport{
		RunID:     uuid.New().String(),
		JobType:   jobType,
		StartedAt: time.Now().UTC(),
	}

	o.logger.Info().
		Str("run_id", report.RunID).
		Str("job_type", string(jobType)).
		Msg("Starting orchestration run")

	users, err := o.store.ListUsers()
	if err != nil {
		return report, fmt.Errorf("failed to list users: %w", err)
	}

	for _, user := range users {
		if ctx.Err() != nil {
			o.logger.Warn().Str("run_id", report.RunID).Msg("Orchestration run cancelled")
			break
		}
		report.UsersScanned++

		created, failed, err := o.rebalanceUser(ctx, user, jobType)
		if err != nil {
			o.logger.Error().
				Err(err).
				Str("user", user.WalletAddress).
				Msg("Failed to process user, continuing with remaining users")
			report.UsersSkipped++
			continue
		}
		if !created {
			report.UsersSkipped++
			continue
		}
		report.JobsCreated++
		if failed {
			report.JobsFailed++
		} else {
			report.JobsCompleted++
		}
	}

	report.FinishedAt = time.Now().UTC()
	if err := o.store.SaveRunReport(report); err != nil {
		o.logger.Error().Err(err).Str("run_id", report.RunID).Msg("Failed to persist run report")
	}

	o.logger.Info().
		Str("run_id", report.RunID).
		Int("users_scanned", report.UsersScanned).
		Int("users_skipped", report.UsersSkipped).
		Int("jobs_created", report.JobsCreated).
		Int("jobs_completed", report.JobsCompleted).
		Int("jobs_failed", report.JobsFailed).
		Msg("Orchestration run finished")

	return report, nil
}

// rebalanceUser runs the pipeline for one user. It reports whether a job was
// created and whether that job failed; an error means the user could not be
// evaluated at all.
func (o *Orchestrator) rebalanceUser(ctx context.Context, user types.UserProfile, jobType types.JobType) (created bool, failed bool, err error) {
	if skip, reason := o.inCooldown(user.WalletAddress); skip {
		o.logger.Debug().
			Str("user", user.WalletAddress).
			Str("reason", reason).
			Msg("Skipping user")
		return false, false, nil
	}

	investments, err := o.store.GetActiveInvestments(user.WalletAddress)
	if err != nil {
		return false, false, fmt.Errorf("failed to load investments: %w", err)
	}

	totalValue := 0.0
	for _, inv := range investments {
		totalValue += inv.CurrentValue
	}
	if totalValue <= 0 {
		return false, false, nil
	}

	criteria := o.registry.Criteria(user.RiskProfile)

	enriched, err := o.enrichUniverse(user.TokenSymbol, user.ChainID, criteria)
	if err != nil {
		return false, false, err
	}

	target, err := o.planTarget(user, enriched, totalValue, criteria)
	if err != nil {
		if errors.Is(err, planner.ErrNoEligibleVaults) {
			o.logger.Warn().
				Str("user", user.WalletAddress).
				Str("token", user.TokenSymbol).
				Int64("chain_id", user.ChainID).
				Msg("No eligible vaults for user, skipping")
			return false, false, nil
		}
		return false, false, fmt.Errorf("failed to plan allocation: %w", err)
	}

	drift := analyzer.AnalyzeDrift(user.WalletAddress, investments, target, o.driftConfig(criteria))
	if !drift.RequiresRebalance {
		o.logger.Debug().
			Str("user", user.WalletAddress).
			Float64("total_drift_percent", drift.TotalDriftPercent).
			Msg("Drift within tolerance, no rebalance")
		return false, false, nil
	}

	withdraws, deposits := DeriveOperations(drift)
	if len(withdraws) == 0 && len(deposits) == 0 {
		o.logger.Debug().
			Str("user", user.WalletAddress).
			Msg("Drift present but no material operations derived")
		return false, false, nil
	}

	job := types.RebalanceJob{
		ID:                uuid.New().String(),
		UserWalletAddress: user.WalletAddress,
		Status:            types.JobPending,
		JobType:           jobType,
		ScheduledAt:       time.Now().UTC(),
		TotalAmountUSD:    totalMoved(withdraws, deposits),
		TotalDriftPercent: drift.TotalDriftPercent,
		FromVaults:        withdraws,
		ToVaults:          deposits,
	}
	if err := o.store.CreateJob(job); err != nil {
		return false, false, fmt.Errorf("failed to create job: %w", err)
	}

	failed, err = o.executeJob(ctx, user, job)
	if err != nil {
		return true, true, err
	}
	return true, failed, nil
}

// planTarget computes the target allocation. With an enriched universe it
// plans on live metrics; when no vault has usable metrics but the registry
// still lists active vaults, it falls back to the degraded equal-weight plan
// from static registry data rather than skipping the user.
func (o *Orchestrator) planTarget(user types.UserProfile, enriched []types.EnrichedVaultRecord, totalValue float64, criteria types.SelectionCriteria) ([]types.Allocation, error) {
	if len(enriched) > 0 {
		return planner.PlanAllocation(enriched, user.TokenSymbol, user.ChainID, totalValue, criteria)
	}

	records := o.registry.VaultRecords(user.TokenSymbol, user.ChainID)
	if len(records) == 0 {
		return nil, planner.ErrNoEligibleVaults
	}

	o.logger.Warn().
		Str("user", user.WalletAddress).
		Str("token", user.TokenSymbol).
		Int64("chain_id", user.ChainID).
		Msg("No live metrics for any vault, planning from static registry data")

	return planner.PlanDegradedAllocation(records, totalValue, criteria)
}

// inCooldown applies the per-user rebalance frequency limit. Any job
// attempted inside the window counts, failed ones included.
func (o *Orchestrator) inCooldown(userWallet string) (bool, string) {
	last, err := o.store.LatestJobForUser(userWallet)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return false, ""
		}
		// On a read failure, skipping is the safe side of the cooldown.
		return true, fmt.Sprintf("cooldown check failed: %v", err)
	}

	if time.Since(last.ScheduledAt) < o.cooldown {
		return true, fmt.Sprintf("last job %s at %s is within cooldown", last.ID, last.ScheduledAt.Format(time.RFC3339))
	}
	return false, ""
}

// enrichUniverse builds the enriched view of every registry vault for a
// token and chain. Vaults with no stored snapshot are skipped with a log.
func (o *Orchestrator) enrichUniverse(tokenSymbol string, chainID int64, criteria types.SelectionCriteria) ([]types.EnrichedVaultRecord, error) {
	records := o.registry.VaultRecords(tokenSymbol, chainID)
	if len(records) == 0 {
		return nil, nil
	}

	enriched := make([]types.EnrichedVaultRecord, 0, len(records))
	for _, record := range records {
		snapshot, err := o.store.GetLatestSnapshot(record.Address, record.ChainID)
		if err != nil {
			if errors.Is(err, state.ErrNotFound) {
				o.logger.Debug().
					Str("vault", record.Address).
					Msg("No snapshot stored for vault, excluding from universe")
				continue
			}
			return nil, fmt.Errorf("failed to load snapshot for %s: %w", record.Address, err)
		}

		history, err := o.store.GetSnapshotHistory(record.Address, record.ChainID, o.historyDays)
		if err != nil {
			return nil, fmt.Errorf("failed to load history for %s: %w", record.Address, err)
		}

		ev, err := analyzer.EnrichVault(record, snapshot, history, criteria)
		if err != nil {
			o.logger.Warn().
				Err(err).
				Str("vault", record.Address).
				Msg("Enrichment rejected vault, excluding from universe")
			continue
		}
		enriched = append(enriched, ev)
	}
	return enriched, nil
}

func (o *Orchestrator) driftConfig(criteria types.SelectionCriteria) types.DriftConfig {
	cfg := types.DefaultDriftConfig()
	if criteria.RebalanceThreshold > 0 {
		cfg.DriftThresholdPercent = criteria.RebalanceThreshold * 100.0
	}
	cfg.MinRebalanceInterval = o.cooldown
	return cfg
}

func totalMoved(withdraws, deposits []types.RebalanceLeg) float64 {
	total := 0.0
	for _, leg := range withdraws {
		total += leg.AmountUSD
	}
	for _, leg := range deposits {
		total += leg.AmountUSD
	}
	return total
}
