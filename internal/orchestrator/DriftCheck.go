/*

This file contains the periodic drift check. It measures drift for every
user and flags the ones above twice the normal threshold, but it never
executes trades. Execution only happens inside the daily run.

*/

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/yieldpilot/vrm/internal/analyzer"
	"github.com/yieldpilot/vrm/internal/planner"
	"github.com/yieldpilot/vrm/internal/types"
)

// Multiplier over the normal drift threshold before a user is flagged.
const HIGH_DRIFT_FACTOR = 2.0

// DriftCheck scans all users and logs those whose drift exceeds
// HIGH_DRIFT_FACTOR times their profile threshold. It returns the flagged
// drifts for operator surfaces. No jobs are created and no transactions run.
func (o *Orchestrator) DriftCheck(ctx context.Context) ([]types.PortfolioDrift, error) {
	users, err := o.store.ListUsers()
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var flagged []types.PortfolioDrift
	for _, user := range users {
		if ctx.Err() != nil {
			return flagged, ctx.Err()
		}

		drift, threshold, err := o.measureDrift(user)
		if err != nil {
			o.logger.Error().
				Err(err).
				Str("user", user.WalletAddress).
				Msg("Drift check failed for user, continuing")
			continue
		}
		if drift == nil {
			continue
		}

		if drift.TotalDriftPercent > threshold*HIGH_DRIFT_FACTOR {
			o.logger.Warn().
				Str("user", user.WalletAddress).
				Float64("total_drift_percent", drift.TotalDriftPercent).
				Float64("threshold_percent", threshold).
				Msg("User drift well above threshold, flagged for next daily run")
			flagged = append(flagged, *drift)
		}
	}

	o.logger.Info().
		Int("users", len(users)).
		Int("flagged", len(flagged)).
		Msg("Drift check complete")

	return flagged, nil
}

// measureDrift computes one user's drift without side effects. A nil drift
// means the user has nothing to measure (no holdings or no eligible vaults).
func (o *Orchestrator) measureDrift(user types.UserProfile) (*types.PortfolioDrift, float64, error) {
	investments, err := o.store.GetActiveInvestments(user.WalletAddress)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load investments: %w", err)
	}

	totalValue := 0.0
	for _, inv := range investments {
		totalValue += inv.CurrentValue
	}
	if totalValue <= 0 {
		return nil, 0, nil
	}

	criteria := o.registry.Criteria(user.RiskProfile)
	enriched, err := o.enrichUniverse(user.TokenSymbol, user.ChainID, criteria)
	if err != nil {
		return nil, 0, err
	}

	target, err := o.planTarget(user, enriched, totalValue, criteria)
	if err != nil {
		if errors.Is(err, planner.ErrNoEligibleVaults) {
			return nil, 0, nil
		}
		return nil, 0, err
	}

	cfg := o.driftConfig(criteria)
	drift := analyzer.AnalyzeDrift(user.WalletAddress, investments, target, cfg)
	return &drift, cfg.DriftThresholdPercent, nil
}
