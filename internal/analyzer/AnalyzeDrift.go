/*

This file contains the drift analysis between a user's current holdings and
the planner's target allocation.

Drift analysis is a pure function over its inputs. The rebalance decision
requires BOTH a relative condition (total drift above the threshold) and an
absolute one (the largest single move above the minimum USD amount), so a
large relative drift on a tiny position never triggers execution.

*/

package analyzer

import (
	"math"
	"sort"

	"github.com/yieldpilot/vrm/internal/logger"
	"github.com/yieldpilot/vrm/internal/types"
)

var driftLogger = logger.GetForComponent("drift_analyzer")

// AnalyzeDrift compares active investments against the target allocation and
// produces the per-asset and aggregate drift. Vaults present on only one side
// count with 0% on the other side. Inactive investments are ignored.
func AnalyzeDrift(userWallet string, investments []types.UserInvestment, target []types.Allocation, cfg types.DriftConfig) types.PortfolioDrift {
	drift := types.PortfolioDrift{
		UserWalletAddress: userWallet,
	}

	type position struct {
		chainID  int64
		valueUSD float64
	}
	current := make(map[string]position)
	for _, inv := range investments {
		if inv.Status != types.InvestmentActive {
			continue
		}
		p := current[inv.VaultAddress]
		p.chainID = inv.ChainID
		p.valueUSD += inv.CurrentValue
		current[inv.VaultAddress] = p
		drift.TotalValueUSD += inv.CurrentValue
	}

	if drift.TotalValueUSD <= 0 {
		driftLogger.Debug().
			Str("user", userWallet).
			Msg("No active portfolio value, nothing to drift against")
		return drift
	}

	targetPercent := make(map[string]types.Allocation, len(target))
	for _, alloc := range target {
		targetPercent[alloc.VaultAddress] = alloc
	}

	// Union of held and targeted vaults, each contributing one asset entry.
	addresses := make([]string, 0, len(current)+len(targetPercent))
	seen := make(map[string]bool)
	for addr := range current {
		addresses = append(addresses, addr)
		seen[addr] = true
	}
	for addr := range targetPercent {
		if !seen[addr] {
			addresses = append(addresses, addr)
		}
	}
	sort.Strings(addresses)

	maxRebalanceUSD := 0.0
	for _, addr := range addresses {
		pos := current[addr]
		alloc, targeted := targetPercent[addr]

		currentPct := pos.valueUSD / drift.TotalValueUSD * 100.0
		targetPct := 0.0
		chainID := pos.chainID
		if targeted {
			targetPct = alloc.Percentage
			chainID = alloc.ChainID
		}

		assetDrift := math.Abs(currentPct - targetPct)
		rebalanceUSD := assetDrift / 100.0 * drift.TotalValueUSD

		drift.Assets = append(drift.Assets, types.AssetDrift{
			VaultAddress:       addr,
			ChainID:            chainID,
			CurrentPercent:     currentPct,
			TargetPercent:      targetPct,
			DriftPercent:       assetDrift,
			CurrentValueUSD:    pos.valueUSD,
			RebalanceAmountUSD: rebalanceUSD,
		})
		drift.TotalDriftPercent += assetDrift
		if rebalanceUSD > maxRebalanceUSD {
			maxRebalanceUSD = rebalanceUSD
		}
	}

	// Threshold is exclusive: drift exactly at the threshold does not trigger.
	drift.RequiresRebalance = drift.TotalDriftPercent > cfg.DriftThresholdPercent &&
		maxRebalanceUSD > cfg.MinRebalanceAmountUSD

	driftLogger.Debug().
		Str("user", userWallet).
		Float64("total_drift_percent", drift.TotalDriftPercent).
		Float64("max_rebalance_usd", maxRebalanceUSD).
		Bool("requires_rebalance", drift.RequiresRebalance).
		Msg("Drift analysis complete")

	return drift
}
