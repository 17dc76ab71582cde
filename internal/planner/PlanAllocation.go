/*

This file contains the allocation computation: splitting an investment amount
across selected vaults proportionally to recommendation score, under a
per-vault diversification cap.

*/

package planner

import (
	"fmt"
	"math"

	"github.com/yieldpilot/vrm/internal/types"
)

// Diversification cap applied when the profile does not specify one.
const DEFAULT_MAX_VAULT_ALLOCATION = 0.40

// PlanAllocation selects the eligible vaults for the token, chain, and
// profile and splits totalAmountUSD across them. Weights are proportional to
// recommendation score, capped at the profile's per-vault fraction, with the
// capped-off excess redistributed across remaining headroom in a second pass.
// Allocations below the profile's minimum investment are dropped, so the
// output can sum to less than totalAmountUSD but never more.
func PlanAllocation(vaults []types.EnrichedVaultRecord, tokenSymbol string, chainID int64, totalAmountUSD float64, criteria types.SelectionCriteria) ([]types.Allocation, error) {
	if totalAmountUSD <= 0 || math.IsNaN(totalAmountUSD) || math.IsInf(totalAmountUSD, 0) {
		return nil, fmt.Errorf("%w: %f", ErrInvalidAmount, totalAmountUSD)
	}

	selected, err := SelectVaults(vaults, tokenSymbol, chainID, criteria)
	if err != nil {
		return nil, err
	}
	if criteria.PreferredVaultCount > 0 && len(selected) > criteria.PreferredVaultCount {
		selected = selected[:criteria.PreferredVaultCount]
	}

	weights := allocationWeights(selected, criteria)

	allocations := make([]types.Allocation, 0, len(selected))
	for i, v := range selected {
		amount := weights[i] * totalAmountUSD
		if amount < criteria.MinInvestmentUSD {
			plannerLogger.Debug().
				Str("vault", v.Address).
				Float64("amount_usd", amount).
				Float64("min_investment_usd", criteria.MinInvestmentUSD).
				Msg("Dropping allocation below minimum investment")
			continue
		}
		allocations = append(allocations, types.Allocation{
			VaultAddress:        v.Address,
			ChainID:             v.ChainID,
			AmountUSD:           amount,
			Percentage:          weights[i] * 100.0,
			ExpectedAPY:         v.Snapshot.NetAPY,
			RiskScore:           v.RiskScore,
			RecommendationScore: v.RecommendationScore,
			Quality:             v.Quality,
		})
	}

	if len(allocations) == 0 {
		return nil, ErrNoEligibleVaults
	}

	plannerLogger.Info().
		Str("token", tokenSymbol).
		Int64("chain_id", chainID).
		Str("profile", criteria.Profile).
		Float64("total_amount_usd", totalAmountUSD).
		Int("vaults", len(allocations)).
		Msg("Allocation plan computed")

	return allocations, nil
}

// allocationWeights computes the per-vault fractions. Scores proportional,
// capped, then one redistribution pass: the fraction shaved off capped vaults
// flows to the uncapped ones proportionally to their score, itself capped.
func allocationWeights(selected []types.EnrichedVaultRecord, criteria types.SelectionCriteria) []float64 {
	maxFraction := criteria.MaxVaultAllocation
	if maxFraction <= 0 || maxFraction > 1 {
		maxFraction = DEFAULT_MAX_VAULT_ALLOCATION
	}

	totalScore := 0.0
	for _, v := range selected {
		totalScore += v.RecommendationScore
	}

	weights := make([]float64, len(selected))
	if totalScore <= 0 {
		// Degenerate universe where every score is zero; fall back to equal
		// weight under the same cap.
		equal := math.Min(1.0/float64(len(selected)), maxFraction)
		for i := range weights {
			weights[i] = equal
		}
		return weights
	}

	shortfall := 0.0
	uncappedScore := 0.0
	for i, v := range selected {
		raw := v.RecommendationScore / totalScore
		if raw > maxFraction {
			weights[i] = maxFraction
			shortfall += raw - maxFraction
		} else {
			weights[i] = raw
			uncappedScore += v.RecommendationScore
		}
	}

	if shortfall > 0 && uncappedScore > 0 {
		for i, v := range selected {
			if weights[i] >= maxFraction {
				continue
			}
			extra := shortfall * (v.RecommendationScore / uncappedScore)
			weights[i] = math.Min(weights[i]+extra, maxFraction)
		}
	}

	return weights
}
