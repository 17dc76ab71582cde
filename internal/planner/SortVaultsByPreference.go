/*

This file contains the degraded mode used when live metrics are unavailable
and enrichment cannot run. It falls back to the static registry attributes:
an ordering by configured risk, and an equal-weight split across the safest
vaults.

*/

package planner

import (
	"fmt"
	"math"
	"sort"

	"github.com/yieldpilot/vrm/internal/types"
)

// SortVaultsByPreference orders vault records by static risk score ascending
// (safer first), breaking ties by higher maximum allocation and then by
// address for determinism. Inactive vaults sort last.
func SortVaultsByPreference(vaults []types.VaultRecord) []types.VaultRecord {
	sorted := make([]types.VaultRecord, len(vaults))
	copy(sorted, vaults)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.IsActive != b.IsActive {
			return a.IsActive
		}
		if a.StaticRiskScore != b.StaticRiskScore {
			return a.StaticRiskScore < b.StaticRiskScore
		}
		if a.MaxAllocation != b.MaxAllocation {
			return a.MaxAllocation > b.MaxAllocation
		}
		return a.Address < b.Address
	})

	return sorted
}

// PlanDegradedAllocation splits totalAmountUSD equally across the preferred
// number of vaults taken from the static preference order, under the
// profile's per-vault cap. The registry's risk configuration stands in for
// the live scores; the resulting allocations are marked poor quality so
// downstream consumers can tell them apart from metric-backed plans.
func PlanDegradedAllocation(vaults []types.VaultRecord, totalAmountUSD float64, criteria types.SelectionCriteria) ([]types.Allocation, error) {
	if totalAmountUSD <= 0 || math.IsNaN(totalAmountUSD) || math.IsInf(totalAmountUSD, 0) {
		return nil, fmt.Errorf("%w: %f", ErrInvalidAmount, totalAmountUSD)
	}

	eligible := make([]types.VaultRecord, 0, len(vaults))
	for _, v := range vaults {
		if !v.IsActive {
			continue
		}
		if criteria.MaxRiskScore > 0 && v.StaticRiskScore > criteria.MaxRiskScore {
			continue
		}
		eligible = append(eligible, v)
	}
	if len(eligible) == 0 {
		return nil, ErrNoEligibleVaults
	}

	eligible = SortVaultsByPreference(eligible)
	if criteria.PreferredVaultCount > 0 && len(eligible) > criteria.PreferredVaultCount {
		eligible = eligible[:criteria.PreferredVaultCount]
	}

	maxFraction := criteria.MaxVaultAllocation
	if maxFraction <= 0 || maxFraction > 1 {
		maxFraction = DEFAULT_MAX_VAULT_ALLOCATION
	}
	share := math.Min(1.0/float64(len(eligible)), maxFraction)

	allocations := make([]types.Allocation, 0, len(eligible))
	for _, v := range eligible {
		amount := share * totalAmountUSD
		if amount < criteria.MinInvestmentUSD {
			continue
		}
		allocations = append(allocations, types.Allocation{
			VaultAddress: v.Address,
			ChainID:      v.ChainID,
			AmountUSD:    amount,
			Percentage:   share * 100.0,
			RiskScore:    v.StaticRiskScore,
			Quality:      types.QualityPoor,
		})
	}
	if len(allocations) == 0 {
		return nil, ErrNoEligibleVaults
	}

	plannerLogger.Warn().
		Str("profile", criteria.Profile).
		Float64("total_amount_usd", totalAmountUSD).
		Int("vaults", len(allocations)).
		Msg("Planned degraded equal-weight allocation from static registry data")

	return allocations, nil
}
