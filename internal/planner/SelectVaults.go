/*

This file contains vault selection: filtering the enriched universe down to
the vaults eligible for a given token, chain, and risk profile.

*/

package planner

import (
	"errors"
	"strings"

	"github.com/yieldpilot/vrm/internal/analyzer"
	"github.com/yieldpilot/vrm/internal/logger"
	"github.com/yieldpilot/vrm/internal/types"
)

var plannerLogger = logger.GetForComponent("allocation_planner")

var (
	ErrNoEligibleVaults = errors.New("no suitable vaults for token, chain and risk profile")
	ErrInvalidAmount    = errors.New("investment amount must be positive")
)

// SelectVaults filters enriched vaults by token, chain, and the risk-profile
// thresholds, then returns them ranked by recommendation score. An empty
// result is an explicit error; a silent empty selection would read as a valid
// zero allocation downstream.
func SelectVaults(vaults []types.EnrichedVaultRecord, tokenSymbol string, chainID int64, criteria types.SelectionCriteria) ([]types.EnrichedVaultRecord, error) {
	eligible := make([]types.EnrichedVaultRecord, 0, len(vaults))

	for _, v := range vaults {
		if !matchesUniverse(v, tokenSymbol, chainID) {
			continue
		}
		reason := rejectionReason(v, criteria)
		if reason != "" {
			plannerLogger.Debug().
				Str("vault", v.Address).
				Str("reason", reason).
				Msg("Vault excluded from selection")
			continue
		}
		eligible = append(eligible, v)
	}

	if len(eligible) == 0 {
		plannerLogger.Warn().
			Str("token", tokenSymbol).
			Int64("chain_id", chainID).
			Str("profile", criteria.Profile).
			Int("universe", len(vaults)).
			Msg("No vaults survived selection filters")
		return nil, ErrNoEligibleVaults
	}

	ranked := analyzer.RankVaults(eligible)
	if criteria.MaxVaultCount > 0 && len(ranked) > criteria.MaxVaultCount {
		ranked = ranked[:criteria.MaxVaultCount]
	}
	return ranked, nil
}

func matchesUniverse(v types.EnrichedVaultRecord, tokenSymbol string, chainID int64) bool {
	if v.ChainID != chainID {
		return false
	}
	if !strings.EqualFold(v.TokenSymbol, tokenSymbol) {
		return false
	}
	return v.IsActive
}

// rejectionReason applies the profile thresholds. It returns an empty string
// for an eligible vault, otherwise the first failing check.
func rejectionReason(v types.EnrichedVaultRecord, criteria types.SelectionCriteria) string {
	if criteria.RequireWhitelisted && !v.Whitelisted {
		return "not whitelisted"
	}
	if v.RiskScore > criteria.MaxRiskScore {
		return "risk score above profile maximum"
	}
	if v.Snapshot.TotalAssetsUSD < criteria.MinTvlUSD {
		return "tvl below profile minimum"
	}
	if v.Snapshot.NetAPY < criteria.MinApyPercent {
		return "net apy below profile minimum"
	}
	if v.Quality == types.QualityPoor && !criteria.AllowPoorData {
		return "data quality too poor for profile"
	}
	return ""
}
