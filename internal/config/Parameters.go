/*

This file contains the default selection-criteria profiles. These values are
used to seed a registry that omits profiles in tests and tooling; production
deployments define them in the registry file.

*/

package config

import (
	"github.com/yieldpilot/vrm/internal/types"
)

// DefaultSelectionProfiles provides the baseline risk presets.
//
// Conservative tolerates only low-risk, deep vaults with clean data;
// aggressive accepts smaller, riskier vaults including ones with poor data
// quality. All profiles share the 40% per-vault diversification cap.
var DefaultSelectionProfiles = map[string]types.SelectionCriteria{
	"conservative": {
		MinTvlUSD:           10_000_000,
		MinApyPercent:       0.5,
		MaxRiskScore:        15,
		RequireWhitelisted:  true,
		AllowPoorData:       false,
		MaxVaultAllocation:  0.40,
		PreferredVaultCount: 3,
		MaxVaultCount:       4,
		MinInvestmentUSD:    50,
		RebalanceThreshold:  0.05,
	},
	"moderate": {
		MinTvlUSD:           5_000_000,
		MinApyPercent:       1.0,
		MaxRiskScore:        25,
		RequireWhitelisted:  true,
		AllowPoorData:       false,
		MaxVaultAllocation:  0.40,
		PreferredVaultCount: 4,
		MaxVaultCount:       5,
		MinInvestmentUSD:    25,
		RebalanceThreshold:  0.05,
	},
	"aggressive": {
		MinTvlUSD:           1_000_000,
		MinApyPercent:       2.0,
		MaxRiskScore:        35,
		RequireWhitelisted:  true,
		AllowPoorData:       true,
		MaxVaultAllocation:  0.40,
		PreferredVaultCount: 5,
		MaxVaultCount:       6,
		MinInvestmentUSD:    10,
		RebalanceThreshold:  0.05,
	},
	"default": {
		MinTvlUSD:           5_000_000,
		MinApyPercent:       1.0,
		MaxRiskScore:        25,
		RequireWhitelisted:  true,
		AllowPoorData:       false,
		MaxVaultAllocation:  0.40,
		PreferredVaultCount: 4,
		MaxVaultCount:       5,
		MinInvestmentUSD:    25,
		RebalanceThreshold:  0.05,
	},
}
