package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldpilot/vrm/internal/types"
)

const (
	vaultA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	vaultB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	wallet = "0x4242424242424242424242424242424242424242"
)

func holdings(valueA, valueB float64) []types.UserInvestment {
	return []types.UserInvestment{
		{UserWalletAddress: wallet, VaultAddress: vaultA, ChainID: 8453, CurrentValue: valueA, Status: types.InvestmentActive},
		{UserWalletAddress: wallet, VaultAddress: vaultB, ChainID: 8453, CurrentValue: valueB, Status: types.InvestmentActive},
	}
}

func fiftyFiftyTarget() []types.Allocation {
	return []types.Allocation{
		{VaultAddress: vaultA, ChainID: 8453, Percentage: 50, AmountUSD: 500},
		{VaultAddress: vaultB, ChainID: 8453, Percentage: 50, AmountUSD: 500},
	}
}

func TestAnalyzeDrift_EightyTwentyToFiftyFifty(t *testing.T) {
	drift := AnalyzeDrift(wallet, holdings(800, 200), fiftyFiftyTarget(), types.DefaultDriftConfig())

	assert.InDelta(t, 1000.0, drift.TotalValueUSD, 1e-9)
	assert.InDelta(t, 60.0, drift.TotalDriftPercent, 1e-9)
	assert.True(t, drift.RequiresRebalance)

	require.Len(t, drift.Assets, 2)
	byVault := map[string]types.AssetDrift{}
	for _, a := range drift.Assets {
		byVault[a.VaultAddress] = a
	}
	assert.InDelta(t, 300.0, byVault[vaultA].RebalanceAmountUSD, 1e-9)
	assert.InDelta(t, 300.0, byVault[vaultB].RebalanceAmountUSD, 1e-9)
	assert.InDelta(t, 80.0, byVault[vaultA].CurrentPercent, 1e-9)
	assert.InDelta(t, 50.0, byVault[vaultA].TargetPercent, 1e-9)
}

func TestAnalyzeDrift_HighThresholdSuppressesRebalance(t *testing.T) {
	cfg := types.DefaultDriftConfig()
	cfg.DriftThresholdPercent = 65.0

	drift := AnalyzeDrift(wallet, holdings(800, 200), fiftyFiftyTarget(), cfg)

	assert.InDelta(t, 60.0, drift.TotalDriftPercent, 1e-9)
	assert.False(t, drift.RequiresRebalance, "60%% drift must not trigger with a 65%% threshold")
}

func TestAnalyzeDrift_ThresholdBoundaryIsExclusive(t *testing.T) {
	// 52.5/47.5 vs 50/50 gives exactly 5.0 total drift, with moves well
	// above the minimum amount so only the threshold condition decides.
	drift := AnalyzeDrift(wallet, holdings(5250, 4750), fiftyFiftyTarget(), types.DefaultDriftConfig())

	assert.InDelta(t, 5.0, drift.TotalDriftPercent, 1e-9)
	assert.False(t, drift.RequiresRebalance, "drift exactly at the threshold must not trigger")
}

func TestAnalyzeDrift_TinyPositionNeverTriggers(t *testing.T) {
	// Same 60% relative drift, but the largest move is $30 < $100 minimum.
	drift := AnalyzeDrift(wallet, holdings(80, 20), fiftyFiftyTarget(), types.DefaultDriftConfig())

	assert.InDelta(t, 60.0, drift.TotalDriftPercent, 1e-9)
	assert.False(t, drift.RequiresRebalance)
}

func TestAnalyzeDrift_VaultOnlyInTargetCounts(t *testing.T) {
	current := []types.UserInvestment{
		{UserWalletAddress: wallet, VaultAddress: vaultA, ChainID: 8453, CurrentValue: 1000, Status: types.InvestmentActive},
	}

	drift := AnalyzeDrift(wallet, current, fiftyFiftyTarget(), types.DefaultDriftConfig())

	require.Len(t, drift.Assets, 2)
	byVault := map[string]types.AssetDrift{}
	for _, a := range drift.Assets {
		byVault[a.VaultAddress] = a
	}
	assert.InDelta(t, 0.0, byVault[vaultB].CurrentPercent, 1e-9)
	assert.InDelta(t, 50.0, byVault[vaultB].TargetPercent, 1e-9)
	assert.InDelta(t, 100.0, drift.TotalDriftPercent, 1e-9)
}

func TestAnalyzeDrift_IgnoresInactiveInvestments(t *testing.T) {
	investments := holdings(800, 200)
	investments[1].Status = types.InvestmentInactive

	drift := AnalyzeDrift(wallet, investments, fiftyFiftyTarget(), types.DefaultDriftConfig())

	assert.InDelta(t, 800.0, drift.TotalValueUSD, 1e-9)
}

func TestAnalyzeDrift_Idempotent(t *testing.T) {
	investments := holdings(800, 200)
	target := fiftyFiftyTarget()
	cfg := types.DefaultDriftConfig()

	first := AnalyzeDrift(wallet, investments, target, cfg)
	second := AnalyzeDrift(wallet, investments, target, cfg)

	assert.Equal(t, first, second)
}

func TestAnalyzeDrift_EmptyPortfolio(t *testing.T) {
	drift := AnalyzeDrift(wallet, nil, fiftyFiftyTarget(), types.DefaultDriftConfig())

	assert.False(t, drift.RequiresRebalance)
	assert.Empty(t, drift.Assets)
	assert.Zero(t, drift.TotalValueUSD)
}
