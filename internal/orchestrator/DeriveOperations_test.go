package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldpilot/vrm/internal/types"
)

func TestDeriveOperations_EightyTwentyScenario(t *testing.T) {
	drift := types.PortfolioDrift{
		UserWalletAddress: "0x4242424242424242424242424242424242424242",
		TotalValueUSD:     1000,
		TotalDriftPercent: 60,
		RequiresRebalance: true,
		Assets: []types.AssetDrift{
			{VaultAddress: "0xaaaa", ChainID: 8453, CurrentPercent: 80, TargetPercent: 50, CurrentValueUSD: 800, RebalanceAmountUSD: 300},
			{VaultAddress: "0xbbbb", ChainID: 8453, CurrentPercent: 20, TargetPercent: 50, CurrentValueUSD: 200, RebalanceAmountUSD: 300},
		},
	}

	withdraws, deposits := DeriveOperations(drift)

	require.Len(t, withdraws, 1)
	require.Len(t, deposits, 1)
	assert.Equal(t, types.LegWithdraw, withdraws[0].Type)
	assert.Equal(t, "0xaaaa", withdraws[0].VaultAddress)
	assert.InDelta(t, 300.0, withdraws[0].AmountUSD, 1e-9)
	assert.Equal(t, types.LegDeposit, deposits[0].Type)
	assert.Equal(t, "0xbbbb", deposits[0].VaultAddress)
	assert.InDelta(t, 300.0, deposits[0].AmountUSD, 1e-9)
}

func TestDeriveOperations_DropsImmaterialLegs(t *testing.T) {
	drift := types.PortfolioDrift{
		TotalValueUSD: 10_000,
		Assets: []types.AssetDrift{
			// Below the absolute $10 floor.
			{VaultAddress: "0xaaaa", CurrentPercent: 50.05, TargetPercent: 50, CurrentValueUSD: 5005, RebalanceAmountUSD: 5},
			// Above $10 but below 5% of the position's value.
			{VaultAddress: "0xbbbb", CurrentPercent: 30.5, TargetPercent: 30, CurrentValueUSD: 3050, RebalanceAmountUSD: 50},
			// Material.
			{VaultAddress: "0xcccc", CurrentPercent: 19.45, TargetPercent: 20, CurrentValueUSD: 1945, RebalanceAmountUSD: 550},
		},
	}

	withdraws, deposits := DeriveOperations(drift)

	assert.Empty(t, withdraws)
	require.Len(t, deposits, 1)
	assert.Equal(t, "0xcccc", deposits[0].VaultAddress)
}

func TestDeriveOperations_FreshDepositOnlyFacesAbsoluteFloor(t *testing.T) {
	drift := types.PortfolioDrift{
		TotalValueUSD: 1000,
		Assets: []types.AssetDrift{
			{VaultAddress: "0xaaaa", CurrentPercent: 0, TargetPercent: 5, CurrentValueUSD: 0, RebalanceAmountUSD: 50},
		},
	}

	_, deposits := DeriveOperations(drift)
	require.Len(t, deposits, 1)
	assert.InDelta(t, 50.0, deposits[0].AmountUSD, 1e-9)
}

func TestDeriveOperations_NeverWithdrawsMoreThanHeld(t *testing.T) {
	drift := types.PortfolioDrift{
		TotalValueUSD: 1000,
		Assets: []types.AssetDrift{
			{VaultAddress: "0xaaaa", CurrentPercent: 40, TargetPercent: 0, CurrentValueUSD: 350, RebalanceAmountUSD: 400},
		},
	}

	withdraws, _ := DeriveOperations(drift)
	require.Len(t, withdraws, 1)
	assert.InDelta(t, 350.0, withdraws[0].AmountUSD, 1e-9)
}

func TestDeriveOperations_DeterministicOrdering(t *testing.T) {
	drift := types.PortfolioDrift{
		TotalValueUSD: 10_000,
		Assets: []types.AssetDrift{
			{VaultAddress: "0xcccc", CurrentPercent: 0, TargetPercent: 20, RebalanceAmountUSD: 2000},
			{VaultAddress: "0xaaaa", CurrentPercent: 0, TargetPercent: 20, RebalanceAmountUSD: 2000},
			{VaultAddress: "0xdddd", CurrentPercent: 40, TargetPercent: 0, CurrentValueUSD: 4000, RebalanceAmountUSD: 4000},
			{VaultAddress: "0xbbbb", CurrentPercent: 30, TargetPercent: 10, CurrentValueUSD: 3000, RebalanceAmountUSD: 2000},
		},
	}

	withdraws, deposits := DeriveOperations(drift)

	require.Len(t, withdraws, 2)
	require.Len(t, deposits, 2)
	assert.Equal(t, "0xbbbb", withdraws[0].VaultAddress)
	assert.Equal(t, "0xdddd", withdraws[1].VaultAddress)
	assert.Equal(t, "0xaaaa", deposits[0].VaultAddress)
	assert.Equal(t, "0xcccc", deposits[1].VaultAddress)
}
