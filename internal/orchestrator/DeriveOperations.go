/*

This file contains the translation of measured drift into concrete rebalance
legs. Within a job, every withdraw leg executes before any deposit leg so
the liquidity being moved exists before it is needed at the destination.

*/

package orchestrator

import (
	"math"
	"sort"

	"github.com/yieldpilot/vrm/internal/types"
)

const (
	// A leg below this absolute amount is never worth its gas.
	MIN_LEG_AMOUNT_USD = 10.0
	// Fraction of an asset's current value below which a move is immaterial.
	MATERIALITY_FRACTION = 0.05
)

// DeriveOperations converts per-asset drift into withdraw and deposit legs.
// Over-allocated assets produce withdrawals, under-allocated ones deposits.
// Immaterial legs are dropped; ties and ordering are resolved by vault
// address so the derived plan is deterministic.
func DeriveOperations(drift types.PortfolioDrift) (withdraws, deposits []types.RebalanceLeg) {
	for _, asset := range drift.Assets {
		amount := asset.RebalanceAmountUSD
		if !legMaterial(amount, asset.CurrentValueUSD) {
			continue
		}

		switch {
		case asset.CurrentPercent > asset.TargetPercent:
			// Never withdraw more than the position actually holds.
			amount = math.Min(amount, asset.CurrentValueUSD)
			if amount < MIN_LEG_AMOUNT_USD {
				continue
			}
			withdraws = append(withdraws, types.RebalanceLeg{
				Type:         types.LegWithdraw,
				VaultAddress: asset.VaultAddress,
				ChainID:      asset.ChainID,
				AmountUSD:    amount,
			})
		case asset.TargetPercent > asset.CurrentPercent:
			deposits = append(deposits, types.RebalanceLeg{
				Type:         types.LegDeposit,
				VaultAddress: asset.VaultAddress,
				ChainID:      asset.ChainID,
				AmountUSD:    amount,
			})
		}
	}

	sort.SliceStable(withdraws, func(i, j int) bool {
		return withdraws[i].VaultAddress < withdraws[j].VaultAddress
	})
	sort.SliceStable(deposits, func(i, j int) bool {
		return deposits[i].VaultAddress < deposits[j].VaultAddress
	})

	return withdraws, deposits
}

// legMaterial applies the dual materiality floor: an absolute USD minimum
// and a fraction of the asset's current value. Assets with no current
// position (fresh deposits) only face the absolute floor.
func legMaterial(amountUSD, currentValueUSD float64) bool {
	if amountUSD < MIN_LEG_AMOUNT_USD {
		return false
	}
	if currentValueUSD > 0 && amountUSD < currentValueUSD*MATERIALITY_FRACTION {
		return false
	}
	return true
}
