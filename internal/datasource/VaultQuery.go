/*
This file defines the vaultByAddress query, its response shape, and the
translation into the internal snapshot type.

The Morpho API reports all rates as fractions (0.052 means 5.2%). Everything
downstream works in percentage points, so the conversion happens here at the
ingestion boundary and nowhere else. Every snapshot is validated before it
leaves this package; a vault that fails validation is rejected outright
rather than stored with suspect numbers.
*/

package datasource

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/yieldpilot/vrm/internal/types"
)

var ErrInvalidVaultData = errors.New("invalid vault data received")
var ErrStaleVaultData = errors.New("vault data is stale")

const (
	// Yields above this are treated as data corruption, not opportunity.
	MAX_PLAUSIBLE_APY_PERCENT = 1000.0
	MAX_SNAPSHOT_AGE          = 24 * time.Hour
)

const vaultByAddressQuery = `
query VaultByAddress($address: String!, $chainId: Int!) {
  vaultByAddress(address: $address, chainId: $chainId) {
    address
    symbol
    name
    whitelisted
    state {
      apy
      netApy
      netApyWithoutRewards
      dailyNetApy
      weeklyNetApy
      monthlyNetApy
      totalAssetsUsd
      sharePrice
      sharePriceUsd
      timestamp
      rewards {
        supplyApr
        yearlySupplyTokens
        asset {
          symbol
        }
      }
      allocation {
        supplyAssetsUsd
        market {
          uniqueKey
          state {
            utilization
          }
        }
      }
    }
  }
}`

type vaultByAddressData struct {
	VaultByAddress *vaultResponse `json:"vaultByAddress"`
}

type vaultResponse struct {
	Address     string      `json:"address"`
	Symbol      string      `json:"symbol"`
	Name        string      `json:"name"`
	Whitelisted bool        `json:"whitelisted"`
	State       *vaultState `json:"state"`
}

type vaultState struct {
	APY                  float64 `json:"apy"`
	NetAPY               float64 `json:"netApy"`
	NetAPYWithoutRewards float64 `json:"netApyWithoutRewards"`
	DailyNetAPY          float64 `json:"dailyNetApy"`
	WeeklyNetAPY         float64 `json:"weeklyNetApy"`
	MonthlyNetAPY        float64 `json:"monthlyNetApy"`
	TotalAssetsUSD       float64 `json:"totalAssetsUsd"`
	SharePrice           float64 `json:"sharePrice"`
	SharePriceUSD        float64 `json:"sharePriceUsd"`
	Timestamp            int64   `json:"timestamp"`
	Rewards              []struct {
		SupplyAPR          float64 `json:"supplyApr"`
		YearlySupplyTokens float64 `json:"yearlySupplyTokens"`
		Asset              struct {
			Symbol string `json:"symbol"`
		} `json:"asset"`
	} `json:"rewards"`
	Allocation []struct {
		SupplyAssetsUSD float64 `json:"supplyAssetsUsd"`
		Market          struct {
			UniqueKey string `json:"uniqueKey"`
			State     struct {
				Utilization float64 `json:"utilization"`
			} `json:"state"`
		} `json:"market"`
	} `json:"allocation"`
}

// FetchVault retrieves and validates the current state of a single vault.
func (c *MorphoClient) FetchVault(ctx context.Context, ref types.VaultRef) (types.VaultMetricSnapshot, error) {
	var data vaultByAddressData
	err := c.executeQuery(ctx, vaultByAddressQuery, map[string]any{
		"address": ref.Address,
		"chainId": ref.ChainID,
	}, &data)
	if err != nil {
		return types.VaultMetricSnapshot{}, fmt.Errorf("failed to fetch vault %s on chain %d: %w", ref.Address, ref.ChainID, err)
	}

	if data.VaultByAddress == nil || data.VaultByAddress.State == nil {
		return types.VaultMetricSnapshot{}, fmt.Errorf("%w: %s on chain %d", ErrVaultNotFound, ref.Address, ref.ChainID)
	}

	snapshot := toSnapshot(ref, data.VaultByAddress)
	if err := validateSnapshot(snapshot); err != nil {
		return types.VaultMetricSnapshot{}, fmt.Errorf("vault %s on chain %d rejected: %w", ref.Address, ref.ChainID, err)
	}
	return snapshot, nil
}

func toSnapshot(ref types.VaultRef, v *vaultResponse) types.VaultMetricSnapshot {
	now := time.Now().UTC()

	snapshot := types.VaultMetricSnapshot{
		Address:             ref.Address,
		ChainID:             ref.ChainID,
		APY:                 fractionToPercent(v.State.APY),
		NetAPY:              fractionToPercent(v.State.NetAPY),
		NetAPYWithoutReward: fractionToPercent(v.State.NetAPYWithoutRewards),
		DailyAPY:            fractionToPercent(v.State.DailyNetAPY),
		WeeklyAPY:           fractionToPercent(v.State.WeeklyNetAPY),
		MonthlyAPY:          fractionToPercent(v.State.MonthlyNetAPY),
		TotalAssetsUSD:      v.State.TotalAssetsUSD,
		SharePrice:          v.State.SharePriceUSD,
		Date:                time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		FetchedAt:           now,
	}
	if v.State.Timestamp > 0 {
		snapshot.ReportedAt = time.Unix(v.State.Timestamp, 0).UTC()
	}
	if snapshot.SharePrice == 0 {
		snapshot.SharePrice = v.State.SharePrice
	}

	for _, r := range v.State.Rewards {
		snapshot.Rewards = append(snapshot.Rewards, types.RewardInfo{
			AssetSymbol:  r.Asset.Symbol,
			SupplyAPR:    fractionToPercent(r.SupplyAPR),
			YearlyTokens: r.YearlySupplyTokens,
		})
	}

	weightedUtilization := 0.0
	totalSupplied := 0.0
	for _, a := range v.State.Allocation {
		// Empty market positions carry no concentration signal.
		if a.SupplyAssetsUSD <= 0 {
			continue
		}
		snapshot.Allocations = append(snapshot.Allocations, types.MarketAllocation{
			MarketKey:   a.Market.UniqueKey,
			SuppliedUSD: a.SupplyAssetsUSD,
		})
		weightedUtilization += a.Market.State.Utilization * a.SupplyAssetsUSD
		totalSupplied += a.SupplyAssetsUSD
	}
	if totalSupplied > 0 {
		snapshot.UtilizationRate = fractionToPercent(weightedUtilization / totalSupplied)
	}

	return snapshot
}

func fractionToPercent(v float64) float64 {
	return v * 100.0
}

// validateSnapshot enforces the ingestion invariants. A snapshot that fails
// any check is discarded; no partially-valid data enters the system.
func validateSnapshot(s types.VaultMetricSnapshot) error {
	fields := []struct {
		value float64
		name  string
	}{
		{s.APY, "apy"},
		{s.NetAPY, "netApy"},
		{s.NetAPYWithoutReward, "netApyWithoutRewards"},
		{s.DailyAPY, "dailyApy"},
		{s.WeeklyAPY, "weeklyApy"},
		{s.MonthlyAPY, "monthlyApy"},
		{s.TotalAssetsUSD, "totalAssetsUsd"},
		{s.SharePrice, "sharePrice"},
		{s.UtilizationRate, "utilizationRate"},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s is not finite: %f", ErrInvalidVaultData, f.name, f.value)
		}
	}

	apys := []struct {
		value float64
		name  string
	}{
		{s.APY, "apy"},
		{s.NetAPY, "netApy"},
		{s.NetAPYWithoutReward, "netApyWithoutRewards"},
	}
	for _, a := range apys {
		if a.value < 0 || a.value > MAX_PLAUSIBLE_APY_PERCENT {
			return fmt.Errorf("%w: %s out of plausible range [0, %.0f]: %f", ErrInvalidVaultData, a.name, MAX_PLAUSIBLE_APY_PERCENT, a.value)
		}
	}

	if s.TotalAssetsUSD < 0 {
		return fmt.Errorf("%w: totalAssetsUsd is negative: %f", ErrInvalidVaultData, s.TotalAssetsUSD)
	}
	if s.UtilizationRate < 0 {
		return fmt.Errorf("%w: utilizationRate is negative: %f", ErrInvalidVaultData, s.UtilizationRate)
	}

	for _, r := range s.Rewards {
		if math.IsNaN(r.SupplyAPR) || math.IsInf(r.SupplyAPR, 0) || r.SupplyAPR < 0 {
			return fmt.Errorf("%w: reward apr for %s is invalid: %f", ErrInvalidVaultData, r.AssetSymbol, r.SupplyAPR)
		}
	}

	for _, a := range s.Allocations {
		if math.IsNaN(a.SuppliedUSD) || math.IsInf(a.SuppliedUSD, 0) || a.SuppliedUSD < 0 {
			return fmt.Errorf("%w: allocation for market %s is invalid: %f", ErrInvalidVaultData, a.MarketKey, a.SuppliedUSD)
		}
	}

	if s.FetchedAt.IsZero() {
		return fmt.Errorf("%w: snapshot has no fetch timestamp", ErrInvalidVaultData)
	}
	if s.ReportedAt.IsZero() {
		return fmt.Errorf("%w: provider state carries no timestamp", ErrInvalidVaultData)
	}
	if age := time.Since(s.ReportedAt); age > MAX_SNAPSHOT_AGE {
		return fmt.Errorf("%w: provider state is %s old, limit is %s", ErrStaleVaultData, age.Round(time.Minute), MAX_SNAPSHOT_AGE)
	}

	return nil
}
