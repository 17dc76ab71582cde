/*

This file contains the types describing vaults and their on-chain metrics.
All APY fields are expressed as percentages (5.2 means 5.2% APY), all USD
fields as plain USD amounts.

*/

package types

import "time"

// VaultRef identifies a vault uniquely across chains.
type VaultRef struct {
	Address string `json:"address"`
	ChainID int64  `json:"chain_id"`
}

// VaultRecord is the descriptive, slowly-changing part of a vault. Identity
// (Address, ChainID) is immutable; the rest is refreshed by the daily sync.
type VaultRecord struct {
	Address       string `json:"address"`
	ChainID       int64  `json:"chain_id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	TokenAddress  string `json:"token_address"`
	TokenSymbol   string `json:"token_symbol"`
	TokenDecimals int    `json:"token_decimals"`
	Whitelisted   bool   `json:"whitelisted"`
	Curator       string `json:"curator,omitempty"`

	// Registry attributes
	IsActive        bool    `json:"is_active"`
	MaxAllocation   float64 `json:"max_allocation"`    // fraction, 0.0 to 1.0
	StaticRiskScore float64 `json:"static_risk_score"` // 0-100, lower = safer
}

// RewardInfo describes one reward stream paid on top of the native yield.
type RewardInfo struct {
	AssetSymbol  string  `json:"asset_symbol"`
	SupplyAPR    float64 `json:"supply_apr"` // percent
	YearlyTokens float64 `json:"yearly_tokens"`
}

// MarketAllocation is the USD amount a vault has supplied to one market.
type MarketAllocation struct {
	MarketKey   string  `json:"market_key"`
	SuppliedUSD float64 `json:"supplied_usd"`
}

// VaultMetricSnapshot holds one day of metrics for a vault. At most one
// snapshot exists per (vault, UTC date); same-day refetches overwrite it.
type VaultMetricSnapshot struct {
	Address string    `json:"address"`
	ChainID int64     `json:"chain_id"`
	Date    time.Time `json:"date"` // truncated to the UTC day

	APY                 float64 `json:"apy"`
	NetAPY              float64 `json:"net_apy"`
	NetAPYWithoutReward float64 `json:"net_apy_without_rewards"`
	DailyAPY            float64 `json:"daily_apy"`
	WeeklyAPY           float64 `json:"weekly_apy"`
	MonthlyAPY          float64 `json:"monthly_apy"`

	TotalAssetsUSD  float64 `json:"total_assets_usd"`
	SharePrice      float64 `json:"share_price"`
	UtilizationRate float64 `json:"utilization_rate"`

	Rewards     []RewardInfo       `json:"rewards,omitempty"`
	Allocations []MarketAllocation `json:"allocations,omitempty"`

	// ReportedAt is the provider's own state timestamp; FetchedAt is when we
	// retrieved it. Staleness is judged on ReportedAt.
	ReportedAt time.Time `json:"reported_at"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// HasAllocationData reports whether the snapshot carries a per-market
// allocation breakdown.
func (s VaultMetricSnapshot) HasAllocationData() bool {
	return len(s.Allocations) > 0
}

// TotalRewardAPR sums the APR of all reward streams.
func (s VaultMetricSnapshot) TotalRewardAPR() float64 {
	total := 0.0
	for _, r := range s.Rewards {
		total += r.SupplyAPR
	}
	return total
}
