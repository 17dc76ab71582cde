/*

This file contains the derived scoring view of a vault and the per-profile
selection criteria driving vault filtering and allocation.

*/

package types

// TrendDirection classifies the recent movement of a vault's APY series.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// DataQuality grades how complete and fresh a vault's metrics are.
type DataQuality string

const (
	QualityExcellent DataQuality = "excellent"
	QualityGood      DataQuality = "good"
	QualityFair      DataQuality = "fair"
	QualityPoor      DataQuality = "poor"
)

// EnrichedVaultRecord combines a VaultRecord with its latest metric snapshot
// and all calculated fields. It is recomputed on every planning or drift
// cycle and never persisted as authoritative state.
type EnrichedVaultRecord struct {
	VaultRecord
	Snapshot VaultMetricSnapshot `json:"snapshot"`

	Volatility         float64 `json:"volatility"`           // population stddev of recent APY values
	RiskScore          float64 `json:"risk_score"`           // 0-100, lower = safer
	LiquidityScore     float64 `json:"liquidity_score"`      // 0-100
	RiskAdjustedReturn float64 `json:"risk_adjusted_return"` // apy / (volatility + epsilon)
	ConcentrationRisk  float64 `json:"concentration_risk"`   // 0-20, HHI scaled
	RewardDependency   float64 `json:"reward_dependency"`    // 0-20

	APYTrend            TrendDirection `json:"apy_trend"`
	RecommendationScore float64        `json:"recommendation_score"` // 0-100
	Quality             DataQuality    `json:"data_quality"`
	DataCompleteness    float64        `json:"data_completeness"` // 0-100

	PerformanceRank int `json:"performance_rank,omitempty"` // 1-based, assigned by RankVaults
}

// SelectionCriteria holds the per-risk-profile thresholds used when
// filtering vaults and sizing allocations. Every profile must resolve to a
// complete set of these fields; lookups fall back to the "default" profile.
type SelectionCriteria struct {
	Profile string `json:"profile" yaml:"-"`

	MinTvlUSD          float64 `json:"min_tvl_usd" yaml:"min_tvl_usd"`
	MinApyPercent      float64 `json:"min_apy_percent" yaml:"min_apy_percent"`
	MaxRiskScore       float64 `json:"max_risk_score" yaml:"max_risk_score"`
	RequireWhitelisted bool    `json:"require_whitelisted" yaml:"require_whitelisted"`
	AllowPoorData      bool    `json:"allow_poor_data" yaml:"allow_poor_data"`

	MaxVaultAllocation  float64 `json:"max_vault_allocation" yaml:"max_vault_allocation"` // fraction per vault
	PreferredVaultCount int     `json:"preferred_vault_count" yaml:"preferred_vault_count"`
	MaxVaultCount       int     `json:"max_vault_count" yaml:"max_vault_count"`
	MinInvestmentUSD    float64 `json:"min_investment_usd" yaml:"min_investment_usd"`
	RebalanceThreshold  float64 `json:"rebalance_threshold" yaml:"rebalance_threshold"` // fraction
}

// Allocation is one planned position: how much of the total amount goes into
// one vault.
type Allocation struct {
	VaultAddress        string      `json:"vault_address"`
	ChainID             int64       `json:"chain_id"`
	AmountUSD           float64     `json:"amount_usd"`
	Percentage          float64     `json:"percentage"` // 0-100
	ExpectedAPY         float64     `json:"expected_apy"`
	RiskScore           float64     `json:"risk_score"`
	RecommendationScore float64     `json:"recommendation_score"`
	Quality             DataQuality `json:"data_quality"`
}
