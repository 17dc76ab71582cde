/*

This file contains the main enrichment function for a vault. It combines a
vault record, its latest metric snapshot, and up to 30 days of daily history
into the full set of calculated scores used for selection and allocation.

Enrichment is a pure computation: same inputs, same enriched record. Nothing
here reads external state or persists anything.

*/

package analyzer

import (
	"errors"
	"math"
	"time"

	"github.com/yieldpilot/vrm/internal/logger"
	"github.com/yieldpilot/vrm/internal/types"
)

var ErrInvalidVaultMetrics = errors.New("invalid vault metrics")

var enrichLogger = logger.GetForComponent("vault_enricher")

const (
	// riskAdjustedReturn divisor floor; keeps the ratio defined at zero volatility.
	VOLATILITY_EPSILON = 0.01

	RISK_VOLATILITY_MAX    = 40.0
	RISK_TVL_MAX           = 20.0
	RISK_REWARD_MAX        = 20.0
	RISK_CONCENTRATION_MAX = 20.0

	TVL_RISK_UNIT_USD       = 1_000_000.0
	LIQUIDITY_FULL_TVL_USD  = 10_000_000.0
	MULTI_MARKET_BONUS      = 1.1
	LOW_TVL_PENALTY         = 0.5
	DATA_FRESHNESS_WINDOW   = 6 * time.Hour
	QUALITY_CHECK_POINTS    = 25.0
	QUALITY_EXCELLENT_FLOOR = 90.0
	QUALITY_GOOD_FLOOR      = 70.0
	QUALITY_FAIR_FLOOR      = 50.0
)

// EnrichVault computes the derived view of one vault. The criteria supply the
// minimum-TVL threshold used by the liquidity penalty; history is the daily
// snapshot series used for volatility and trend.
func EnrichVault(record types.VaultRecord, snapshot types.VaultMetricSnapshot, history []types.VaultMetricSnapshot, criteria types.SelectionCriteria) (types.EnrichedVaultRecord, error) {
	if err := validateMetrics(snapshot); err != nil {
		enrichLogger.Error().
			Str("vault", record.Address).
			Int64("chain_id", record.ChainID).
			Err(err).
			Msg("Vault metrics validation failed")
		return types.EnrichedVaultRecord{}, errors.Join(ErrInvalidVaultMetrics, err)
	}

	volatility := CalculateVolatility(history)
	concentration := CalculateConcentrationRisk(snapshot)
	rewardDependency := calculateRewardDependency(snapshot)

	enriched := types.EnrichedVaultRecord{
		VaultRecord:        record,
		Snapshot:           snapshot,
		Volatility:         volatility,
		ConcentrationRisk:  concentration,
		RewardDependency:   rewardDependency,
		RiskAdjustedReturn: snapshot.APY / (volatility + VOLATILITY_EPSILON),
		APYTrend:           AnalyzeAPYTrend(history),
	}

	enriched.RiskScore = calculateRiskScore(volatility, snapshot.TotalAssetsUSD, rewardDependency, concentration)
	enriched.LiquidityScore = calculateLiquidityScore(snapshot, criteria.MinTvlUSD)
	enriched.RecommendationScore = calculateRecommendationScore(snapshot.NetAPY, enriched.RiskScore, enriched.LiquidityScore, snapshot.TotalAssetsUSD)
	enriched.Quality, enriched.DataCompleteness = assessDataQuality(snapshot)

	return enriched, nil
}

// calculateRiskScore sums the four risk components. Each component is capped
// so the total stays within [0, 100].
func calculateRiskScore(volatility, tvlUSD, rewardDependency, concentration float64) float64 {
	volatilityRisk := math.Min(volatility*400.0, RISK_VOLATILITY_MAX)
	tvlRisk := math.Min(math.Max(0, RISK_TVL_MAX-tvlUSD/TVL_RISK_UNIT_USD), RISK_TVL_MAX)

	score := volatilityRisk + tvlRisk + rewardDependency + concentration
	return clamp(score, 0, 100)
}

// calculateRewardDependency measures how much of the headline yield comes
// from reward emissions rather than native interest. Fully reward-driven
// vaults score the maximum 20.
func calculateRewardDependency(snapshot types.VaultMetricSnapshot) float64 {
	ratio := snapshot.TotalRewardAPR() / math.Max(snapshot.APY, 0.01)
	return math.Min(ratio*RISK_REWARD_MAX, RISK_REWARD_MAX)
}

// CalculateConcentrationRisk scales the Herfindahl-Hirschman Index of the
// vault's per-market USD allocation to [0, 20]. A single-market vault has
// HHI 1 and scores the maximum; missing allocation data is treated as
// maximally concentrated rather than unknown.
func CalculateConcentrationRisk(snapshot types.VaultMetricSnapshot) float64 {
	if !snapshot.HasAllocationData() {
		return RISK_CONCENTRATION_MAX
	}

	var total float64
	for _, a := range snapshot.Allocations {
		total += a.SuppliedUSD
	}
	if total <= 0 {
		return RISK_CONCENTRATION_MAX
	}

	var hhi float64
	for _, a := range snapshot.Allocations {
		share := a.SuppliedUSD / total
		hhi += share * share
	}
	return clamp(hhi*RISK_CONCENTRATION_MAX, 0, RISK_CONCENTRATION_MAX)
}

// calculateLiquidityScore grades how easily a position can enter and exit
// the vault. TVL at or above $10M earns the full base score; spanning more
// than one market earns a bonus, and TVL below the profile minimum halves
// the score.
func calculateLiquidityScore(snapshot types.VaultMetricSnapshot, minTvlUSD float64) float64 {
	score := math.Min(snapshot.TotalAssetsUSD/LIQUIDITY_FULL_TVL_USD*100.0, 100.0)

	if len(snapshot.Allocations) > 1 {
		score *= MULTI_MARKET_BONUS
	}
	if minTvlUSD > 0 && snapshot.TotalAssetsUSD < minTvlUSD {
		score *= LOW_TVL_PENALTY
	}
	return clamp(score, 0, 100)
}

// calculateRecommendationScore blends yield, risk, liquidity, and TVL into
// the single 0-100 ranking metric.
func calculateRecommendationScore(netAPY, riskScore, liquidityScore, tvlUSD float64) float64 {
	yield := math.Min(netAPY*4.0, 40.0)
	riskPenalty := (riskScore / 100.0) * 30.0
	liquidity := (liquidityScore / 100.0) * 20.0
	tvlBonus := math.Min(tvlUSD/LIQUIDITY_FULL_TVL_USD*10.0, 10.0)

	return clamp(yield-riskPenalty+liquidity+tvlBonus, 0, 100)
}

// assessDataQuality runs the four completeness checks, 25 points each:
// positive APY, positive TVL, allocation breakdown present, and updated
// within the freshness window.
func assessDataQuality(snapshot types.VaultMetricSnapshot) (types.DataQuality, float64) {
	completeness := 0.0
	if snapshot.APY > 0 {
		completeness += QUALITY_CHECK_POINTS
	}
	if snapshot.TotalAssetsUSD > 0 {
		completeness += QUALITY_CHECK_POINTS
	}
	if snapshot.HasAllocationData() {
		completeness += QUALITY_CHECK_POINTS
	}
	// Freshness is judged on the provider's own timestamp when it carries
	// one; a recent fetch of old data is still old data.
	updatedAt := snapshot.ReportedAt
	if updatedAt.IsZero() {
		updatedAt = snapshot.FetchedAt
	}
	if !updatedAt.IsZero() && time.Since(updatedAt) <= DATA_FRESHNESS_WINDOW {
		completeness += QUALITY_CHECK_POINTS
	}

	switch {
	case completeness >= QUALITY_EXCELLENT_FLOOR:
		return types.QualityExcellent, completeness
	case completeness >= QUALITY_GOOD_FLOOR:
		return types.QualityGood, completeness
	case completeness >= QUALITY_FAIR_FLOOR:
		return types.QualityFair, completeness
	default:
		return types.QualityPoor, completeness
	}
}

func validateMetrics(snapshot types.VaultMetricSnapshot) error {
	fields := []struct {
		value float64
		name  string
	}{
		{snapshot.APY, "apy"},
		{snapshot.NetAPY, "netApy"},
		{snapshot.TotalAssetsUSD, "totalAssetsUsd"},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return errors.New(f.name + " is not finite")
		}
	}
	if snapshot.TotalAssetsUSD < 0 {
		return errors.New("totalAssetsUsd is negative")
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
