/*

This file contains the volatility and trend calculations over a vault's
daily APY history.

*/

package analyzer

import (
	"math"
	"sort"

	"github.com/yieldpilot/vrm/internal/types"
)

const (
	// Minimum daily data points before volatility is considered meaningful.
	MIN_VOLATILITY_POINTS = 7
	// A trend verdict needs two full 7-point windows.
	MIN_TREND_POINTS = 14
	// Relative change between window means before a trend is declared.
	TREND_CHANGE_THRESHOLD = 0.05
)

// CalculateVolatility computes the population standard deviation of the APY
// values in the given daily history. It returns 0 when fewer than
// MIN_VOLATILITY_POINTS values are available; callers treat that as "no
// volatility signal", not as a calm vault.
func CalculateVolatility(history []types.VaultMetricSnapshot) float64 {
	series := apySeries(history)
	if len(series) < MIN_VOLATILITY_POINTS {
		return 0
	}

	var sum float64
	for _, v := range series {
		sum += v
	}
	mean := sum / float64(len(series))

	var sumSqDiff float64
	for _, v := range series {
		diff := v - mean
		sumSqDiff += diff * diff
	}

	// Population variance (N, not N-1); the series is the full observed window.
	stdDev := math.Sqrt(sumSqDiff / float64(len(series)))
	if math.IsNaN(stdDev) || math.IsInf(stdDev, 0) {
		return 0
	}
	return stdDev
}

// AnalyzeAPYTrend compares the mean APY of the most recent 7 data points
// against the prior 7. A relative change above TREND_CHANGE_THRESHOLD in
// either direction declares a trend; anything else, including insufficient
// history, is stable.
func AnalyzeAPYTrend(history []types.VaultMetricSnapshot) types.TrendDirection {
	series := apySeries(history)
	if len(series) < MIN_TREND_POINTS {
		return types.TrendStable
	}

	recent := series[len(series)-7:]
	prior := series[len(series)-14 : len(series)-7]

	recentMean := meanOf(recent)
	priorMean := meanOf(prior)

	if priorMean == 0 {
		if recentMean > 0 {
			return types.TrendIncreasing
		}
		return types.TrendStable
	}

	change := (recentMean - priorMean) / math.Abs(priorMean)
	switch {
	case change > TREND_CHANGE_THRESHOLD:
		return types.TrendIncreasing
	case change < -TREND_CHANGE_THRESHOLD:
		return types.TrendDecreasing
	default:
		return types.TrendStable
	}
}

// apySeries extracts finite APY values from history in chronological order.
func apySeries(history []types.VaultMetricSnapshot) []float64 {
	sorted := make([]types.VaultMetricSnapshot, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	series := make([]float64, 0, len(sorted))
	for _, s := range sorted {
		if math.IsNaN(s.APY) || math.IsInf(s.APY, 0) {
			continue
		}
		series = append(series, s.APY)
	}
	return series
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
