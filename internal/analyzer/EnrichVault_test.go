package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldpilot/vrm/internal/types"
)

func testRecord() types.VaultRecord {
	return types.VaultRecord{
		Address:     "0x1111111111111111111111111111111111111111",
		ChainID:     8453,
		TokenSymbol: "USDC",
		Whitelisted: true,
		IsActive:    true,
	}
}

func testSnapshot() types.VaultMetricSnapshot {
	return types.VaultMetricSnapshot{
		Address:        "0x1111111111111111111111111111111111111111",
		ChainID:        8453,
		APY:            5.0,
		NetAPY:         4.5,
		TotalAssetsUSD: 20_000_000,
		SharePrice:     1.02,
		Allocations: []types.MarketAllocation{
			{MarketKey: "m1", SuppliedUSD: 10_000_000},
			{MarketKey: "m2", SuppliedUSD: 10_000_000},
		},
		Date:      time.Now().UTC().Truncate(24 * time.Hour),
		FetchedAt: time.Now().UTC(),
	}
}

func testCriteria() types.SelectionCriteria {
	return types.SelectionCriteria{
		MinTvlUSD:          5_000_000,
		MaxRiskScore:       25,
		MaxVaultAllocation: 0.40,
		MaxVaultCount:      5,
	}
}

func dailyHistory(apys []float64) []types.VaultMetricSnapshot {
	history := make([]types.VaultMetricSnapshot, 0, len(apys))
	day := time.Now().UTC().AddDate(0, 0, -len(apys))
	for i, apy := range apys {
		history = append(history, types.VaultMetricSnapshot{
			APY:  apy,
			Date: day.AddDate(0, 0, i),
		})
	}
	return history
}

func TestEnrichVault_ScoreBoundsAtExtremes(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*types.VaultMetricSnapshot)
		history  []float64
	}{
		{"healthy vault", func(s *types.VaultMetricSnapshot) {}, []float64{5, 5.1, 4.9, 5, 5.2, 4.8, 5}},
		{"zero tvl", func(s *types.VaultMetricSnapshot) { s.TotalAssetsUSD = 0 }, nil},
		{"zero apy", func(s *types.VaultMetricSnapshot) { s.APY = 0; s.NetAPY = 0 }, nil},
		{"full reward dependency", func(s *types.VaultMetricSnapshot) {
			s.APY = 0.01
			s.Rewards = []types.RewardInfo{{AssetSymbol: "MORPHO", SupplyAPR: 50}}
		}, nil},
		{"single market concentration", func(s *types.VaultMetricSnapshot) {
			s.Allocations = []types.MarketAllocation{{MarketKey: "m1", SuppliedUSD: 1_000_000}}
		}, nil},
		{"wild apy series", func(s *types.VaultMetricSnapshot) {}, []float64{0, 50, 0, 80, 1, 99, 2, 60, 0, 75, 3, 90, 1, 88}},
		{"everything bad at once", func(s *types.VaultMetricSnapshot) {
			s.TotalAssetsUSD = 0
			s.APY = 0.01
			s.NetAPY = 0
			s.Rewards = []types.RewardInfo{{AssetSymbol: "MORPHO", SupplyAPR: 100}}
			s.Allocations = nil
		}, []float64{0, 50, 0, 80, 1, 99, 2, 60}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snapshot := testSnapshot()
			tc.mutate(&snapshot)

			enriched, err := EnrichVault(testRecord(), snapshot, dailyHistory(tc.history), testCriteria())
			require.NoError(t, err)

			assert.GreaterOrEqual(t, enriched.RiskScore, 0.0)
			assert.LessOrEqual(t, enriched.RiskScore, 100.0)
			assert.GreaterOrEqual(t, enriched.RecommendationScore, 0.0)
			assert.LessOrEqual(t, enriched.RecommendationScore, 100.0)
			assert.GreaterOrEqual(t, enriched.LiquidityScore, 0.0)
			assert.LessOrEqual(t, enriched.LiquidityScore, 100.0)
		})
	}
}

func TestEnrichVault_RejectsNonFiniteMetrics(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.APY = nan()

	_, err := EnrichVault(testRecord(), snapshot, nil, testCriteria())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidVaultMetrics)
}

func nan() float64 {
	f := 0.0
	return f / f
}

func TestConcentrationRisk_SingleMarketIsMax(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.Allocations = []types.MarketAllocation{{MarketKey: "m1", SuppliedUSD: 5_000_000}}

	assert.Equal(t, 20.0, CalculateConcentrationRisk(snapshot))
}

func TestConcentrationRisk_NoAllocationDataIsMax(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.Allocations = nil

	assert.Equal(t, 20.0, CalculateConcentrationRisk(snapshot))
}

func TestConcentrationRisk_DecreasesWithDiversification(t *testing.T) {
	equalMarkets := func(n int) types.VaultMetricSnapshot {
		s := testSnapshot()
		s.Allocations = nil
		for i := 0; i < n; i++ {
			s.Allocations = append(s.Allocations, types.MarketAllocation{
				MarketKey:   string(rune('a' + i)),
				SuppliedUSD: 1_000_000,
			})
		}
		return s
	}

	prev := CalculateConcentrationRisk(equalMarkets(1))
	for n := 2; n <= 6; n++ {
		risk := CalculateConcentrationRisk(equalMarkets(n))
		assert.Less(t, risk, prev, "HHI risk must strictly decrease from %d to %d equal markets", n-1, n)
		prev = risk
	}
	// n equal markets have HHI 1/n.
	assert.InDelta(t, 20.0/4.0, CalculateConcentrationRisk(equalMarkets(4)), 1e-9)
}

func TestCalculateVolatility(t *testing.T) {
	assert.Equal(t, 0.0, CalculateVolatility(dailyHistory([]float64{5, 5, 5})), "fewer than 7 points has no volatility signal")
	assert.Equal(t, 0.0, CalculateVolatility(dailyHistory([]float64{5, 5, 5, 5, 5, 5, 5})), "constant series has zero stddev")

	// Series {4,6} x4: mean 5, every point deviates by 1, population stddev 1.
	vol := CalculateVolatility(dailyHistory([]float64{4, 6, 4, 6, 4, 6, 4, 6}))
	assert.InDelta(t, 1.0, vol, 1e-9)
}

func TestRiskAdjustedReturn_ZeroVolatilityDegeneratesToScaledAPY(t *testing.T) {
	snapshot := testSnapshot()
	snapshot.APY = 5.0

	enriched, err := EnrichVault(testRecord(), snapshot, nil, testCriteria())
	require.NoError(t, err)
	assert.InDelta(t, 5.0/0.01, enriched.RiskAdjustedReturn, 1e-9)
}

func TestAnalyzeAPYTrend(t *testing.T) {
	rising := []float64{5, 5, 5, 5, 5, 5, 5, 6, 6, 6, 6, 6, 6, 6}
	falling := []float64{6, 6, 6, 6, 6, 6, 6, 5, 5, 5, 5, 5, 5, 5}
	flat := []float64{5, 5, 5, 5, 5, 5, 5, 5.1, 5, 5.1, 5, 5.1, 5, 5.1}

	assert.Equal(t, types.TrendIncreasing, AnalyzeAPYTrend(dailyHistory(rising)))
	assert.Equal(t, types.TrendDecreasing, AnalyzeAPYTrend(dailyHistory(falling)))
	assert.Equal(t, types.TrendStable, AnalyzeAPYTrend(dailyHistory(flat)))
	assert.Equal(t, types.TrendStable, AnalyzeAPYTrend(dailyHistory(rising[:13])), "fewer than 14 points defaults to stable")
}

func TestDataQualityBands(t *testing.T) {
	fresh := testSnapshot() // all four checks pass
	enriched, err := EnrichVault(testRecord(), fresh, nil, testCriteria())
	require.NoError(t, err)
	assert.Equal(t, types.QualityExcellent, enriched.Quality)
	assert.Equal(t, 100.0, enriched.DataCompleteness)

	stale := testSnapshot()
	stale.FetchedAt = time.Now().UTC().Add(-12 * time.Hour)
	enriched, err = EnrichVault(testRecord(), stale, nil, testCriteria())
	require.NoError(t, err)
	assert.Equal(t, types.QualityGood, enriched.Quality)
	assert.Equal(t, 75.0, enriched.DataCompleteness)

	// A fresh fetch of old provider data is still old data.
	oldReport := testSnapshot()
	oldReport.ReportedAt = time.Now().UTC().Add(-12 * time.Hour)
	enriched, err = EnrichVault(testRecord(), oldReport, nil, testCriteria())
	require.NoError(t, err)
	assert.Equal(t, types.QualityGood, enriched.Quality)
	assert.Equal(t, 75.0, enriched.DataCompleteness)

	staleNoAlloc := testSnapshot()
	staleNoAlloc.FetchedAt = time.Now().UTC().Add(-12 * time.Hour)
	staleNoAlloc.Allocations = nil
	enriched, err = EnrichVault(testRecord(), staleNoAlloc, nil, testCriteria())
	require.NoError(t, err)
	assert.Equal(t, types.QualityFair, enriched.Quality)

	bad := testSnapshot()
	bad.FetchedAt = time.Now().UTC().Add(-12 * time.Hour)
	bad.Allocations = nil
	bad.APY = 0
	enriched, err = EnrichVault(testRecord(), bad, nil, testCriteria())
	require.NoError(t, err)
	assert.Equal(t, types.QualityPoor, enriched.Quality)
}

func TestRankVaults_OrderAndRanks(t *testing.T) {
	vaults := []types.EnrichedVaultRecord{
		{VaultRecord: types.VaultRecord{Address: "0xb"}, RecommendationScore: 50},
		{VaultRecord: types.VaultRecord{Address: "0xa"}, RecommendationScore: 80},
		{VaultRecord: types.VaultRecord{Address: "0xc"}, RecommendationScore: 50},
	}

	ranked := RankVaults(vaults)
	require.Len(t, ranked, 3)

	assert.Equal(t, "0xa", ranked[0].Address)
	assert.Equal(t, 1, ranked[0].PerformanceRank)
	// Equal scores order by address.
	assert.Equal(t, "0xb", ranked[1].Address)
	assert.Equal(t, "0xc", ranked[2].Address)
	assert.Equal(t, 3, ranked[2].PerformanceRank)

	// Input slice must not be mutated.
	assert.Equal(t, 0, vaults[0].PerformanceRank)
}
