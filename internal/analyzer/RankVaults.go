/*

This file contains the relative ranking of enriched vaults.

*/

package analyzer

import (
	"sort"

	"github.com/yieldpilot/vrm/internal/types"
)

// RankVaults sorts vaults by recommendation score descending and assigns a
// 1-based performance rank. Ties break by vault address so ranking is
// deterministic across runs. The input slice is not modified.
func RankVaults(vaults []types.EnrichedVaultRecord) []types.EnrichedVaultRecord {
	ranked := make([]types.EnrichedVaultRecord, len(vaults))
	copy(ranked, vaults)

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].RecommendationScore != ranked[j].RecommendationScore {
			return ranked[i].RecommendationScore > ranked[j].RecommendationScore
		}
		return ranked[i].Address < ranked[j].Address
	})

	for i := range ranked {
		ranked[i].PerformanceRank = i + 1
	}
	return ranked
}
