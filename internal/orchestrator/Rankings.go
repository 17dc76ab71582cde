/*

This file contains the ranked-universe view used by the operator API.

*/

package orchestrator

import (
	"fmt"

	"github.com/yieldpilot/vrm/internal/analyzer"
	"github.com/yieldpilot/vrm/internal/types"
)

// VaultRankings returns the full enriched universe for a token and chain,
// ranked by recommendation score. It uses the default selection criteria and
// applies no profile filtering, so operators see every vault including ones
// no profile would select.
func (o *Orchestrator) VaultRankings(tokenSymbol string, chainID int64) ([]types.EnrichedVaultRecord, error) {
	criteria := o.registry.Criteria("default")

	enriched, err := o.enrichUniverse(tokenSymbol, chainID, criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to enrich vault universe: %w", err)
	}
	return analyzer.RankVaults(enriched), nil
}
