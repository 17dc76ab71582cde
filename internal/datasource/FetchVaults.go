/*
This file implements batched fetching across the full vault registry.

Fetching is best-effort per vault. One vault returning garbage or timing out
must not block the pipeline for every other vault, so failures are collected
and reported alongside the successful snapshots instead of aborting the batch.
*/

package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/yieldpilot/vrm/internal/types"
)

const (
	BATCH_SIZE  = 10
	BATCH_PAUSE = 500 * time.Millisecond
)

// FetchFailure records one vault that could not be fetched during a batch run.
type FetchFailure struct {
	Ref types.VaultRef
	Err error
}

// FetchVaults retrieves snapshots for all given vaults in chunks of
// BATCH_SIZE, pausing between chunks. It returns every snapshot that fetched
// and validated cleanly plus a failure record for each vault that did not.
// The only error returned is context cancellation.
func (c *MorphoClient) FetchVaults(ctx context.Context, refs []types.VaultRef) ([]types.VaultMetricSnapshot, []FetchFailure, error) {
	if len(refs) == 0 {
		return nil, nil, nil
	}

	snapshots := make([]types.VaultMetricSnapshot, 0, len(refs))
	var failures []FetchFailure

	for start := 0; start < len(refs); start += BATCH_SIZE {
		end := start + BATCH_SIZE
		if end > len(refs) {
			end = len(refs)
		}
		chunk := refs[start:end]

		morphoLogger.Debug().
			Int("batch_start", start).
			Int("batch_size", len(chunk)).
			Int("total", len(refs)).
			Msg("Fetching vault batch")

		for _, ref := range chunk {
			if ctx.Err() != nil {
				return snapshots, failures, fmt.Errorf("vault fetch aborted: %w", ctx.Err())
			}

			snapshot, err := c.FetchVault(ctx, ref)
			if err != nil {
				morphoLogger.Error().
					Err(err).
					Str("vault", ref.Address).
					Int64("chain_id", ref.ChainID).
					Msg("Failed to fetch vault, continuing with remaining vaults")
				failures = append(failures, FetchFailure{Ref: ref, Err: err})
				continue
			}
			snapshots = append(snapshots, snapshot)
		}

		if end < len(refs) {
			select {
			case <-time.After(BATCH_PAUSE):
			case <-ctx.Done():
				return snapshots, failures, fmt.Errorf("vault fetch aborted: %w", ctx.Err())
			}
		}
	}

	morphoLogger.Info().
		Int("fetched", len(snapshots)).
		Int("failed", len(failures)).
		Msg("Vault batch fetch complete")

	return snapshots, failures, nil
}
