/*

This file contains the daily vault data sync: fetch current metrics for the
full registry and persist one snapshot per vault per UTC day.

*/

package orchestrator

import (
	"context"
	"fmt"
)

// SyncVaultData refreshes the stored vault records from the registry and
// fetches a fresh metric snapshot for every registered vault. Individual
// fetch failures are logged and skipped; the sync fails only on context
// cancellation or a persistence error.
func (o *Orchestrator) SyncVaultData(ctx context.Context) error {
	refs := o.registry.VaultRefs()
	if len(refs) == 0 {
		o.logger.Warn().Msg("Registry has no vaults to sync")
		return nil
	}

	for _, record := range o.registry.VaultRecords("", 0) {
		if err := o.store.UpsertVaultRecord(record); err != nil {
			return fmt.Errorf("failed to persist vault record %s: %w", record.Address, err)
		}
	}

	snapshots, failures, err := o.dataSource.FetchVaults(ctx, refs)
	if err != nil {
		return fmt.Errorf("vault sync aborted: %w", err)
	}

	for _, snapshot := range snapshots {
		if err := o.store.UpsertSnapshot(snapshot); err != nil {
			return fmt.Errorf("failed to persist snapshot for %s: %w", snapshot.Address, err)
		}
	}

	for _, failure := range failures {
		o.logger.Error().
			Err(failure.Err).
			Str("vault", failure.Ref.Address).
			Int64("chain_id", failure.Ref.ChainID).
			Msg("Vault excluded from sync cycle")
	}

	o.logger.Info().
		Int("synced", len(snapshots)).
		Int("failed", len(failures)).
		Msg("Vault data sync complete")

	return nil
}
