package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yieldpilot/vrm/internal/types"
)

// UpsertVaultRecord creates or refreshes the descriptive attributes of a
// vault. Identity columns never change; everything else is overwritten.
func (s *Store) UpsertVaultRecord(record types.VaultRecord) error {
	query := `
		INSERT INTO vault_records (
			address, chain_id, name, symbol, token_address, token_symbol,
			token_decimals, whitelisted, curator, is_active, max_allocation,
			static_risk_score, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, CURRENT_TIMESTAMP)
		ON CONFLICT (address, chain_id) DO UPDATE SET
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			token_address = EXCLUDED.token_address,
			token_symbol = EXCLUDED.token_symbol,
			token_decimals = EXCLUDED.token_decimals,
			whitelisted = EXCLUDED.whitelisted,
			curator = EXCLUDED.curator,
			is_active = EXCLUDED.is_active,
			max_allocation = EXCLUDED.max_allocation,
			static_risk_score = EXCLUDED.static_risk_score,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := s.db.Exec(query,
		record.Address, record.ChainID, record.Name, record.Symbol,
		record.TokenAddress, record.TokenSymbol, record.TokenDecimals,
		record.Whitelisted, record.Curator, record.IsActive,
		record.MaxAllocation, record.StaticRiskScore,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vault record %s: %w", record.Address, err)
	}
	return nil
}

// GetVaultRecords returns all vault records for a token on a chain.
func (s *Store) GetVaultRecords(tokenSymbol string, chainID int64) ([]types.VaultRecord, error) {
	query := `
		SELECT address, chain_id, name, symbol, token_address, token_symbol,
		       token_decimals, whitelisted, curator, is_active, max_allocation,
		       static_risk_score
		FROM vault_records
		WHERE UPPER(token_symbol) = UPPER($1) AND chain_id = $2
		ORDER BY address
	`
	rows, err := s.db.Query(query, tokenSymbol, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to query vault records: %w", err)
	}
	defer rows.Close()

	var records []types.VaultRecord
	for rows.Next() {
		var r types.VaultRecord
		if err := rows.Scan(
			&r.Address, &r.ChainID, &r.Name, &r.Symbol, &r.TokenAddress,
			&r.TokenSymbol, &r.TokenDecimals, &r.Whitelisted, &r.Curator,
			&r.IsActive, &r.MaxAllocation, &r.StaticRiskScore,
		); err != nil {
			return nil, fmt.Errorf("failed to scan vault record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// UpsertSnapshot writes one day of metrics for a vault. A same-day refetch
// overwrites the existing row, keeping the one-snapshot-per-day invariant.
func (s *Store) UpsertSnapshot(snapshot types.VaultMetricSnapshot) error {
	rewardsJSON, err := json.Marshal(snapshot.Rewards)
	if err != nil {
		return fmt.Errorf("failed to marshal rewards: %w", err)
	}
	allocationsJSON, err := json.Marshal(snapshot.Allocations)
	if err != nil {
		return fmt.Errorf("failed to marshal allocations: %w", err)
	}

	query := `
		INSERT INTO vault_metric_snapshots (
			address, chain_id, snapshot_date, apy, net_apy,
			net_apy_without_rewards, daily_apy, weekly_apy, monthly_apy,
			total_assets_usd, share_price, utilization_rate, rewards,
			allocations, reported_at, fetched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (address, chain_id, snapshot_date) DO UPDATE SET
			apy = EXCLUDED.apy,
			net_apy = EXCLUDED.net_apy,
			net_apy_without_rewards = EXCLUDED.net_apy_without_rewards,
			daily_apy = EXCLUDED.daily_apy,
			weekly_apy = EXCLUDED.weekly_apy,
			monthly_apy = EXCLUDED.monthly_apy,
			total_assets_usd = EXCLUDED.total_assets_usd,
			share_price = EXCLUDED.share_price,
			utilization_rate = EXCLUDED.utilization_rate,
			rewards = EXCLUDED.rewards,
			allocations = EXCLUDED.allocations,
			reported_at = EXCLUDED.reported_at,
			fetched_at = EXCLUDED.fetched_at
	`
	_, err = s.db.Exec(query,
		snapshot.Address, snapshot.ChainID, snapshot.Date,
		snapshot.APY, snapshot.NetAPY, snapshot.NetAPYWithoutReward,
		snapshot.DailyAPY, snapshot.WeeklyAPY, snapshot.MonthlyAPY,
		snapshot.TotalAssetsUSD, snapshot.SharePrice, snapshot.UtilizationRate,
		rewardsJSON, allocationsJSON, snapshot.ReportedAt, snapshot.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot for %s: %w", snapshot.Address, err)
	}
	return nil
}

// GetLatestSnapshot returns the most recent snapshot for a vault.
func (s *Store) GetLatestSnapshot(address string, chainID int64) (types.VaultMetricSnapshot, error) {
	query := snapshotSelect + `
		WHERE address = $1 AND chain_id = $2
		ORDER BY snapshot_date DESC
		LIMIT 1
	`
	row := s.db.QueryRow(query, address, chainID)
	snapshot, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.VaultMetricSnapshot{}, fmt.Errorf("no snapshot for vault %s on chain %d: %w", address, chainID, ErrNotFound)
	}
	return snapshot, err
}

// GetSnapshotHistory returns up to `days` daily snapshots for a vault,
// oldest first, for volatility and trend calculations.
func (s *Store) GetSnapshotHistory(address string, chainID int64, days int) ([]types.VaultMetricSnapshot, error) {
	if days <= 0 || days > 90 {
		days = 30
	}
	query := snapshotSelect + `
		WHERE address = $1 AND chain_id = $2 AND snapshot_date >= $3
		ORDER BY snapshot_date ASC
	`
	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := s.db.Query(query, address, chainID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot history: %w", err)
	}
	defer rows.Close()

	var history []types.VaultMetricSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, snapshot)
	}
	return history, rows.Err()
}

const snapshotSelect = `
	SELECT address, chain_id, snapshot_date, apy, net_apy,
	       net_apy_without_rewards, daily_apy, weekly_apy, monthly_apy,
	       total_assets_usd, share_price, utilization_rate, rewards,
	       allocations, reported_at, fetched_at
	FROM vault_metric_snapshots
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (types.VaultMetricSnapshot, error) {
	var snapshot types.VaultMetricSnapshot
	var rewardsJSON, allocationsJSON []byte

	err := row.Scan(
		&snapshot.Address, &snapshot.ChainID, &snapshot.Date,
		&snapshot.APY, &snapshot.NetAPY, &snapshot.NetAPYWithoutReward,
		&snapshot.DailyAPY, &snapshot.WeeklyAPY, &snapshot.MonthlyAPY,
		&snapshot.TotalAssetsUSD, &snapshot.SharePrice, &snapshot.UtilizationRate,
		&rewardsJSON, &allocationsJSON, &snapshot.ReportedAt, &snapshot.FetchedAt,
	)
	if err != nil {
		return types.VaultMetricSnapshot{}, err
	}

	if len(rewardsJSON) > 0 {
		if err := json.Unmarshal(rewardsJSON, &snapshot.Rewards); err != nil {
			return types.VaultMetricSnapshot{}, fmt.Errorf("failed to unmarshal rewards: %w", err)
		}
	}
	if len(allocationsJSON) > 0 {
		if err := json.Unmarshal(allocationsJSON, &snapshot.Allocations); err != nil {
			return types.VaultMetricSnapshot{}, fmt.Errorf("failed to unmarshal allocations: %w", err)
		}
	}
	return snapshot, nil
}
