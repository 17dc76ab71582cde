package state

import (
	"fmt"
	"time"

	"github.com/yieldpilot/vrm/internal/types"
)

// ListUsers returns every user profile, in stable wallet-address order.
// Rebalancing iterates this set; the order carries no priority meaning.
func (s *Store) ListUsers() ([]types.UserProfile, error) {
	query := `
		SELECT wallet_address, token_symbol, chain_id, risk_profile
		FROM user_profiles
		ORDER BY wallet_address
	`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query user profiles: %w", err)
	}
	defer rows.Close()

	var users []types.UserProfile
	for rows.Next() {
		var u types.UserProfile
		if err := rows.Scan(&u.WalletAddress, &u.TokenSymbol, &u.ChainID, &u.RiskProfile); err != nil {
			return nil, fmt.Errorf("failed to scan user profile: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpsertUserProfile creates or updates a user's rebalancing profile.
func (s *Store) UpsertUserProfile(profile types.UserProfile) error {
	query := `
		INSERT INTO user_profiles (wallet_address, token_symbol, chain_id, risk_profile)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet_address) DO UPDATE SET
			token_symbol = EXCLUDED.token_symbol,
			chain_id = EXCLUDED.chain_id,
			risk_profile = EXCLUDED.risk_profile
	`
	if _, err := s.db.Exec(query, profile.WalletAddress, profile.TokenSymbol, profile.ChainID, profile.RiskProfile); err != nil {
		return fmt.Errorf("failed to upsert user profile %s: %w", profile.WalletAddress, err)
	}
	return nil
}

// GetActiveInvestments returns a user's live positions.
func (s *Store) GetActiveInvestments(userWallet string) ([]types.UserInvestment, error) {
	query := `
		SELECT user_wallet_address, vault_address, chain_id, amount_invested,
		       shares_received, current_value, current_shares, total_deposits,
		       total_withdrawals, last_transaction_at, status
		FROM user_investments
		WHERE user_wallet_address = $1 AND status = $2
		ORDER BY vault_address
	`
	rows, err := s.db.Query(query, userWallet, types.InvestmentActive)
	if err != nil {
		return nil, fmt.Errorf("failed to query investments for %s: %w", userWallet, err)
	}
	defer rows.Close()

	var investments []types.UserInvestment
	for rows.Next() {
		var inv types.UserInvestment
		if err := rows.Scan(
			&inv.UserWalletAddress, &inv.VaultAddress, &inv.ChainID,
			&inv.AmountInvested, &inv.SharesReceived, &inv.CurrentValue,
			&inv.CurrentShares, &inv.TotalDeposits, &inv.TotalWithdrawals,
			&inv.LastTransactionAt, &inv.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan investment: %w", err)
		}
		investments = append(investments, inv)
	}
	return investments, rows.Err()
}

// ApplyDeposit records an executed deposit leg against the investment row,
// creating it on first deposit. Mutations are additive; history is never
// rewritten.
func (s *Store) ApplyDeposit(userWallet string, leg types.RebalanceLeg, executedAt time.Time) error {
	query := `
		INSERT INTO user_investments (
			user_wallet_address, vault_address, chain_id, amount_invested,
			current_value, total_deposits, last_transaction_at, status
		) VALUES ($1, $2, $3, $4, $4, $4, $5, $6)
		ON CONFLICT (user_wallet_address, vault_address, chain_id) DO UPDATE SET
			amount_invested = user_investments.amount_invested + EXCLUDED.amount_invested,
			current_value = user_investments.current_value + EXCLUDED.current_value,
			total_deposits = user_investments.total_deposits + EXCLUDED.total_deposits,
			last_transaction_at = EXCLUDED.last_transaction_at,
			status = $6
	`
	_, err := s.db.Exec(query, userWallet, leg.VaultAddress, leg.ChainID, leg.AmountUSD, executedAt, types.InvestmentActive)
	if err != nil {
		return fmt.Errorf("failed to apply deposit to %s for %s: %w", leg.VaultAddress, userWallet, err)
	}
	return nil
}

// ApplyWithdrawal records an executed withdraw leg. A position whose value
// reaches zero flips to inactive rather than being deleted.
func (s *Store) ApplyWithdrawal(userWallet string, leg types.RebalanceLeg, executedAt time.Time) error {
	query := `
		UPDATE user_investments SET
			current_value = GREATEST(current_value - $4, 0),
			total_withdrawals = total_withdrawals + $4,
			last_transaction_at = $5,
			status = CASE WHEN current_value - $4 <= 0 THEN $6 ELSE status END
		WHERE user_wallet_address = $1 AND vault_address = $2 AND chain_id = $3
	`
	result, err := s.db.Exec(query, userWallet, leg.VaultAddress, leg.ChainID, leg.AmountUSD, executedAt, types.InvestmentInactive)
	if err != nil {
		return fmt.Errorf("failed to apply withdrawal from %s for %s: %w", leg.VaultAddress, userWallet, err)
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("no investment row for %s in vault %s: %w", userWallet, leg.VaultAddress, ErrNotFound)
	}
	return nil
}
