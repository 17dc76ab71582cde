/*

This file contains the types describing user portfolios and the drift between
a user's current holdings and the planner's target allocation.

*/

package types

import "time"

// InvestmentStatus marks whether a position is live. Investments are never
// hard-deleted; exits flip the status instead.
type InvestmentStatus string

const (
	InvestmentActive   InvestmentStatus = "active"
	InvestmentInactive InvestmentStatus = "inactive"
)

// UserInvestment is one user's position in one vault, keyed by
// (UserWalletAddress, VaultAddress, ChainID). Mutated additively on every
// deposit and withdrawal.
type UserInvestment struct {
	UserWalletAddress string `json:"user_wallet_address"`
	VaultAddress      string `json:"vault_address"`
	ChainID           int64  `json:"chain_id"`

	AmountInvested   float64 `json:"amount_invested"`
	SharesReceived   float64 `json:"shares_received"`
	CurrentValue     float64 `json:"current_value"`
	CurrentShares    float64 `json:"current_shares"`
	TotalDeposits    float64 `json:"total_deposits"`
	TotalWithdrawals float64 `json:"total_withdrawals"`

	LastTransactionAt time.Time        `json:"last_transaction_at"`
	Status            InvestmentStatus `json:"status"`
}

// UserProfile carries the per-user settings the rebalancer needs: which
// token/chain the user invests in and their risk preset.
type UserProfile struct {
	WalletAddress string `json:"wallet_address"`
	TokenSymbol   string `json:"token_symbol"`
	ChainID       int64  `json:"chain_id"`
	RiskProfile   string `json:"risk_profile"` // conservative/moderate/aggressive/default
}

// AssetDrift is the deviation of one held (or targeted) vault from its
// target allocation percentage.
type AssetDrift struct {
	VaultAddress       string  `json:"vault_address"`
	ChainID            int64   `json:"chain_id"`
	CurrentPercent     float64 `json:"current_percent"`
	TargetPercent      float64 `json:"target_percent"`
	DriftPercent       float64 `json:"drift_percent"` // |current - target|, percentage points
	CurrentValueUSD    float64 `json:"current_value_usd"`
	RebalanceAmountUSD float64 `json:"rebalance_amount_usd"` // USD to move to close the gap
}

// PortfolioDrift is the aggregate drift decision for one user.
type PortfolioDrift struct {
	UserWalletAddress string       `json:"user_wallet_address"`
	TotalValueUSD     float64      `json:"total_value_usd"`
	TotalDriftPercent float64      `json:"total_drift_percent"` // sum of per-asset drift
	Assets            []AssetDrift `json:"assets"`
	RequiresRebalance bool         `json:"requires_rebalance"`
}

// DriftConfig holds the thresholds gating whether drift is acted on.
type DriftConfig struct {
	DriftThresholdPercent float64       `json:"drift_threshold_percent"` // e.g. 5.0
	MinRebalanceAmountUSD float64       `json:"min_rebalance_amount_usd"`
	MinRebalanceInterval  time.Duration `json:"min_rebalance_interval"`
}

// DefaultDriftConfig mirrors the production defaults: 5% drift threshold,
// $100 minimum move, at most one rebalance per user per 24h.
func DefaultDriftConfig() DriftConfig {
	return DriftConfig{
		DriftThresholdPercent: 5.0,
		MinRebalanceAmountUSD: 100.0,
		MinRebalanceInterval:  24 * time.Hour,
	}
}
