/*

This file defines the transaction execution boundary. The orchestrator only
ever sees the tagged Result type; whether a transaction succeeded is a field,
never something to be sniffed out of a message string.

*/

package executor

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrExecutionFailed = errors.New("transaction execution failed")

// Result is the outcome of one on-chain operation. Exactly one of TxHash or
// Reason is meaningful, keyed by OK.
type Result struct {
	OK     bool   `json:"ok"`
	TxHash string `json:"tx_hash,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Success builds a successful result carrying the transaction hash.
func Success(txHash string) Result {
	return Result{OK: true, TxHash: txHash}
}

// Failure builds a failed result carrying the failure reason.
func Failure(reason string) Result {
	return Result{OK: false, Reason: reason}
}

// TxExecutor signs, sends, and waits for confirmation of vault operations.
// Implementations return a failed Result for on-chain rejections and an
// error only for transport-level problems where the outcome is unknown.
type TxExecutor interface {
	// Deposit moves assets (underlying token units) into the vault on behalf
	// of the receiver.
	Deposit(ctx context.Context, vaultAddress string, chainID int64, assets decimal.Decimal, receiver string) (Result, error)

	// Withdraw redeems assets from the vault back to the receiver.
	Withdraw(ctx context.Context, vaultAddress string, chainID int64, assets decimal.Decimal, receiver string) (Result, error)
}
