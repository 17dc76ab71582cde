/*

This file contains job execution: walking the derived legs through the
transaction executor and recording the outcome on the job.

A failed leg aborts every remaining leg of the job and marks the job failed.
Legs that already executed keep their transaction hashes and their investment
record updates; there is no automatic compensation for partial execution.

*/

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yieldpilot/vrm/internal/executor"
	"github.com/yieldpilot/vrm/internal/types"
)

// executeJob transitions the job to processing, runs all withdraw legs then
// all deposit legs, and records the terminal state. The returned bool is
// true when the job failed; the error covers persistence problems only.
func (o *Orchestrator) executeJob(ctx context.Context, user types.UserProfile, job types.RebalanceJob) (failed bool, err error) {
	if err := o.store.MarkJobProcessing(job.ID); err != nil {
		return true, fmt.Errorf("failed to mark job %s processing: %w", job.ID, err)
	}

	o.logger.Info().
		Str("job_id", job.ID).
		Str("user", user.WalletAddress).
		Int("withdraw_legs", len(job.FromVaults)).
		Int("deposit_legs", len(job.ToVaults)).
		Msg("Executing rebalance job")

	// Withdrawals strictly precede deposits.
	legs := make([]*types.RebalanceLeg, 0, len(job.FromVaults)+len(job.ToVaults))
	for i := range job.FromVaults {
		legs = append(legs, &job.FromVaults[i])
	}
	for i := range job.ToVaults {
		legs = append(legs, &job.ToVaults[i])
	}

	for _, leg := range legs {
		result, execErr := o.executeLeg(ctx, user, leg)
		if execErr != nil || !result.OK {
			reason := result.Reason
			if execErr != nil {
				reason = execErr.Error()
			}
			o.logger.Error().
				Str("job_id", job.ID).
				Str("vault", leg.VaultAddress).
				Str("leg_type", string(leg.Type)).
				Str("reason", reason).
				Msg("Leg execution failed, aborting remaining legs")

			if err := o.store.FailJob(job.ID, time.Now().UTC(), reason, job.FromVaults, job.ToVaults); err != nil {
				return true, fmt.Errorf("failed to mark job %s failed: %w", job.ID, err)
			}
			return true, nil
		}

		leg.TxHash = result.TxHash
		executedAt := time.Now().UTC()

		var applyErr error
		if leg.Type == types.LegWithdraw {
			applyErr = o.store.ApplyWithdrawal(user.WalletAddress, *leg, executedAt)
		} else {
			applyErr = o.store.ApplyDeposit(user.WalletAddress, *leg, executedAt)
		}
		if applyErr != nil {
			// The transaction is on-chain; the job must not report success
			// while the investment record is out of sync.
			reason := fmt.Sprintf("leg executed (tx %s) but investment update failed: %v", result.TxHash, applyErr)
			if err := o.store.FailJob(job.ID, executedAt, reason, job.FromVaults, job.ToVaults); err != nil {
				return true, fmt.Errorf("failed to mark job %s failed: %w", job.ID, err)
			}
			return true, nil
		}
	}

	if err := o.store.CompleteJob(job.ID, time.Now().UTC(), job.FromVaults, job.ToVaults); err != nil {
		return true, fmt.Errorf("failed to mark job %s completed: %w", job.ID, err)
	}

	o.logger.Info().
		Str("job_id", job.ID).
		Str("user", user.WalletAddress).
		Float64("total_amount_usd", job.TotalAmountUSD).
		Msg("Rebalance job completed")

	return false, nil
}

func (o *Orchestrator) executeLeg(ctx context.Context, user types.UserProfile, leg *types.RebalanceLeg) (executor.Result, error) {
	assets := o.toAssetAmount(user, leg.AmountUSD)

	switch leg.Type {
	case types.LegWithdraw:
		return o.executor.Withdraw(ctx, leg.VaultAddress, leg.ChainID, assets, user.WalletAddress)
	case types.LegDeposit:
		return o.executor.Deposit(ctx, leg.VaultAddress, leg.ChainID, assets, user.WalletAddress)
	default:
		return executor.Result{}, fmt.Errorf("unknown leg type %q", leg.Type)
	}
}

// toAssetAmount converts a USD amount to underlying token units. Supported
// tokens are USD-pegged, so the conversion is a rounding to the token's
// decimal precision.
func (o *Orchestrator) toAssetAmount(user types.UserProfile, amountUSD float64) decimal.Decimal {
	amount := decimal.NewFromFloat(amountUSD)
	if decimals, ok := o.registry.TokenDecimals(user.TokenSymbol, user.ChainID); ok {
		return amount.Round(int32(decimals))
	}
	return amount.Round(6)
}
