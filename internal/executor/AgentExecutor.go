/*

This file adapts the external transaction agent's string-based protocol to
the tagged Result type. The agent reports success as free text containing
"transaction hash: 0x..." and failure as a string beginning with "Error".
That brittle convention is quarantined here; nothing outside this file
parses agent output.

*/

package executor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yieldpilot/vrm/internal/logger"
)

var executorLogger = logger.GetForComponent("tx_executor")

var txHashRe = regexp.MustCompile(`transaction hash: (0x[a-fA-F0-9]{64})`)

// AgentInvoker is the raw interface exposed by the external transaction
// agent. Amounts travel as decimal strings in the token's smallest
// human-readable unit.
type AgentInvoker interface {
	InvokeDeposit(ctx context.Context, vaultAddress string, chainID int64, assets string, receiver string) (string, error)
	InvokeWithdraw(ctx context.Context, vaultAddress string, chainID int64, assets string, receiver string) (string, error)
}

// AgentExecutor wraps an AgentInvoker into a TxExecutor.
type AgentExecutor struct {
	agent AgentInvoker
}

func NewAgentExecutor(agent AgentInvoker) (*AgentExecutor, error) {
	if agent == nil {
		return nil, fmt.Errorf("%w: agent invoker is nil", ErrExecutionFailed)
	}
	return &AgentExecutor{agent: agent}, nil
}

func (e *AgentExecutor) Deposit(ctx context.Context, vaultAddress string, chainID int64, assets decimal.Decimal, receiver string) (Result, error) {
	raw, err := e.agent.InvokeDeposit(ctx, vaultAddress, chainID, assets.String(), receiver)
	if err != nil {
		return Result{}, fmt.Errorf("deposit invocation failed for vault %s: %w", vaultAddress, err)
	}
	result := ParseAgentResult(raw)
	logResult("deposit", vaultAddress, assets, result)
	return result, nil
}

func (e *AgentExecutor) Withdraw(ctx context.Context, vaultAddress string, chainID int64, assets decimal.Decimal, receiver string) (Result, error) {
	raw, err := e.agent.InvokeWithdraw(ctx, vaultAddress, chainID, assets.String(), receiver)
	if err != nil {
		return Result{}, fmt.Errorf("withdraw invocation failed for vault %s: %w", vaultAddress, err)
	}
	result := ParseAgentResult(raw)
	logResult("withdraw", vaultAddress, assets, result)
	return result, nil
}

// ParseAgentResult converts one agent response string into a Result. A
// response starting with "Error" is a failure carrying the full message; a
// response containing a well-formed transaction hash is a success. Anything
// else is a failure, because a success without an extractable hash cannot be
// audited.
func ParseAgentResult(raw string) Result {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "Error") {
		return Failure(trimmed)
	}

	if m := txHashRe.FindStringSubmatch(trimmed); m != nil {
		return Success(m[1])
	}

	return Failure(fmt.Sprintf("unrecognized agent response: %s", trimmed))
}

func logResult(operation, vaultAddress string, assets decimal.Decimal, result Result) {
	event := executorLogger.Info()
	if !result.OK {
		event = executorLogger.Error().Str("reason", result.Reason)
	} else {
		event = event.Str("tx_hash", result.TxHash)
	}
	event.
		Str("operation", operation).
		Str("vault", vaultAddress).
		Str("assets", assets.String()).
		Bool("ok", result.OK).
		Msg("Transaction execution result")
}
