package executor

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHash = "0x9f2c4a1b0e8d7c6a5b4f3e2d1c0b9a8f7e6d5c4b3a2f1e0d9c8b7a6f5e4d3c2b"

func TestParseAgentResult(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		ok       bool
		txHash   string
		contains string
	}{
		{
			name:   "success with hash",
			raw:    "Deposit confirmed, transaction hash: " + sampleHash,
			ok:     true,
			txHash: sampleHash,
		},
		{
			name:   "success with surrounding whitespace",
			raw:    "  transaction hash: " + sampleHash + "\n",
			ok:     true,
			txHash: sampleHash,
		},
		{
			name:     "error prefix carries full message",
			raw:      "Error: insufficient allowance",
			ok:       false,
			contains: "Error: insufficient allowance",
		},
		{
			name:     "error prefix wins over embedded hash",
			raw:      "Error: reverted, see transaction hash: " + sampleHash,
			ok:       false,
			contains: "Error: reverted",
		},
		{
			name:     "success text without hash is a failure",
			raw:      "Deposit completed successfully",
			ok:       false,
			contains: "unrecognized agent response",
		},
		{
			name:     "truncated hash is a failure",
			raw:      "transaction hash: 0xabc123",
			ok:       false,
			contains: "unrecognized agent response",
		},
		{
			name:     "empty response is a failure",
			raw:      "",
			ok:       false,
			contains: "unrecognized agent response",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := ParseAgentResult(tc.raw)
			assert.Equal(t, tc.ok, result.OK)
			if tc.ok {
				assert.Equal(t, tc.txHash, result.TxHash)
				assert.Empty(t, result.Reason)
			} else {
				assert.Contains(t, result.Reason, tc.contains)
				assert.Empty(t, result.TxHash)
			}
		})
	}
}

type scriptedAgent struct {
	response string
	calls    []string
}

func (a *scriptedAgent) InvokeDeposit(ctx context.Context, vaultAddress string, chainID int64, assets string, receiver string) (string, error) {
	a.calls = append(a.calls, "deposit:"+assets)
	return a.response, nil
}

func (a *scriptedAgent) InvokeWithdraw(ctx context.Context, vaultAddress string, chainID int64, assets string, receiver string) (string, error) {
	a.calls = append(a.calls, "withdraw:"+assets)
	return a.response, nil
}

func TestAgentExecutor_DepositParsesResponse(t *testing.T) {
	agent := &scriptedAgent{response: "transaction hash: " + sampleHash}
	exec, err := NewAgentExecutor(agent)
	require.NoError(t, err)

	result, err := exec.Deposit(context.Background(), "0xvault", 8453, decimal.NewFromFloat(250.5), "0xme")
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, sampleHash, result.TxHash)

	// Amounts cross the boundary as decimal strings.
	require.Len(t, agent.calls, 1)
	assert.True(t, strings.HasPrefix(agent.calls[0], "deposit:250.5"))
}

func TestAgentExecutor_WithdrawFailureSurfacesReason(t *testing.T) {
	agent := &scriptedAgent{response: "Error: insufficient allowance"}
	exec, err := NewAgentExecutor(agent)
	require.NoError(t, err)

	result, err := exec.Withdraw(context.Background(), "0xvault", 8453, decimal.NewFromInt(100), "0xme")
	require.NoError(t, err, "a parsed failure is a Result, not an error")
	assert.False(t, result.OK)
	assert.Equal(t, "Error: insufficient allowance", result.Reason)
}

func TestNewAgentExecutor_NilAgent(t *testing.T) {
	_, err := NewAgentExecutor(nil)
	assert.ErrorIs(t, err, ErrExecutionFailed)
}
