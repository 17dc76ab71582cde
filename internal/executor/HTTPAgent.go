/*

This file contains the HTTP transport to the transaction agent service. The
agent answers every invocation with a plain-text status line in its
"transaction hash: ..." / "Error: ..." convention; ParseAgentResult turns
that into a Result upstream.

*/

package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const AGENT_TIMEOUT = 5 * time.Minute // covers on-chain confirmation waits

// HTTPAgent invokes the transaction agent over HTTP.
type HTTPAgent struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPAgent(endpoint string) *HTTPAgent {
	return &HTTPAgent{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: AGENT_TIMEOUT},
	}
}

type agentRequest struct {
	Operation    string `json:"operation"`
	VaultAddress string `json:"vault_address"`
	ChainID      int64  `json:"chain_id"`
	Assets       string `json:"assets"`
	Receiver     string `json:"receiver"`
}

func (a *HTTPAgent) InvokeDeposit(ctx context.Context, vaultAddress string, chainID int64, assets string, receiver string) (string, error) {
	return a.invoke(ctx, agentRequest{
		Operation:    "deposit",
		VaultAddress: vaultAddress,
		ChainID:      chainID,
		Assets:       assets,
		Receiver:     receiver,
	})
}

func (a *HTTPAgent) InvokeWithdraw(ctx context.Context, vaultAddress string, chainID int64, assets string, receiver string) (string, error) {
	return a.invoke(ctx, agentRequest{
		Operation:    "withdraw",
		VaultAddress: vaultAddress,
		ChainID:      chainID,
		Assets:       assets,
		Receiver:     receiver,
	})
}

func (a *HTTPAgent) invoke(ctx context.Context, request agentRequest) (string, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal agent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read agent response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: agent returned status %d", ErrExecutionFailed, resp.StatusCode)
	}

	return string(body), nil
}
