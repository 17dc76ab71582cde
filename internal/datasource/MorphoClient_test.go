package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldpilot/vrm/internal/types"
)

// vaultJSON renders a well-formed vaultByAddress payload. Rates are
// fractions, the way the live API reports them.
func vaultJSON(address string, apyFraction float64) string {
	return vaultJSONAt(address, apyFraction, time.Now().Unix())
}

func vaultJSONAt(address string, apyFraction float64, timestamp int64) string {
	return fmt.Sprintf(`{
		"data": {
			"vaultByAddress": {
				"address": %q,
				"symbol": "tv",
				"name": "Test Vault",
				"whitelisted": true,
				"state": {
					"apy": %f,
					"netApy": %f,
					"netApyWithoutRewards": %f,
					"dailyNetApy": %f,
					"weeklyNetApy": %f,
					"monthlyNetApy": %f,
					"totalAssetsUsd": 20000000,
					"sharePrice": 1.0,
					"sharePriceUsd": 1.02,
					"timestamp": %d,
					"rewards": [
						{"supplyApr": 0.003, "yearlySupplyTokens": 1000, "asset": {"symbol": "MORPHO"}}
					],
					"allocation": [
						{"supplyAssetsUsd": 10000000, "market": {"uniqueKey": "m1", "state": {"utilization": 0.9}}},
						{"supplyAssetsUsd": 10000000, "market": {"uniqueKey": "m2", "state": {"utilization": 0.8}}},
						{"supplyAssetsUsd": 0, "market": {"uniqueKey": "empty", "state": {"utilization": 0.1}}}
					]
				}
			}
		}
	}`, address, apyFraction, apyFraction, apyFraction, apyFraction, apyFraction, apyFraction, timestamp)
}

func decodeAddress(r *http.Request) string {
	var req struct {
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ""
	}
	address, _ := req.Variables["address"].(string)
	return address
}

// fastClient builds a client whose limiter never stalls a test.
func fastClient(t *testing.T, endpoint string) *MorphoClient {
	t.Helper()
	client, err := NewMorphoClient(endpoint, 600000)
	require.NoError(t, err)
	return client
}

func testRef(i int) types.VaultRef {
	return types.VaultRef{Address: fmt.Sprintf("0x%040d", i), ChainID: 8453}
}

func TestFetchVault_ConvertsFractionsToPercent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, vaultJSON(decodeAddress(r), 0.052))
	}))
	defer server.Close()

	snapshot, err := fastClient(t, server.URL).FetchVault(context.Background(), testRef(1))
	require.NoError(t, err)

	assert.InDelta(t, 5.2, snapshot.APY, 1e-9)
	assert.InDelta(t, 5.2, snapshot.NetAPY, 1e-9)
	assert.InDelta(t, 0.3, snapshot.Rewards[0].SupplyAPR, 1e-9)
	assert.Equal(t, 1.02, snapshot.SharePrice, "sharePriceUsd preferred over sharePrice")
	assert.Equal(t, 20_000_000.0, snapshot.TotalAssetsUSD)

	// The zero-value allocation is dropped at ingestion; it also carries no
	// weight in the blended utilization.
	require.Len(t, snapshot.Allocations, 2)
	assert.Equal(t, "m1", snapshot.Allocations[0].MarketKey)
	assert.InDelta(t, 85.0, snapshot.UtilizationRate, 1e-9)

	assert.Equal(t, time.UTC, snapshot.Date.Location())
	assert.Equal(t, 0, snapshot.Date.Hour())
	assert.WithinDuration(t, time.Now().UTC(), snapshot.ReportedAt, time.Minute)
}

func TestFetchVault_RejectsStaleProviderData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Well-formed payload whose state timestamp is three days old.
		old := time.Now().Add(-72 * time.Hour).Unix()
		fmt.Fprint(w, vaultJSONAt(decodeAddress(r), 0.052, old))
	}))
	defer server.Close()

	_, err := fastClient(t, server.URL).FetchVault(context.Background(), testRef(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStaleVaultData)
}

func TestFetchVault_MissingProviderTimestampIsRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, vaultJSONAt(decodeAddress(r), 0.052, 0))
	}))
	defer server.Close()

	_, err := fastClient(t, server.URL).FetchVault(context.Background(), testRef(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidVaultData)
}

func TestFetchVault_RejectsImplausibleAPY(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Fraction 20 converts to 2000%, above the plausibility ceiling.
		fmt.Fprint(w, vaultJSON(decodeAddress(r), 20.0))
	}))
	defer server.Close()

	_, err := fastClient(t, server.URL).FetchVault(context.Background(), testRef(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidVaultData)
}

func TestFetchVault_NullVaultIsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": {"vaultByAddress": null}}`)
	}))
	defer server.Close()

	_, err := fastClient(t, server.URL).FetchVault(context.Background(), testRef(1))
	assert.ErrorIs(t, err, ErrVaultNotFound)
}

func TestFetchVault_GraphQLErrorsAreNotRetried(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, `{"errors": [{"message": "unknown chain id"}]}`)
	}))
	defer server.Close()

	_, err := fastClient(t, server.URL).FetchVault(context.Background(), testRef(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGraphQLErrors)
	assert.Contains(t, err.Error(), "unknown chain id")
	assert.Equal(t, int64(1), requests.Load(), "a rejected query must not be resent")
}

func TestFetchVaults_OneBadVaultDoesNotBlockTheBatch(t *testing.T) {
	bad := testRef(7).Address
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := decodeAddress(r)
		if address == bad {
			fmt.Fprint(w, `{"errors": [{"message": "internal error"}]}`)
			return
		}
		fmt.Fprint(w, vaultJSON(address, 0.05))
	}))
	defer server.Close()

	refs := make([]types.VaultRef, 0, 12)
	for i := 1; i <= 12; i++ {
		refs = append(refs, testRef(i))
	}

	snapshots, failures, err := fastClient(t, server.URL).FetchVaults(context.Background(), refs)
	require.NoError(t, err)

	assert.Len(t, snapshots, 11)
	require.Len(t, failures, 1)
	assert.Equal(t, bad, failures[0].Ref.Address)
	assert.ErrorIs(t, failures[0].Err, ErrGraphQLErrors)
}

func TestFetchVaults_ContextCancellationAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, vaultJSON(decodeAddress(r), 0.05))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := fastClient(t, server.URL).FetchVaults(ctx, []types.VaultRef{testRef(1)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewMorphoClient_EmptyEndpoint(t *testing.T) {
	_, err := NewMorphoClient("  ", 30)
	assert.ErrorIs(t, err, ErrAPIRequest)
}
