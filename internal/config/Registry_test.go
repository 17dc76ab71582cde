package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validRegistryYAML = `
chains:
  - chain_id: 8453
    name: base
    tokens:
      - symbol: USDC
        address: "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"
        decimals: 6
        vaults:
          - address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
            name: Vault A
            curator: Curator A
            is_active: true
            max_allocation: 0.4
            risk_score: 12
          - address: "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
            name: Vault B
            is_active: false
            max_allocation: 0.4
            risk_score: 30
  - chain_id: 1
    name: ethereum
    tokens:
      - symbol: USDT
        address: "0xdac17f958d2ee523a2206206994597c13d831ec7"
        decimals: 6
        vaults:
          - address: "0xcccccccccccccccccccccccccccccccccccccccc"
            name: Vault C
            is_active: true
            max_allocation: 0.5
            risk_score: 20
profiles:
  default:
    min_tvl_usd: 5000000
    min_apy_percent: 1.0
    max_risk_score: 25
    require_whitelisted: true
    max_vault_allocation: 0.4
    preferred_vault_count: 4
    max_vault_count: 5
    min_investment_usd: 25
    rebalance_threshold: 0.05
  conservative:
    min_tvl_usd: 10000000
    min_apy_percent: 0.5
    max_risk_score: 15
    require_whitelisted: true
    max_vault_allocation: 0.4
    preferred_vault_count: 3
    max_vault_count: 4
    min_investment_usd: 50
    rebalance_threshold: 0.05
`

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRegistry_Valid(t *testing.T) {
	registry, err := LoadRegistry(writeRegistry(t, validRegistryYAML))
	require.NoError(t, err)

	// Inactive vaults never surface through refs or records.
	refs := registry.VaultRefs()
	require.Len(t, refs, 2)
	assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", refs[0].Address)
	assert.Equal(t, int64(8453), refs[0].ChainID)

	records := registry.VaultRecords("USDC", 8453)
	require.Len(t, records, 1)
	assert.Equal(t, "Vault A", records[0].Name)
	assert.True(t, records[0].Whitelisted)
	assert.Equal(t, 6, records[0].TokenDecimals)
	assert.Equal(t, 12.0, records[0].StaticRiskScore)

	// Empty symbol and zero chain match everything active.
	assert.Len(t, registry.VaultRecords("", 0), 2)
	// Symbol matching is case-insensitive.
	assert.Len(t, registry.VaultRecords("usdc", 8453), 1)
	assert.Empty(t, registry.VaultRecords("USDC", 1))
}

func TestLoadRegistry_NoChains(t *testing.T) {
	_, err := LoadRegistry(writeRegistry(t, `
chains: []
profiles:
  default:
    max_vault_allocation: 0.4
    max_vault_count: 5
`))
	assert.ErrorIs(t, err, ErrNoChains)
}

func TestLoadRegistry_MissingDefaultProfile(t *testing.T) {
	_, err := LoadRegistry(writeRegistry(t, `
chains:
  - chain_id: 8453
    name: base
profiles:
  conservative:
    max_vault_allocation: 0.4
    max_vault_count: 4
`))
	assert.ErrorIs(t, err, ErrNoDefaultProfile)
}

func TestLoadRegistry_OmittedProfilesFallBackToPresets(t *testing.T) {
	registry, err := LoadRegistry(writeRegistry(t, `
chains:
  - chain_id: 8453
    name: base
`))
	require.NoError(t, err)

	criteria := registry.Criteria("aggressive")
	assert.Equal(t, DefaultSelectionProfiles["aggressive"].MinTvlUSD, criteria.MinTvlUSD)
	assert.True(t, criteria.AllowPoorData)
}

func TestLoadRegistry_InvalidVaultAddress(t *testing.T) {
	_, err := LoadRegistry(writeRegistry(t, `
chains:
  - chain_id: 8453
    name: base
    tokens:
      - symbol: USDC
        address: "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"
        decimals: 6
        vaults:
          - address: "not-an-address"
            is_active: true
            max_allocation: 0.4
            risk_score: 10
profiles:
  default:
    max_vault_allocation: 0.4
    max_vault_count: 5
`))
	assert.ErrorIs(t, err, ErrInvalidVaultEntry)
}

func TestLoadRegistry_InvalidProfileBounds(t *testing.T) {
	_, err := LoadRegistry(writeRegistry(t, `
chains:
  - chain_id: 8453
    name: base
profiles:
  default:
    max_vault_allocation: 1.5
    max_vault_count: 5
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_vault_allocation")
}

func TestCriteria_FallsBackToDefault(t *testing.T) {
	registry, err := LoadRegistry(writeRegistry(t, validRegistryYAML))
	require.NoError(t, err)

	known := registry.Criteria("conservative")
	assert.Equal(t, "conservative", known.Profile)
	assert.Equal(t, 10_000_000.0, known.MinTvlUSD)

	unknown := registry.Criteria("yolo")
	assert.Equal(t, "default", unknown.Profile)
	assert.Equal(t, 5_000_000.0, unknown.MinTvlUSD)
}

func TestTokenDecimals(t *testing.T) {
	registry, err := LoadRegistry(writeRegistry(t, validRegistryYAML))
	require.NoError(t, err)

	decimals, ok := registry.TokenDecimals("usdc", 8453)
	assert.True(t, ok)
	assert.Equal(t, 6, decimals)

	_, ok = registry.TokenDecimals("DAI", 8453)
	assert.False(t, ok)
}

func TestReload_ReturnsFreshSnapshot(t *testing.T) {
	path := writeRegistry(t, validRegistryYAML)
	registry, err := LoadRegistry(path)
	require.NoError(t, err)
	require.Len(t, registry.VaultRefs(), 2)

	// Shrink the registry on disk, then reload.
	require.NoError(t, os.WriteFile(path, []byte(`
chains:
  - chain_id: 8453
    name: base
    tokens:
      - symbol: USDC
        address: "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913"
        decimals: 6
        vaults:
          - address: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
            is_active: true
            max_allocation: 0.4
            risk_score: 12
`), 0o644))

	fresh, err := registry.Reload()
	require.NoError(t, err)
	assert.Len(t, fresh.VaultRefs(), 1)
	assert.Len(t, registry.VaultRefs(), 2, "original snapshot is untouched")
}
