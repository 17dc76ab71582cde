/*

This file contains the vault registry: the canonical, config-driven list of
supported chains, tokens, and whitelisted vault addresses, plus the named
selection-criteria profiles. The registry is loaded into an immutable
snapshot; Reload parses a fresh snapshot instead of mutating shared state.

A malformed registry (bad vault address, missing default profile, no chains)
is a hard failure; the system must not run with partial configuration.

*/

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/yieldpilot/vrm/internal/logger"
	"github.com/yieldpilot/vrm/internal/types"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoChains          = errors.New("registry must define at least one chain")
	ErrNoDefaultProfile  = errors.New("registry must define a 'default' selection profile")
	ErrInvalidVaultEntry = errors.New("invalid vault entry in registry")
)

var registryLogger = logger.GetForComponent("vault_registry")

var hexAddressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// RegistryVault is one whitelisted vault entry in the registry file.
type RegistryVault struct {
	Address       string  `yaml:"address"`
	Name          string  `yaml:"name"`
	Curator       string  `yaml:"curator"`
	IsActive      bool    `yaml:"is_active"`
	MaxAllocation float64 `yaml:"max_allocation"`
	RiskScore     float64 `yaml:"risk_score"`
}

// RegistryToken groups the vaults accepting one underlying token on a chain.
type RegistryToken struct {
	Symbol   string          `yaml:"symbol"`
	Address  string          `yaml:"address"`
	Decimals int             `yaml:"decimals"`
	Vaults   []RegistryVault `yaml:"vaults"`
}

// RegistryChain is one supported chain and its tokens.
type RegistryChain struct {
	ChainID int64           `yaml:"chain_id"`
	Name    string          `yaml:"name"`
	Tokens  []RegistryToken `yaml:"tokens"`
}

type registryFile struct {
	Chains   []RegistryChain                    `yaml:"chains"`
	Profiles map[string]types.SelectionCriteria `yaml:"profiles"`
}

// Registry is an immutable snapshot of the vault configuration. Safe for
// concurrent reads.
type Registry struct {
	path     string
	chains   []RegistryChain
	profiles map[string]types.SelectionCriteria
}

// LoadRegistry reads and validates the registry file at path.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vault registry %s: %w", path, err)
	}

	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse vault registry %s: %w", path, err)
	}

	// A registry without a profiles block gets the built-in presets.
	if len(file.Profiles) == 0 {
		file.Profiles = DefaultSelectionProfiles
	}

	if err := validateRegistry(file); err != nil {
		return nil, err
	}

	reg := &Registry{
		path:     path,
		chains:   file.Chains,
		profiles: file.Profiles,
	}

	registryLogger.Info().
		Int("chains", len(reg.chains)).
		Int("profiles", len(reg.profiles)).
		Int("vaults", len(reg.VaultRefs())).
		Msg("Vault registry loaded")

	return reg, nil
}

// Reload parses the registry file again and returns a new snapshot. The
// receiver is left untouched.
func (r *Registry) Reload() (*Registry, error) {
	return LoadRegistry(r.path)
}

func validateRegistry(file registryFile) error {
	if len(file.Chains) == 0 {
		return ErrNoChains
	}
	if _, ok := file.Profiles["default"]; !ok {
		return ErrNoDefaultProfile
	}

	for _, chain := range file.Chains {
		if chain.ChainID <= 0 {
			return fmt.Errorf("%w: chain %q has invalid chain_id %d", ErrInvalidVaultEntry, chain.Name, chain.ChainID)
		}
		for _, token := range chain.Tokens {
			if strings.TrimSpace(token.Symbol) == "" {
				return fmt.Errorf("%w: chain %d has a token with empty symbol", ErrInvalidVaultEntry, chain.ChainID)
			}
			if token.Decimals < 0 || token.Decimals > 18 {
				return fmt.Errorf("%w: token %s has invalid decimals %d", ErrInvalidVaultEntry, token.Symbol, token.Decimals)
			}
			for _, vault := range token.Vaults {
				if !hexAddressRe.MatchString(vault.Address) {
					return fmt.Errorf("%w: vault address %q is not a valid hex address", ErrInvalidVaultEntry, vault.Address)
				}
				if vault.MaxAllocation < 0 || vault.MaxAllocation > 1 {
					return fmt.Errorf("%w: vault %s max_allocation %.4f out of [0,1]", ErrInvalidVaultEntry, vault.Address, vault.MaxAllocation)
				}
				if vault.RiskScore < 0 || vault.RiskScore > 100 {
					return fmt.Errorf("%w: vault %s risk_score %.2f out of [0,100]", ErrInvalidVaultEntry, vault.Address, vault.RiskScore)
				}
			}
		}
	}

	for name, profile := range file.Profiles {
		if profile.MaxVaultAllocation <= 0 || profile.MaxVaultAllocation > 1 {
			return fmt.Errorf("profile %q has invalid max_vault_allocation %.4f", name, profile.MaxVaultAllocation)
		}
		if profile.MaxVaultCount <= 0 {
			return fmt.Errorf("profile %q has non-positive max_vault_count", name)
		}
		if profile.MinInvestmentUSD < 0 {
			return fmt.Errorf("profile %q has negative min_investment_usd", name)
		}
	}

	return nil
}

// Criteria resolves a named risk profile, falling back to "default" for
// unknown names.
func (r *Registry) Criteria(profile string) types.SelectionCriteria {
	if c, ok := r.profiles[profile]; ok {
		c.Profile = profile
		return c
	}
	registryLogger.Debug().Str("profile", profile).Msg("Unknown risk profile, falling back to default")
	c := r.profiles["default"]
	c.Profile = "default"
	return c
}

// VaultRefs returns every active vault reference across all chains.
func (r *Registry) VaultRefs() []types.VaultRef {
	var refs []types.VaultRef
	for _, chain := range r.chains {
		for _, token := range chain.Tokens {
			for _, vault := range token.Vaults {
				if !vault.IsActive {
					continue
				}
				refs = append(refs, types.VaultRef{Address: vault.Address, ChainID: chain.ChainID})
			}
		}
	}
	return refs
}

// VaultRecords returns the registry view of every active vault as a
// VaultRecord, keyed for the given token symbol and chain if provided
// (empty symbol / zero chain match everything).
func (r *Registry) VaultRecords(tokenSymbol string, chainID int64) []types.VaultRecord {
	var records []types.VaultRecord
	for _, chain := range r.chains {
		if chainID != 0 && chain.ChainID != chainID {
			continue
		}
		for _, token := range chain.Tokens {
			if tokenSymbol != "" && !strings.EqualFold(token.Symbol, tokenSymbol) {
				continue
			}
			for _, vault := range token.Vaults {
				if !vault.IsActive {
					continue
				}
				records = append(records, types.VaultRecord{
					Address:         vault.Address,
					ChainID:         chain.ChainID,
					Name:            vault.Name,
					TokenAddress:    token.Address,
					TokenSymbol:     token.Symbol,
					TokenDecimals:   token.Decimals,
					Whitelisted:     true,
					Curator:         vault.Curator,
					IsActive:        vault.IsActive,
					MaxAllocation:   vault.MaxAllocation,
					StaticRiskScore: vault.RiskScore,
				})
			}
		}
	}
	return records
}

// TokenDecimals looks up the decimals of a token on a chain. Returns false
// if the token is not configured.
func (r *Registry) TokenDecimals(tokenSymbol string, chainID int64) (int, bool) {
	for _, chain := range r.chains {
		if chain.ChainID != chainID {
			continue
		}
		for _, token := range chain.Tokens {
			if strings.EqualFold(token.Symbol, tokenSymbol) {
				return token.Decimals, true
			}
		}
	}
	return 0, false
}
