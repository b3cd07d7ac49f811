package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ContractPreset is a named rollup contract offered to dashboard users.
type ContractPreset struct {
	Name    string `mapstructure:"name"    yaml:"name"    json:"name"`
	Label   string `mapstructure:"label"   yaml:"label"   json:"label"`
	Address string `mapstructure:"address" yaml:"address" json:"address"`
}

// Config lists the contract presets and which one is used when a scan
// request names no contract.
type Config struct {
	Contracts       []ContractPreset `mapstructure:"contracts"        yaml:"contracts"`
	DefaultContract string           `mapstructure:"default_contract" yaml:"default_contract"`
	// MaxRetained bounds how many finished sessions are kept for polling.
	MaxRetained int `mapstructure:"max_retained" yaml:"max_retained"`
	// DecisionTimeout cancels sessions whose resume-or-restart decision is
	// never answered. Zero keeps them waiting.
	DecisionTimeout time.Duration `mapstructure:"decision_timeout" yaml:"decision_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Contracts: []ContractPreset{
			{Name: "1st", Label: "1st Contract", Address: "0x8D1cc702453fa889f137DBD5734CDb7Ee96B6Ba0"},
			{Name: "2nd", Label: "2nd Contract", Address: "0xee6d4e937f0493fb461f28a75cf591f1dba8704e"},
			{Name: "adv", Label: "Adversarial Contract", Address: "0x216f071653a82ced3ef9d29f3f0c0ed7829c8f81"},
		},
		DefaultContract: "adv",
		MaxRetained:     256,
		DecisionTimeout: 15 * time.Minute,
	}
}

// Validate checks every preset address and the default selection.
func (c Config) Validate() error {
	if len(c.Contracts) == 0 {
		return fmt.Errorf("contracts: at least one preset is required")
	}
	seen := make(map[string]bool, len(c.Contracts))
	for i, p := range c.Contracts {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("contracts[%d].name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("contracts[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
		if !common.IsHexAddress(p.Address) {
			return fmt.Errorf("contracts[%d].address %q is not a hex address", i, p.Address)
		}
	}
	if _, ok := c.Preset(c.DefaultContract); !ok {
		return fmt.Errorf("default_contract %q does not name a preset", c.DefaultContract)
	}
	if c.MaxRetained < 0 {
		return fmt.Errorf("max_retained must not be negative")
	}
	if c.DecisionTimeout < 0 {
		return fmt.Errorf("decision_timeout must not be negative")
	}
	return nil
}

// Preset finds a preset by name.
func (c Config) Preset(name string) (ContractPreset, bool) {
	for _, p := range c.Contracts {
		if p.Name == name {
			return p, true
		}
	}
	return ContractPreset{}, false
}

// Resolve maps a preset name or a hex address to a contract address.
// An empty value selects the default preset.
func (c Config) Resolve(value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = c.DefaultContract
	}
	if p, ok := c.Preset(value); ok {
		return common.HexToAddress(p.Address), nil
	}
	if common.IsHexAddress(value) {
		return common.HexToAddress(value), nil
	}
	return common.Address{}, fmt.Errorf("unknown contract %q", value)
}
