package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/defistate/defi-liquidity-adapter-go/protocols/poolregistry"
	"github.com/defistate/defi-liquidity-adapter-go/protocols/token"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// PoolConfig describes one pool, its adapter and its initial reserves.
type PoolConfig struct {
	ID      uint64              `yaml:"id"`
	PoolID  poolregistry.PoolID `yaml:"pool_id"`
	Assets  [2]string           `yaml:"assets"` // token symbols
	Exit    string              `yaml:"exit_asset"`
	Adapter common.Address      `yaml:"adapter"`
	// Reserves seed the pool through an INIT join, keyed by symbol.
	Reserves map[string]Amount `yaml:"reserves"`
}

// BalanceConfig mints Amount of Asset to Holder at startup.
type BalanceConfig struct {
	Holder common.Address `yaml:"holder"`
	Asset  string         `yaml:"asset"`
	Amount Amount         `yaml:"amount"`
}

// AdapterdConfig is the adapterd configuration file.
type AdapterdConfig struct {
	ListenAddr string         `yaml:"listen_addr"`
	Vault      common.Address `yaml:"vault"`
	// Provider is the account that supplies the initial reserves and holds
	// the pool shares minted for them.
	Provider common.Address    `yaml:"provider"`
	Tokens   []token.TokenView `yaml:"tokens"`
	Pools    []PoolConfig      `yaml:"pools"`
	Balances []BalanceConfig   `yaml:"balances"`
}

// Amount is a non-negative integer written in decimal or 0x-prefixed hex.
type Amount struct {
	*big.Int
}

// UnmarshalYAML parses the scalar as an integer.
func (a *Amount) UnmarshalYAML(node *yaml.Node) error {
	v, ok := new(big.Int).SetString(strings.ReplaceAll(node.Value, "_", ""), 0)
	if !ok || v.Sign() < 0 {
		return fmt.Errorf("line %d: invalid amount %q", node.Line, node.Value)
	}
	a.Int = v
	return nil
}

// BigInt returns the amount, treating an unset amount as zero.
func (a Amount) BigInt() *big.Int {
	if a.Int == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.Int)
}

// LoadConfig reads a configuration file from the given path and unmarshals it
// into an AdapterdConfig struct.
func LoadConfig(path string) (*AdapterdConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*AdapterdConfig, error) {
	var cfg AdapterdConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AdapterdConfig) validate() error {
	if c.ListenAddr == "" {
		return errors.New("config: listen_addr is required")
	}
	if c.Vault == (common.Address{}) {
		return errors.New("config: vault is required")
	}
	if len(c.Pools) == 0 {
		return errors.New("config: at least one pool is required")
	}

	symbols := make(map[string]bool, len(c.Tokens))
	for _, t := range c.Tokens {
		if t.Address == (common.Address{}) {
			return fmt.Errorf("config: token %q has no address", t.Symbol)
		}
		sym := strings.ToUpper(t.Symbol)
		if sym == "" || symbols[sym] {
			return fmt.Errorf("config: token symbol %q is empty or duplicated", t.Symbol)
		}
		symbols[sym] = true
	}
	known := func(sym string) bool { return symbols[strings.ToUpper(sym)] }

	seen := make(map[poolregistry.PoolID]bool, len(c.Pools))
	for _, p := range c.Pools {
		if p.PoolID.IsZero() {
			return fmt.Errorf("config: pool %d has no pool_id", p.ID)
		}
		if seen[p.PoolID] {
			return fmt.Errorf("config: pool %s is configured twice", p.PoolID)
		}
		seen[p.PoolID] = true
		for _, sym := range p.Assets {
			if !known(sym) {
				return fmt.Errorf("config: pool %d uses unknown token %q", p.ID, sym)
			}
		}
		if p.Exit != "" && !strings.EqualFold(p.Exit, p.Assets[0]) && !strings.EqualFold(p.Exit, p.Assets[1]) {
			return fmt.Errorf("config: pool %d exit_asset %q is not one of its assets", p.ID, p.Exit)
		}
		if p.Adapter == (common.Address{}) {
			return fmt.Errorf("config: pool %d has no adapter address", p.ID)
		}
		if len(p.Reserves) > 0 && c.Provider == (common.Address{}) {
			return fmt.Errorf("config: pool %d has reserves but no provider is set", p.ID)
		}
		for sym := range p.Reserves {
			if !strings.EqualFold(sym, p.Assets[0]) && !strings.EqualFold(sym, p.Assets[1]) {
				return fmt.Errorf("config: pool %d has a reserve of %q, which it does not hold", p.ID, sym)
			}
		}
	}
	for _, b := range c.Balances {
		if !known(b.Asset) {
			return fmt.Errorf("config: balance of unknown token %q", b.Asset)
		}
	}
	return nil
}
