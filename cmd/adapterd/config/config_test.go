package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
listen_addr: "127.0.0.1:8645"
vault: "0xBA12222222228d8Ba445958a75a0704d566BF2C8"
provider: "0x000000000000000000000000000000000000A11C"
tokens:
  - id: 1
    symbol: USDC
    address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
    decimals: 6
  - id: 2
    symbol: WETH
    address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
    decimals: 18
pools:
  - id: 1
    pool_id: "0x96646936b91d6b9d7d0c47c496afbf3d6ec7b6f8000200000000000000000019"
    assets: [WETH, USDC]
    exit_asset: usdc
    adapter: "0x00000000000000000000000000000000000ADA97"
    reserves:
      USDC: 2_000_000_000
      WETH: "0x3635C9ADC5DEA00000"
balances:
  - holder: "0x000000000000000000000000000000000000BEEF"
    asset: USDC
    amount: 500
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8645", cfg.ListenAddr)
	assert.Equal(t, common.HexToAddress("0xBA12222222228d8Ba445958a75a0704d566BF2C8"), cfg.Vault)
	require.Len(t, cfg.Tokens, 2)
	assert.Equal(t, uint8(18), cfg.Tokens[1].Decimals)
	assert.Equal(t, common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), cfg.Tokens[1].Address)

	require.Len(t, cfg.Pools, 1)
	pool := cfg.Pools[0]
	assert.Equal(t, "0x96646936b91d6b9d7d0c47c496afbf3d6ec7b6f8000200000000000000000019", pool.PoolID.String())
	assert.Equal(t, [2]string{"WETH", "USDC"}, pool.Assets)
	assert.Equal(t, "2000000000", pool.Reserves["USDC"].BigInt().String())
	assert.Equal(t, "1000000000000000000000", pool.Reserves["WETH"].BigInt().String())

	require.Len(t, cfg.Balances, 1)
	assert.Equal(t, int64(500), cfg.Balances[0].Amount.BigInt().Int64())
	assert.Zero(t, Amount{}.BigInt().Sign())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adapterd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Pools, 1)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	base := func() *AdapterdConfig {
		cfg, err := Parse([]byte(sample))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*AdapterdConfig)
		want   string
	}{
		{"NoListenAddr", func(c *AdapterdConfig) { c.ListenAddr = "" }, "listen_addr"},
		{"NoVault", func(c *AdapterdConfig) { c.Vault = common.Address{} }, "vault"},
		{"NoPools", func(c *AdapterdConfig) { c.Pools = nil }, "at least one pool"},
		{"DuplicateSymbol", func(c *AdapterdConfig) { c.Tokens[1].Symbol = "usdc" }, "duplicated"},
		{"UnknownAsset", func(c *AdapterdConfig) { c.Pools[0].Assets[0] = "DAI" }, "unknown token"},
		{"BadExit", func(c *AdapterdConfig) { c.Pools[0].Exit = "DAI" }, "exit_asset"},
		{"NoAdapter", func(c *AdapterdConfig) { c.Pools[0].Adapter = common.Address{} }, "adapter"},
		{"NoProvider", func(c *AdapterdConfig) { c.Provider = common.Address{} }, "provider"},
		{"DuplicatePool", func(c *AdapterdConfig) { c.Pools = append(c.Pools, c.Pools[0]) }, "twice"},
		{"UnknownBalance", func(c *AdapterdConfig) { c.Balances[0].Asset = "DAI" }, "unknown token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.validate(), tt.want)
		})
	}

	_, err := Parse([]byte("pools:\n  - reserves: {USDC: -5}\n"))
	assert.ErrorContains(t, err, "invalid amount")
}
