package config

import (
	"errors"
	"os"

	"github.com/defistate/defi-liquidity-adapter-go/protocols/token"
	"gopkg.in/yaml.v3"
)

type ClientConfig struct {
	RPCURL string `yaml:"rpc_url"`
	// Tokens label addresses in console output. Unknown tokens print as hex.
	Tokens []token.TokenView `yaml:"tokens"`
}

// LoadConfig reads a configuration file from the given path and unmarshals it
// into a ClientConfig struct.
func LoadConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.RPCURL == "" {
		return nil, errors.New("config: rpc_url is required")
	}

	return &cfg, nil
}
