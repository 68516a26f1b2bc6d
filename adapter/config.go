package adapter

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/defistate/defi-liquidity-adapter-go/protocols/poolregistry"
	"github.com/defistate/defi-liquidity-adapter-go/protocols/token"
	"github.com/defistate/defi-liquidity-adapter-go/protocols/vault"
	"github.com/ethereum/go-ethereum/common"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Pair is the two reserve assets of a pool in canonical order: ascending
// byte order of their addresses. The zero value is not a valid pair.
type Pair struct {
	assets [2]common.Address
}

// NewPair orders x and y canonically. The assets must be distinct and
// non-zero.
func NewPair(x, y common.Address) (Pair, error) {
	if x == (common.Address{}) || y == (common.Address{}) {
		return Pair{}, errors.New("pair: zero address")
	}
	switch bytes.Compare(x[:], y[:]) {
	case 0:
		return Pair{}, fmt.Errorf("pair: duplicate asset %s", x.Hex())
	case 1:
		x, y = y, x
	}
	return Pair{assets: [2]common.Address{x, y}}, nil
}

// Assets returns both assets in canonical order.
func (p Pair) Assets() [2]common.Address {
	return p.assets
}

// A returns the first canonical asset.
func (p Pair) A() common.Address { return p.assets[0] }

// B returns the second canonical asset.
func (p Pair) B() common.Address { return p.assets[1] }

// Index returns the canonical position of asset.
func (p Pair) Index(asset common.Address) (int, bool) {
	for i, a := range p.assets {
		if a == asset {
			return i, true
		}
	}
	return 0, false
}

// IsZero reports whether p was never initialized.
func (p Pair) IsZero() bool {
	return p == Pair{}
}

// slice returns a fresh slice, so requests never alias the pair.
func (p Pair) slice() []common.Address {
	return []common.Address{p.assets[0], p.assets[1]}
}

// Config holds everything an Adapter needs. It is fixed at construction.
type Config struct {
	Pair   Pair
	PoolID poolregistry.PoolID
	// ExitTokenIndex is the canonical position of the asset paid out on
	// redemption. Zero selects the first asset.
	ExitTokenIndex uint8

	// Address is the account that holds custody during a call.
	Address common.Address
	// Vault is the spender the pool engine draws deposits through.
	Vault common.Address
	// ShareToken defaults to the pool address embedded in PoolID.
	ShareToken common.Address

	Custody    token.Custody
	Engine     vault.Engine
	UnitOfWork token.UnitOfWork
	Logger     Logger
	Metrics    *Metrics // optional
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Pair.IsZero() {
		return errors.New("config: Pair is required")
	}
	if c.PoolID.IsZero() {
		return errors.New("config: PoolID is required")
	}
	if c.ExitTokenIndex > 1 {
		return fmt.Errorf("config: ExitTokenIndex must be 0 or 1, got %d", c.ExitTokenIndex)
	}
	if c.Address == (common.Address{}) {
		return errors.New("config: Address is required")
	}
	if c.Vault == (common.Address{}) {
		return errors.New("config: Vault is required")
	}
	if c.Custody == nil {
		return errors.New("config: Custody is required")
	}
	if c.Engine == nil {
		return errors.New("config: Engine is required")
	}
	if c.UnitOfWork == nil {
		return errors.New("config: UnitOfWork is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}
