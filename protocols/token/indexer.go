package token

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TokenView is the static metadata of a single reserve or share token.
type TokenView struct {
	ID       uint64         `json:"id" yaml:"id"`
	Address  common.Address `json:"address" yaml:"address"`
	Symbol   string         `json:"symbol" yaml:"symbol"`
	Decimals uint8          `json:"decimals" yaml:"decimals"`
}

// Indexer builds IndexableTokenSystem values from raw token lists.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed token system from a raw slice of tokens.
func (i *Indexer) Index(tokens []TokenView) *IndexableTokenSystem {
	return NewIndexableTokenSystem(tokens)
}

// IndexableTokenSystem provides fast, indexed access to token metadata.
// Symbol lookups are case-insensitive.
type IndexableTokenSystem struct {
	byID      map[uint64]TokenView
	byAddress map[common.Address]TokenView
	bySymbol  map[string]TokenView
	all       []TokenView
}

// NewIndexableTokenSystem creates a new indexed token system from a raw slice.
// When two tokens share a symbol, the later one wins the symbol index.
func NewIndexableTokenSystem(tokens []TokenView) *IndexableTokenSystem {
	byID := make(map[uint64]TokenView, len(tokens))
	byAddress := make(map[common.Address]TokenView, len(tokens))
	bySymbol := make(map[string]TokenView, len(tokens))

	for _, t := range tokens {
		byID[t.ID] = t
		byAddress[t.Address] = t
		if t.Symbol != "" {
			bySymbol[strings.ToUpper(t.Symbol)] = t
		}
	}

	return &IndexableTokenSystem{
		byID:      byID,
		byAddress: byAddress,
		bySymbol:  bySymbol,
		all:       tokens,
	}
}

// GetByID retrieves a token by its unique ID.
func (its *IndexableTokenSystem) GetByID(id uint64) (TokenView, bool) {
	t, ok := its.byID[id]
	return t, ok
}

// GetByAddress retrieves a token by its contract address.
func (its *IndexableTokenSystem) GetByAddress(address common.Address) (TokenView, bool) {
	t, ok := its.byAddress[address]
	return t, ok
}

// GetBySymbol retrieves a token by its ticker symbol.
func (its *IndexableTokenSystem) GetBySymbol(symbol string) (TokenView, bool) {
	t, ok := its.bySymbol[strings.ToUpper(symbol)]
	return t, ok
}

// Label returns the symbol of a known token, or its hex address otherwise.
func (its *IndexableTokenSystem) Label(address common.Address) string {
	if t, ok := its.byAddress[address]; ok && t.Symbol != "" {
		return t.Symbol
	}
	return address.Hex()
}

// All returns a defensive copy of the slice of all tokens in the system.
func (its *IndexableTokenSystem) All() []TokenView {
	allCopy := make([]TokenView, len(its.all))
	copy(allCopy, its.all)
	return allCopy
}
