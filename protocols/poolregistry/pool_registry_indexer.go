package poolregistry

import (
	"github.com/ethereum/go-ethereum/common"
)

type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed pool registry from a raw slice of pools.
func (i *Indexer) Index(pools []PoolView) *IndexablePoolRegistry {
	return NewIndexablePoolRegistry(pools)
}

// IndexablePoolRegistry provides fast, indexed access to pool registry data.
type IndexablePoolRegistry struct {
	byID      map[uint64]PoolView
	byKey     map[PoolID]PoolView
	byAddress map[common.Address]PoolView
	byAsset   map[common.Address][]PoolView
	all       []PoolView
}

// NewIndexablePoolRegistry creates a new indexed pool registry from a raw slice.
func NewIndexablePoolRegistry(pools []PoolView) *IndexablePoolRegistry {
	byID := make(map[uint64]PoolView, len(pools))
	byKey := make(map[PoolID]PoolView, len(pools))
	byAddress := make(map[common.Address]PoolView, len(pools))
	byAsset := make(map[common.Address][]PoolView)

	for _, p := range pools {
		byID[p.ID] = p
		byKey[p.Key] = p
		byAddress[p.Key.Address()] = p
		for _, a := range p.Assets {
			byAsset[a] = append(byAsset[a], p)
		}
	}

	return &IndexablePoolRegistry{
		byID:      byID,
		byKey:     byKey,
		byAddress: byAddress,
		byAsset:   byAsset,
		all:       pools,
	}
}

// GetByID retrieves a pool by its unique ID.
func (ipr *IndexablePoolRegistry) GetByID(id uint64) (PoolView, bool) {
	p, ok := ipr.byID[id]
	return p, ok
}

// GetByAddress retrieves a pool by its contract address.
func (ipr *IndexablePoolRegistry) GetByAddress(address common.Address) (PoolView, bool) {
	p, ok := ipr.byAddress[address]
	return p, ok
}

// GetByPoolID retrieves a pool by its vault pool id.
func (ipr *IndexablePoolRegistry) GetByPoolID(key PoolID) (PoolView, bool) {
	p, ok := ipr.byKey[key]
	return p, ok
}

// GetByAsset returns every pool holding the given reserve asset.
func (ipr *IndexablePoolRegistry) GetByAsset(asset common.Address) []PoolView {
	pools := ipr.byAsset[asset]
	out := make([]PoolView, len(pools))
	copy(out, pools)
	return out
}

// All returns a defensive copy of the slice of all pools in the system.
func (ipr *IndexablePoolRegistry) All() []PoolView {
	allCopy := make([]PoolView, len(ipr.all))
	copy(allCopy, ipr.all)
	return allCopy
}

// View returns the registry's contents as a PoolRegistryView.
func (ipr *IndexablePoolRegistry) View() PoolRegistryView {
	return PoolRegistryView{Pools: ipr.All()}
}
