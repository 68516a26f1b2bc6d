package poolregistry

import "github.com/ethereum/go-ethereum/common"

// PoolView describes one pool an adapter is configured for.
type PoolView struct {
	ID             uint64            `json:"id"`
	Key            PoolID            `json:"key"`
	Assets         [2]common.Address `json:"assets"` // canonical order
	ShareToken     common.Address    `json:"shareToken"`
	ExitTokenIndex uint8             `json:"exitTokenIndex"`
}

// PoolRegistryView represents the complete set of configured pools.
type PoolRegistryView struct {
	Pools []PoolView `json:"pools"`
}
