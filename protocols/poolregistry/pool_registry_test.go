package poolregistry

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestIndexablePoolRegistry(t *testing.T) {
	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	dai := common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")

	p1 := PoolView{
		ID:     1,
		Key:    NewPoolID(common.HexToAddress("0x01"), TwoTokenSpecialization, 1),
		Assets: [2]common.Address{usdc, weth},
	}
	p2 := PoolView{
		ID:     2,
		Key:    NewPoolID(common.HexToAddress("0x02"), TwoTokenSpecialization, 2),
		Assets: [2]common.Address{dai, weth},
	}

	reg := New().Index([]PoolView{p1, p2})

	t.Run("Lookups", func(t *testing.T) {
		got, ok := reg.GetByID(2)
		assert.True(t, ok)
		assert.Equal(t, p2, got)

		got, ok = reg.GetByPoolID(p1.Key)
		assert.True(t, ok)
		assert.Equal(t, p1, got)

		got, ok = reg.GetByAddress(common.HexToAddress("0x02"))
		assert.True(t, ok)
		assert.Equal(t, p2, got)

		_, ok = reg.GetByID(3)
		assert.False(t, ok)
	})

	t.Run("GetByAsset", func(t *testing.T) {
		assert.ElementsMatch(t, []PoolView{p1, p2}, reg.GetByAsset(weth))
		assert.Equal(t, []PoolView{p1}, reg.GetByAsset(usdc))
		assert.Empty(t, reg.GetByAsset(common.HexToAddress("0xdead")))
	})

	t.Run("All_IsDefensiveCopy", func(t *testing.T) {
		all := reg.All()
		all[0].ID = 99

		got, _ := reg.GetByID(1)
		assert.Equal(t, uint64(1), got.ID)
		assert.Equal(t, uint64(1), reg.View().Pools[0].ID)
	})
}
