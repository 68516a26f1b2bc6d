package token

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdc  = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	alice = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
)

func balance(t *testing.T, l *Ledger, asset, holder common.Address) int64 {
	t.Helper()
	bal, err := l.BalanceOf(context.Background(), asset, holder)
	require.NoError(t, err)
	return bal.Int64()
}

func TestLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("MintBurnSupply", func(t *testing.T) {
		l := NewLedger()
		require.NoError(t, l.Mint(ctx, usdc, alice, big.NewInt(100)))
		require.NoError(t, l.Burn(ctx, usdc, alice, big.NewInt(30)))

		assert.Equal(t, int64(70), balance(t, l, usdc, alice))
		supply, err := l.TotalSupply(ctx, usdc)
		require.NoError(t, err)
		assert.Equal(t, int64(70), supply.Int64())

		err = l.Burn(ctx, usdc, alice, big.NewInt(71))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})

	t.Run("Push", func(t *testing.T) {
		l := NewLedger()
		require.NoError(t, l.Mint(ctx, usdc, alice, big.NewInt(10)))

		require.NoError(t, l.Push(ctx, usdc, alice, bob, big.NewInt(4)))
		assert.Equal(t, int64(6), balance(t, l, usdc, alice))
		assert.Equal(t, int64(4), balance(t, l, usdc, bob))

		err := l.Push(ctx, usdc, alice, bob, big.NewInt(7))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Equal(t, int64(6), balance(t, l, usdc, alice), "failed push should not move funds")

		require.NoError(t, l.Push(ctx, usdc, bob, bob, big.NewInt(4)), "self transfer is a no-op")
		assert.Equal(t, int64(4), balance(t, l, usdc, bob))
	})

	t.Run("Pull_SpendsAllowanceOfReceiver", func(t *testing.T) {
		l := NewLedger()
		require.NoError(t, l.Mint(ctx, usdc, alice, big.NewInt(100)))

		err := l.Pull(ctx, usdc, alice, bob, big.NewInt(10))
		assert.ErrorIs(t, err, ErrInsufficientAllowance)

		require.NoError(t, l.Authorize(ctx, usdc, alice, bob, big.NewInt(25)))
		require.NoError(t, l.Pull(ctx, usdc, alice, bob, big.NewInt(10)))

		allowed, err := l.Allowance(ctx, usdc, alice, bob)
		require.NoError(t, err)
		assert.Equal(t, int64(15), allowed.Int64())
		assert.Equal(t, int64(10), balance(t, l, usdc, bob))
	})

	t.Run("Authorize_Overwrites", func(t *testing.T) {
		l := NewLedger()
		require.NoError(t, l.Authorize(ctx, usdc, alice, bob, big.NewInt(25)))
		require.NoError(t, l.Authorize(ctx, usdc, alice, bob, big.NewInt(5)))

		allowed, err := l.Allowance(ctx, usdc, alice, bob)
		require.NoError(t, err)
		assert.Equal(t, int64(5), allowed.Int64(), "allowances are replaced, not added")
	})

	t.Run("TransferFrom_InsufficientBalanceKeepsAllowance", func(t *testing.T) {
		l := NewLedger()
		require.NoError(t, l.Mint(ctx, usdc, alice, big.NewInt(5)))
		require.NoError(t, l.Authorize(ctx, usdc, alice, bob, big.NewInt(50)))

		err := l.TransferFrom(ctx, usdc, bob, alice, bob, big.NewInt(10))
		assert.ErrorIs(t, err, ErrInsufficientBalance)

		allowed, err := l.Allowance(ctx, usdc, alice, bob)
		require.NoError(t, err)
		assert.Equal(t, int64(50), allowed.Int64())
	})

	t.Run("UnlimitedAllowance", func(t *testing.T) {
		l := NewLedger()
		require.NoError(t, l.Mint(ctx, usdc, alice, big.NewInt(100)))
		require.NoError(t, l.Authorize(ctx, usdc, alice, bob, MaxUint256))
		require.NoError(t, l.Pull(ctx, usdc, alice, bob, big.NewInt(60)))

		allowed, err := l.Allowance(ctx, usdc, alice, bob)
		require.NoError(t, err)
		assert.Equal(t, 0, allowed.Cmp(MaxUint256))
	})

	t.Run("AmountValidation", func(t *testing.T) {
		l := NewLedger()
		assert.ErrorIs(t, l.Mint(ctx, usdc, alice, big.NewInt(-1)), ErrInvalidAmount)

		tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
		assert.ErrorIs(t, l.Mint(ctx, usdc, alice, tooBig), ErrOverflow)

		require.NoError(t, l.Mint(ctx, usdc, alice, MaxUint256))
		assert.ErrorIs(t, l.Mint(ctx, usdc, bob, big.NewInt(1)), ErrOverflow)

		require.NoError(t, l.Push(ctx, usdc, bob, alice, nil), "nil amount is zero")
	})

	t.Run("CanceledContext", func(t *testing.T) {
		l := NewLedger()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.ErrorIs(t, l.Mint(cctx, usdc, alice, big.NewInt(1)), context.Canceled)
		_, err := l.BalanceOf(cctx, usdc, alice)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLedgerUnitOfWork(t *testing.T) {
	ctx := context.Background()

	t.Run("Do_CommitsOnSuccess", func(t *testing.T) {
		l := NewLedger()
		err := l.Do(ctx, func(ctx context.Context) error {
			return l.Mint(ctx, usdc, alice, big.NewInt(10))
		})
		require.NoError(t, err)
		assert.Equal(t, int64(10), balance(t, l, usdc, alice))
		assert.Empty(t, l.journal, "journal should be discarded after commit")
	})

	t.Run("Do_RevertsEveryStepOnError", func(t *testing.T) {
		l := NewLedger()
		require.NoError(t, l.Mint(ctx, usdc, alice, big.NewInt(100)))
		require.NoError(t, l.Authorize(ctx, usdc, alice, bob, big.NewInt(40)))

		boom := errors.New("boom")
		err := l.Do(ctx, func(ctx context.Context) error {
			require.NoError(t, l.Pull(ctx, usdc, alice, bob, big.NewInt(40)))
			require.NoError(t, l.Burn(ctx, usdc, bob, big.NewInt(15)))
			require.NoError(t, l.Authorize(ctx, usdc, bob, alice, big.NewInt(7)))
			require.NoError(t, l.Mint(ctx, usdc, bob, big.NewInt(3)))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		assert.Equal(t, int64(100), balance(t, l, usdc, alice))
		assert.Equal(t, int64(0), balance(t, l, usdc, bob))
		allowed, _ := l.Allowance(ctx, usdc, alice, bob)
		assert.Equal(t, int64(40), allowed.Int64())
		allowed, _ = l.Allowance(ctx, usdc, bob, alice)
		assert.Equal(t, int64(0), allowed.Int64())
		supply, _ := l.TotalSupply(ctx, usdc)
		assert.Equal(t, int64(100), supply.Int64())
	})

	t.Run("NestedSnapshot", func(t *testing.T) {
		l := NewLedger()
		outer := l.Snapshot()
		require.NoError(t, l.Mint(ctx, usdc, alice, big.NewInt(1)))
		inner := l.Snapshot()
		require.NoError(t, l.Mint(ctx, usdc, alice, big.NewInt(2)))

		l.RevertToSnapshot(inner)
		assert.Equal(t, int64(1), balance(t, l, usdc, alice))
		l.RevertToSnapshot(outer)
		assert.Equal(t, int64(0), balance(t, l, usdc, alice))
		l.Commit()
	})

	t.Run("Do_Serializes", func(t *testing.T) {
		l := NewLedger()
		const workers = 16

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := l.Do(ctx, func(ctx context.Context) error {
					// read-modify-write is only safe if units never interleave
					bal, err := l.BalanceOf(ctx, usdc, alice)
					if err != nil {
						return err
					}
					if err := l.Burn(ctx, usdc, alice, bal); err != nil {
						return err
					}
					return l.Mint(ctx, usdc, alice, bal.Add(bal, big.NewInt(1)))
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, int64(workers), balance(t, l, usdc, alice))
	})

	t.Run("Do_KeepsOutsideWrites", func(t *testing.T) {
		l := NewLedger()
		spender := common.HexToAddress("0x5")
		boom := errors.New("boom")

		entered := make(chan struct{})
		done := make(chan struct{})
		go func() {
			<-entered
			assert.NoError(t, l.Authorize(ctx, usdc, alice, spender, big.NewInt(77)))
			assert.NoError(t, l.Mint(ctx, usdc, bob, big.NewInt(5)))
			close(done)
		}()

		err := l.Do(ctx, func(ctx context.Context) error {
			require.NoError(t, l.Mint(ctx, usdc, alice, big.NewInt(1)))
			close(entered)
			assert.Never(t, func() bool {
				select {
				case <-done:
					return true
				default:
					return false
				}
			}, 50*time.Millisecond, 5*time.Millisecond, "writes outside the unit must wait for it")
			return boom
		})
		assert.ErrorIs(t, err, boom)
		<-done

		allowed, err := l.Allowance(ctx, usdc, alice, spender)
		require.NoError(t, err)
		assert.Equal(t, int64(77), allowed.Int64())
		assert.Equal(t, int64(5), balance(t, l, usdc, bob))
		assert.Equal(t, int64(0), balance(t, l, usdc, alice))
	})

	t.Run("Do_HidesInFlightBalances", func(t *testing.T) {
		l := NewLedger()
		require.NoError(t, l.Mint(ctx, usdc, alice, big.NewInt(10)))

		entered := make(chan struct{})
		seen := make(chan int64, 1)
		go func() {
			<-entered
			bal, err := l.BalanceOf(ctx, usdc, bob)
			assert.NoError(t, err)
			seen <- bal.Int64()
		}()

		err := l.Do(ctx, func(ctx context.Context) error {
			// bob holds alice's funds only for the duration of the unit
			require.NoError(t, l.Push(ctx, usdc, alice, bob, big.NewInt(10)))
			close(entered)
			assert.Never(t, func() bool { return len(seen) > 0 },
				50*time.Millisecond, 5*time.Millisecond, "reads outside the unit must wait for it")
			return l.Push(ctx, usdc, bob, alice, big.NewInt(10))
		})
		require.NoError(t, err)
		assert.Equal(t, int64(0), <-seen)
	})

	t.Run("Do_Nested", func(t *testing.T) {
		l := NewLedger()
		boom := errors.New("boom")
		err := l.Do(ctx, func(ctx context.Context) error {
			require.NoError(t, l.Mint(ctx, usdc, alice, big.NewInt(1)))
			inner := l.Do(ctx, func(ctx context.Context) error {
				require.NoError(t, l.Mint(ctx, usdc, alice, big.NewInt(2)))
				return boom
			})
			assert.ErrorIs(t, inner, boom)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), balance(t, l, usdc, alice), "only the inner unit is reverted")
	})

	t.Run("Do_CanceledContext", func(t *testing.T) {
		l := NewLedger()
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		called := false
		err := l.Do(cctx, func(context.Context) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, called)
	})
}
