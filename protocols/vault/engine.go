package vault

import (
	"context"
	"errors"
	"math/big"

	"github.com/defistate/defi-liquidity-adapter-go/protocols/poolregistry"
	"github.com/ethereum/go-ethereum/common"
)

// ErrPoolInteractionRejected is wrapped by every error a pool engine returns
// when it refuses a join or exit: a violated bound, a malformed payload or an
// interaction the pool does not support.
var ErrPoolInteractionRejected = errors.New("vault: pool interaction rejected")

// JoinRequest is the message a sender submits to add liquidity.
type JoinRequest struct {
	Assets       []common.Address
	MaxAmountsIn []*big.Int
	UserData     []byte
	// FromInternalBalance is always false for the adapter: assets are held
	// directly, not pre-deposited with the vault.
	FromInternalBalance bool
}

// ExitRequest is the message a sender submits to remove liquidity.
type ExitRequest struct {
	Assets        []common.Address
	MinAmountsOut []*big.Int
	UserData      []byte
	// ToInternalBalance is always false for the adapter: payouts go straight
	// to the recipient.
	ToInternalBalance bool
}

// JoinResult reports what a join consumed from the sender and minted to the
// recipient.
type JoinResult struct {
	AmountsIn []*big.Int
	SharesOut *big.Int
}

// ExitResult reports what an exit burned from the sender and paid to the
// recipient.
type ExitResult struct {
	SharesIn   *big.Int
	AmountsOut []*big.Int
}

// Engine is the pool side of a join or exit. Implementations must apply an
// interaction completely or fail without effect.
type Engine interface {
	Join(ctx context.Context, poolID poolregistry.PoolID, sender, recipient common.Address, req JoinRequest) (JoinResult, error)
	Exit(ctx context.Context, poolID poolregistry.PoolID, sender, recipient common.Address, req ExitRequest) (ExitResult, error)
}
