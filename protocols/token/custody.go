package token

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
	ErrInvalidAmount         = errors.New("token: amount must not be negative")
	ErrOverflow              = errors.New("token: amount overflows uint256")
)

// Custody is the minimal set of token operations the adapter performs.
type Custody interface {
	// Pull moves amount of asset from `from` to `to`, spending the allowance
	// `from` granted to `to`.
	Pull(ctx context.Context, asset, from, to common.Address, amount *big.Int) error

	// Authorize sets the allowance owner grants spender to exactly amount,
	// replacing any previous allowance.
	Authorize(ctx context.Context, asset, owner, spender common.Address, amount *big.Int) error

	BalanceOf(ctx context.Context, asset, holder common.Address) (*big.Int, error)

	// Push moves amount of asset held by `from` to `to`.
	Push(ctx context.Context, asset, from, to common.Address, amount *big.Int) error
}

// UnitOfWork runs fn so that every custody change it makes is applied
// completely or not at all. Implementations serialize units that touch the
// same custody state.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}
