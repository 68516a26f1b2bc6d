package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/defistate/defi-liquidity-adapter-go/protocols/poolregistry"
	"github.com/defistate/defi-liquidity-adapter-go/protocols/token"
	"github.com/defistate/defi-liquidity-adapter-go/protocols/vault"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultMinSharesOut is the minimum share output a deposit declares when
// the caller gives none. It is the smallest nonzero unit, so such a deposit
// is not protected against slippage.
var DefaultMinSharesOut = big.NewInt(1)

var ErrNegativeAmount = errors.New("adapter: amount must not be negative")

// DepositRequest asks to add AmountA of the first canonical asset and
// AmountB of the second. Nil amounts are zero.
type DepositRequest struct {
	Caller  common.Address
	AmountA *big.Int
	AmountB *big.Int
	// MinSharesOut bounds the shares minted to Caller. Nil or zero falls
	// back to DefaultMinSharesOut.
	MinSharesOut *big.Int
}

// DepositResult reports a settled deposit. All slices are in canonical order.
type DepositResult struct {
	AmountsIn [2]*big.Int // consumed by the pool
	SharesOut *big.Int
	Refunds   [2]*big.Int // returned to the caller
}

// RedemptionRequest asks to burn Shares for at least MinAmountOut of the
// adapter's exit asset.
type RedemptionRequest struct {
	Caller       common.Address
	Shares       *big.Int
	MinAmountOut *big.Int
}

// RedemptionResult reports a settled redemption.
type RedemptionResult struct {
	SharesIn  *big.Int
	Asset     common.Address
	AmountOut *big.Int
}

// Adapter deposits reserve assets into one two-asset pool and redeems its
// shares for a single reserve asset.
//
// An Adapter holds no balances between calls. Each call pulls what it needs
// from the caller, settles with the pool engine and returns whatever the
// engine left unconsumed, all inside one unit of work.
type Adapter struct {
	pair       Pair
	poolID     poolregistry.PoolID
	exitIndex  int
	address    common.Address
	vault      common.Address
	shareToken common.Address
	custody    token.Custody
	engine     vault.Engine
	unit       token.UnitOfWork
	logger     Logger
	metrics    *Metrics
}

// New creates an Adapter from cfg.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	shareToken := cfg.ShareToken
	if shareToken == (common.Address{}) {
		shareToken = cfg.PoolID.Address()
	}
	return &Adapter{
		pair:       cfg.Pair,
		poolID:     cfg.PoolID,
		exitIndex:  int(cfg.ExitTokenIndex),
		address:    cfg.Address,
		vault:      cfg.Vault,
		shareToken: shareToken,
		custody:    cfg.Custody,
		engine:     cfg.Engine,
		unit:       cfg.UnitOfWork,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}, nil
}

// Pair returns the reserve assets in canonical order.
func (a *Adapter) Pair() Pair { return a.pair }

// PoolID returns the pool the adapter joins and exits.
func (a *Adapter) PoolID() poolregistry.PoolID { return a.poolID }

// Address returns the account that holds custody during a call.
func (a *Adapter) Address() common.Address { return a.address }

// Vault returns the spender authorized to draw deposited assets.
func (a *Adapter) Vault() common.Address { return a.vault }

// ShareToken returns the token pulled from callers on redemption.
func (a *Adapter) ShareToken() common.Address { return a.shareToken }

// ExitAsset returns the reserve asset paid out on redemption.
func (a *Adapter) ExitAsset() common.Address { return a.pair.assets[a.exitIndex] }

// ExitTokenIndex returns the canonical position of ExitAsset.
func (a *Adapter) ExitTokenIndex() int { return a.exitIndex }

// JoinRequest builds the join interaction for a deposit of amountA and
// amountB, declaring exactly those amounts as the maximums in.
func (a *Adapter) JoinRequest(amountA, amountB, minSharesOut *big.Int) (vault.JoinRequest, error) {
	amounts := []*big.Int{orZero(amountA), orZero(amountB)}
	for _, amt := range amounts {
		if amt.Sign() < 0 {
			return vault.JoinRequest{}, fmt.Errorf("%w: %s", ErrNegativeAmount, amt)
		}
	}
	if minSharesOut == nil || minSharesOut.Sign() == 0 {
		minSharesOut = DefaultMinSharesOut
	} else if minSharesOut.Sign() < 0 {
		return vault.JoinRequest{}, fmt.Errorf("%w: min shares out %s", ErrNegativeAmount, minSharesOut)
	}
	userData, err := vault.EncodeJoin(vault.ExactTokensInJoin{
		AmountsIn:    amounts,
		MinSharesOut: minSharesOut,
	})
	if err != nil {
		return vault.JoinRequest{}, err
	}
	return vault.JoinRequest{
		Assets:              a.pair.slice(),
		MaxAmountsIn:        []*big.Int{new(big.Int).Set(amounts[0]), new(big.Int).Set(amounts[1])},
		UserData:            userData,
		FromInternalBalance: false,
	}, nil
}

// ExitRequest builds the exit interaction for a redemption of shares,
// requiring at least minAmountOut of the exit asset and nothing of the other.
func (a *Adapter) ExitRequest(shares, minAmountOut *big.Int) (vault.ExitRequest, error) {
	shares, minAmountOut = orZero(shares), orZero(minAmountOut)
	if shares.Sign() < 0 {
		return vault.ExitRequest{}, fmt.Errorf("%w: shares %s", ErrNegativeAmount, shares)
	}
	if minAmountOut.Sign() < 0 {
		return vault.ExitRequest{}, fmt.Errorf("%w: min amount out %s", ErrNegativeAmount, minAmountOut)
	}
	userData, err := vault.EncodeExit(vault.ExactSharesInForOneTokenExit{
		SharesIn:   shares,
		TokenIndex: uint64(a.exitIndex),
	})
	if err != nil {
		return vault.ExitRequest{}, err
	}
	minAmountsOut := []*big.Int{new(big.Int), new(big.Int)}
	minAmountsOut[a.exitIndex].Set(minAmountOut)
	return vault.ExitRequest{
		Assets:            a.pair.slice(),
		MinAmountsOut:     minAmountsOut,
		UserData:          userData,
		ToInternalBalance: false,
	}, nil
}

// Deposit pulls the requested amounts from the caller, joins the pool with
// the caller as share recipient and returns any unconsumed amounts to the
// caller. On error no balance of the caller or the adapter has changed.
func (a *Adapter) Deposit(ctx context.Context, req DepositRequest) (DepositResult, error) {
	start := time.Now()

	var res DepositResult
	err := a.unit.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = a.deposit(ctx, req)
		return err
	})
	a.metrics.observeCall(a.poolID.String(), opDeposit, start, err)
	if err != nil {
		a.logger.Warn("Deposit aborted",
			"pool", a.poolID,
			"caller", req.Caller,
			"amount_a", req.AmountA,
			"amount_b", req.AmountB,
			"error", err,
		)
		return DepositResult{}, err
	}

	for i, refund := range res.Refunds {
		if refund.Sign() > 0 {
			a.metrics.observeRefund(a.poolID.String(), a.pair.assets[i])
		}
	}
	a.logger.Info("Deposit settled",
		"pool", a.poolID,
		"caller", req.Caller,
		"amounts_in", res.AmountsIn,
		"shares_out", res.SharesOut,
		"refunds", res.Refunds,
	)
	return res, nil
}

func (a *Adapter) deposit(ctx context.Context, req DepositRequest) (DepositResult, error) {
	join, err := a.JoinRequest(req.AmountA, req.AmountB, req.MinSharesOut)
	if err != nil {
		return DepositResult{}, err
	}

	for i, asset := range a.pair.assets {
		amt := join.MaxAmountsIn[i]
		if amt.Sign() == 0 {
			continue
		}
		if err := a.custody.Pull(ctx, asset, req.Caller, a.address, amt); err != nil {
			return DepositResult{}, fmt.Errorf("deposit: pull %s from %s: %w", asset.Hex(), req.Caller.Hex(), err)
		}
		if err := a.custody.Authorize(ctx, asset, a.address, a.vault, amt); err != nil {
			return DepositResult{}, fmt.Errorf("deposit: authorize %s: %w", asset.Hex(), err)
		}
	}

	joined, err := a.engine.Join(ctx, a.poolID, a.address, req.Caller, join)
	if err != nil {
		return DepositResult{}, fmt.Errorf("deposit: join %s: %w", a.poolID, err)
	}

	// The engine may draw less than it was authorized for. No authorization
	// outlives the call.
	for i, asset := range a.pair.assets {
		if join.MaxAmountsIn[i].Sign() == 0 {
			continue
		}
		if err := a.custody.Authorize(ctx, asset, a.address, a.vault, new(big.Int)); err != nil {
			return DepositResult{}, fmt.Errorf("deposit: reset authorization of %s: %w", asset.Hex(), err)
		}
	}

	res := DepositResult{SharesOut: orZero(joined.SharesOut)}
	for i := range res.AmountsIn {
		res.AmountsIn[i] = new(big.Int)
		if i < len(joined.AmountsIn) && joined.AmountsIn[i] != nil {
			res.AmountsIn[i].Set(joined.AmountsIn[i])
		}
	}

	// Whatever the join left behind belongs to the caller. This must happen
	// before the unit of work ends.
	for i, asset := range a.pair.assets {
		bal, err := a.custody.BalanceOf(ctx, asset, a.address)
		if err != nil {
			return DepositResult{}, fmt.Errorf("deposit: balance of %s: %w", asset.Hex(), err)
		}
		res.Refunds[i] = bal
		if bal.Sign() == 0 {
			continue
		}
		if err := a.custody.Push(ctx, asset, a.address, req.Caller, bal); err != nil {
			return DepositResult{}, fmt.Errorf("deposit: refund %s to %s: %w", asset.Hex(), req.Caller.Hex(), err)
		}
	}
	return res, nil
}

// Redeem pulls exactly req.Shares from the caller and exits the pool for
// the exit asset, paid by the engine directly to the caller. The engine
// fails the call if it can not pay at least req.MinAmountOut.
func (a *Adapter) Redeem(ctx context.Context, req RedemptionRequest) (RedemptionResult, error) {
	start := time.Now()

	var res RedemptionResult
	err := a.unit.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = a.redeem(ctx, req)
		return err
	})
	a.metrics.observeCall(a.poolID.String(), opRedeem, start, err)
	if err != nil {
		a.logger.Warn("Redemption aborted",
			"pool", a.poolID,
			"caller", req.Caller,
			"shares", req.Shares,
			"min_amount_out", req.MinAmountOut,
			"error", err,
		)
		return RedemptionResult{}, err
	}

	a.logger.Info("Redemption settled",
		"pool", a.poolID,
		"caller", req.Caller,
		"shares_in", res.SharesIn,
		"asset", res.Asset,
		"amount_out", res.AmountOut,
	)
	return res, nil
}

func (a *Adapter) redeem(ctx context.Context, req RedemptionRequest) (RedemptionResult, error) {
	exit, err := a.ExitRequest(req.Shares, req.MinAmountOut)
	if err != nil {
		return RedemptionResult{}, err
	}
	shares := orZero(req.Shares)

	if err := a.custody.Pull(ctx, a.shareToken, req.Caller, a.address, shares); err != nil {
		return RedemptionResult{}, fmt.Errorf("redeem: pull shares from %s: %w", req.Caller.Hex(), err)
	}

	exited, err := a.engine.Exit(ctx, a.poolID, a.address, req.Caller, exit)
	if err != nil {
		return RedemptionResult{}, fmt.Errorf("redeem: exit %s: %w", a.poolID, err)
	}

	res := RedemptionResult{
		SharesIn:  orZero(exited.SharesIn),
		Asset:     a.ExitAsset(),
		AmountOut: new(big.Int),
	}
	if a.exitIndex < len(exited.AmountsOut) && exited.AmountsOut[a.exitIndex] != nil {
		res.AmountOut.Set(exited.AmountsOut[a.exitIndex])
	}
	return res, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
