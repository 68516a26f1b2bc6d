package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/defistate/defi-liquidity-adapter-go/protocols/poolregistry"
	"github.com/defistate/defi-liquidity-adapter-go/protocols/token"
	"github.com/ethereum/go-ethereum/common"
)

// Ledger is the token state a Simulator settles against.
type Ledger interface {
	token.Custody
	TransferFrom(ctx context.Context, asset, spender, from, to common.Address, amount *big.Int) error
	Mint(ctx context.Context, asset, to common.Address, amount *big.Int) error
	Burn(ctx context.Context, asset, from common.Address, amount *big.Int) error
	TotalSupply(ctx context.Context, asset common.Address) (*big.Int, error)
}

// Simulator is an in-memory Engine for two-asset constant-product pools.
//
// Every balance it touches lives in the Ledger: a pool's reserves are the
// balances held by the pool address, and its shares are the token at the
// pool address. Reverting the ledger therefore reverts the pool as well, and
// callers run interactions inside the ledger's unit of work so that a failure
// part way through a settlement leaves nothing behind.
//
// Supported interactions:
//   - INIT on an empty pool
//   - EXACT_TOKENS_IN_FOR_BPT_OUT, one- or two-sided
//   - EXACT_BPT_IN_FOR_ONE_TOKEN_OUT
//   - EXACT_BPT_IN_FOR_TOKENS_OUT
type Simulator struct {
	vault  common.Address
	ledger Ledger

	mu    sync.RWMutex
	pools map[poolregistry.PoolID][2]common.Address
}

// NewSimulator creates a Simulator that draws deposits through allowances
// granted to vault.
func NewSimulator(vault common.Address, ledger Ledger) *Simulator {
	return &Simulator{
		vault:  vault,
		ledger: ledger,
		pools:  make(map[poolregistry.PoolID][2]common.Address),
	}
}

// Address returns the spender that senders must authorize before a join.
func (s *Simulator) Address() common.Address {
	return s.vault
}

// Register adds a pool. Assets must be distinct and in ascending order.
func (s *Simulator) Register(id poolregistry.PoolID, assets [2]common.Address) error {
	if bytes.Compare(assets[0][:], assets[1][:]) >= 0 {
		return errors.New("vault: pool assets must be distinct and sorted")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[id]; ok {
		return fmt.Errorf("vault: pool %s already registered", id)
	}
	s.pools[id] = assets
	return nil
}

// Reserves returns the pool's reserve balances in canonical order and its
// share supply.
func (s *Simulator) Reserves(ctx context.Context, id poolregistry.PoolID) ([2]*big.Int, *big.Int, error) {
	assets, err := s.lookup(id)
	if err != nil {
		return [2]*big.Int{}, nil, err
	}
	return s.state(ctx, id, assets)
}

// Join implements Engine.
func (s *Simulator) Join(ctx context.Context, poolID poolregistry.PoolID, sender, recipient common.Address, req JoinRequest) (JoinResult, error) {
	assets, err := s.checkAssets(poolID, req.Assets)
	if err != nil {
		return JoinResult{}, err
	}
	if req.FromInternalBalance {
		return JoinResult{}, rejectf("internal balances are not supported")
	}
	if len(req.MaxAmountsIn) != 2 {
		return JoinResult{}, rejectf("want 2 max amounts in, got %d", len(req.MaxAmountsIn))
	}
	data, err := DecodeJoin(req.UserData)
	if err != nil {
		return JoinResult{}, err
	}
	reserves, supply, err := s.state(ctx, poolID, assets)
	if err != nil {
		return JoinResult{}, err
	}

	var (
		amountsIn []*big.Int
		sharesOut *big.Int
	)
	switch d := data.(type) {
	case InitJoin:
		if supply.Sign() != 0 {
			return JoinResult{}, rejectf("pool is already initialized")
		}
		if len(d.AmountsIn) != 2 || d.AmountsIn[0].Sign() == 0 || d.AmountsIn[1].Sign() == 0 {
			return JoinResult{}, rejectf("init needs both amounts")
		}
		amountsIn = d.AmountsIn
		sharesOut = new(big.Int).Sqrt(new(big.Int).Mul(d.AmountsIn[0], d.AmountsIn[1]))
	case ExactTokensInJoin:
		if supply.Sign() == 0 {
			return JoinResult{}, rejectf("pool is not initialized")
		}
		if len(d.AmountsIn) != 2 {
			return JoinResult{}, rejectf("want 2 amounts in, got %d", len(d.AmountsIn))
		}
		amountsIn, sharesOut, err = exactTokensIn(d.AmountsIn, reserves, supply)
		if err != nil {
			return JoinResult{}, err
		}
		if sharesOut.Cmp(d.MinSharesOut) < 0 {
			return JoinResult{}, rejectf("shares out %s below minimum %s", sharesOut, d.MinSharesOut)
		}
	default:
		return JoinResult{}, rejectf("%s joins are not supported", data.Kind())
	}

	for i, amt := range amountsIn {
		if amt.Cmp(orZero(req.MaxAmountsIn[i])) > 0 {
			return JoinResult{}, rejectf("amount in %s of %s exceeds maximum %s", amt, assets[i].Hex(), req.MaxAmountsIn[i])
		}
	}
	pool := poolID.Address()
	for i, amt := range amountsIn {
		if amt.Sign() == 0 {
			continue
		}
		if err := s.ledger.TransferFrom(ctx, assets[i], s.vault, sender, pool, amt); err != nil {
			return JoinResult{}, err
		}
	}
	if err := s.ledger.Mint(ctx, pool, recipient, sharesOut); err != nil {
		return JoinResult{}, err
	}
	return JoinResult{AmountsIn: amountsIn, SharesOut: sharesOut}, nil
}

// Exit implements Engine.
func (s *Simulator) Exit(ctx context.Context, poolID poolregistry.PoolID, sender, recipient common.Address, req ExitRequest) (ExitResult, error) {
	assets, err := s.checkAssets(poolID, req.Assets)
	if err != nil {
		return ExitResult{}, err
	}
	if req.ToInternalBalance {
		return ExitResult{}, rejectf("internal balances are not supported")
	}
	if len(req.MinAmountsOut) != 2 {
		return ExitResult{}, rejectf("want 2 min amounts out, got %d", len(req.MinAmountsOut))
	}
	data, err := DecodeExit(req.UserData)
	if err != nil {
		return ExitResult{}, err
	}
	reserves, supply, err := s.state(ctx, poolID, assets)
	if err != nil {
		return ExitResult{}, err
	}

	var sharesIn *big.Int
	amountsOut := []*big.Int{new(big.Int), new(big.Int)}
	switch d := data.(type) {
	case ExactSharesInForOneTokenExit:
		if d.TokenIndex > 1 {
			return ExitResult{}, rejectf("token index %d out of range", d.TokenIndex)
		}
		if d.SharesIn.Cmp(supply) > 0 {
			return ExitResult{}, rejectf("shares in %s exceed supply %s", d.SharesIn, supply)
		}
		sharesIn = d.SharesIn
		amountsOut[d.TokenIndex] = singleTokenOut(reserves[d.TokenIndex], supply, d.SharesIn)
	case ExactSharesInForTokensExit:
		if d.SharesIn.Cmp(supply) > 0 {
			return ExitResult{}, rejectf("shares in %s exceed supply %s", d.SharesIn, supply)
		}
		sharesIn = d.SharesIn
		for i := range amountsOut {
			amountsOut[i] = proportionalOut(reserves[i], supply, d.SharesIn)
		}
	default:
		return ExitResult{}, rejectf("%s exits are not supported", data.Kind())
	}

	for i, amt := range amountsOut {
		if floor := req.MinAmountsOut[i]; floor != nil && amt.Cmp(floor) < 0 {
			return ExitResult{}, rejectf("amount out %s of %s below minimum %s", amt, assets[i].Hex(), floor)
		}
	}
	pool := poolID.Address()
	if err := s.ledger.Burn(ctx, pool, sender, sharesIn); err != nil {
		return ExitResult{}, err
	}
	for i, amt := range amountsOut {
		if amt.Sign() == 0 {
			continue
		}
		if err := s.ledger.Push(ctx, assets[i], pool, recipient, amt); err != nil {
			return ExitResult{}, err
		}
	}
	return ExitResult{SharesIn: sharesIn, AmountsOut: amountsOut}, nil
}

func (s *Simulator) lookup(id poolregistry.PoolID) ([2]common.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assets, ok := s.pools[id]
	if !ok {
		return [2]common.Address{}, rejectf("unknown pool %s", id)
	}
	return assets, nil
}

func (s *Simulator) checkAssets(id poolregistry.PoolID, got []common.Address) ([2]common.Address, error) {
	assets, err := s.lookup(id)
	if err != nil {
		return assets, err
	}
	if len(got) != 2 || got[0] != assets[0] || got[1] != assets[1] {
		return assets, rejectf("assets %v do not match pool tokens %v", got, assets)
	}
	return assets, nil
}

func (s *Simulator) state(ctx context.Context, id poolregistry.PoolID, assets [2]common.Address) ([2]*big.Int, *big.Int, error) {
	var reserves [2]*big.Int
	pool := id.Address()
	for i, a := range assets {
		bal, err := s.ledger.BalanceOf(ctx, a, pool)
		if err != nil {
			return reserves, nil, err
		}
		reserves[i] = bal
	}
	supply, err := s.ledger.TotalSupply(ctx, pool)
	if err != nil {
		return reserves, nil, err
	}
	return reserves, supply, nil
}

// exactTokensIn prices a deposit into an initialized pool.
//
// Two-sided deposits mint at the lower of the two ratios and consume only
// the proportional part of the other asset, rounded up. A single-sided
// deposit of a into reserve x mints sqrt(S²·(x+a)/x) − S.
func exactTokensIn(amounts []*big.Int, reserves [2]*big.Int, supply *big.Int) ([]*big.Int, *big.Int, error) {
	a0, a1 := orZero(amounts[0]), orZero(amounts[1])
	switch {
	case a0.Sign() == 0 && a1.Sign() == 0:
		return nil, nil, rejectf("join with no amounts in")
	case a0.Sign() > 0 && a1.Sign() > 0:
		if reserves[0].Sign() == 0 || reserves[1].Sign() == 0 {
			return nil, nil, rejectf("pool holds no reserves")
		}
		shares0 := mulDiv(a0, supply, reserves[0])
		shares1 := mulDiv(a1, supply, reserves[1])
		shares := shares0
		if shares1.Cmp(shares0) < 0 {
			shares = shares1
		}
		return []*big.Int{
			mulDivUp(shares, reserves[0], supply),
			mulDivUp(shares, reserves[1], supply),
		}, shares, nil
	default:
		i, a := 0, a0
		if a1.Sign() > 0 {
			i, a = 1, a1
		}
		x := reserves[i]
		if x.Sign() == 0 {
			return nil, nil, rejectf("pool holds no reserve of token %d", i)
		}
		sq := new(big.Int).Mul(supply, supply)
		sq.Mul(sq, new(big.Int).Add(x, a))
		sq.Quo(sq, x)
		shares := new(big.Int).Sqrt(sq)
		shares.Sub(shares, supply)
		out := []*big.Int{new(big.Int), new(big.Int)}
		out[i] = new(big.Int).Set(a)
		return out, shares, nil
	}
}

// singleTokenOut is x − ceil(x·(S−s)²/S²): burning s shares and selling the
// other side of the withdrawal into the remaining pool.
func singleTokenOut(x, supply, shares *big.Int) *big.Int {
	if supply.Sign() == 0 {
		return new(big.Int)
	}
	rest := new(big.Int).Sub(supply, shares)
	num := new(big.Int).Mul(x, rest)
	num.Mul(num, rest)
	den := new(big.Int).Mul(supply, supply)
	return new(big.Int).Sub(x, ceilDiv(num, den))
}

func proportionalOut(x, supply, shares *big.Int) *big.Int {
	if supply.Sign() == 0 {
		return new(big.Int)
	}
	return mulDiv(shares, x, supply)
}

func mulDiv(a, b, den *big.Int) *big.Int {
	return new(big.Int).Quo(new(big.Int).Mul(a, b), den)
}

func mulDivUp(a, b, den *big.Int) *big.Int {
	return ceilDiv(new(big.Int).Mul(a, b), den)
}

func ceilDiv(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func rejectf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPoolInteractionRejected, fmt.Sprintf(format, args...))
}
