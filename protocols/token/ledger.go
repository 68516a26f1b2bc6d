package token

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MaxUint256 is the allowance value treated as unlimited; spending from it
// does not decrease it.
var MaxUint256 = new(uint256.Int).SetAllOne().ToBig()

type balanceKey struct {
	asset  common.Address
	holder common.Address
}

type allowanceKey struct {
	asset   common.Address
	owner   common.Address
	spender common.Address
}

// journalEntry undoes a single state change.
type journalEntry interface {
	revert(l *Ledger)
}

type balanceChange struct {
	key  balanceKey
	prev *uint256.Int
}

func (c balanceChange) revert(l *Ledger) { restore(l.balances, c.key, c.prev) }

type allowanceChange struct {
	key  allowanceKey
	prev *uint256.Int
}

func (c allowanceChange) revert(l *Ledger) { restore(l.allowances, c.key, c.prev) }

type supplyChange struct {
	asset common.Address
	prev  *uint256.Int
}

func (c supplyChange) revert(l *Ledger) { restore(l.supplies, c.asset, c.prev) }

func restore[K comparable](m map[K]*uint256.Int, k K, prev *uint256.Int) {
	if prev == nil {
		delete(m, k)
		return
	}
	m[k] = prev
}

// Ledger is an in-memory, ERC-20 style token ledger covering any number of
// assets. It implements Custody and UnitOfWork.
//
// Changes are journaled while a snapshot is open so that a failed unit of work
// can be reverted step by step, the way an EVM state database reverts a
// failed call frame.
type Ledger struct {
	// txMu is held for the whole of a unit of work, or for a single call made
	// outside one.
	txMu sync.Mutex

	mu         sync.RWMutex
	balances   map[balanceKey]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	supplies   map[common.Address]*uint256.Int
	journal    []journalEntry
	recording  bool
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[balanceKey]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
		supplies:   make(map[common.Address]*uint256.Int),
	}
}

// unitKey marks the context handed to the function of a unit of work.
type unitKey struct{}

func (l *Ledger) inUnit(ctx context.Context) bool {
	owner, _ := ctx.Value(unitKey{}).(*Ledger)
	return owner == l
}

// enter gives a call made outside a unit of work exclusive access to the
// ledger for its duration. Calls made with the context of a running unit
// already have it.
func (l *Ledger) enter(ctx context.Context) func() {
	if l.inUnit(ctx) {
		return func() {}
	}
	l.txMu.Lock()
	return l.txMu.Unlock
}

// Do runs fn as one unit of work. Units are serialized with each other and
// with every ledger call made outside a unit, so no other caller observes
// or changes state while fn runs. If fn returns an error every change made
// inside it is reverted and the error is returned unchanged.
//
// fn must pass the context it receives to the ledger. Do called with that
// context runs its function as a nested unit that reverts only its own
// changes.
func (l *Ledger) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.inUnit(ctx) {
		id := l.Snapshot()
		if err := fn(ctx); err != nil {
			l.RevertToSnapshot(id)
			return err
		}
		return nil
	}

	l.txMu.Lock()
	defer l.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	id := l.Snapshot()
	if err := fn(context.WithValue(ctx, unitKey{}, l)); err != nil {
		l.RevertToSnapshot(id)
		l.Commit()
		return err
	}
	l.Commit()
	return nil
}

// Snapshot starts journaling and returns an identifier for the current state.
// Outside Do the caller must ensure nothing else writes to the ledger until
// the journal is committed.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recording = true
	return len(l.journal)
}

// RevertToSnapshot undoes every change made since the snapshot was taken.
func (l *Ledger) RevertToSnapshot(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 0 || id > len(l.journal) {
		panic(fmt.Sprintf("token: snapshot %d cannot be reverted (journal length %d)", id, len(l.journal)))
	}
	for i := len(l.journal) - 1; i >= id; i-- {
		l.journal[i].revert(l)
	}
	l.journal = l.journal[:id]
}

// Commit discards the journal and stops journaling.
func (l *Ledger) Commit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.journal = nil
	l.recording = false
}

// BalanceOf returns the balance of holder in asset.
func (l *Ledger) BalanceOf(ctx context.Context, asset, holder common.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer l.enter(ctx)()
	l.mu.RLock()
	defer l.mu.RUnlock()
	return toBig(l.balances[balanceKey{asset, holder}]), nil
}

// Allowance returns the amount spender may still pull from owner.
func (l *Ledger) Allowance(ctx context.Context, asset, owner, spender common.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer l.enter(ctx)()
	l.mu.RLock()
	defer l.mu.RUnlock()
	return toBig(l.allowances[allowanceKey{asset, owner, spender}]), nil
}

// TotalSupply returns the amount of asset minted and not yet burned.
func (l *Ledger) TotalSupply(ctx context.Context, asset common.Address) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer l.enter(ctx)()
	l.mu.RLock()
	defer l.mu.RUnlock()
	return toBig(l.supplies[asset]), nil
}

// Authorize sets the allowance owner grants spender, replacing any prior value.
func (l *Ledger) Authorize(ctx context.Context, asset, owner, spender common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := toU256(amount)
	if err != nil {
		return err
	}
	defer l.enter(ctx)()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setAllowance(allowanceKey{asset, owner, spender}, v)
	return nil
}

// Push transfers amount of asset from `from` to `to`.
func (l *Ledger) Push(ctx context.Context, asset, from, to common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := toU256(amount)
	if err != nil {
		return err
	}
	defer l.enter(ctx)()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transfer(asset, from, to, v)
}

// Pull transfers amount of asset from `from` to `to`, with `to` acting as the
// spender of from's allowance.
func (l *Ledger) Pull(ctx context.Context, asset, from, to common.Address, amount *big.Int) error {
	return l.TransferFrom(ctx, asset, to, from, to, amount)
}

// TransferFrom transfers amount of asset from `from` to `to` on behalf of
// spender. A holder spending its own balance needs no allowance.
func (l *Ledger) TransferFrom(ctx context.Context, asset, spender, from, to common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := toU256(amount)
	if err != nil {
		return err
	}
	defer l.enter(ctx)()
	l.mu.Lock()
	defer l.mu.Unlock()

	if spender != from {
		key := allowanceKey{asset, from, spender}
		allowed := l.allowances[key]
		if allowed == nil {
			allowed = new(uint256.Int)
		}
		if allowed.Lt(v) {
			return fmt.Errorf("%w: %s allowed %s to pull %s of %s, requested %s",
				ErrInsufficientAllowance, from.Hex(), spender.Hex(), allowed.Dec(), asset.Hex(), v.Dec())
		}
		// The allowance is spent only once the transfer itself succeeded.
		if err := l.transfer(asset, from, to, v); err != nil {
			return err
		}
		if !allowed.Eq(maxU256) {
			l.setAllowance(key, new(uint256.Int).Sub(allowed, v))
		}
		return nil
	}
	return l.transfer(asset, from, to, v)
}

// Mint creates amount of asset and credits it to `to`.
func (l *Ledger) Mint(ctx context.Context, asset, to common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := toU256(amount)
	if err != nil {
		return err
	}
	defer l.enter(ctx)()
	l.mu.Lock()
	defer l.mu.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(orZero(l.supplies[asset]), v)
	if overflow {
		return fmt.Errorf("%w: minting %s of %s", ErrOverflow, v.Dec(), asset.Hex())
	}
	key := balanceKey{asset, to}
	// Balance can not overflow when the supply does not.
	l.setSupply(asset, supply)
	l.setBalance(key, new(uint256.Int).Add(orZero(l.balances[key]), v))
	return nil
}

// Burn destroys amount of asset held by `from`.
func (l *Ledger) Burn(ctx context.Context, asset, from common.Address, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := toU256(amount)
	if err != nil {
		return err
	}
	defer l.enter(ctx)()
	l.mu.Lock()
	defer l.mu.Unlock()

	key := balanceKey{asset, from}
	bal := orZero(l.balances[key])
	if bal.Lt(v) {
		return l.insufficientBalance(asset, from, v)
	}
	l.setBalance(key, new(uint256.Int).Sub(bal, v))
	l.setSupply(asset, new(uint256.Int).Sub(orZero(l.supplies[asset]), v))
	return nil
}

// transfer must be called with mu held.
func (l *Ledger) transfer(asset, from, to common.Address, v *uint256.Int) error {
	fromKey := balanceKey{asset, from}
	fromBal := orZero(l.balances[fromKey])
	if fromBal.Lt(v) {
		return l.insufficientBalance(asset, from, v)
	}
	if from == to || v.IsZero() {
		return nil
	}
	toKey := balanceKey{asset, to}
	toBal, overflow := new(uint256.Int).AddOverflow(orZero(l.balances[toKey]), v)
	if overflow {
		return fmt.Errorf("%w: crediting %s of %s to %s", ErrOverflow, v.Dec(), asset.Hex(), to.Hex())
	}
	l.setBalance(fromKey, new(uint256.Int).Sub(fromBal, v))
	l.setBalance(toKey, toBal)
	return nil
}

func (l *Ledger) insufficientBalance(asset, holder common.Address, want *uint256.Int) error {
	return fmt.Errorf("%w: %s holds %s of %s, requested %s",
		ErrInsufficientBalance, holder.Hex(), orZero(l.balances[balanceKey{asset, holder}]).Dec(), asset.Hex(), want.Dec())
}

func (l *Ledger) setBalance(k balanceKey, v *uint256.Int) {
	if l.recording {
		l.journal = append(l.journal, balanceChange{key: k, prev: l.balances[k]})
	}
	l.balances[k] = v
}

func (l *Ledger) setAllowance(k allowanceKey, v *uint256.Int) {
	if l.recording {
		l.journal = append(l.journal, allowanceChange{key: k, prev: l.allowances[k]})
	}
	l.allowances[k] = v
}

func (l *Ledger) setSupply(asset common.Address, v *uint256.Int) {
	if l.recording {
		l.journal = append(l.journal, supplyChange{asset: asset, prev: l.supplies[asset]})
	}
	l.supplies[asset] = v
}

var maxU256 = new(uint256.Int).SetAllOne()

func toU256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return new(uint256.Int), nil
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrOverflow, amount)
	}
	return v, nil
}

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
