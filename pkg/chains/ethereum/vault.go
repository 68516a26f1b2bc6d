package ethereum

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/defistate/defi-liquidity-adapter-go/adapter"
	"github.com/defistate/defi-liquidity-adapter-go/protocols/poolregistry"
	"github.com/defistate/defi-liquidity-adapter-go/protocols/vault"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ChainID is the Ethereum mainnet chain id.
const ChainID = 1

// MainnetVault is the Balancer V2 vault on Ethereum mainnet.
var MainnetVault = common.HexToAddress("0xBA12222222228d8Ba445958a75a0704d566BF2C8")

const vaultABIJSON = `[
  {"type":"function","name":"joinPool","stateMutability":"payable","outputs":[],"inputs":[
    {"name":"poolId","type":"bytes32"},
    {"name":"sender","type":"address"},
    {"name":"recipient","type":"address"},
    {"name":"request","type":"tuple","components":[
      {"name":"assets","type":"address[]"},
      {"name":"maxAmountsIn","type":"uint256[]"},
      {"name":"userData","type":"bytes"},
      {"name":"fromInternalBalance","type":"bool"}]}]},
  {"type":"function","name":"exitPool","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"name":"poolId","type":"bytes32"},
    {"name":"sender","type":"address"},
    {"name":"recipient","type":"address"},
    {"name":"request","type":"tuple","components":[
      {"name":"assets","type":"address[]"},
      {"name":"minAmountsOut","type":"uint256[]"},
      {"name":"userData","type":"bytes"},
      {"name":"toInternalBalance","type":"bool"}]}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable",
    "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
    "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"transferFrom","stateMutability":"nonpayable",
    "inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
    "outputs":[{"name":"","type":"bool"}]}
]`

// VaultABI covers the vault entry points and the ERC-20 calls an adapter
// makes around them.
var VaultABI = mustParseABI(vaultABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("ethereum: invalid vault abi: %v", err))
	}
	return parsed
}

// Call is one contract call made from the adapter account.
type Call struct {
	To   common.Address `json:"to"`
	Data hexutil.Bytes  `json:"data"`
}

// JoinPool encodes vault.joinPool calldata.
func JoinPool(poolID poolregistry.PoolID, sender, recipient common.Address, req vault.JoinRequest) ([]byte, error) {
	req.MaxAmountsIn = nonNil(req.MaxAmountsIn)
	if req.UserData == nil {
		req.UserData = []byte{}
	}
	return VaultABI.Pack("joinPool", [32]byte(poolID), sender, recipient, req)
}

// ExitPool encodes vault.exitPool calldata.
func ExitPool(poolID poolregistry.PoolID, sender, recipient common.Address, req vault.ExitRequest) ([]byte, error) {
	req.MinAmountsOut = nonNil(req.MinAmountsOut)
	if req.UserData == nil {
		req.UserData = []byte{}
	}
	return VaultABI.Pack("exitPool", [32]byte(poolID), sender, recipient, req)
}

// Approve encodes ERC-20 approve calldata.
func Approve(spender common.Address, amount *big.Int) ([]byte, error) {
	return VaultABI.Pack("approve", spender, orZero(amount))
}

// TransferFrom encodes ERC-20 transferFrom calldata.
func TransferFrom(from, to common.Address, amount *big.Int) ([]byte, error) {
	return VaultABI.Pack("transferFrom", from, to, orZero(amount))
}

// DepositCalls returns, in order, the calls the adapter account makes for a
// deposit: one pull and one scoped approval per nonzero amount, then the join
// with the caller as share recipient. Refunds depend on the join outcome and
// are not part of the sequence.
func DepositCalls(a *adapter.Adapter, caller common.Address, amountA, amountB, minSharesOut *big.Int) ([]Call, error) {
	join, err := a.JoinRequest(amountA, amountB, minSharesOut)
	if err != nil {
		return nil, err
	}
	var calls []Call
	for i, asset := range a.Pair().Assets() {
		amt := join.MaxAmountsIn[i]
		if amt.Sign() == 0 {
			continue
		}
		pull, err := TransferFrom(caller, a.Address(), amt)
		if err != nil {
			return nil, fmt.Errorf("encode pull of %s: %w", asset.Hex(), err)
		}
		approve, err := Approve(a.Vault(), amt)
		if err != nil {
			return nil, fmt.Errorf("encode approval of %s: %w", asset.Hex(), err)
		}
		calls = append(calls, Call{To: asset, Data: pull}, Call{To: asset, Data: approve})
	}
	data, err := JoinPool(a.PoolID(), a.Address(), caller, join)
	if err != nil {
		return nil, fmt.Errorf("encode join: %w", err)
	}
	return append(calls, Call{To: a.Vault(), Data: data}), nil
}

// RedeemCalls returns the share pull followed by the single-asset exit.
func RedeemCalls(a *adapter.Adapter, caller common.Address, shares, minAmountOut *big.Int) ([]Call, error) {
	exit, err := a.ExitRequest(shares, minAmountOut)
	if err != nil {
		return nil, err
	}
	pull, err := TransferFrom(caller, a.Address(), shares)
	if err != nil {
		return nil, fmt.Errorf("encode share pull: %w", err)
	}
	data, err := ExitPool(a.PoolID(), a.Address(), caller, exit)
	if err != nil {
		return nil, fmt.Errorf("encode exit: %w", err)
	}
	return []Call{
		{To: a.ShareToken(), Data: pull},
		{To: a.Vault(), Data: data},
	}, nil
}

func nonNil(vs []*big.Int) []*big.Int {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		out[i] = orZero(v)
	}
	return out
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
