package server

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/defistate/defi-liquidity-adapter-go/adapter"
	"github.com/defistate/defi-liquidity-adapter-go/pkg/chains/ethereum"
	"github.com/defistate/defi-liquidity-adapter-go/protocols/poolregistry"
	"github.com/defistate/defi-liquidity-adapter-go/protocols/token"
	"github.com/defistate/defi-liquidity-adapter-go/protocols/vault"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// RpcNamespace is the namespace under which the liquidity API is registered.
const RpcNamespace = "liquidity"

// JSON-RPC error codes returned by the liquidity API.
const (
	InvalidParamsCode = -32602
	RejectedCode      = 3
	CustodyCode       = 4
	InternalCode      = -32000
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Ledger is the token state exposed next to the adapters.
type Ledger interface {
	token.Custody
	Allowance(ctx context.Context, asset, owner, spender common.Address) (*big.Int, error)
}

// Config holds the configuration for the API.
type Config struct {
	Pools    *poolregistry.IndexablePoolRegistry
	Adapters []*adapter.Adapter
	Ledger   Ledger
	Logger   Logger
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.Pools == nil {
		return errors.New("config: Pools is required")
	}
	if len(c.Adapters) == 0 {
		return errors.New("config: at least one adapter is required")
	}
	if c.Ledger == nil {
		return errors.New("config: Ledger is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	for _, a := range c.Adapters {
		if _, ok := c.Pools.GetByPoolID(a.PoolID()); !ok {
			return fmt.Errorf("config: adapter for pool %s is not in the registry", a.PoolID())
		}
	}
	return nil
}

// DepositArgs are the parameters of liquidity_deposit and
// liquidity_encodeDeposit.
type DepositArgs struct {
	Pool         poolregistry.PoolID `json:"pool"`
	Caller       common.Address      `json:"caller"`
	AmountA      *hexutil.Big        `json:"amountA"`
	AmountB      *hexutil.Big        `json:"amountB"`
	MinSharesOut *hexutil.Big        `json:"minSharesOut,omitempty"`
}

// DepositReply is the outcome of a settled deposit, in canonical asset order.
type DepositReply struct {
	Assets    [2]common.Address `json:"assets"`
	AmountsIn [2]*hexutil.Big   `json:"amountsIn"`
	SharesOut *hexutil.Big      `json:"sharesOut"`
	Refunds   [2]*hexutil.Big   `json:"refunds"`
}

// RedeemArgs are the parameters of liquidity_redeem and
// liquidity_encodeRedeem.
type RedeemArgs struct {
	Pool         poolregistry.PoolID `json:"pool"`
	Caller       common.Address      `json:"caller"`
	Shares       *hexutil.Big        `json:"shares"`
	MinAmountOut *hexutil.Big        `json:"minAmountOut,omitempty"`
}

// RedeemReply is the outcome of a settled redemption.
type RedeemReply struct {
	SharesIn  *hexutil.Big   `json:"sharesIn"`
	Asset     common.Address `json:"asset"`
	AmountOut *hexutil.Big   `json:"amountOut"`
}

// ApproveArgs are the parameters of liquidity_approve.
type ApproveArgs struct {
	Asset   common.Address `json:"asset"`
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Amount  *hexutil.Big   `json:"amount"`
}

// API serves the liquidity namespace.
type API struct {
	pools    *poolregistry.IndexablePoolRegistry
	adapters map[poolregistry.PoolID]*adapter.Adapter
	ledger   Ledger
	logger   Logger
}

// NewAPI creates the liquidity API.
func NewAPI(cfg Config) (*API, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	adapters := make(map[poolregistry.PoolID]*adapter.Adapter, len(cfg.Adapters))
	for _, a := range cfg.Adapters {
		if _, dup := adapters[a.PoolID()]; dup {
			return nil, fmt.Errorf("config: duplicate adapter for pool %s", a.PoolID())
		}
		adapters[a.PoolID()] = a
	}
	return &API{
		pools:    cfg.Pools,
		adapters: adapters,
		ledger:   cfg.Ledger,
		logger:   cfg.Logger,
	}, nil
}

// NewServer returns an rpc.Server with api registered under RpcNamespace.
func NewServer(api *API) (*rpc.Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(RpcNamespace, api); err != nil {
		return nil, fmt.Errorf("failed to register %s api: %w", RpcNamespace, err)
	}
	return srv, nil
}

// Deposit runs a deposit through the pool's adapter.
func (api *API) Deposit(ctx context.Context, args DepositArgs) (*DepositReply, error) {
	a, err := api.adapter(args.Pool)
	if err != nil {
		return nil, err
	}
	res, err := a.Deposit(ctx, adapter.DepositRequest{
		Caller:       args.Caller,
		AmountA:      (*big.Int)(args.AmountA),
		AmountB:      (*big.Int)(args.AmountB),
		MinSharesOut: (*big.Int)(args.MinSharesOut),
	})
	if err != nil {
		return nil, wrapError(err)
	}
	reply := &DepositReply{
		Assets:    a.Pair().Assets(),
		SharesOut: (*hexutil.Big)(res.SharesOut),
	}
	for i := range reply.AmountsIn {
		reply.AmountsIn[i] = (*hexutil.Big)(res.AmountsIn[i])
		reply.Refunds[i] = (*hexutil.Big)(res.Refunds[i])
	}
	return reply, nil
}

// Redeem runs a redemption through the pool's adapter.
func (api *API) Redeem(ctx context.Context, args RedeemArgs) (*RedeemReply, error) {
	a, err := api.adapter(args.Pool)
	if err != nil {
		return nil, err
	}
	res, err := a.Redeem(ctx, adapter.RedemptionRequest{
		Caller:       args.Caller,
		Shares:       (*big.Int)(args.Shares),
		MinAmountOut: (*big.Int)(args.MinAmountOut),
	})
	if err != nil {
		return nil, wrapError(err)
	}
	return &RedeemReply{
		SharesIn:  (*hexutil.Big)(res.SharesIn),
		Asset:     res.Asset,
		AmountOut: (*hexutil.Big)(res.AmountOut),
	}, nil
}

// BalanceOf returns holder's balance of asset.
func (api *API) BalanceOf(ctx context.Context, asset, holder common.Address) (*hexutil.Big, error) {
	bal, err := api.ledger.BalanceOf(ctx, asset, holder)
	if err != nil {
		return nil, wrapError(err)
	}
	return (*hexutil.Big)(bal), nil
}

// Allowance returns what spender may still pull from owner.
func (api *API) Allowance(ctx context.Context, asset, owner, spender common.Address) (*hexutil.Big, error) {
	allowed, err := api.ledger.Allowance(ctx, asset, owner, spender)
	if err != nil {
		return nil, wrapError(err)
	}
	return (*hexutil.Big)(allowed), nil
}

// Approve sets an allowance on the simulated ledger. Owners are not
// authenticated.
func (api *API) Approve(ctx context.Context, args ApproveArgs) (bool, error) {
	if err := api.ledger.Authorize(ctx, args.Asset, args.Owner, args.Spender, (*big.Int)(args.Amount)); err != nil {
		return false, wrapError(err)
	}
	api.logger.Debug("Allowance set", "asset", args.Asset, "owner", args.Owner, "spender", args.Spender, "amount", args.Amount)
	return true, nil
}

// Pools lists the configured pools.
func (api *API) Pools(ctx context.Context) ([]poolregistry.PoolView, error) {
	return api.pools.All(), nil
}

// EncodeDeposit returns the contract calls an on-chain adapter would make
// for args, without touching the simulated ledger.
func (api *API) EncodeDeposit(ctx context.Context, args DepositArgs) ([]ethereum.Call, error) {
	a, err := api.adapter(args.Pool)
	if err != nil {
		return nil, err
	}
	calls, err := ethereum.DepositCalls(a, args.Caller, (*big.Int)(args.AmountA), (*big.Int)(args.AmountB), (*big.Int)(args.MinSharesOut))
	if err != nil {
		return nil, wrapError(err)
	}
	return calls, nil
}

// EncodeRedeem is EncodeDeposit for redemptions.
func (api *API) EncodeRedeem(ctx context.Context, args RedeemArgs) ([]ethereum.Call, error) {
	a, err := api.adapter(args.Pool)
	if err != nil {
		return nil, err
	}
	calls, err := ethereum.RedeemCalls(a, args.Caller, (*big.Int)(args.Shares), (*big.Int)(args.MinAmountOut))
	if err != nil {
		return nil, wrapError(err)
	}
	return calls, nil
}

func (api *API) adapter(id poolregistry.PoolID) (*adapter.Adapter, error) {
	a, ok := api.adapters[id]
	if !ok {
		return nil, &Error{Code: InvalidParamsCode, Err: fmt.Errorf("unknown pool %s", id)}
	}
	return a, nil
}

// Error is an API error carrying a JSON-RPC error code.
type Error struct {
	Code int
	Err  error
}

func (e *Error) Error() string  { return e.Err.Error() }
func (e *Error) ErrorCode() int { return e.Code }
func (e *Error) Unwrap() error  { return e.Err }

func wrapError(err error) error {
	code := InternalCode
	switch {
	case errors.Is(err, vault.ErrPoolInteractionRejected):
		code = RejectedCode
	case errors.Is(err, token.ErrInsufficientBalance), errors.Is(err, token.ErrInsufficientAllowance):
		code = CustodyCode
	case errors.Is(err, adapter.ErrNegativeAmount), errors.Is(err, token.ErrInvalidAmount), errors.Is(err, token.ErrOverflow):
		code = InvalidParamsCode
	}
	return &Error{Code: code, Err: err}
}
