package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/defistate/defi-liquidity-adapter-go/pkg/chains/ethereum"
	"github.com/defistate/defi-liquidity-adapter-go/protocols/poolregistry"
	"github.com/defistate/defi-liquidity-adapter-go/streams/jsonrpc/server"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the client.
type Config struct {
	URL    string
	Logger Logger
	// MaxAttempts bounds the connection attempts made by Dial. Zero retries
	// until the context is done.
	MaxAttempts int
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.MaxAttempts < 0 {
		return errors.New("config: MaxAttempts must not be negative")
	}
	return nil
}

// Client is a typed client for the liquidity JSON-RPC API.
type Client struct {
	rpc    *rpc.Client
	logger Logger
}

// Dial connects to the service, retrying with exponential backoff until the
// pool listing succeeds.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	reconnectDelay := initialReconnectDelay

	for attempt := 1; ; attempt++ {
		cfg.Logger.Info("Attempting to connect to RPC server", "url", cfg.URL, "attempt", attempt)
		c, err := connect(ctx, cfg)
		if err == nil {
			cfg.Logger.Info("Successfully connected to RPC server.")
			return c, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			return nil, fmt.Errorf("failed to connect after %d attempts: %w", attempt, err)
		}

		cfg.Logger.Error("Failed to connect to RPC server, will retry...", "error", err, "delay", reconnectDelay)
		select {
		case <-time.After(reconnectDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
	}
}

func connect(ctx context.Context, cfg Config) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	c := New(rpcClient, cfg.Logger)
	// HTTP dials are lazy, so only a call proves the server is there.
	if _, err := c.Pools(ctx); err != nil {
		rpcClient.Close()
		return nil, err
	}
	return c, nil
}

// New wraps an established rpc.Client.
func New(rpcClient *rpc.Client, logger Logger) *Client {
	return &Client{rpc: rpcClient, logger: logger}
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// Deposit calls liquidity_deposit.
func (c *Client) Deposit(ctx context.Context, args server.DepositArgs) (server.DepositReply, error) {
	var reply server.DepositReply
	err := c.call(ctx, &reply, "deposit", args)
	return reply, err
}

// Redeem calls liquidity_redeem.
func (c *Client) Redeem(ctx context.Context, args server.RedeemArgs) (server.RedeemReply, error) {
	var reply server.RedeemReply
	err := c.call(ctx, &reply, "redeem", args)
	return reply, err
}

// BalanceOf calls liquidity_balanceOf.
func (c *Client) BalanceOf(ctx context.Context, asset, holder common.Address) (*big.Int, error) {
	var bal hexutil.Big
	if err := c.call(ctx, &bal, "balanceOf", asset, holder); err != nil {
		return nil, err
	}
	return bal.ToInt(), nil
}

// Allowance calls liquidity_allowance.
func (c *Client) Allowance(ctx context.Context, asset, owner, spender common.Address) (*big.Int, error) {
	var allowed hexutil.Big
	if err := c.call(ctx, &allowed, "allowance", asset, owner, spender); err != nil {
		return nil, err
	}
	return allowed.ToInt(), nil
}

// Approve calls liquidity_approve.
func (c *Client) Approve(ctx context.Context, args server.ApproveArgs) error {
	var ok bool
	return c.call(ctx, &ok, "approve", args)
}

// Pools calls liquidity_pools.
func (c *Client) Pools(ctx context.Context) ([]poolregistry.PoolView, error) {
	var pools []poolregistry.PoolView
	err := c.call(ctx, &pools, "pools")
	return pools, err
}

// EncodeDeposit calls liquidity_encodeDeposit.
func (c *Client) EncodeDeposit(ctx context.Context, args server.DepositArgs) ([]ethereum.Call, error) {
	var calls []ethereum.Call
	err := c.call(ctx, &calls, "encodeDeposit", args)
	return calls, err
}

// EncodeRedeem calls liquidity_encodeRedeem.
func (c *Client) EncodeRedeem(ctx context.Context, args server.RedeemArgs) ([]ethereum.Call, error) {
	var calls []ethereum.Call
	err := c.call(ctx, &calls, "encodeRedeem", args)
	return calls, err
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	start := time.Now()
	err := c.rpc.CallContext(ctx, result, server.RpcNamespace+"_"+method, args...)
	c.logger.Debug("RPC call", "method", method, "duration_ms", time.Since(start).Milliseconds(), "error", err)
	return err
}

func min(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
