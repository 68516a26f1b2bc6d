package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/defistate/defi-liquidity-adapter-go/adapter"
	"github.com/defistate/defi-liquidity-adapter-go/cmd/adapterd/config"
	"github.com/defistate/defi-liquidity-adapter-go/protocols/poolregistry"
	"github.com/defistate/defi-liquidity-adapter-go/protocols/token"
	"github.com/defistate/defi-liquidity-adapter-go/protocols/vault"
	"github.com/defistate/defi-liquidity-adapter-go/streams/jsonrpc/server"
	"github.com/ethereum/go-ethereum/common"
)

// deployment is everything adapterd serves.
type deployment struct {
	tokens   *token.IndexableTokenSystem
	pools    *poolregistry.IndexablePoolRegistry
	ledger   *token.Ledger
	engine   *vault.Simulator
	adapters []*adapter.Adapter
}

// bootstrap builds the simulated ledger, pools and adapters described by cfg.
// Seeding runs as a single unit of work, so a bad config leaves nothing behind.
func bootstrap(ctx context.Context, cfg *config.AdapterdConfig, logger adapter.Logger, metrics *adapter.Metrics) (*deployment, error) {
	tokens := token.New().Index(cfg.Tokens)
	ledger := token.NewLedger()
	engine := vault.NewSimulator(cfg.Vault, ledger)

	d := &deployment{tokens: tokens, ledger: ledger, engine: engine}
	var views []poolregistry.PoolView

	for _, pc := range cfg.Pools {
		x, _ := tokens.GetBySymbol(pc.Assets[0])
		y, _ := tokens.GetBySymbol(pc.Assets[1])
		pair, err := adapter.NewPair(x.Address, y.Address)
		if err != nil {
			return nil, fmt.Errorf("pool %d: %w", pc.ID, err)
		}
		if err := engine.Register(pc.PoolID, pair.Assets()); err != nil {
			return nil, fmt.Errorf("pool %d: %w", pc.ID, err)
		}

		var exitIndex uint8
		if pc.Exit != "" {
			exit, _ := tokens.GetBySymbol(pc.Exit)
			i, _ := pair.Index(exit.Address)
			exitIndex = uint8(i)
		}
		a, err := adapter.New(adapter.Config{
			Pair:           pair,
			PoolID:         pc.PoolID,
			ExitTokenIndex: exitIndex,
			Address:        pc.Adapter,
			Vault:          cfg.Vault,
			Custody:        ledger,
			Engine:         engine,
			UnitOfWork:     ledger,
			Logger:         logger,
			Metrics:        metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("pool %d: %w", pc.ID, err)
		}
		d.adapters = append(d.adapters, a)
		views = append(views, poolregistry.PoolView{
			ID:             pc.ID,
			Key:            pc.PoolID,
			Assets:         pair.Assets(),
			ShareToken:     a.ShareToken(),
			ExitTokenIndex: exitIndex,
		})
	}
	d.pools = poolregistry.New().Index(views)

	err := ledger.Do(ctx, func(ctx context.Context) error {
		for i, pc := range cfg.Pools {
			if len(pc.Reserves) == 0 {
				continue
			}
			if err := seed(ctx, ledger, engine, cfg, d.adapters[i], reserves(tokens, pc.Reserves)); err != nil {
				return fmt.Errorf("seed pool %d: %w", pc.ID, err)
			}
		}
		for _, b := range cfg.Balances {
			asset, _ := tokens.GetBySymbol(b.Asset)
			if err := ledger.Mint(ctx, asset.Address, b.Holder, b.Amount.BigInt()); err != nil {
				return fmt.Errorf("mint %s to %s: %w", b.Asset, b.Holder.Hex(), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func reserves(tokens *token.IndexableTokenSystem, bySymbol map[string]config.Amount) map[common.Address]*big.Int {
	out := make(map[common.Address]*big.Int, len(bySymbol))
	for sym, amt := range bySymbol {
		t, _ := tokens.GetBySymbol(sym)
		out[t.Address] = amt.BigInt()
	}
	return out
}

// seed mints the reserves to the provider and initializes the pool with them.
func seed(ctx context.Context, ledger *token.Ledger, engine *vault.Simulator, cfg *config.AdapterdConfig, a *adapter.Adapter, amounts map[common.Address]*big.Int) error {
	assets := a.Pair().Assets()
	in := make([]*big.Int, len(assets))
	for i, asset := range assets {
		in[i] = amounts[asset]
		if in[i] == nil {
			in[i] = new(big.Int)
		}
		if err := ledger.Mint(ctx, asset, cfg.Provider, in[i]); err != nil {
			return err
		}
		if err := ledger.Authorize(ctx, asset, cfg.Provider, cfg.Vault, in[i]); err != nil {
			return err
		}
	}
	userData, err := vault.EncodeJoin(vault.InitJoin{AmountsIn: in})
	if err != nil {
		return err
	}
	_, err = engine.Join(ctx, a.PoolID(), cfg.Provider, cfg.Provider, vault.JoinRequest{
		Assets:       assets[:],
		MaxAmountsIn: in,
		UserData:     userData,
	})
	return err
}

func (d *deployment) api(logger server.Logger) (*server.API, error) {
	return server.NewAPI(server.Config{
		Pools:    d.pools,
		Adapters: d.adapters,
		Ledger:   d.ledger,
		Logger:   logger,
	})
}
