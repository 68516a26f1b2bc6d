package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/defistate/defi-liquidity-adapter-go/adapter"
	"github.com/defistate/defi-liquidity-adapter-go/cmd/adapterd/config"
	"github.com/defistate/defi-liquidity-adapter-go/streams/jsonrpc/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "adapterd.yaml", "Path to the configuration file.")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(*configPath, logger); err != nil {
		logger.Error("adapterd stopped", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	logger.Info("Loading configuration", "path", configPath)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := adapter.NewMetrics(registry)

	d, err := bootstrap(ctx, cfg, logger.With("component", "adapter"), metrics)
	if err != nil {
		return err
	}
	for _, v := range d.pools.All() {
		logger.Info("Pool ready",
			"id", v.ID,
			"pool", v.Key,
			"asset_a", d.tokens.Label(v.Assets[0]),
			"asset_b", d.tokens.Label(v.Assets[1]),
			"exit_asset", d.tokens.Label(v.Assets[v.ExitTokenIndex]),
		)
	}

	api, err := d.api(logger.With("component", "jsonrpc-server"))
	if err != nil {
		return err
	}
	rpcServer, err := server.NewServer(api)
	if err != nil {
		return err
	}
	defer rpcServer.Stop()

	mux := http.NewServeMux()
	mux.Handle("/", rpcServer)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving liquidity RPC", "addr", cfg.ListenAddr, "namespace", server.RpcNamespace)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutting down...")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
