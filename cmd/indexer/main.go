// Command indexer runs the Ingester Loop and the Read API in the same
// process, sharing one connection pool, until an OS signal or a Fatal
// ingestion error asks it to stop.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gethlog "github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/evm-indexer/internal/api"
	"github.com/example/evm-indexer/internal/assembler"
	"github.com/example/evm-indexer/internal/chainclient"
	"github.com/example/evm-indexer/internal/config"
	"github.com/example/evm-indexer/internal/ingester"
	"github.com/example/evm-indexer/internal/metrics"
	"github.com/example/evm-indexer/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chain, err := chainclient.Dial(ctx, cfg.EthRPCURL)
	if err != nil {
		log.Fatalf("chain client: %v", err)
	}
	defer chain.Close()

	db, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBPoolMaxConns)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer db.Close()

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)

	asm := assembler.New(chain, assembler.DefaultParams(), reg)
	loop := ingester.New(db, chain, asm, ingester.Params{
		PollInterval:      cfg.PollInterval,
		BatchSize:         cfg.BatchSize,
		DefaultStartBlock: cfg.DefaultStartBlock,
		IndexerName:       cfg.IndexerName,
	}, reg)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(db, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ingestErr := make(chan error, 1)
	go func() { ingestErr <- loop.Run(ctx) }()

	httpErr := make(chan error, 1)
	go func() { httpErr <- srv.ListenAndServe() }()

	gethlog.Info("indexer started", "listen", cfg.ListenAddr, "rpc", cfg.EthRPCURL)

	select {
	case <-ctx.Done():
		gethlog.Info("shutdown signal received")
	case err := <-ingestErr:
		if err != nil {
			gethlog.Error("ingester loop exited fatally", "err", err)
		}
	case err := <-httpErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			gethlog.Error("api server exited", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		gethlog.Warn("api server shutdown", "err", err)
	}
}
