// Package ingester is the control loop: read checkpoint, read head, compute
// a bounded range, process each block as one atomic transaction, sleep.
// This is the hardest-engineering part of the core — every transition here
// exists to guarantee that a crash at any point leaves either all of a
// block's rows plus its checkpoint, or none of them.
package ingester

import (
	"context"
	"time"

	gethlog "github.com/ethereum/go-ethereum/log"

	"github.com/example/evm-indexer/internal/assembler"
	"github.com/example/evm-indexer/internal/domain"
	"github.com/example/evm-indexer/internal/metrics"
)

// UnitOfWork is the port a single block transaction is driven through. It is
// defined here (the consumer) and satisfied by *store.Tx, so this package
// depends only on behavior, never on pgx — tests drive a fake UnitOfWork to
// inject a failure at any point inside processBlock.
type UnitOfWork interface {
	PutBlock(ctx context.Context, b domain.Block) error
	PutTransaction(ctx context.Context, t domain.Transaction) error
	PutLog(ctx context.Context, l domain.Log) error
	WriteCheckpoint(ctx context.Context, name string, n uint64) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is the port for checkpoint reads and transaction scoping, satisfied
// by *store.Store.
type Store interface {
	ReadCheckpoint(ctx context.Context, name string) (uint64, bool, error)
	Begin(ctx context.Context) (UnitOfWork, error)
}

// HeadReader returns the chain's current tip.
type HeadReader interface {
	LatestHeight(ctx context.Context) (uint64, error)
}

// Assembler is the subset of assembler.Assembler the loop depends on.
type Assembler interface {
	Build(ctx context.Context, n uint64) (assembler.Outcome, *domain.Block, []domain.Transaction, error)
}

// Params are the control loop's tunables (spec-reference defaults in parens).
type Params struct {
	PollInterval      time.Duration // 10s
	BatchSize         int           // 5
	DefaultStartBlock uint64
	IndexerName       string
}

// Loop is the Ingester Loop.
type Loop struct {
	store   Store
	chain   HeadReader
	asm     Assembler
	params  Params
	metrics *metrics.Registry
}

// New builds a Loop. reg may be nil in tests that don't care about metrics.
func New(store Store, chain HeadReader, asm Assembler, params Params, reg *metrics.Registry) *Loop {
	return &Loop{store: store, chain: chain, asm: asm, params: params, metrics: reg}
}

// Run executes cycles until ctx is cancelled. It returns nil on clean
// cancellation and a non-nil error only for a Fatal condition that the
// bootstrap should treat as a reason to exit the process.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if fatal := l.cycle(ctx); fatal != nil {
			return fatal
		}
		if !sleepCtx(ctx, l.params.PollInterval) {
			return nil
		}
	}
}

func (l *Loop) cycle(ctx context.Context) error {
	start := time.Now()

	checkpoint, ok, err := l.store.ReadCheckpoint(ctx, l.params.IndexerName)
	if err != nil {
		gethlog.Warn("read checkpoint failed, will retry next cycle", "err", err)
		return nil
	}
	next := l.params.DefaultStartBlock
	if ok {
		next = checkpoint + 1
	}

	head, err := l.chain.LatestHeight(ctx)
	if err != nil {
		gethlog.Warn("read head failed, will retry next cycle", "err", err)
		return nil
	}

	if next > head {
		return nil // caught up
	}

	end := next + uint64(l.params.BatchSize) - 1
	if end > head {
		end = head
	}

	committed := 0
	for n := next; n <= end; n++ {
		outcome, cerr := l.processBlock(ctx, n)
		switch outcome {
		case blockCommitted:
			committed++
			if l.metrics != nil {
				l.metrics.BlocksCommitted.Inc()
			}
		case blockSkipped:
			if l.metrics != nil {
				l.metrics.BlocksSkipped.Inc()
			}
		case blockFailed:
			gethlog.Warn("batch aborted, will resume from same height next cycle", "block", n, "err", cerr)
			if l.metrics != nil {
				l.metrics.BatchDuration.Observe(time.Since(start).Seconds())
			}
			return nil
		case blockFatal:
			gethlog.Error("fatal error processing block, exiting", "block", n, "err", cerr)
			return cerr
		}
	}

	if l.metrics != nil {
		l.metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}
	gethlog.Info("batch complete", "from", next, "to", end, "committed", committed, "elapsed", time.Since(start))
	return nil
}

type blockResult int

const (
	blockCommitted blockResult = iota
	blockSkipped
	blockFailed
	blockFatal
)

// processBlock opens a transaction, assembles block n, persists it,
// writes the checkpoint, and commits — all or nothing.
func (l *Loop) processBlock(ctx context.Context, n uint64) (blockResult, error) {
	uow, err := l.store.Begin(ctx)
	if err != nil {
		return blockFailed, err
	}

	outcome, block, txs, err := l.asm.Build(ctx, n)

	if outcome == assembler.Skip {
		if cerr := uow.Commit(ctx); cerr != nil {
			_ = uow.Rollback(ctx)
			return blockFailed, cerr
		}
		gethlog.Warn("block reported missing by provider, not advancing checkpoint", "block", n)
		return blockSkipped, nil
	}
	if outcome == assembler.Fail {
		_ = uow.Rollback(ctx)
		return blockFailed, err
	}

	if err := uow.PutBlock(ctx, *block); err != nil {
		_ = uow.Rollback(ctx)
		return blockFailed, err
	}
	for _, t := range txs {
		if err := uow.PutTransaction(ctx, t); err != nil {
			_ = uow.Rollback(ctx)
			return blockFailed, err
		}
		for _, lg := range t.Logs {
			if err := uow.PutLog(ctx, lg); err != nil {
				_ = uow.Rollback(ctx)
				return blockFailed, err
			}
		}
	}

	if err := uow.WriteCheckpoint(ctx, l.params.IndexerName, n); err != nil {
		_ = uow.Rollback(ctx)
		return blockFailed, err
	}

	if err := uow.Commit(ctx); err != nil {
		// The rows and checkpoint were sent but we cannot prove the commit
		// landed. We cannot safely retry (might double-apply) or safely
		// continue (might have lost the write) — this is treated as Fatal.
		return blockFatal, err
	}

	gethlog.Info("block committed", "block", n, "hash", block.Hash, "txs", len(txs))
	return blockCommitted, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
