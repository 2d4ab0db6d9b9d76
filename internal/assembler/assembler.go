// Package assembler drives the chain client to turn a block number into a
// fully-hydrated domain.Block + transactions + logs, retrying transient RPC
// failures with exponential backoff and projecting wire types into storage
// shapes (canonical hex, decimal-string big integers, ordered topics).
package assembler

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethlog "github.com/ethereum/go-ethereum/log"

	"github.com/example/evm-indexer/internal/domain"
	"github.com/example/evm-indexer/internal/metrics"
	"github.com/example/evm-indexer/internal/rpcerr"
)

// ChainClient is the subset of chainclient.Client the assembler depends on,
// narrowed so tests can supply a fake.
type ChainClient interface {
	Block(ctx context.Context, n uint64) (*types.Block, error)
	Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockReceipts(ctx context.Context, n uint64) ([]*types.Receipt, error)
}

// Outcome tags the result of Build.
type Outcome int

const (
	// Built means block, transactions, and logs are ready to persist.
	Built Outcome = iota
	// Skip means the provider reported the block itself as missing; the
	// caller advances past the gap without writing anything.
	Skip
	// Fail means retries were exhausted; the caller should not advance.
	Fail
)

// Params bounds the assembler's retry behavior (spec-reference defaults in
// parens).
type Params struct {
	MaxBlockFetchAttempts int           // 5
	MaxReceiptAttempts    int           // 5
	BaseBlockBackoff      time.Duration // 200ms
	BaseReceiptBackoff    time.Duration // 200ms
}

// DefaultParams mirrors the spec-reference constants.
func DefaultParams() Params {
	return Params{
		MaxBlockFetchAttempts: 5,
		MaxReceiptAttempts:    5,
		BaseBlockBackoff:      200 * time.Millisecond,
		BaseReceiptBackoff:    200 * time.Millisecond,
	}
}

// Assembler builds domain.Block values from a ChainClient.
type Assembler struct {
	client  ChainClient
	params  Params
	metrics *metrics.Registry
}

// New returns an Assembler over client with params. reg may be nil in tests
// that don't care about metrics.
func New(client ChainClient, params Params, reg *metrics.Registry) *Assembler {
	return &Assembler{client: client, params: params, metrics: reg}
}

// Build fetches and projects block n. On Skip or Fail the returned block is
// nil; callers must check outcome before touching it.
func (a *Assembler) Build(ctx context.Context, n uint64) (Outcome, *domain.Block, []domain.Transaction, error) {
	raw, outcome, err := a.fetchBlock(ctx, n)
	if outcome != Built {
		return outcome, nil, nil, err
	}

	blk := projectBlock(raw)

	txs := make([]domain.Transaction, 0, len(raw.Transactions()))
	receipts, recErr := a.fetchReceiptsForBlock(ctx, n, raw)
	if recErr != nil {
		return Fail, nil, nil, recErr
	}
	for i, tx := range raw.Transactions() {
		receipt := receipts[tx.Hash()]
		txs = append(txs, projectTransaction(raw, tx, uint64(i), receipt))
	}

	return Built, &blk, txs, nil
}

func (a *Assembler) fetchBlock(ctx context.Context, n uint64) (*types.Block, Outcome, error) {
	backoff := a.params.BaseBlockBackoff
	var lastErr error
	for attempt := 1; attempt <= a.params.MaxBlockFetchAttempts; attempt++ {
		blk, err := a.client.Block(ctx, n)
		if err == nil {
			return blk, Built, nil
		}
		if rpcerr.IsMissing(err) {
			gethlog.Warn("block missing, skipping", "block", n)
			return nil, Skip, nil
		}
		lastErr = err
		if !rpcerr.IsTransient(err) {
			return nil, Fail, err
		}
		gethlog.Warn("transient block fetch error, retrying", "block", n, "attempt", attempt, "backoff", backoff)
		if a.metrics != nil {
			a.metrics.RetryTotal.WithLabelValues("block").Inc()
		}
		if !sleep(ctx, backoff) {
			return nil, Fail, ctx.Err()
		}
		backoff *= 2
	}
	return nil, Fail, lastErr
}

// fetchReceiptsForBlock tries the batched eth_getBlockReceipts call first,
// falling back to one retried fetch per transaction when the provider
// doesn't support it.
func (a *Assembler) fetchReceiptsForBlock(ctx context.Context, n uint64, blk *types.Block) (map[common.Hash]*types.Receipt, error) {
	out := make(map[common.Hash]*types.Receipt, len(blk.Transactions()))

	if batch, err := a.client.BlockReceipts(ctx, n); err == nil {
		for _, r := range batch {
			out[r.TxHash] = r
		}
		return out, nil
	}

	for _, tx := range blk.Transactions() {
		receipt, outcome, err := a.fetchReceipt(ctx, tx.Hash())
		switch outcome {
		case Built:
			out[tx.Hash()] = receipt
		case Skip:
			// MISSING receipt is not fatal: record with no receipt, status=none.
			out[tx.Hash()] = nil
		case Fail:
			return nil, err
		}
	}
	return out, nil
}

func (a *Assembler) fetchReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, Outcome, error) {
	backoff := a.params.BaseReceiptBackoff
	var lastErr error
	for attempt := 1; attempt <= a.params.MaxReceiptAttempts; attempt++ {
		r, err := a.client.Receipt(ctx, txHash)
		if err == nil {
			return r, Built, nil
		}
		if rpcerr.IsMissing(err) {
			gethlog.Warn("receipt missing, recording tx without logs", "tx", txHash)
			return nil, Skip, nil
		}
		lastErr = err
		if !rpcerr.IsTransient(err) {
			return nil, Fail, err
		}
		gethlog.Warn("transient receipt fetch error, retrying", "tx", txHash, "attempt", attempt, "backoff", backoff)
		if a.metrics != nil {
			a.metrics.RetryTotal.WithLabelValues("receipt").Inc()
		}
		if !sleep(ctx, backoff) {
			return nil, Fail, ctx.Err()
		}
		backoff *= 2
	}
	return nil, Fail, lastErr
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func projectBlock(raw *types.Block) domain.Block {
	b := domain.Block{
		Number:     raw.NumberU64(),
		Hash:       domain.Hash(domain.CanonicalHex(raw.Hash().Hex())),
		ParentHash: domain.Hash(domain.CanonicalHex(raw.ParentHash().Hex())),
		Timestamp:  raw.Time(),
		GasUsed:    domain.NewUBigInt(new(big.Int).SetUint64(raw.GasUsed())),
		GasLimit:   domain.NewUBigInt(new(big.Int).SetUint64(raw.GasLimit())),
	}
	if bf := raw.BaseFee(); bf != nil {
		v := domain.NewUBigInt(bf)
		b.BaseFeePerGas = &v
	}
	return b
}

func projectTransaction(block *types.Block, tx *types.Transaction, index uint64, receipt *types.Receipt) domain.Transaction {
	signer := types.LatestSignerForChainID(tx.ChainId())
	from, err := types.Sender(signer, tx)
	var fromAddr domain.Address
	if err == nil {
		fromAddr = domain.Address(domain.CanonicalHex(from.Hex()))
	}

	out := domain.Transaction{
		Hash:             domain.Hash(domain.CanonicalHex(tx.Hash().Hex())),
		BlockNumber:      block.NumberU64(),
		BlockHash:        domain.Hash(domain.CanonicalHex(block.Hash().Hex())),
		TransactionIndex: index,
		From:             fromAddr,
		Value:            domain.NewUBigInt(tx.Value()),
		GasLimit:         domain.NewUBigInt(new(big.Int).SetUint64(tx.Gas())),
		InputData:        domain.CanonicalHex(common.Bytes2Hex(tx.Data())),
		Status:           domain.StatusUnknown,
	}

	if to := tx.To(); to != nil {
		addr := domain.Address(domain.CanonicalHex(to.Hex()))
		out.To = &addr
	}

	switch tx.Type() {
	case types.DynamicFeeTxType, types.BlobTxType:
		maxFee := domain.NewUBigInt(tx.GasFeeCap())
		maxPrio := domain.NewUBigInt(tx.GasTipCap())
		out.MaxFeePerGas = &maxFee
		out.MaxPriorityFeePerGas = &maxPrio
	default:
		gp := domain.NewUBigInt(tx.GasPrice())
		out.GasPrice = &gp
	}

	if receipt != nil {
		// Pre-Byzantium receipts carry a post-state root instead of a status.
		if len(receipt.PostState) == 0 {
			out.Status = domain.TxStatus(receipt.Status)
		}
		out.Logs = projectLogs(receipt.Logs)
	}

	return out
}

func projectLogs(logs []*types.Log) []domain.Log {
	out := make([]domain.Log, 0, len(logs))
	for _, l := range logs {
		topics := make([]domain.Hash, 0, len(l.Topics))
		for _, t := range l.Topics {
			topics = append(topics, domain.Hash(domain.CanonicalHex(t.Hex())))
		}
		out = append(out, domain.Log{
			LogIndex:         uint64(l.Index),
			TxHash:           domain.Hash(domain.CanonicalHex(l.TxHash.Hex())),
			TransactionIndex: uint64(l.TxIndex),
			BlockNumber:      l.BlockNumber,
			BlockHash:        domain.Hash(domain.CanonicalHex(l.BlockHash.Hex())),
			Address:          domain.Address(domain.CanonicalHex(l.Address.Hex())),
			Data:             domain.CanonicalHex(common.Bytes2Hex(l.Data)),
			Topics:           topics,
		})
	}
	return out
}
