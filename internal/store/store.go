// Package store is the idempotent persistence layer: blocks, transactions,
// and logs written inside a caller-supplied transaction, plus the single-row
// checkpoint that defines the indexer's resumption point. No mutating
// operation here commits internally.
//
// Begin returns an ingester.UnitOfWork: the ingester package defines that
// port, and *Tx satisfies it, so the control loop never depends on pgx
// directly and can be driven in tests against a fake.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/evm-indexer/internal/domain"
	"github.com/example/evm-indexer/internal/ingester"
)

// ErrNotFound is returned by the read paths when the requested row is absent.
var ErrNotFound = errors.New("store: not found")

// Store owns the connection pool shared by the Ingester and the Read API.
type Store struct {
	pool *pgxpool.Pool
}

// Open parses dsn and builds a pool capped at maxConns (reference: 10),
// shared by both long-lived tasks.
func Open(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: open pool: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Ping exercises the pool for liveness checks (GET /healthz).
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// ReadCheckpoint reads the named checkpoint outside of any transaction. A
// checkpoint absent entirely (first run) returns (0, false, nil).
func (s *Store) ReadCheckpoint(ctx context.Context, name string) (uint64, bool, error) {
	var n uint64
	err := s.pool.QueryRow(ctx,
		`SELECT last_processed_block FROM indexer_status WHERE indexer_name = $1`, name,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("store: read checkpoint: %w", err)
	}
	return n, true, nil
}

// Begin opens a transaction. The ingester holds at most one of these for the
// duration of a single block's writes.
func (s *Store) Begin(ctx context.Context) (ingester.UnitOfWork, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx is a single open database transaction, scoped to one block's writes.
// Its methods implement ingester.UnitOfWork.
type Tx struct {
	tx pgx.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

// Rollback rolls back the transaction.
func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// WriteCheckpoint upserts last_processed_block = n for name, so it commits
// atomically with the block's rows.
func (t *Tx) WriteCheckpoint(ctx context.Context, name string, n uint64) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO indexer_status (indexer_name, last_processed_block)
		VALUES ($1, $2)
		ON CONFLICT (indexer_name) DO UPDATE SET last_processed_block = EXCLUDED.last_processed_block
	`, name, n)
	if err != nil {
		return fmt.Errorf("store: write checkpoint: %w", err)
	}
	return nil
}

// PutBlock inserts b; on conflict by block_number it is a no-op, making
// replay after a crash idempotent.
func (t *Tx) PutBlock(ctx context.Context, b domain.Block) error {
	var baseFee *string
	if b.BaseFeePerGas != nil {
		s := b.BaseFeePerGas.String()
		baseFee = &s
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO blocks (block_number, block_hash, parent_hash, timestamp, gas_used, gas_limit, base_fee_per_gas)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (block_number) DO NOTHING
	`, b.Number, string(b.Hash), string(b.ParentHash), b.Timestamp, b.GasUsed.String(), b.GasLimit.String(), baseFee)
	if err != nil {
		return fmt.Errorf("store: put block %d: %w", b.Number, err)
	}
	return nil
}

// PutTransaction inserts t; on conflict by tx_hash it is a no-op.
func (t *Tx) PutTransaction(ctx context.Context, tr domain.Transaction) error {
	var to *string
	if tr.To != nil {
		s := string(*tr.To)
		to = &s
	}
	var gasPrice, maxFee, maxPrio *string
	if tr.GasPrice != nil {
		s := tr.GasPrice.String()
		gasPrice = &s
	}
	if tr.MaxFeePerGas != nil {
		s := tr.MaxFeePerGas.String()
		maxFee = &s
	}
	if tr.MaxPriorityFeePerGas != nil {
		s := tr.MaxPriorityFeePerGas.String()
		maxPrio = &s
	}
	var status *int
	if tr.Status != domain.StatusUnknown {
		v := int(tr.Status)
		status = &v
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO transactions (
			tx_hash, block_number, block_hash, transaction_index, from_address, to_address,
			value, gas_price, max_fee_per_gas, max_priority_fee_per_gas, gas_provided, input_data, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (tx_hash) DO NOTHING
	`,
		string(tr.Hash), tr.BlockNumber, string(tr.BlockHash), tr.TransactionIndex, string(tr.From), to,
		tr.Value.String(), gasPrice, maxFee, maxPrio, tr.GasLimit.String(), tr.InputData, status,
	)
	if err != nil {
		return fmt.Errorf("store: put transaction %s: %w", tr.Hash, err)
	}
	return nil
}

// PutLog inserts l; on conflict by (tx_hash, log_index) it is a no-op. This
// is a stronger conflict target than a surrogate row id.
func (t *Tx) PutLog(ctx context.Context, l domain.Log) error {
	topics := make([]string, len(l.Topics))
	for i, tp := range l.Topics {
		topics[i] = string(tp)
	}
	var t0, t1, t2, t3 *string
	ptrs := []**string{&t0, &t1, &t2, &t3}
	for i := 0; i < len(topics) && i < 4; i++ {
		*ptrs[i] = &topics[i]
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO logs (
			log_index, tx_hash, transaction_index, block_number, block_hash,
			contract_address, data, topic0, topic1, topic2, topic3, all_topics
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`,
		l.LogIndex, string(l.TxHash), l.TransactionIndex, l.BlockNumber, string(l.BlockHash),
		string(l.Address), l.Data, t0, t1, t2, t3, topics,
	)
	if err != nil {
		return fmt.Errorf("store: put log tx=%s index=%d: %w", l.TxHash, l.LogIndex, err)
	}
	return nil
}
