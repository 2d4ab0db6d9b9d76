package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/example/evm-indexer/internal/domain"
)

// BlockID identifies a block by decimal number or by hash — exactly one of
// Number/Hash is set, enforced by ParseBlockID at the API boundary.
type BlockID struct {
	Number *uint64
	Hash   string
}

// ParseBlockID parses a GET /block/{id} path parameter: a decimal number, or
// a 0x-prefixed 66-char hash. Anything else is a BadRequest for the caller
// to turn into a 400.
func ParseBlockID(raw string) (BlockID, error) {
	if domain.ValidHashLen(strings.ToLower(raw)) {
		return BlockID{Hash: domain.CanonicalHex(raw)}, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return BlockID{}, fmt.Errorf("invalid block id %q: not a decimal number or a 66-char 0x hash", raw)
	}
	return BlockID{Number: &n}, nil
}

// GetBlock fetches a block by number or hash.
func (s *Store) GetBlock(ctx context.Context, id BlockID) (domain.Block, error) {
	var (
		row                domain.Block
		baseFee            *string
		hash, parent       string
		gasUsed, gasLimit  string
	)
	var err error
	if id.Number != nil {
		err = s.pool.QueryRow(ctx, `
			SELECT block_number, block_hash, parent_hash, timestamp, gas_used, gas_limit, base_fee_per_gas
			FROM blocks WHERE block_number = $1
		`, *id.Number).Scan(&row.Number, &hash, &parent, &row.Timestamp, &gasUsed, &gasLimit, &baseFee)
	} else {
		err = s.pool.QueryRow(ctx, `
			SELECT block_number, block_hash, parent_hash, timestamp, gas_used, gas_limit, base_fee_per_gas
			FROM blocks WHERE block_hash = $1
		`, strings.ToLower(id.Hash)).Scan(&row.Number, &hash, &parent, &row.Timestamp, &gasUsed, &gasLimit, &baseFee)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Block{}, ErrNotFound
	}
	if err != nil {
		return domain.Block{}, fmt.Errorf("store: get block: %w", err)
	}
	row.Hash = domain.Hash(hash)
	row.ParentHash = domain.Hash(parent)
	if row.GasUsed, err = domain.ParseUBigInt(gasUsed); err != nil {
		return domain.Block{}, fmt.Errorf("store: get block: %w", err)
	}
	if row.GasLimit, err = domain.ParseUBigInt(gasLimit); err != nil {
		return domain.Block{}, fmt.Errorf("store: get block: %w", err)
	}
	if baseFee != nil {
		v, perr := domain.ParseUBigInt(*baseFee)
		if perr != nil {
			return domain.Block{}, fmt.Errorf("store: get block: %w", perr)
		}
		row.BaseFeePerGas = &v
	}
	return row, nil
}

// GetTransaction fetches a transaction by hash. Its Logs field is not
// populated here; callers needing logs use ListLogs with a blockHash
// filter.
func (s *Store) GetTransaction(ctx context.Context, hash string) (domain.Transaction, error) {
	var (
		t                                domain.Transaction
		h, blockHash, from               string
		value, gasLimit                  string
		to, gasPrice, maxFee, maxPrio    *string
		status                           *int
	)
	err := s.pool.QueryRow(ctx, `
		SELECT tx_hash, block_number, block_hash, transaction_index, from_address, to_address,
		       value, gas_price, max_fee_per_gas, max_priority_fee_per_gas, gas_provided, input_data, status
		FROM transactions WHERE tx_hash = $1
	`, strings.ToLower(hash)).Scan(
		&h, &t.BlockNumber, &blockHash, &t.TransactionIndex, &from, &to,
		&value, &gasPrice, &maxFee, &maxPrio, &gasLimit, &t.InputData, &status,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Transaction{}, ErrNotFound
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("store: get transaction: %w", err)
	}
	if t.Value, err = domain.ParseUBigInt(value); err != nil {
		return domain.Transaction{}, fmt.Errorf("store: get transaction: %w", err)
	}
	if t.GasLimit, err = domain.ParseUBigInt(gasLimit); err != nil {
		return domain.Transaction{}, fmt.Errorf("store: get transaction: %w", err)
	}
	t.Hash = domain.Hash(h)
	t.BlockHash = domain.Hash(blockHash)
	t.From = domain.Address(from)
	if to != nil {
		addr := domain.Address(*to)
		t.To = &addr
	}
	if gasPrice != nil {
		v, _ := domain.ParseUBigInt(*gasPrice)
		t.GasPrice = &v
	}
	if maxFee != nil {
		v, _ := domain.ParseUBigInt(*maxFee)
		t.MaxFeePerGas = &v
	}
	if maxPrio != nil {
		v, _ := domain.ParseUBigInt(*maxPrio)
		t.MaxPriorityFeePerGas = &v
	}
	if status != nil {
		t.Status = domain.TxStatus(*status)
	} else {
		t.Status = domain.StatusUnknown
	}
	return t, nil
}

// LogFilter holds the POST /logs filter fields, built by the Read API from
// the request body.
type LogFilter struct {
	FromBlock *uint64
	ToBlock   *uint64
	Address   string
	Topic0    string
	Topic1    string
	Topic2    string
	Topic3    string
	BlockHash string
}

// ListLogs returns page (1-based) of pageSize logs matching filter, ordered
// ascending by (block_number, transaction_index, log_index). pageSize is
// clamped to [1,100] and page <= 0 is treated as page 1; fromBlock > toBlock
// yields an empty page rather than an error.
func (s *Store) ListLogs(ctx context.Context, filter LogFilter, page, pageSize int) ([]domain.Log, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > 100 {
		pageSize = 100
	}
	if filter.FromBlock != nil && filter.ToBlock != nil && *filter.FromBlock > *filter.ToBlock {
		return []domain.Log{}, nil
	}

	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.BlockHash != "" {
		where = append(where, "block_hash = "+arg(strings.ToLower(filter.BlockHash)))
	} else {
		if filter.FromBlock != nil {
			where = append(where, "block_number >= "+arg(*filter.FromBlock))
		}
		if filter.ToBlock != nil {
			where = append(where, "block_number <= "+arg(*filter.ToBlock))
		}
	}
	if filter.Address != "" {
		where = append(where, "contract_address = "+arg(strings.ToLower(filter.Address)))
	}
	if filter.Topic0 != "" {
		where = append(where, "topic0 = "+arg(strings.ToLower(filter.Topic0)))
	}
	if filter.Topic1 != "" {
		where = append(where, "topic1 = "+arg(strings.ToLower(filter.Topic1)))
	}
	if filter.Topic2 != "" {
		where = append(where, "topic2 = "+arg(strings.ToLower(filter.Topic2)))
	}
	if filter.Topic3 != "" {
		where = append(where, "topic3 = "+arg(strings.ToLower(filter.Topic3)))
	}

	query := `SELECT log_index, tx_hash, transaction_index, block_number, block_hash, contract_address, data, all_topics FROM logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY block_number, transaction_index, log_index"
	query += fmt.Sprintf(" LIMIT %s OFFSET %s", arg(pageSize), arg((page-1)*pageSize))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list logs: %w", err)
	}
	defer rows.Close()

	var out []domain.Log
	for rows.Next() {
		var (
			l                domain.Log
			txHash, blockHash, address string
			topics           []string
		)
		if err := rows.Scan(&l.LogIndex, &txHash, &l.TransactionIndex, &l.BlockNumber, &blockHash, &address, &l.Data, &topics); err != nil {
			return nil, fmt.Errorf("store: list logs scan: %w", err)
		}
		l.TxHash = domain.Hash(txHash)
		l.BlockHash = domain.Hash(blockHash)
		l.Address = domain.Address(address)
		l.Topics = make([]domain.Hash, len(topics))
		for i, t := range topics {
			l.Topics[i] = domain.Hash(t)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list logs rows: %w", err)
	}
	if out == nil {
		out = []domain.Log{}
	}
	return out, nil
}
