package store

import (
	"context"
	"math/big"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/evm-indexer/internal/domain"
)

// requireTestDB skips unless TEST_DATABASE_URL points at a scratch Postgres
// instance with migrations/0001_init.up.sql already applied. Unit tests for
// the pure block-id parsing logic live in queries_test.go; these exercise
// the ON CONFLICT idempotency and transaction semantics that only a real
// database can verify.
func requireTestDB(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping store integration test")
	}
	s, err := Open(context.Background(), dsn, 4)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func sampleBlock(n uint64) domain.Block {
	return domain.Block{
		Number:     n,
		Hash:       domain.Hash(domain.CanonicalHex("0xblock" + strconv.FormatUint(n, 10))),
		ParentHash: domain.Hash(domain.CanonicalHex("0xparent")),
		Timestamp:  1_700_000_000,
		GasUsed:    domain.NewUBigInt(big.NewInt(21000)),
		GasLimit:   domain.NewUBigInt(big.NewInt(30_000_000)),
	}
}

func TestPutBlockIsIdempotent(t *testing.T) {
	s := requireTestDB(t)
	ctx := context.Background()
	block := sampleBlock(999_000_001)

	for i := 0; i < 2; i++ {
		uow, err := s.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, uow.PutBlock(ctx, block))
		require.NoError(t, uow.Commit(ctx))
	}

	got, err := s.GetBlock(ctx, BlockID{Number: &block.Number})
	require.NoError(t, err)
	require.Equal(t, block.Number, got.Number)
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := requireTestDB(t)
	ctx := context.Background()

	_, ok, err := s.ReadCheckpoint(ctx, "integration-test-indexer")
	require.NoError(t, err)
	require.False(t, ok)

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.WriteCheckpoint(ctx, "integration-test-indexer", 42))
	require.NoError(t, uow.Commit(ctx))

	n, ok, err := s.ReadCheckpoint(ctx, "integration-test-indexer")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 42, n)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	s := requireTestDB(t)
	ctx := context.Background()
	block := sampleBlock(999_000_002)

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.PutBlock(ctx, block))
	require.NoError(t, uow.Rollback(ctx))

	_, err = s.GetBlock(ctx, BlockID{Number: &block.Number})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListLogsEmptyWhenRangeInverted(t *testing.T) {
	s := requireTestDB(t)
	ctx := context.Background()
	from := uint64(100)
	to := uint64(1)

	logs, err := s.ListLogs(ctx, LogFilter{FromBlock: &from, ToBlock: &to}, 1, 25)
	require.NoError(t, err)
	require.Empty(t, logs)
}

// TestListLogsPaginationMatchesUnpagedOrder checks that concatenating pages
// 1..K of pageSize reproduces the first K*pageSize rows of the unpaginated
// ordered result, for the (block_number, transaction_index, log_index)
// ordering ListLogs promises.
func TestListLogsPaginationMatchesUnpagedOrder(t *testing.T) {
	s := requireTestDB(t)
	ctx := context.Background()

	block := sampleBlock(999_000_003)
	const numLogs = 7
	txHash := domain.Hash(domain.CanonicalHex("0xpagetx"))

	uow, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.PutBlock(ctx, block))
	require.NoError(t, uow.PutTransaction(ctx, domain.Transaction{
		Hash:             txHash,
		BlockNumber:      block.Number,
		BlockHash:        block.Hash,
		TransactionIndex: 0,
		From:             domain.Address(domain.CanonicalHex("0xfrom")),
		Value:            domain.NewUBigInt(big.NewInt(0)),
		GasLimit:         domain.NewUBigInt(big.NewInt(21000)),
		InputData:        "0x",
	}))
	for i := 0; i < numLogs; i++ {
		require.NoError(t, uow.PutLog(ctx, domain.Log{
			LogIndex:         uint64(i),
			TxHash:           txHash,
			TransactionIndex: 0,
			BlockNumber:      block.Number,
			BlockHash:        block.Hash,
			Address:          domain.Address(domain.CanonicalHex("0xcontract")),
			Data:             "0x",
		}))
	}
	require.NoError(t, uow.Commit(ctx))

	filter := LogFilter{FromBlock: &block.Number, ToBlock: &block.Number}

	unpaged, err := s.ListLogs(ctx, filter, 1, numLogs)
	require.NoError(t, err)
	require.Len(t, unpaged, numLogs)

	const pageSize = 3
	var paged []domain.Log
	for page := 1; len(paged) < numLogs; page++ {
		got, err := s.ListLogs(ctx, filter, page, pageSize)
		require.NoError(t, err)
		if len(got) == 0 {
			break
		}
		paged = append(paged, got...)
	}

	require.Equal(t, unpaged, paged)
}
