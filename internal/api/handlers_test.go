package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/evm-indexer/internal/domain"
	"github.com/example/evm-indexer/internal/store"
)

// fakeReader is a hand-rolled Reader for handler tests.
type fakeReader struct {
	pingErr error

	blocks   map[string]domain.Block
	blockErr error

	txs   map[string]domain.Transaction
	txErr error

	logs        []domain.Log
	logsErr     error
	lastFilter  store.LogFilter
	lastPage    int
	lastSize    int
}

func (f *fakeReader) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeReader) GetBlock(ctx context.Context, id store.BlockID) (domain.Block, error) {
	if f.blockErr != nil {
		return domain.Block{}, f.blockErr
	}
	key := id.Hash
	if id.Number != nil {
		key = blockKeyFromNumber(*id.Number)
	}
	b, ok := f.blocks[key]
	if !ok {
		return domain.Block{}, store.ErrNotFound
	}
	return b, nil
}

func blockKeyFromNumber(n uint64) string {
	return "#" + string(rune('0'+n))
}

func (f *fakeReader) GetTransaction(ctx context.Context, hash string) (domain.Transaction, error) {
	if f.txErr != nil {
		return domain.Transaction{}, f.txErr
	}
	tx, ok := f.txs[hash]
	if !ok {
		return domain.Transaction{}, store.ErrNotFound
	}
	return tx, nil
}

func (f *fakeReader) ListLogs(ctx context.Context, filter store.LogFilter, page, pageSize int) ([]domain.Log, error) {
	f.lastFilter = filter
	f.lastPage = page
	f.lastSize = pageSize
	if f.logsErr != nil {
		return nil, f.logsErr
	}
	return f.logs, nil
}

func newTestServer(r *fakeReader) *Server {
	return NewServer(r, nil)
}

func TestHandleIndex(t *testing.T) {
	srv := newTestServer(&fakeReader{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleHealthzOK(t *testing.T) {
	srv := newTestServer(&fakeReader{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleHealthzDBDownReturns500WithGenericMessage(t *testing.T) {
	srv := newTestServer(&fakeReader{pingErr: errors.New("dial tcp 10.0.0.5:5432: connection refused")})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body.Status)
	assert.NotContains(t, body.Message, "10.0.0.5")
}

func TestHandleGetBlockByNumber(t *testing.T) {
	want := domain.Block{Number: 5, Hash: "0xabc"}
	srv := newTestServer(&fakeReader{blocks: map[string]domain.Block{blockKeyFromNumber(5): want}})
	req := httptest.NewRequest(http.MethodGet, "/block/5", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.Block
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, want.Number, got.Number)
}

func TestHandleGetBlockMalformedIDIsBadRequest(t *testing.T) {
	srv := newTestServer(&fakeReader{})
	req := httptest.NewRequest(http.MethodGet, "/block/not-a-block", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "fail", body.Status)
}

func TestHandleGetBlockNotFound(t *testing.T) {
	srv := newTestServer(&fakeReader{blocks: map[string]domain.Block{}})
	req := httptest.NewRequest(http.MethodGet, "/block/999", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetTransactionCaseInsensitiveHash(t *testing.T) {
	canonical := "0x" + repeatChar("a", 64)
	srv := newTestServer(&fakeReader{txs: map[string]domain.Transaction{
		canonical: {Hash: domain.Hash(canonical)},
	}})
	upper := "0x" + repeatChar("A", 64)
	req := httptest.NewRequest(http.MethodGet, "/transaction/"+upper, nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleGetTransactionRejectsShortHash(t *testing.T) {
	srv := newTestServer(&fakeReader{})
	req := httptest.NewRequest(http.MethodGet, "/transaction/0xdead", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListLogsDefaultsPagination(t *testing.T) {
	reader := &fakeReader{logs: []domain.Log{}}
	srv := newTestServer(reader)
	req := httptest.NewRequest(http.MethodPost, "/logs", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, reader.lastPage)
	assert.Equal(t, 25, reader.lastSize)
}

func TestHandleListLogsCanonicalizesFilters(t *testing.T) {
	reader := &fakeReader{logs: []domain.Log{}}
	srv := newTestServer(reader)
	body, _ := json.Marshal(map[string]any{
		"address": "0x" + repeatChar("A", 40),
		"page":    2,
		"pageSize": 10,
	})
	req := httptest.NewRequest(http.MethodPost, "/logs", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0x"+repeatChar("a", 40), reader.lastFilter.Address)
	assert.Equal(t, 2, reader.lastPage)
	assert.Equal(t, 10, reader.lastSize)
}

func TestHandleListLogsRejectsMalformedAddress(t *testing.T) {
	srv := newTestServer(&fakeReader{})
	body, _ := json.Marshal(map[string]any{"address": "not-hex"})
	req := httptest.NewRequest(http.MethodPost, "/logs", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListLogsRejectsInvalidJSON(t *testing.T) {
	srv := newTestServer(&fakeReader{})
	req := httptest.NewRequest(http.MethodPost, "/logs", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleListLogsReturnsStoreErrorAsGenericMessage(t *testing.T) {
	reader := &fakeReader{logsErr: errors.New("pq: syntax error near WHERE")}
	srv := newTestServer(reader)
	req := httptest.NewRequest(http.MethodPost, "/logs", nil)
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body.Message, "pq:")
}

func repeatChar(s string, n int) string {
	out := make([]byte, 0, n*len(s))
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
