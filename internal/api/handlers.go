package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/example/evm-indexer/internal/domain"
	"github.com/example/evm-indexer/internal/store"
)

// Reader is the subset of *store.Store the Read API depends on — defined
// here (the consumer) so handler tests drive a fake instead of a live pool.
type Reader interface {
	Ping(ctx context.Context) error
	GetBlock(ctx context.Context, id store.BlockID) (domain.Block, error)
	GetTransaction(ctx context.Context, hash string) (domain.Transaction, error)
	ListLogs(ctx context.Context, filter store.LogFilter, page, pageSize int) ([]domain.Log, error)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"service": "evm-indexer"})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.reader.Ping(r.Context()); err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	id, err := store.ParseBlockID(mux.Vars(r)["id"])
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	block, err := s.reader.GetBlock(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		notFound(w, "block not found")
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, block)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]
	if !domain.ValidHashLen(strings.ToLower(hash)) {
		badRequest(w, "transaction hash must be a 0x-prefixed 32-byte hex value")
		return
	}
	tx, err := s.reader.GetTransaction(r.Context(), domain.CanonicalHex(hash))
	if errors.Is(err, store.ErrNotFound) {
		notFound(w, "transaction not found")
		return
	}
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// logsRequest is the POST /logs body.
type logsRequest struct {
	FromBlock *uint64 `json:"fromBlock"`
	ToBlock   *uint64 `json:"toBlock"`
	Address   string  `json:"address"`
	Topic0    string  `json:"topic0"`
	Topic1    string  `json:"topic1"`
	Topic2    string  `json:"topic2"`
	Topic3    string  `json:"topic3"`
	BlockHash string  `json:"blockHash"`
	Page      int     `json:"page"`
	PageSize  int     `json:"pageSize"`
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	var req logsRequest
	if r.Body != nil {
		defer r.Body.Close()
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			badRequest(w, "request body must be valid JSON")
			return
		}
	}

	if req.Address != "" && !domain.ValidAddressLen(strings.ToLower(req.Address)) {
		badRequest(w, "address must be a 0x-prefixed 20-byte hex value")
		return
	}
	if req.BlockHash != "" && !domain.ValidHashLen(strings.ToLower(req.BlockHash)) {
		badRequest(w, "blockHash must be a 0x-prefixed 32-byte hex value")
		return
	}
	for _, t := range []string{req.Topic0, req.Topic1, req.Topic2, req.Topic3} {
		if t != "" && !domain.ValidHashLen(strings.ToLower(t)) {
			badRequest(w, "topic filters must be 0x-prefixed 32-byte hex values")
			return
		}
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}

	filter := store.LogFilter{
		FromBlock: req.FromBlock,
		ToBlock:   req.ToBlock,
		Address:   canonicalOrEmpty(req.Address),
		Topic0:    canonicalOrEmpty(req.Topic0),
		Topic1:    canonicalOrEmpty(req.Topic1),
		Topic2:    canonicalOrEmpty(req.Topic2),
		Topic3:    canonicalOrEmpty(req.Topic3),
		BlockHash: canonicalOrEmpty(req.BlockHash),
	}

	logs, err := s.reader.ListLogs(r.Context(), filter, page, pageSize)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"page":     page,
		"pageSize": pageSize,
		"logs":     logs,
	})
}

func canonicalOrEmpty(s string) string {
	if s == "" {
		return ""
	}
	return domain.CanonicalHex(s)
}
