// Package chainclient is a thin wrapper over JSON-RPC: latest height,
// block-with-transactions, and per-transaction receipts, each failure mapped
// to a Transient or Missing outcome (package rpcerr) instead of a raw client
// error.
package chainclient

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/example/evm-indexer/internal/rpcerr"
)

// Client dials a single JSON-RPC endpoint and serves latestHeight/block/receipt.
type Client struct {
	eth *ethclient.Client
	rpc *rpc.Client
}

// Dial connects to url. Safe for concurrent use once returned (ethclient
// holds only pooled HTTP connections).
func Dial(ctx context.Context, url string) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, rpcerr.TransientErr(err)
	}
	return &Client{eth: ethclient.NewClient(rc), rpc: rc}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() { c.rpc.Close() }

// LatestHeight returns the current tip. Failure is always Transient.
func (c *Client) LatestHeight(ctx context.Context) (uint64, error) {
	h, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, rpcerr.TransientErr(err)
	}
	return h, nil
}

// Block fetches block n with its transactions, atomically as seen by the
// provider. A well-formed "no such block" response yields a Missing error;
// anything else is Transient.
func (c *Client) Block(ctx context.Context, n uint64) (*types.Block, error) {
	blk, err := c.eth.BlockByNumber(ctx, new(big.Int).SetUint64(n))
	if err != nil {
		if isNotFound(err) {
			return nil, rpcerr.MissingErr(err)
		}
		return nil, rpcerr.TransientErr(err)
	}
	return blk, nil
}

// Receipt fetches the receipt for txHash, including its logs and status.
func (c *Client) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	r, err := c.eth.TransactionReceipt(ctx, txHash)
	if err != nil {
		if isNotFound(err) {
			return nil, rpcerr.MissingErr(err)
		}
		return nil, rpcerr.TransientErr(err)
	}
	return r, nil
}

// BlockReceipts fetches every receipt for block n in a single round trip via
// eth_getBlockReceipts, amortizing the N-receipts-per-block RPC cost noted
// per transaction. Providers that do not implement the method return an
// rpc.Error with a "method not found" message; callers fall back to Receipt
// per transaction in that case.
func (c *Client) BlockReceipts(ctx context.Context, n uint64) ([]*types.Receipt, error) {
	var raw []*types.Receipt
	tag := rpc.BlockNumber(n).String()
	if err := c.rpc.CallContext(ctx, &raw, "eth_getBlockReceipts", tag); err != nil {
		if isMethodNotFound(err) {
			return nil, rpcerr.MissingErr(err)
		}
		if isNotFound(err) {
			return nil, rpcerr.MissingErr(err)
		}
		return nil, rpcerr.TransientErr(err)
	}
	return raw, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ethereum.NotFound)
}

func isMethodNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "method not found") || strings.Contains(msg, "not supported") || strings.Contains(msg, "unknown method")
}
