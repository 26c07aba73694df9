package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/truewear/go-registrar/internal/txerrors"
)

// Client implements Connector on top of one or more backends. With several
// RPC URLs configured it fails over to the next backend when the current one
// returns a transport error.
type Client struct {
	urls     []string
	backends []Backend
	closers  []func()
	mu       sync.RWMutex
	current  int
}

var _ Connector = (*Client)(nil)

// Connect dials every URL and verifies liveness with eth_chainId before
// returning. An unreachable endpoint yields a KindConnection error.
func Connect(ctx context.Context, urls []string) (*Client, error) {
	if len(urls) == 0 {
		return nil, txerrors.Configuration("at least one RPC URL is required")
	}

	client := &Client{}
	for _, url := range urls {
		ethClient, err := ethclient.DialContext(ctx, url)
		if err != nil {
			// keep going, another URL may work
			log.Warn().
				Str("url", RedactURL(url)).
				Err(err).
				Msg("Failed to dial RPC node")
			continue
		}

		client.urls = append(client.urls, url)
		client.backends = append(client.backends, ethClient)
		client.closers = append(client.closers, ethClient.Close)
	}

	if len(client.backends) == 0 {
		return nil, txerrors.New(txerrors.KindConnection, "chain.Connect", "failed to dial any RPC node")
	}

	if _, err := client.ChainID(ctx); err != nil {
		client.Close()
		return nil, &txerrors.Error{
			Kind:   txerrors.KindConnection,
			Op:     "chain.Connect",
			Reason: "RPC endpoint is not reachable",
			Err:    err,
		}
	}

	return client, nil
}

// NewClient wraps already connected backends, e.g. the simulated backend.
// Backends are tried in order, as with Connect.
func NewClient(backends ...Backend) *Client {
	client := &Client{}
	for i, backend := range backends {
		client.urls = append(client.urls, fmt.Sprintf("backend://%d", i))
		client.backends = append(client.backends, backend)
	}

	return client
}

// Close closes all backend connections.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, closeFn := range c.closers {
		closeFn()
	}
	c.closers = nil
}

// Endpoint is the active RPC URL with credentials and path redacted.
func (c *Client) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.urls) == 0 {
		return ""
	}

	return RedactURL(c.urls[c.current])
}

// ChainID returns the chain id reported by the node.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var chainID *big.Int
	err := c.do(ctx, "chain.ChainID", func(b Backend) error {
		var err error
		chainID, err = b.ChainID(ctx)
		return err
	})

	return chainID, err
}

// LatestBlockNumber returns the head block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := c.do(ctx, "chain.BlockNumber", func(b Backend) error {
		var err error
		number, err = b.BlockNumber(ctx)
		return err
	})

	return number, err
}

// Nonce returns the pending nonce of account.
func (c *Client) Nonce(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.do(ctx, "chain.PendingNonceAt", func(b Backend) error {
		var err error
		nonce, err = b.PendingNonceAt(ctx, account)
		return err
	})

	return nonce, err
}

// GasPrice returns the suggested legacy gas price.
func (c *Client) GasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := c.do(ctx, "chain.SuggestGasPrice", func(b Backend) error {
		var err error
		price, err = b.SuggestGasPrice(ctx)
		return err
	})

	return price, err
}

// Block returns header information for block number.
func (c *Client) Block(ctx context.Context, number uint64) (*BlockInfo, error) {
	var header *types.Header
	err := c.do(ctx, "chain.HeaderByNumber", func(b Backend) error {
		var err error
		header, err = b.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
		return err
	})
	if err != nil {
		return nil, err
	}

	//nolint:gosec // block timestamps fit in int64
	return &BlockInfo{
		Number:     header.Number.Uint64(),
		Hash:       header.Hash(),
		ParentHash: header.ParentHash,
		Timestamp:  time.Unix(int64(header.Time), 0).UTC(),
	}, nil
}

// EstimateGas estimates the gas needed by msg.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	var gas uint64
	err := c.do(ctx, "chain.EstimateGas", func(b Backend) error {
		var err error
		gas, err = b.EstimateGas(ctx, msg)
		return err
	})

	return gas, err
}

// Call executes a read-only call at the latest block.
func (c *Client) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var out []byte
	err := c.do(ctx, "chain.CallContract", func(b Backend) error {
		var err error
		out, err = b.CallContract(ctx, msg, nil)
		return err
	})

	return out, err
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.do(ctx, "chain.SendTransaction", func(b Backend) error {
		return b.SendTransaction(ctx, tx)
	})
}

// TransactionKnown reports whether the node has seen hash.
func (c *Client) TransactionKnown(ctx context.Context, hash common.Hash) (bool, error) {
	err := c.do(ctx, "chain.TransactionByHash", func(b Backend) error {
		_, _, err := b.TransactionByHash(ctx, hash)
		return pendingWhileIndexing(err)
	})
	if errors.Is(err, ethereum.NotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

// Receipt returns the receipt of hash, or ethereum.NotFound while pending or
// while the node is still indexing transactions.
func (c *Client) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.do(ctx, "chain.TransactionReceipt", func(b Backend) error {
		var err error
		receipt, err = b.TransactionReceipt(ctx, hash)
		return pendingWhileIndexing(err)
	})

	return receipt, err
}

// do runs fn against the current backend and fails over to the next one on
// transport errors. Any other error is returned after classification.
func (c *Client) do(ctx context.Context, op string, fn func(Backend) error) error {
	c.mu.RLock()
	start := c.current
	count := len(c.backends)
	c.mu.RUnlock()

	if count == 0 {
		return txerrors.New(txerrors.KindConnection, op, "no RPC backend available")
	}

	var lastErr error
	for i := 0; i < count; i++ {
		idx := (start + i) % count

		err := classify(op, fn(c.backends[idx]))
		if err == nil {
			if idx != start {
				c.mu.Lock()
				c.current = idx
				c.mu.Unlock()
			}
			return nil
		}

		if !txerrors.Is(err, txerrors.KindConnection) {
			return err
		}

		log.Warn().
			Str("url", RedactURL(c.urls[idx])).
			Str("op", op).
			Err(err).
			Msg("RPC backend failed, trying next")

		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	return lastErr
}
