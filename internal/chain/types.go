package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Connector is the read/write surface the registration workflow needs from a
// chain node. Errors are classified into txerrors kinds; a receipt that does
// not exist yet is reported as ethereum.NotFound.
type Connector interface {
	// ChainID returns the network's chain id.
	ChainID(ctx context.Context) (*big.Int, error)

	// LatestBlockNumber returns the head block number.
	LatestBlockNumber(ctx context.Context) (uint64, error)

	// Nonce returns the next nonce for account, including pending transactions.
	Nonce(ctx context.Context, account common.Address) (uint64, error)

	// GasPrice returns the node's suggested legacy gas price.
	GasPrice(ctx context.Context) (*big.Int, error)

	// Block returns header level information for a block.
	Block(ctx context.Context, number uint64) (*BlockInfo, error)

	// EstimateGas simulates msg and returns the gas it needs.
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)

	// Call executes a read-only contract call at the latest block.
	Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)

	// SendTransaction submits a signed transaction.
	SendTransaction(ctx context.Context, tx *types.Transaction) error

	// TransactionKnown reports whether the node knows hash (pending or mined).
	TransactionKnown(ctx context.Context, hash common.Hash) (bool, error)

	// Receipt returns the receipt for hash or ethereum.NotFound while pending.
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	// Close releases the underlying connections.
	Close()
}

// Backend is the subset of the go-ethereum client API used by Client.
// *ethclient.Client and the simulated backend's client both satisfy it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// BlockInfo holds the block fields the workflow reads.
type BlockInfo struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Timestamp  time.Time
}
