package test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/truewear/go-registrar/internal/chain"
	"github.com/truewear/go-registrar/internal/contract"
	"github.com/truewear/go-registrar/internal/txerrors"
)

const fakeGasEstimate = 210_000

// FakeChain is an in-memory chain.Connector that behaves like a node with the
// TrueWear contract deployed at ContractAddress. Fields may be set before use
// to script its behaviour.
type FakeChain struct {
	mu sync.Mutex

	ABI               abi.ABI
	ContractAddress   common.Address
	NetworkChainID    *big.Int
	SuggestedGasPrice *big.Int
	NextBlock         uint64
	BlockTime         time.Time

	// NeverMine keeps every transaction pending forever.
	NeverMine bool
	// PendingPolls is the number of Receipt calls answered with NotFound
	// before a mined receipt is returned.
	PendingPolls int
	// FailNext mines the next transaction with status 0.
	FailNext bool
	// SendErrors are returned by successive SendTransaction calls before
	// sends start to succeed.
	SendErrors []error
	// LoseResponses is the number of sends that are accepted but answered
	// with a transport error, as when the response is lost on the way back.
	LoseResponses int

	nonces     map[common.Address]uint64
	products   map[string]*contract.Product
	productIDs []string
	txs        map[common.Hash]*types.Transaction
	sent       []*types.Transaction
	receipts   map[common.Hash]*types.Receipt
	polls      map[common.Hash]int
	blocks     map[uint64]time.Time

	SendCalls    int
	ReceiptCalls int
	closed       bool
}

var _ chain.Connector = (*FakeChain)(nil)

// NewFakeChain returns a fake Sepolia-like chain with the embedded TrueWear ABI.
func NewFakeChain(t *testing.T) *FakeChain {
	t.Helper()

	parsed, err := contract.DefaultABI()
	require.NoError(t, err)

	return &FakeChain{
		ABI:               parsed,
		ContractAddress:   common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		NetworkChainID:    big.NewInt(11155111),
		SuggestedGasPrice: big.NewInt(100),
		NextBlock:         12345,
		BlockTime:         time.Date(2024, 1, 1, 0, 0, 12, 0, time.UTC),
		nonces:            map[common.Address]uint64{},
		products:          map[string]*contract.Product{},
		txs:               map[common.Hash]*types.Transaction{},
		receipts:          map[common.Hash]*types.Receipt{},
		polls:             map[common.Hash]int{},
		blocks:            map[uint64]time.Time{},
	}
}

// SetNonce sets the pending nonce of account.
func (f *FakeChain) SetNonce(account common.Address, nonce uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nonces[account] = nonce
}

// AddProduct seeds the contract state.
func (f *FakeChain) AddProduct(product contract.Product) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := product
	f.products[p.ID] = &p
	f.productIDs = append(f.productIDs, p.ID)
}

// Product returns the contract state for id.
func (f *FakeChain) Product(id string) (contract.Product, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p, ok := f.products[id]
	if !ok {
		return contract.Product{}, false
	}

	return *p, true
}

// Transactions returns every accepted transaction in send order.
func (f *FakeChain) Transactions() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*types.Transaction{}, f.sent...)
}

// Mine releases a pending transaction when NeverMine was set.
func (f *FakeChain) Mine(hash common.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if tx, ok := f.txs[hash]; ok {
		f.mineLocked(tx)
	}
}

func (f *FakeChain) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}

func (f *FakeChain) ChainID(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.NetworkChainID), nil
}

func (f *FakeChain) LatestBlockNumber(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.NextBlock - 1, nil
}

func (f *FakeChain) Nonce(_ context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.nonces[account], nil
}

func (f *FakeChain) GasPrice(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.SuggestedGasPrice), nil
}

func (f *FakeChain) Block(_ context.Context, number uint64) (*chain.BlockInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ts, ok := f.blocks[number]
	if !ok {
		ts = f.BlockTime
	}

	return &chain.BlockInfo{Number: number, Timestamp: ts}, nil
}

func (f *FakeChain) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if msg.To == nil {
		return fakeGasEstimate * 5, nil
	}

	if reason := f.checkLocked(msg.Data); reason != "" {
		return 0, txerrors.Rejected(txerrors.CodeReverted, "chain.EstimateGas", reason, nil)
	}

	return fakeGasEstimate, nil
}

func (f *FakeChain) Call(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if msg.To == nil || *msg.To != f.ContractAddress {
		return nil, nil
	}

	method, args, err := f.decode(msg.Data)
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case contract.MethodGetProduct:
		p, ok := f.products[args[0].(string)]
		if !ok {
			p = &contract.Product{}
		}
		return method.Outputs.Pack(p.ID, p.Batch, p.Factory, p.Owner, p.Delivered, p.Replaced)
	case contract.MethodGetAllProducts:
		return method.Outputs.Pack(append([]string{}, f.productIDs...))
	default:
		return nil, nil
	}
}

func (f *FakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.SendCalls++

	if len(f.SendErrors) > 0 {
		err := f.SendErrors[0]
		f.SendErrors = f.SendErrors[1:]
		return err
	}

	if _, ok := f.txs[tx.Hash()]; ok {
		return txerrors.Rejected(txerrors.CodeNodeRejected, "chain.SendTransaction", "already known", nil)
	}

	from, err := types.Sender(types.LatestSignerForChainID(f.NetworkChainID), tx)
	if err != nil {
		return txerrors.Rejected(txerrors.CodeNodeRejected, "chain.SendTransaction", "invalid sender", err)
	}

	if tx.Nonce() != f.nonces[from] {
		return txerrors.Rejected(txerrors.CodeNodeRejected, "chain.SendTransaction", "nonce too low", nil)
	}
	f.nonces[from]++

	f.txs[tx.Hash()] = tx
	f.sent = append(f.sent, tx)

	if !f.NeverMine {
		f.mineLocked(tx)
	}

	if f.LoseResponses > 0 {
		f.LoseResponses--
		return txerrors.Wrap(errors.New("read: connection reset by peer"), txerrors.KindConnection, "chain.SendTransaction")
	}

	return nil
}

func (f *FakeChain) TransactionKnown(_ context.Context, hash common.Hash) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.txs[hash]
	return ok, nil
}

func (f *FakeChain) Receipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ReceiptCalls++

	receipt, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}

	if f.polls[hash] < f.PendingPolls {
		f.polls[hash]++
		return nil, ethereum.NotFound
	}

	return receipt, nil
}

func (f *FakeChain) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
}

func (f *FakeChain) mineLocked(tx *types.Transaction) {
	status := types.ReceiptStatusSuccessful
	if f.FailNext {
		status = types.ReceiptStatusFailed
		f.FailNext = false
	}

	receipt := &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(f.NextBlock),
		GasUsed:     fakeGasEstimate / 2,
	}

	if tx.To() == nil {
		from, _ := types.Sender(types.LatestSignerForChainID(f.NetworkChainID), tx)
		receipt.ContractAddress = crypto.CreateAddress(from, tx.Nonce())
	} else if status == types.ReceiptStatusSuccessful {
		if reason := f.checkLocked(tx.Data()); reason != "" {
			receipt.Status = types.ReceiptStatusFailed
		} else {
			f.applyLocked(tx.Data())
		}
	}

	f.receipts[tx.Hash()] = receipt
	f.blocks[f.NextBlock] = f.BlockTime
	f.NextBlock++
	f.BlockTime = f.BlockTime.Add(12 * time.Second)
}

// checkLocked returns the revert reason data would produce, if any.
func (f *FakeChain) checkLocked(data []byte) string {
	method, args, err := f.decode(data)
	if err != nil {
		return "invalid calldata"
	}

	switch method.Name {
	case contract.MethodRegisterProduct:
		id, _ := args[0].(string)
		if id == "" {
			return "Product id is empty"
		}
		if _, exists := f.products[id]; exists {
			return "Product already exists"
		}
	case contract.MethodMarkDelivered, contract.MethodMarkReplaced:
		id, _ := args[0].(string)
		if _, exists := f.products[id]; !exists {
			return "Product does not exist"
		}
	}

	return ""
}

func (f *FakeChain) applyLocked(data []byte) {
	method, args, err := f.decode(data)
	if err != nil {
		return
	}

	id, _ := args[0].(string)

	switch method.Name {
	case contract.MethodRegisterProduct:
		batch, _ := args[1].(string)
		factory, _ := args[2].(string)
		f.products[id] = &contract.Product{ID: id, Batch: batch, Factory: factory}
		f.productIDs = append(f.productIDs, id)
	case contract.MethodMarkDelivered:
		owner, _ := args[1].(string)
		f.products[id].Owner = owner
		f.products[id].Delivered = true
	case contract.MethodMarkReplaced:
		f.products[id].Replaced = true
	}
}

func (f *FakeChain) decode(data []byte) (*abi.Method, []any, error) {
	const selectorLen = 4
	if len(data) < selectorLen {
		return nil, nil, errors.New("calldata too short")
	}

	method, err := f.ABI.MethodById(data[:selectorLen])
	if err != nil {
		return nil, nil, errors.Wrap(err, "unknown selector")
	}

	args, err := method.Inputs.Unpack(data[selectorLen:])
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to decode calldata")
	}

	return method, args, nil
}
