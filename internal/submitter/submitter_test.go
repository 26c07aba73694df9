package submitter_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truewear/go-registrar/internal/chain"
	"github.com/truewear/go-registrar/internal/contract"
	"github.com/truewear/go-registrar/internal/signer"
	"github.com/truewear/go-registrar/internal/submitter"
	"github.com/truewear/go-registrar/internal/test"
	"github.com/truewear/go-registrar/internal/txbuilder"
	"github.com/truewear/go-registrar/internal/txerrors"
)

const testKey = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"

func fastConfig() submitter.Config {
	return submitter.Config{
		ReceiptTimeout:         2 * time.Second,
		ReceiptPollInterval:    5 * time.Millisecond,
		ReceiptMaxPollInterval: 20 * time.Millisecond,
		SendMaxRetries:         3,
		SendInitialInterval:    time.Millisecond,
	}
}

func signRegistration(t *testing.T, fake *test.FakeChain, productID string) *signer.SignedTransaction {
	t.Helper()
	ctx := t.Context()

	s, err := signer.NewService(testKey)
	require.NoError(t, err)

	from, err := s.Address(ctx)
	require.NoError(t, err)

	data, err := txbuilder.Encode(fake.ABI, contract.MethodRegisterProduct, productID, "{}", "{}")
	require.NoError(t, err)

	nonce, err := fake.Nonce(ctx, from)
	require.NoError(t, err)

	env, err := txbuilder.Build(txbuilder.Request{
		Method:   contract.MethodRegisterProduct,
		From:     from,
		To:       &fake.ContractAddress,
		Data:     data,
		Nonce:    &nonce,
		GasPrice: big.NewInt(100),
		GasLimit: 210000,
		ChainID:  fake.NetworkChainID,
	})
	require.NoError(t, err)

	signed, err := s.Sign(ctx, env)
	require.NoError(t, err)

	return signed
}

func TestSubmitAndAwait(t *testing.T) {
	fake := test.NewFakeChain(t)
	fake.PendingPolls = 3
	svc := submitter.New(fake, fastConfig())

	signed := signRegistration(t, fake, "P20240101000000")

	hash, err := svc.Submit(t.Context(), signed)
	require.NoError(t, err)
	assert.Equal(t, signed.Hash, hash)

	receipt, err := svc.AwaitReceipt(t.Context(), hash, 0)
	require.NoError(t, err)

	assert.Equal(t, submitter.StatusSuccess, receipt.Status)
	assert.Equal(t, uint64(12345), receipt.BlockNumber)
	assert.Equal(t, hash, receipt.TxHash)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 12, 0, time.UTC), receipt.Timestamp)
	assert.Nil(t, receipt.ContractAddress)
	assert.Equal(t, 4, fake.ReceiptCalls)
}

func TestSubmitRetriesTransportErrorsWithSamePayload(t *testing.T) {
	fake := test.NewFakeChain(t)
	fake.SendErrors = []error{
		txerrors.Wrap(errors.New("connection reset"), txerrors.KindConnection, "chain.SendTransaction"),
		txerrors.Wrap(errors.New("connection reset"), txerrors.KindConnection, "chain.SendTransaction"),
	}
	svc := submitter.New(fake, fastConfig())

	signed := signRegistration(t, fake, "P1")

	hash, err := svc.Submit(t.Context(), signed)
	require.NoError(t, err)
	assert.Equal(t, signed.Hash, hash)
	assert.Equal(t, 3, fake.SendCalls)

	txs := fake.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, signed.Hash, txs[0].Hash())
}

func TestSubmitDoesNotResendKnownTransaction(t *testing.T) {
	fake := test.NewFakeChain(t)
	fake.LoseResponses = 1
	svc := submitter.New(fake, fastConfig())

	signed := signRegistration(t, fake, "P1")

	hash, err := svc.Submit(t.Context(), signed)
	require.NoError(t, err)
	assert.Equal(t, signed.Hash, hash)
	assert.Equal(t, 1, fake.SendCalls)
}

func TestSubmitGivesUpAfterMaxRetries(t *testing.T) {
	fake := test.NewFakeChain(t)
	for range 10 {
		fake.SendErrors = append(fake.SendErrors,
			txerrors.Wrap(errors.New("connection refused"), txerrors.KindConnection, "chain.SendTransaction"))
	}
	svc := submitter.New(fake, fastConfig())

	signed := signRegistration(t, fake, "P1")

	_, err := svc.Submit(t.Context(), signed)
	require.Error(t, err)
	assert.True(t, txerrors.Is(err, txerrors.KindConnection))
	assert.Equal(t, 4, fake.SendCalls)

	txErr, ok := txerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, signed.Hash, txErr.TxHash)
}

func TestSubmitCancelledWhileRetrying(t *testing.T) {
	fake := test.NewFakeChain(t)
	for range 10 {
		fake.SendErrors = append(fake.SendErrors,
			txerrors.Wrap(errors.New("connection refused"), txerrors.KindConnection, "chain.SendTransaction"))
	}
	svc := submitter.New(fake, fastConfig())

	signed := signRegistration(t, fake, "P1")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := svc.Submit(ctx, signed)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, txerrors.KindUnknown, txerrors.KindOf(err))
	assert.Equal(t, 1, fake.SendCalls)
}

func TestSubmitRejectionIsNotRetried(t *testing.T) {
	fake := test.NewFakeChain(t)
	fake.SendErrors = []error{
		txerrors.Rejected(txerrors.CodeNodeRejected, "chain.SendTransaction", "insufficient funds", nil),
	}
	svc := submitter.New(fake, fastConfig())

	_, err := svc.Submit(t.Context(), signRegistration(t, fake, "P1"))
	require.Error(t, err)
	assert.True(t, txerrors.Is(err, txerrors.KindSubmissionRejected))
	assert.Equal(t, txerrors.CodeNodeRejected, txerrors.CodeOf(err))
	assert.Equal(t, 1, fake.SendCalls)
}

func TestAwaitReceiptTimesOut(t *testing.T) {
	fake := test.NewFakeChain(t)
	fake.NeverMine = true
	svc := submitter.New(fake, fastConfig())

	signed := signRegistration(t, fake, "P1")
	hash, err := svc.Submit(t.Context(), signed)
	require.NoError(t, err)

	start := time.Now()
	_, err = svc.AwaitReceipt(t.Context(), hash, 100*time.Millisecond)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	txErr, ok := txerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, txerrors.KindConfirmationTimeout, txErr.Kind)
	assert.Equal(t, hash, txErr.TxHash)
	assert.Greater(t, fake.ReceiptCalls, 1)

	// the hash stays valid: once mined it can be polled again
	fake.Mine(hash)
	receipt, err := svc.AwaitReceipt(t.Context(), hash, time.Second)
	require.NoError(t, err)
	assert.Equal(t, submitter.StatusSuccess, receipt.Status)
}

func TestAwaitReceiptHonoursCancellation(t *testing.T) {
	fake := test.NewFakeChain(t)
	svc := submitter.New(fake, fastConfig())

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := svc.AwaitReceipt(ctx, common.HexToHash("0xabc"), time.Minute)
	require.Error(t, err)
	assert.True(t, txerrors.Is(err, txerrors.KindConfirmationTimeout))
}

// indexingBackend answers receipt lookups like a node that is still indexing
// transactions for the first `indexing` polls.
type indexingBackend struct {
	chain.Backend
	indexing     int
	receiptCalls int
}

func (b *indexingBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.receiptCalls++
	if b.receiptCalls <= b.indexing {
		return nil, test.IndexingError()
	}
	return &types.Receipt{TxHash: hash, Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(12345)}, nil
}

func (b *indexingBackend) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: number, Time: 1704067212}, nil
}

func TestAwaitReceiptWhileNodeIsIndexing(t *testing.T) {
	backend := &indexingBackend{indexing: 2}
	svc := submitter.New(chain.NewClient(backend), fastConfig())
	hash := common.HexToHash("0xabc")

	receipt, err := svc.AwaitReceipt(t.Context(), hash, time.Second)
	require.NoError(t, err)
	assert.Equal(t, submitter.StatusSuccess, receipt.Status)
	assert.Equal(t, uint64(12345), receipt.BlockNumber)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 12, 0, time.UTC), receipt.Timestamp)
	assert.Equal(t, 3, backend.receiptCalls)
}

func TestAwaitReceiptTimesOutWhileNodeIsIndexing(t *testing.T) {
	backend := &indexingBackend{indexing: 1 << 20}
	svc := submitter.New(chain.NewClient(backend), fastConfig())
	hash := common.HexToHash("0xabc")

	_, err := svc.AwaitReceipt(t.Context(), hash, 100*time.Millisecond)
	require.Error(t, err)

	txErr, ok := txerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, txerrors.KindConfirmationTimeout, txErr.Kind)
	assert.Equal(t, hash, txErr.TxHash)
	assert.Greater(t, backend.receiptCalls, 1)
}

func TestAwaitReceiptFailedStatus(t *testing.T) {
	fake := test.NewFakeChain(t)
	fake.FailNext = true
	svc := submitter.New(fake, fastConfig())

	hash, err := svc.Submit(t.Context(), signRegistration(t, fake, "P1"))
	require.NoError(t, err)

	receipt, err := svc.AwaitReceipt(t.Context(), hash, 0)
	require.NoError(t, err)
	assert.Equal(t, submitter.StatusFailed, receipt.Status)
}

func TestSubmitOnSimulatedChain(t *testing.T) {
	sim := test.NewSimulatedChain(t)
	sim.AutoCommit(t, 20*time.Millisecond)
	ctx := t.Context()

	s, err := signer.NewService(sim.KeyHex)
	require.NoError(t, err)

	parsed, err := contract.DefaultABI()
	require.NoError(t, err)

	data, err := txbuilder.EncodeDeploy(parsed, test.StopContractBytecode)
	require.NoError(t, err)

	nonce, err := sim.Client.Nonce(ctx, sim.Address)
	require.NoError(t, err)
	gasPrice, err := sim.Client.GasPrice(ctx)
	require.NoError(t, err)
	chainID, err := sim.Client.ChainID(ctx)
	require.NoError(t, err)

	env, err := txbuilder.Build(txbuilder.Request{
		Method:   "deploy",
		From:     sim.Address,
		Data:     data,
		Nonce:    &nonce,
		GasPrice: gasPrice,
		GasLimit: 100000,
		ChainID:  chainID,
	})
	require.NoError(t, err)

	signed, err := s.Sign(ctx, env)
	require.NoError(t, err)

	svc := submitter.New(sim.Client, fastConfig())

	hash, err := svc.Submit(ctx, signed)
	require.NoError(t, err)

	receipt, err := svc.AwaitReceipt(ctx, hash, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, submitter.StatusSuccess, receipt.Status)
	require.NotNil(t, receipt.ContractAddress)
	assert.False(t, receipt.Timestamp.IsZero())

	code, err := sim.Backend.Client().CodeAt(ctx, *receipt.ContractAddress, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, code)
}
