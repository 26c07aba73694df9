package txbuilder_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truewear/go-registrar/internal/contract"
	"github.com/truewear/go-registrar/internal/txbuilder"
	"github.com/truewear/go-registrar/internal/txerrors"
)

func resolvedRequest(t *testing.T) txbuilder.Request {
	t.Helper()

	parsed, err := contract.DefaultABI()
	require.NoError(t, err)

	data, err := txbuilder.Encode(parsed, contract.MethodRegisterProduct, "P20240101000000", "{}", "{}")
	require.NoError(t, err)

	to := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	nonce := uint64(5)

	return txbuilder.Request{
		Method:   contract.MethodRegisterProduct,
		From:     common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		To:       &to,
		Data:     data,
		Nonce:    &nonce,
		GasPrice: big.NewInt(100),
		GasLimit: 210000,
		ChainID:  big.NewInt(11155111),
	}
}

func TestBuild(t *testing.T) {
	req := resolvedRequest(t)

	env, err := txbuilder.Build(req)
	require.NoError(t, err)

	assert.Equal(t, uint64(5), env.Tx.Nonce())
	assert.Equal(t, int64(100), env.Tx.GasPrice().Int64())
	assert.Equal(t, uint64(210000), env.Tx.Gas())
	assert.Equal(t, *req.To, *env.Tx.To())
	assert.Equal(t, req.Data, env.Tx.Data())
	assert.Equal(t, int64(11155111), env.ChainID.Int64())
	assert.Equal(t, int64(0), env.Tx.Value().Int64())

	// the envelope must not alias the request
	req.GasPrice.SetInt64(999)
	req.Data[0] ^= 0xff
	assert.Equal(t, int64(100), env.Tx.GasPrice().Int64())
	assert.NotEqual(t, req.Data[0], env.Tx.Data()[0])
}

func TestBuildRejectsUnresolved(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *txbuilder.Request)
	}{
		{"nonce", func(r *txbuilder.Request) { r.Nonce = nil }},
		{"chain id", func(r *txbuilder.Request) { r.ChainID = nil }},
		{"zero chain id", func(r *txbuilder.Request) { r.ChainID = big.NewInt(0) }},
		{"gas price", func(r *txbuilder.Request) { r.GasPrice = nil }},
		{"gas limit", func(r *txbuilder.Request) { r.GasLimit = 0 }},
		{"sender", func(r *txbuilder.Request) { r.From = common.Address{} }},
		{"creation without code", func(r *txbuilder.Request) { r.To = nil; r.Data = nil }},
		{"negative value", func(r *txbuilder.Request) { r.Value = big.NewInt(-1) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := resolvedRequest(t)
			tt.mutate(&req)

			_, err := txbuilder.Build(req)
			require.Error(t, err)
			assert.True(t, txerrors.Is(err, txerrors.KindBuild))
		})
	}
}

func TestEncodeValidatesAgainstABI(t *testing.T) {
	parsed, err := contract.DefaultABI()
	require.NoError(t, err)

	_, err = txbuilder.Encode(parsed, "burnProduct", "P1")
	assert.True(t, txerrors.Is(err, txerrors.KindBuild), "unknown method")

	_, err = txbuilder.Encode(parsed, contract.MethodRegisterProduct, "P1")
	assert.True(t, txerrors.Is(err, txerrors.KindBuild), "missing arguments")

	_, err = txbuilder.Encode(parsed, contract.MethodRegisterProduct, "P1", 42, "{}")
	assert.True(t, txerrors.Is(err, txerrors.KindBuild), "mistyped argument")

	_, err = txbuilder.Encode(parsed, contract.MethodGetProduct, "P1")
	assert.True(t, txerrors.Is(err, txerrors.KindBuild), "view method")

	data, err := txbuilder.Encode(parsed, contract.MethodMarkReplaced, "P1")
	require.NoError(t, err)
	assert.Equal(t, parsed.Methods[contract.MethodMarkReplaced].ID, data[:4])
}

func TestEncodeDeploy(t *testing.T) {
	parsed, err := contract.DefaultABI()
	require.NoError(t, err)

	code := []byte{0x60, 0x00}
	data, err := txbuilder.EncodeDeploy(parsed, code)
	require.NoError(t, err)
	assert.Equal(t, code, data)

	_, err = txbuilder.EncodeDeploy(parsed, nil)
	assert.True(t, txerrors.Is(err, txerrors.KindBuild))

	_, err = txbuilder.EncodeDeploy(parsed, code, "unexpected")
	assert.True(t, txerrors.Is(err, txerrors.KindBuild))
}
