// Package txbuilder assembles unsigned legacy transactions from fully
// resolved requests. It performs no I/O.
package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/truewear/go-registrar/internal/txerrors"
)

const opBuild = "txbuilder.Build"

// Request describes a transaction whose parameters have all been resolved
// against the chain.
type Request struct {
	// Method is informational, e.g. "registerProduct" or "deploy".
	Method string
	From   common.Address
	// To is nil for contract creation.
	To    *common.Address
	Data  []byte
	Value *big.Int
	// Nonce is the sender's transaction count at build time.
	Nonce    *uint64
	GasPrice *big.Int
	GasLimit uint64
	ChainID  *big.Int
}

// Envelope is an unsigned transaction together with the chain it targets.
type Envelope struct {
	Method  string
	From    common.Address
	ChainID *big.Int
	Tx      *types.Transaction
}

// Build validates req and assembles the unsigned transaction.
func Build(req Request) (*Envelope, error) {
	switch {
	case req.Nonce == nil:
		return nil, txerrors.New(txerrors.KindBuild, opBuild, "nonce is not resolved")
	case req.ChainID == nil || req.ChainID.Sign() <= 0:
		return nil, txerrors.New(txerrors.KindBuild, opBuild, "chain id is not resolved")
	case req.GasPrice == nil || req.GasPrice.Sign() < 0:
		return nil, txerrors.New(txerrors.KindBuild, opBuild, "gas price is not resolved")
	case req.GasLimit == 0:
		return nil, txerrors.New(txerrors.KindBuild, opBuild, "gas limit is not resolved")
	case req.From == (common.Address{}):
		return nil, txerrors.New(txerrors.KindBuild, opBuild, "sender is not resolved")
	case req.To == nil && len(req.Data) == 0:
		return nil, txerrors.New(txerrors.KindBuild, opBuild, "contract creation without bytecode")
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	if value.Sign() < 0 {
		return nil, txerrors.New(txerrors.KindBuild, opBuild, "negative value")
	}

	//nolint:varnamelen
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    *req.Nonce,
		GasPrice: new(big.Int).Set(req.GasPrice),
		Gas:      req.GasLimit,
		To:       req.To,
		Value:    new(big.Int).Set(value),
		Data:     common.CopyBytes(req.Data),
	})

	return &Envelope{
		Method:  req.Method,
		From:    req.From,
		ChainID: new(big.Int).Set(req.ChainID),
		Tx:      tx,
	}, nil
}

// Encode packs a call to method after checking it against the contract
// interface. Unknown methods, view methods and mistyped arguments fail with
// KindBuild.
func Encode(parsed abi.ABI, method string, args ...any) ([]byte, error) {
	op := "txbuilder.Encode(" + method + ")"

	m, ok := parsed.Methods[method]
	if !ok {
		return nil, txerrors.New(txerrors.KindBuild, op, "method not in contract ABI")
	}

	if m.IsConstant() {
		return nil, txerrors.New(txerrors.KindBuild, op, "method is read-only and cannot be sent as a transaction")
	}

	if len(args) != len(m.Inputs) {
		return nil, &txerrors.Error{
			Kind:   txerrors.KindBuild,
			Op:     op,
			Reason: fmt.Sprintf("expected %d arguments, got %d", len(m.Inputs), len(args)),
		}
	}

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, txerrors.Wrap(err, txerrors.KindBuild, op)
	}

	return data, nil
}

// EncodeDeploy appends the packed constructor arguments to bytecode.
func EncodeDeploy(parsed abi.ABI, bytecode []byte, args ...any) ([]byte, error) {
	const op = "txbuilder.EncodeDeploy"

	if len(bytecode) == 0 {
		return nil, txerrors.New(txerrors.KindBuild, op, "empty bytecode")
	}

	if len(args) != len(parsed.Constructor.Inputs) {
		return nil, &txerrors.Error{
			Kind:   txerrors.KindBuild,
			Op:     op,
			Reason: fmt.Sprintf("constructor expects %d arguments, got %d", len(parsed.Constructor.Inputs), len(args)),
		}
	}

	packed, err := parsed.Pack("", args...)
	if err != nil {
		return nil, txerrors.Wrap(err, txerrors.KindBuild, op)
	}

	return append(common.CopyBytes(bytecode), packed...), nil
}
