package chain

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"

	"github.com/truewear/go-registrar/internal/txerrors"
)

// JSON-RPC error code for a reverted execution (EIP-1474 / geth).
const rpcCodeExecutionReverted = 3

// Error data geth attaches to transaction and receipt lookups while its
// transaction index is still being built.
const txIndexingInProgress = "transaction indexing is in progress"

// classify maps a raw client error onto the txerrors taxonomy.
// ethereum.NotFound and context errors pass through so callers can test for them.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	if _, ok := txerrors.As(err); ok {
		return err
	}

	if errors.Is(err, ethereum.NotFound) {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, op)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		code := rpcErr.ErrorCode()

		var dataErr rpc.DataError
		if errors.As(err, &dataErr) {
			if reason, ok := RevertReason(dataErr.ErrorData()); ok {
				rejected := txerrors.Rejected(txerrors.CodeReverted, op, reason, err)
				rejected.RPCCode = code
				return rejected
			}
		}

		if code == rpcCodeExecutionReverted {
			rejected := txerrors.Rejected(txerrors.CodeReverted, op, "", err)
			rejected.RPCCode = code
			return rejected
		}

		rejected := txerrors.Rejected(txerrors.CodeNodeRejected, op, "", err)
		rejected.RPCCode = code
		return rejected
	}

	return txerrors.Wrap(err, txerrors.KindConnection, op)
}

// pendingWhileIndexing turns geth's indexing-in-progress answer into
// ethereum.NotFound. The lookup may succeed once indexing catches up.
func pendingWhileIndexing(err error) error {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data, ok := dataErr.ErrorData().(string); ok && data == txIndexingInProgress {
			return ethereum.NotFound
		}
	}

	return err
}

// RevertReason decodes the revert payload carried in a JSON-RPC error's data
// field. It returns the Error(string) message, or the raw hex for custom errors.
func RevertReason(data any) (string, bool) {
	encoded, ok := data.(string)
	if !ok || encoded == "" {
		return "", false
	}

	raw, err := hexutil.Decode(encoded)
	if err != nil || len(raw) == 0 {
		return "", false
	}

	reason, err := abi.UnpackRevert(raw)
	if err != nil {
		return encoded, true
	}

	return reason, true
}
