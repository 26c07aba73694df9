package test

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RPCError mimics the JSON-RPC error values returned by go-ethereum's rpc
// client. It implements rpc.Error and rpc.DataError.
type RPCError struct {
	Code    int
	Message string
	Data    any
}

func (e *RPCError) Error() string  { return e.Message }
func (e *RPCError) ErrorCode() int { return e.Code }
func (e *RPCError) ErrorData() any { return e.Data }

// RevertError builds the error a node returns for require(false, reason).
func RevertError(reason string) *RPCError {
	return &RPCError{
		Code:    3,
		Message: "execution reverted: " + reason,
		Data:    hexutil.Encode(RevertData(reason)),
	}
}

// IndexingError is geth's answer to a transaction or receipt lookup while
// its transaction index is still being built.
func IndexingError() *RPCError {
	return &RPCError{
		Code:    -32000,
		Message: "transaction indexing is in progress",
		Data:    "transaction indexing is in progress",
	}
}

// RevertData ABI encodes reason as Error(string) revert data.
func RevertData(reason string) []byte {
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}

	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	if err != nil {
		panic(err)
	}

	// keccak256("Error(string)")[:4]
	selector := []byte{0x08, 0xc3, 0x79, 0xa0}

	return append(selector, packed...)
}
