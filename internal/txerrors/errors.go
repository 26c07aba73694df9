// Package txerrors defines the error taxonomy shared by the chain
// interaction layer and the registration workflow. Callers branch on Kind
// and Code, never on error text.
package txerrors

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Kind classifies a failure by how the caller is expected to recover.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration is a missing or invalid configuration value. Fatal.
	KindConfiguration
	// KindConnection is an unreachable or failing endpoint. Fatal.
	KindConnection
	// KindBuild is a malformed transaction request. Recoverable per call.
	KindBuild
	// KindSubmissionRejected means the node or the contract refused the transaction.
	KindSubmissionRejected
	// KindConfirmationTimeout means the transaction was sent but no receipt
	// appeared within the bound. Re-poll with the hash, do not resubmit.
	KindConfirmationTimeout
	// KindInvalidKey means the configured key cannot produce a signature.
	KindInvalidKey
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindConnection:
		return "connection"
	case KindBuild:
		return "build"
	case KindSubmissionRejected:
		return "submission_rejected"
	case KindConfirmationTimeout:
		return "confirmation_timeout"
	case KindInvalidKey:
		return "invalid_key"
	default:
		return "unknown"
	}
}

// Code refines KindSubmissionRejected.
type Code int

const (
	CodeUnspecified Code = iota
	// CodeDuplicateProduct: the product id is already registered on chain.
	CodeDuplicateProduct
	// CodeReverted: contract execution reverted; Reason holds the decoded revert string.
	CodeReverted
	// CodeNodeRejected: the node refused the transaction (nonce, funds, fee policy).
	CodeNodeRejected
	// CodeUnknownProduct: the product id is not registered on chain.
	CodeUnknownProduct
)

func (c Code) String() string {
	switch c {
	case CodeDuplicateProduct:
		return "duplicate_product"
	case CodeReverted:
		return "reverted"
	case CodeNodeRejected:
		return "node_rejected"
	case CodeUnknownProduct:
		return "unknown_product"
	default:
		return "unspecified"
	}
}

// Error is the structured error returned across component boundaries.
type Error struct {
	Kind Kind
	Code Code
	// Op names the operation that failed, e.g. "chain.SendTransaction".
	Op string
	// TxHash is set once a transaction hash is known.
	TxHash common.Hash
	// Reason is a human readable detail such as a decoded revert string.
	Reason string
	// RPCCode is the JSON-RPC error code when the node answered with one.
	RPCCode int
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder

	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}

	b.WriteString(e.Kind.String())

	if e.Code != CodeUnspecified {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}

	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}

	if e.TxHash != (common.Hash{}) {
		fmt.Fprintf(&b, " [tx %s]", e.TxHash.Hex())
	}

	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal reports whether the run cannot continue.
func (e *Error) Fatal() bool {
	switch e.Kind {
	case KindConfiguration, KindConnection, KindInvalidKey:
		return true
	default:
		return false
	}
}

// New returns a structured error of the given kind.
func New(kind Kind, op string, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

// Wrap attaches a kind to err. A nil err yields nil.
func Wrap(err error, kind Kind, op string) error {
	if err == nil {
		return nil
	}

	return &Error{Kind: kind, Op: op, Err: err}
}

// Configuration reports missing or invalid configuration keys.
func Configuration(reason string) *Error {
	return &Error{Kind: KindConfiguration, Op: "config", Reason: reason}
}

// Rejected builds a KindSubmissionRejected error with the given code.
func Rejected(code Code, op string, reason string, err error) *Error {
	return &Error{Kind: KindSubmissionRejected, Code: code, Op: op, Reason: reason, Err: err}
}

// Timeout builds a KindConfirmationTimeout error for hash.
func Timeout(op string, hash common.Hash, err error) *Error {
	return &Error{Kind: KindConfirmationTimeout, Op: op, TxHash: hash, Err: err}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var txErr *Error
	if errors.As(err, &txErr) {
		return txErr, true
	}

	return nil, false
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	if txErr, ok := As(err); ok {
		return txErr.Kind
	}

	return KindUnknown
}

// CodeOf returns the Code of the first *Error in err's chain.
func CodeOf(err error) Code {
	if txErr, ok := As(err); ok {
		return txErr.Code
	}

	return CodeUnspecified
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
