package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/truewear/go-registrar/internal/txbuilder"
)

// Service signs transaction envelopes with the configured key
type Service interface {
	// Address derives the sender address from the key
	Address(ctx context.Context) (common.Address, error)

	// Sign signs env using EIP-155 replay protection for env.ChainID
	Sign(ctx context.Context, env *txbuilder.Envelope) (*SignedTransaction, error)
}

// SignedTransaction is an immutable signed transaction ready for submission
type SignedTransaction struct {
	Method string
	From   common.Address
	Nonce  uint64
	Hash   common.Hash
	// Raw is the RLP-encoded signed transaction
	Raw []byte
	Tx  *types.Transaction
}
