package signer

import (
	"context"
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"

	"github.com/truewear/go-registrar/internal/txbuilder"
	"github.com/truewear/go-registrar/internal/txerrors"
)

type service struct {
	privateKeyHex string
}

// NewService creates a signer for the hex encoded private key. The key is
// only decoded inside Sign and Address.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewService(privateKeyHex string) (Service, error) {
	if strings.TrimSpace(privateKeyHex) == "" {
		return nil, txerrors.Configuration("PRIVATE_KEY is not set")
	}

	return &service{
		privateKeyHex: strings.TrimSpace(privateKeyHex),
	}, nil
}

// Address derives the sender address
func (s *service) Address(_ context.Context) (common.Address, error) {
	var address common.Address

	err := s.withKey("signer.Address", func(key *ecdsa.PrivateKey) error {
		address = crypto.PubkeyToAddress(key.PublicKey)
		return nil
	})

	return address, err
}

// Sign signs a legacy transaction with EIP-155 replay protection
func (s *service) Sign(_ context.Context, env *txbuilder.Envelope) (*SignedTransaction, error) {
	if env == nil || env.Tx == nil || env.ChainID == nil {
		return nil, txerrors.New(txerrors.KindBuild, "signer.Sign", "incomplete envelope")
	}

	var signed *SignedTransaction

	err := s.withKey("signer.Sign", func(key *ecdsa.PrivateKey) error {
		// Verify from address matches private key
		derivedAddress := crypto.PubkeyToAddress(key.PublicKey)
		if env.From != (common.Address{}) && derivedAddress != env.From {
			return txerrors.New(txerrors.KindInvalidKey, "signer.Sign", "from address does not match private key")
		}

		signedTx, err := types.SignTx(env.Tx, types.LatestSignerForChainID(env.ChainID), key)
		if err != nil {
			return txerrors.Wrap(err, txerrors.KindInvalidKey, "signer.Sign")
		}

		// Encode transaction to RLP
		raw, err := signedTx.MarshalBinary()
		if err != nil {
			return errors.Wrap(err, "failed to marshal transaction")
		}

		signed = &SignedTransaction{
			Method: env.Method,
			From:   derivedAddress,
			Nonce:  signedTx.Nonce(),
			Hash:   signedTx.Hash(),
			Raw:    raw,
			Tx:     signedTx,
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return signed, nil
}

// withKey decodes the key for the duration of fn and clears it afterwards.
func (s *service) withKey(op string, fn func(key *ecdsa.PrivateKey) error) error {
	encoded := s.privateKeyHex
	if !strings.HasPrefix(encoded, "0x") && !strings.HasPrefix(encoded, "0X") {
		encoded = "0x" + encoded
	}

	privateKey, err := hexutil.Decode(strings.ToLower(encoded))
	if err != nil {
		// the decode error may echo key material, keep it out of the chain
		return txerrors.New(txerrors.KindInvalidKey, op, "private key is not valid hex")
	}

	// Clear private key after use
	defer func() {
		for i := range privateKey {
			privateKey[i] = 0
		}
	}()

	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return txerrors.New(txerrors.KindInvalidKey, op, "private key is not a valid secp256k1 key")
	}
	defer key.D.SetInt64(0)

	return fn(key)
}
