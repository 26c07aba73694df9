package test

import (
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"

	"github.com/truewear/go-registrar/internal/chain"
)

// StopContractBytecode deploys a contract whose runtime code is a single
// STOP, so any call to it succeeds.
var StopContractBytecode = common.FromHex("0x6001600c60003960016000f300")

// SimulatedChain is an in-process chain with one funded account.
type SimulatedChain struct {
	Backend *simulated.Backend
	Client  *chain.Client
	Key     *ecdsa.PrivateKey
	// KeyHex is the funded account's private key as PRIVATE_KEY expects it.
	KeyHex  string
	Address common.Address
}

// NewSimulatedChain starts a simulated backend that is closed when t ends.
func NewSimulatedChain(t *testing.T) *SimulatedChain {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	address := crypto.PubkeyToAddress(key.PublicKey)
	balance := new(big.Int).Mul(big.NewInt(100), big.NewInt(params.Ether))

	backend := simulated.NewBackend(types.GenesisAlloc{
		address: {Balance: balance},
	})
	t.Cleanup(func() {
		_ = backend.Close()
	})

	return &SimulatedChain{
		Backend: backend,
		Client:  chain.NewClient(backend.Client()),
		Key:     key,
		KeyHex:  hexutil.Encode(crypto.FromECDSA(key)),
		Address: address,
	}
}

// AutoCommit mines a block every interval until the test ends.
func (s *SimulatedChain) AutoCommit(t *testing.T, interval time.Duration) {
	t.Helper()

	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.Backend.Commit()
			}
		}
	}()

	t.Cleanup(func() {
		close(done)
		<-stopped
	})
}
