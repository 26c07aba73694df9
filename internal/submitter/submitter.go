// Package submitter broadcasts signed transactions and waits for their
// receipts.
package submitter

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"

	"github.com/truewear/go-registrar/internal/chain"
	"github.com/truewear/go-registrar/internal/signer"
	"github.com/truewear/go-registrar/internal/txerrors"
	"github.com/truewear/go-registrar/internal/util"
)

const (
	defaultSendInitialInterval = 500 * time.Millisecond
	defaultSendMaxInterval     = 5 * time.Second
)

type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// Receipt is the confirmed outcome of a transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	Status      Status
	// Timestamp is the including block's timestamp, in UTC.
	Timestamp time.Time
	// ContractAddress is set for contract creations.
	ContractAddress *common.Address
	GasUsed         uint64
	Raw             *types.Receipt
}

type Config struct {
	ReceiptTimeout         time.Duration
	ReceiptPollInterval    time.Duration
	ReceiptMaxPollInterval time.Duration
	SendMaxRetries         int
	SendInitialInterval    time.Duration
}

type Service struct {
	chain  chain.Connector
	config Config
}

func New(connector chain.Connector, config Config) *Service {
	if config.SendInitialInterval <= 0 {
		config.SendInitialInterval = defaultSendInitialInterval
	}
	if config.ReceiptMaxPollInterval < config.ReceiptPollInterval {
		config.ReceiptMaxPollInterval = config.ReceiptPollInterval
	}

	return &Service{
		chain:  connector,
		config: config,
	}
}

// Submit broadcasts signed. Transport failures are retried with the same
// signed payload, so nonce and hash never change. Before every resend the node
// is asked whether it already has the transaction.
func (s *Service) Submit(ctx context.Context, signed *signer.SignedTransaction) (common.Hash, error) {
	log := util.LogFromContext(ctx)

	attempt := 0
	operation := func() error {
		attempt++

		if attempt > 1 {
			if known, err := s.chain.TransactionKnown(ctx, signed.Hash); err == nil && known {
				log.Info().Str("tx_hash", signed.Hash.Hex()).Msg("Node already has transaction, not resending")
				return nil
			}
		}

		err := s.chain.SendTransaction(ctx, signed.Tx)
		if err == nil {
			return nil
		}

		if txerrors.Is(err, txerrors.KindConnection) {
			return err
		}

		// a resend may be refused because the first attempt did reach the node
		if attempt > 1 && txerrors.CodeOf(err) == txerrors.CodeNodeRejected {
			if known, knownErr := s.chain.TransactionKnown(ctx, signed.Hash); knownErr == nil && known {
				return nil
			}
		}

		return backoff.Permanent(err)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = s.config.SendInitialInterval
	expBackoff.MaxInterval = defaultSendMaxInterval
	expBackoff.MaxElapsedTime = 0

	//nolint:gosec // SendMaxRetries is validated to be non-negative
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(s.config.SendMaxRetries)), ctx)

	notify := func(err error, next time.Duration) {
		log.Warn().
			Err(err).
			Str("tx_hash", signed.Hash.Hex()).
			Int("attempt", attempt).
			Dur("retry_in", next).
			Msg("Failed to send transaction, retrying")
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if txErr, ok := txerrors.As(err); ok {
			if txErr.TxHash == (common.Hash{}) {
				txErr.TxHash = signed.Hash
			}
			return common.Hash{}, errors.Wrap(err, "failed to submit transaction")
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return common.Hash{}, errors.Wrapf(err, "submitter.Submit %s", signed.Hash.Hex())
		}

		return common.Hash{}, &txerrors.Error{
			Kind:   txerrors.KindConnection,
			Op:     "submitter.Submit",
			TxHash: signed.Hash,
			Err:    err,
		}
	}

	log.Info().
		Str("tx_hash", signed.Hash.Hex()).
		Str("method", signed.Method).
		Uint64("nonce", signed.Nonce).
		Int("attempts", attempt).
		Msg("Transaction submitted")

	return signed.Hash, nil
}

// AwaitReceipt polls for the receipt of hash with exponential backoff until
// it exists, timeout elapses or ctx is cancelled. A zero timeout uses the
// configured default. Without a receipt the result is a ConfirmationTimeout
// carrying hash, so the caller can poll again later.
func (s *Service) AwaitReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*Receipt, error) {
	log := util.LogFromContext(ctx)

	if timeout <= 0 {
		timeout = s.config.ReceiptTimeout
	}

	localCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		raw   *types.Receipt
		polls int
	)
	operation := func() error {
		polls++

		receipt, err := s.chain.Receipt(localCtx, hash)
		if err == nil {
			raw = receipt
			return nil
		}

		// pending, or a transient transport failure
		if errors.Is(err, ethereum.NotFound) || txerrors.Is(err, txerrors.KindConnection) {
			return err
		}

		return backoff.Permanent(err)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = s.config.ReceiptPollInterval
	expBackoff.MaxInterval = s.config.ReceiptMaxPollInterval
	expBackoff.MaxElapsedTime = 0

	notify := func(err error, next time.Duration) {
		log.Debug().
			Str("tx_hash", hash.Hex()).
			Int("poll", polls).
			Dur("next_poll_in", next).
			AnErr("last_err", err).
			Msg("Receipt not available yet")
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(expBackoff, localCtx), notify); err != nil {
		if localCtx.Err() != nil || errors.Is(err, ethereum.NotFound) || txerrors.Is(err, txerrors.KindConnection) {
			timeoutErr := txerrors.Timeout("submitter.AwaitReceipt", hash, err)
			if ctx.Err() != nil {
				timeoutErr.Reason = "cancelled while waiting for receipt"
			} else {
				timeoutErr.Reason = "no receipt within " + timeout.String()
			}
			return nil, timeoutErr
		}

		return nil, errors.Wrap(err, "failed to get transaction receipt")
	}

	return s.toReceipt(ctx, raw)
}

func (s *Service) toReceipt(ctx context.Context, raw *types.Receipt) (*Receipt, error) {
	status := StatusFailed
	if raw.Status == types.ReceiptStatusSuccessful {
		status = StatusSuccess
	}

	receipt := &Receipt{
		TxHash:      raw.TxHash,
		BlockNumber: raw.BlockNumber.Uint64(),
		Status:      status,
		GasUsed:     raw.GasUsed,
		Raw:         raw,
	}

	if raw.ContractAddress != (common.Address{}) {
		address := raw.ContractAddress
		receipt.ContractAddress = &address
	}

	block, err := s.chain.Block(ctx, receipt.BlockNumber)
	if err != nil {
		util.LogFromContext(ctx).Warn().
			Err(err).
			Uint64("block_number", receipt.BlockNumber).
			Msg("Failed to read block timestamp, using local time")
		receipt.Timestamp = time.Now().UTC()
	} else {
		receipt.Timestamp = block.Timestamp
	}

	return receipt, nil
}
