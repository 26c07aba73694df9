// Package registrar drives the product registration workflow: it resolves a
// transaction against the chain, signs, submits and confirms it, then records
// the outcome in the registration log.
package registrar

import (
	"context"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/truewear/go-registrar/internal/chain"
	"github.com/truewear/go-registrar/internal/config"
	"github.com/truewear/go-registrar/internal/contract"
	"github.com/truewear/go-registrar/internal/metrics"
	"github.com/truewear/go-registrar/internal/qr"
	"github.com/truewear/go-registrar/internal/reglog"
	"github.com/truewear/go-registrar/internal/signer"
	"github.com/truewear/go-registrar/internal/submitter"
	"github.com/truewear/go-registrar/internal/txbuilder"
	"github.com/truewear/go-registrar/internal/txerrors"
	"github.com/truewear/go-registrar/internal/util"
)

const (
	gasEstimateBufferPercent = 20
	productIDLayout          = "20060102150405"
	methodDeploy             = "deploy"
)

// Registration is the input of RegisterProduct.
type Registration struct {
	// ProductID is generated from the clock when empty.
	ProductID string
	Delivery  reglog.DeliveryInfo
	// Replacement defaults to reglog.NoReplacement().
	Replacement *reglog.ReplacementInfo
}

type Service struct {
	config    config.Registrar
	chain     chain.Connector
	signer    signer.Service
	submitter *submitter.Service
	store     reglog.Store
	metrics   *metrics.Service
	abi       abi.ABI
	registry  *contract.Registry
	now       func() time.Time
}

type Option func(*Service)

// WithMetrics records every submission in m.
func WithMetrics(m *metrics.Service) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock replaces time.Now for product ids and delivery timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New wires the workflow. The contract views are only available when
// CONTRACT_ADDRESS is configured.
func New(
	cfg config.Registrar,
	connector chain.Connector,
	signerService signer.Service,
	store reglog.Store,
	opts ...Option,
) (*Service, error) {
	parsed, err := contract.LoadABI(cfg.Paths.ABIFile)
	if err != nil {
		return nil, err
	}

	s := &Service{
		config: cfg,
		chain:  connector,
		signer: signerService,
		submitter: submitter.New(connector, submitter.Config{
			ReceiptTimeout:         cfg.Submission.ReceiptTimeout,
			ReceiptPollInterval:    cfg.Submission.ReceiptPollInterval,
			ReceiptMaxPollInterval: cfg.Submission.ReceiptMaxPollInterval,
			SendMaxRetries:         cfg.Submission.SendMaxRetries,
		}),
		store: store,
		abi:   parsed,
		now:   time.Now,
	}

	if cfg.Chain.ContractAddress != "" {
		if !common.IsHexAddress(cfg.Chain.ContractAddress) {
			return nil, txerrors.Configuration(config.KeyContractAddress + " is not a valid address")
		}
		s.registry = contract.NewRegistry(parsed, common.HexToAddress(cfg.Chain.ContractAddress), connector)
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// NewProductID derives a product id from now, e.g. P20240101000000.
func NewProductID(now time.Time) string {
	return "P" + now.UTC().Format(productIDLayout)
}

// ExplorerLink is the block explorer page of hash.
func (s *Service) ExplorerLink(hash common.Hash) string {
	return "https://" + s.config.Chain.ExplorerHost + "/tx/" + hash.Hex()
}

// RegisterProduct registers reg on chain, waits for its receipt and appends
// the confirmed outcome to the log. Nothing is appended when an error is
// returned. A receipt with status Failed is still recorded.
func (s *Service) RegisterProduct(ctx context.Context, reg Registration) (*reglog.Record, error) {
	registry, err := s.requireRegistry()
	if err != nil {
		return nil, err
	}

	now := s.now()

	productID := reg.ProductID
	if productID == "" {
		productID = NewProductID(now)
	}

	if err := validateProductID(productID); err != nil {
		return nil, err
	}

	delivery := reg.Delivery
	if delivery.Timestamp == "" {
		delivery.Timestamp = reglog.FormatTimestamp(now)
	}

	replacement := reglog.NoReplacement()
	if reg.Replacement != nil {
		replacement = *reg.Replacement
	}

	log := util.LogFromContext(ctx).With().Str("product_id", productID).Logger()

	if _, found, err := registry.GetProduct(ctx, productID); err != nil {
		return nil, err
	} else if found {
		s.observeTransaction(contract.MethodRegisterProduct, metrics.OutcomeRejected)
		return nil, txerrors.Rejected(txerrors.CodeDuplicateProduct, "registrar.RegisterProduct",
			"product "+productID+" already exists", nil)
	}

	deliveryJSON, err := json.Marshal(delivery)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode delivery info")
	}
	replacementJSON, err := json.Marshal(replacement)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode replacement info")
	}

	data, err := txbuilder.Encode(s.abi, contract.MethodRegisterProduct, productID, string(deliveryJSON), string(replacementJSON))
	if err != nil {
		return nil, err
	}

	to := registry.Address()
	receipt, err := s.transact(ctx, contract.MethodRegisterProduct, &to, data)
	if err != nil {
		return nil, err
	}

	link := s.ExplorerLink(receipt.TxHash)

	qrFile, err := qr.Generate(s.config.Paths.QRDir, productID, receipt.TxHash.Hex(), link)
	if err != nil {
		// the transaction is final, so the record is kept without an image
		log.Error().Err(err).Str("tx_hash", receipt.TxHash.Hex()).Msg("Failed to generate QR code")
	}

	record := reglog.Record{
		Timestamp:       reglog.FormatTimestamp(receipt.Timestamp),
		ProductID:       productID,
		DeliveryInfo:    delivery,
		ReplacementInfo: replacement,
		TxHash:          receipt.TxHash.Hex(),
		BlockNumber:     receipt.BlockNumber,
		Status:          string(receipt.Status),
		EtherscanLink:   link,
		QRCodeFile:      qrFile,
	}

	if err := s.store.Append(ctx, record); err != nil {
		log.Error().
			Err(err).
			Str("tx_hash", record.TxHash).
			Uint64("block_number", record.BlockNumber).
			Str("status", record.Status).
			Msg("Registration confirmed on chain but could not be logged")
		return nil, errors.Wrapf(err, "failed to log registration of %s (tx %s)", productID, record.TxHash)
	}

	if s.metrics != nil {
		s.metrics.ObserveLogAppend(record.Status)
	}

	log.Info().
		Str("tx_hash", record.TxHash).
		Uint64("block_number", record.BlockNumber).
		Str("status", record.Status).
		Str("qr_code_file", record.QRCodeFile).
		Msg("Product registered")

	return &record, nil
}

// MarkDelivered records the hand-over of productID to owner.
func (s *Service) MarkDelivered(ctx context.Context, productID string, owner string) (*submitter.Receipt, error) {
	return s.updateProduct(ctx, contract.MethodMarkDelivered, productID, owner)
}

// MarkReplaced flags productID as replaced.
func (s *Service) MarkReplaced(ctx context.Context, productID string) (*submitter.Receipt, error) {
	return s.updateProduct(ctx, contract.MethodMarkReplaced, productID)
}

func (s *Service) updateProduct(ctx context.Context, method string, productID string, args ...any) (*submitter.Receipt, error) {
	registry, err := s.requireRegistry()
	if err != nil {
		return nil, err
	}

	if _, found, err := registry.GetProduct(ctx, productID); err != nil {
		return nil, err
	} else if !found {
		s.observeTransaction(method, metrics.OutcomeRejected)
		return nil, txerrors.Rejected(txerrors.CodeUnknownProduct, "registrar."+method,
			"product "+productID+" does not exist", nil)
	}

	data, err := txbuilder.Encode(s.abi, method, append([]any{productID}, args...)...)
	if err != nil {
		return nil, err
	}

	to := registry.Address()
	receipt, err := s.transact(ctx, method, &to, data)
	if err != nil {
		return nil, err
	}

	util.LogFromContext(ctx).Info().
		Str("product_id", productID).
		Str("method", method).
		Str("tx_hash", receipt.TxHash.Hex()).
		Str("status", string(receipt.Status)).
		Msg("Product updated")

	return receipt, nil
}

// Deploy creates the contract described by artifact and returns its receipt.
// A creation that fails on chain is reported as reverted.
func (s *Service) Deploy(ctx context.Context, artifact *contract.Artifact) (*submitter.Receipt, error) {
	if artifact == nil {
		return nil, txerrors.New(txerrors.KindBuild, "registrar.Deploy", "no contract artifact")
	}

	data, err := txbuilder.EncodeDeploy(artifact.ABI, artifact.Bytecode)
	if err != nil {
		return nil, err
	}

	receipt, err := s.transact(ctx, methodDeploy, nil, data)
	if err != nil {
		return nil, err
	}

	if receipt.Status != submitter.StatusSuccess || receipt.ContractAddress == nil {
		return receipt, &txerrors.Error{
			Kind:   txerrors.KindSubmissionRejected,
			Code:   txerrors.CodeReverted,
			Op:     "registrar.Deploy",
			TxHash: receipt.TxHash,
			Reason: "contract creation failed",
		}
	}

	util.LogFromContext(ctx).Info().
		Str("contract", artifact.Name).
		Str("address", receipt.ContractAddress.Hex()).
		Str("tx_hash", receipt.TxHash.Hex()).
		Msg("Contract deployed")

	return receipt, nil
}

// AwaitReceipt polls again for a transaction that timed out earlier.
func (s *Service) AwaitReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (*submitter.Receipt, error) {
	return s.submitter.AwaitReceipt(ctx, hash, timeout)
}

// Product reads productID from the contract.
func (s *Service) Product(ctx context.Context, productID string) (*contract.Product, bool, error) {
	registry, err := s.requireRegistry()
	if err != nil {
		return nil, false, err
	}

	return registry.GetProduct(ctx, productID)
}

// Products lists every product id registered on the contract.
func (s *Service) Products(ctx context.Context) ([]string, error) {
	registry, err := s.requireRegistry()
	if err != nil {
		return nil, err
	}

	return registry.AllProducts(ctx)
}

// Log returns the local registration log in append order.
func (s *Service) Log(ctx context.Context) ([]reglog.Record, error) {
	return s.store.List(ctx)
}

// LogRecord returns the first local log record of productID.
func (s *Service) LogRecord(ctx context.Context, productID string) (*reglog.Record, bool, error) {
	return s.store.Find(ctx, productID)
}

// transact resolves, builds, signs and submits one transaction and waits for
// its receipt. to is nil for contract creation.
func (s *Service) transact(ctx context.Context, method string, to *common.Address, data []byte) (*submitter.Receipt, error) {
	receipt, err := s.doTransact(ctx, method, to, data)
	s.observeTransaction(method, outcomeOf(receipt, err))

	return receipt, err
}

func (s *Service) doTransact(ctx context.Context, method string, to *common.Address, data []byte) (*submitter.Receipt, error) {
	log := util.LogFromContext(ctx)

	from, err := s.signer.Address(ctx)
	if err != nil {
		return nil, err
	}

	chainID, err := s.chain.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	if s.config.Chain.ChainID != 0 && chainID.Cmp(big.NewInt(s.config.Chain.ChainID)) != 0 {
		return nil, txerrors.New(txerrors.KindBuild, "registrar."+method,
			"node reports chain id "+chainID.String()+", "+config.KeyChainID+" expects "+big.NewInt(s.config.Chain.ChainID).String())
	}

	nonce, err := s.chain.Nonce(ctx, from)
	if err != nil {
		return nil, err
	}

	gasPrice, err := s.chain.GasPrice(ctx)
	if err != nil {
		return nil, err
	}

	gasLimit := s.config.Chain.GasLimit
	if gasLimit == 0 {
		estimate, err := s.chain.EstimateGas(ctx, ethereum.CallMsg{
			From:     from,
			To:       to,
			GasPrice: gasPrice,
			Data:     data,
		})
		if err != nil {
			return nil, err
		}
		gasLimit = estimate + estimate*gasEstimateBufferPercent/100
	}

	envelope, err := txbuilder.Build(txbuilder.Request{
		Method:   method,
		From:     from,
		To:       to,
		Data:     data,
		Nonce:    &nonce,
		GasPrice: gasPrice,
		GasLimit: gasLimit,
		ChainID:  chainID,
	})
	if err != nil {
		return nil, err
	}

	signed, err := s.signer.Sign(ctx, envelope)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("method", method).
		Str("from", from.Hex()).
		Uint64("nonce", nonce).
		Str("gas_price", gasPrice.String()).
		Uint64("gas_limit", gasLimit).
		Str("chain_id", chainID.String()).
		Str("tx_hash", signed.Hash.Hex()).
		Msg("Transaction signed")

	submittedAt := time.Now()

	hash, err := s.submitter.Submit(ctx, signed)
	if err != nil {
		return nil, err
	}

	receipt, err := s.submitter.AwaitReceipt(ctx, hash, 0)
	if err != nil {
		log.Warn().
			Err(err).
			Str("tx_hash", hash.Hex()).
			Msg("Transaction sent but not confirmed, poll again with the hash")
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ObserveReceiptWait(time.Since(submittedAt))
	}

	return receipt, nil
}

// validateProductID rejects ids that cannot name a QR file inside QR_DIR.
func validateProductID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return txerrors.New(txerrors.KindBuild, "registrar.RegisterProduct", "invalid product id "+strconv.Quote(id))
	}

	return nil
}

func (s *Service) requireRegistry() (*contract.Registry, error) {
	if s.registry == nil {
		return nil, txerrors.Configuration(config.KeyContractAddress + " is not set")
	}

	return s.registry, nil
}

func (s *Service) observeTransaction(method string, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveTransaction(method, outcome)
	}
}

func outcomeOf(receipt *submitter.Receipt, err error) string {
	switch {
	case err == nil && receipt.Status == submitter.StatusSuccess:
		return metrics.OutcomeConfirmed
	case err == nil:
		return metrics.OutcomeFailed
	case txerrors.Is(err, txerrors.KindSubmissionRejected):
		return metrics.OutcomeRejected
	case txerrors.Is(err, txerrors.KindConfirmationTimeout):
		return metrics.OutcomeTimeout
	default:
		return metrics.OutcomeError
	}
}
