// Package contract holds the TrueWear contract interface: the ABI, the
// read-only views and the solc compile step.
package contract

import (
	"bytes"
	"context"
	_ "embed"
	"os"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/truewear/go-registrar/internal/txerrors"
)

// Contract methods.
const (
	MethodRegisterProduct = "registerProduct"
	MethodMarkDelivered   = "markDelivered"
	MethodMarkReplaced    = "markReplaced"
	MethodGetProduct      = "getProduct"
	MethodGetAllProducts  = "getAllProducts"
)

//go:embed abi/TrueWear_abi.json
var defaultABI []byte

// DefaultABIJSON returns the embedded TrueWear ABI document.
func DefaultABIJSON() []byte {
	return bytes.Clone(defaultABI)
}

// DefaultABI parses the embedded TrueWear ABI.
func DefaultABI() (abi.ABI, error) {
	parsed, err := abi.JSON(bytes.NewReader(defaultABI))
	if err != nil {
		return abi.ABI{}, errors.Wrap(err, "failed to parse embedded ABI")
	}

	return parsed, nil
}

// LoadABI parses the ABI file at path. When path is empty or the file does not
// exist the embedded ABI is used instead.
func LoadABI(path string) (abi.ABI, error) {
	if path == "" {
		return DefaultABI()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", path).Msg("ABI file not found, using embedded ABI")
			return DefaultABI()
		}
		return abi.ABI{}, errors.Wrapf(err, "failed to read ABI file %q", path)
	}

	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return abi.ABI{}, txerrors.Configuration("ABI file " + path + " is not a valid contract ABI: " + err.Error())
	}

	return parsed, nil
}

// Product is the on-chain record returned by getProduct.
type Product struct {
	ID        string `json:"id"`
	Batch     string `json:"batch"`
	Factory   string `json:"factory"`
	Owner     string `json:"owner"`
	Delivered bool   `json:"delivered"`
	Replaced  bool   `json:"replaced"`
}

// Caller executes read-only calls.
type Caller interface {
	Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// Registry reads the TrueWear contract deployed at Address.
type Registry struct {
	abi     abi.ABI
	address common.Address
	caller  Caller
}

func NewRegistry(parsed abi.ABI, address common.Address, caller Caller) *Registry {
	return &Registry{
		abi:     parsed,
		address: address,
		caller:  caller,
	}
}

func (r *Registry) ABI() abi.ABI {
	return r.abi
}

func (r *Registry) Address() common.Address {
	return r.address
}

// GetProduct looks up id. found is false when the contract reverts for an
// unknown id or returns an empty record.
func (r *Registry) GetProduct(ctx context.Context, id string) (*Product, bool, error) {
	values, err := r.call(ctx, MethodGetProduct, id)
	if txerrors.CodeOf(err) == txerrors.CodeReverted {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	const fields = 6
	if len(values) != fields {
		return nil, false, errors.Errorf("getProduct returned %d values, expected %d", len(values), fields)
	}

	product := &Product{}
	var ok [fields]bool
	product.ID, ok[0] = values[0].(string)
	product.Batch, ok[1] = values[1].(string)
	product.Factory, ok[2] = values[2].(string)
	product.Owner, ok[3] = values[3].(string)
	product.Delivered, ok[4] = values[4].(bool)
	product.Replaced, ok[5] = values[5].(bool)
	for i := range ok {
		if !ok[i] {
			return nil, false, errors.Errorf("getProduct value %d has unexpected type %T", i, values[i])
		}
	}

	if product.ID == "" {
		return nil, false, nil
	}

	return product, true, nil
}

// AllProducts returns every registered product id in contract order.
func (r *Registry) AllProducts(ctx context.Context) ([]string, error) {
	values, err := r.call(ctx, MethodGetAllProducts)
	if err != nil {
		return nil, err
	}

	if len(values) != 1 {
		return nil, errors.Errorf("getAllProducts returned %d values, expected 1", len(values))
	}

	ids, ok := values[0].([]string)
	if !ok {
		return nil, errors.Errorf("getAllProducts value has unexpected type %T", values[0])
	}

	return ids, nil
}

func (r *Registry) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, txerrors.Wrap(err, txerrors.KindBuild, "contract."+method)
	}

	out, err := r.caller.Call(ctx, ethereum.CallMsg{To: &r.address, Data: data})
	if err != nil {
		return nil, err
	}

	if len(out) == 0 {
		return nil, txerrors.Configuration("no contract code at " + r.address.Hex() + ", check CONTRACT_ADDRESS")
	}

	values, err := r.abi.Unpack(method, out)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s result", method)
	}

	return values, nil
}
