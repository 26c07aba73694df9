package product

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/truewear/go-registrar/internal/chain"
	"github.com/truewear/go-registrar/internal/config"
	"github.com/truewear/go-registrar/internal/contract"
	"github.com/truewear/go-registrar/internal/reglog"
	"github.com/truewear/go-registrar/internal/util/command"
)

type productView struct {
	OnChain *contract.Product `json:"on_chain"`
	Log     *reglog.Record    `json:"log,omitempty"`
}

func newShow() *cobra.Command {
	return &cobra.Command{
		Use:   "show <product-id>",
		Short: "Shows the on-chain state of a product and its local log entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultServiceConfigFromEnv()
			if err := cfg.Validate(config.KeyRPCURL, config.KeyContractAddress); err != nil {
				return err
			}

			return withRegistry(cmd.Context(), cfg, func(ctx context.Context, registry *contract.Registry) error {
				product, found, err := registry.GetProduct(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					return errors.Errorf("product %s is not registered on %s", args[0], registry.Address().Hex())
				}

				view := productView{OnChain: product}

				store, err := reglog.Open(cfg.RegLog)
				if err != nil {
					return err
				}
				defer store.Close()

				if record, ok, err := store.Find(ctx, args[0]); err != nil {
					return err
				} else if ok {
					view.Log = record
				}

				out, err := json.MarshalIndent(view, "", "    ")
				if err != nil {
					return errors.Wrap(err, "failed to encode product")
				}

				fmt.Fprintln(cmd.OutOrStdout(), string(out))

				return nil
			})
		},
	}
}

func newList() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists every product id registered on the contract",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultServiceConfigFromEnv()
			if err := cfg.Validate(config.KeyRPCURL, config.KeyContractAddress); err != nil {
				return err
			}

			return withRegistry(cmd.Context(), cfg, func(ctx context.Context, registry *contract.Registry) error {
				ids, err := registry.AllProducts(ctx)
				if err != nil {
					return err
				}

				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}

				return nil
			})
		},
	}
}

// withRegistry runs f against the configured contract without loading the
// signing key.
func withRegistry(ctx context.Context, cfg config.Registrar, f func(ctx context.Context, registry *contract.Registry) error) error {
	parsed, err := contract.LoadABI(cfg.Paths.ABIFile)
	if err != nil {
		return err
	}

	return command.WithChain(ctx, cfg, func(ctx context.Context, client *chain.Client) error {
		return f(ctx, contract.NewRegistry(parsed, common.HexToAddress(cfg.Chain.ContractAddress), client))
	})
}
