package product

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/truewear/go-registrar/internal/config"
	"github.com/truewear/go-registrar/internal/registrar"
	"github.com/truewear/go-registrar/internal/submitter"
	"github.com/truewear/go-registrar/internal/util/command"
)

func newDeliver() *cobra.Command {
	return &cobra.Command{
		Use:   "deliver <product-id> <owner>",
		Short: "Marks a registered product as delivered to owner",
		Args:  cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, func(ctx context.Context, svc *registrar.Service) (*submitter.Receipt, error) {
				return svc.MarkDelivered(ctx, args[0], args[1])
			})
		},
	}
}

func newReplace() *cobra.Command {
	return &cobra.Command{
		Use:   "replace <product-id>",
		Short: "Marks a registered product as replaced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, func(ctx context.Context, svc *registrar.Service) (*submitter.Receipt, error) {
				return svc.MarkReplaced(ctx, args[0])
			})
		},
	}
}

func runUpdate(cmd *cobra.Command, update func(ctx context.Context, svc *registrar.Service) (*submitter.Receipt, error)) error {
	cfg := config.DefaultServiceConfigFromEnv()
	if err := cfg.Validate(config.KeyRPCURL, config.KeyPrivateKey, config.KeyContractAddress); err != nil {
		return err
	}

	return command.WithRegistrar(cmd.Context(), cfg, func(ctx context.Context, svc *registrar.Service) error {
		receipt, err := update(ctx, svc)
		if err != nil {
			hintOnTimeout(cmd.ErrOrStderr(), err)
			return err
		}

		printReceipt(cmd.OutOrStdout(), receipt, svc.ExplorerLink(receipt.TxHash))

		if receipt.Status != submitter.StatusSuccess {
			return errors.Errorf("transaction %s failed on chain", receipt.TxHash.Hex())
		}

		return nil
	})
}
