package product

import (
	"context"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/truewear/go-registrar/internal/config"
	"github.com/truewear/go-registrar/internal/registrar"
	"github.com/truewear/go-registrar/internal/util/command"
)

const (
	verboseFlag = "verbose"
	timeoutFlag = "timeout"
)

func newReceipt() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receipt <tx-hash>",
		Short: "Polls again for the receipt of a transaction that timed out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := hexutil.Decode(args[0])
			if err != nil || len(raw) != common.HashLength {
				return errors.Errorf("%q is not a transaction hash", args[0])
			}
			hash := common.BytesToHash(raw)

			verbose, err := cmd.Flags().GetBool(verboseFlag)
			if err != nil {
				return errors.Wrap(err, "failed to read verbose flag")
			}
			timeout, err := cmd.Flags().GetDuration(timeoutFlag)
			if err != nil {
				return errors.Wrap(err, "failed to read timeout flag")
			}

			cfg := config.DefaultServiceConfigFromEnv()

			return command.WithRegistrar(cmd.Context(), cfg, func(ctx context.Context, svc *registrar.Service) error {
				receipt, err := svc.AwaitReceipt(ctx, hash, timeout)
				if err != nil {
					return err
				}

				printReceipt(cmd.OutOrStdout(), receipt, svc.ExplorerLink(receipt.TxHash))
				if receipt.ContractAddress != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Contract:    %s\n", receipt.ContractAddress.Hex())
				}

				if verbose {
					spew.Fdump(cmd.OutOrStdout(), receipt.Raw)
				}

				return nil
			})
		},
	}

	cmd.Flags().BoolP(verboseFlag, "v", false, "dump the raw receipt")
	cmd.Flags().Duration(timeoutFlag, 0, "how long to wait, defaults to "+config.KeyReceiptTimeout)

	return cmd
}
