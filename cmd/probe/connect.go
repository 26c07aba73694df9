package probe

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/truewear/go-registrar/internal/chain"
	"github.com/truewear/go-registrar/internal/config"
	"github.com/truewear/go-registrar/internal/util/command"
)

func newConnect() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Checks that the configured RPC endpoint is reachable",
		Long: `Connects to SEPOLIA_RPC_URL and prints the chain id and the latest block.

Exits non-zero when no endpoint answers.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultServiceConfigFromEnv()

			return command.WithChain(cmd.Context(), cfg, func(ctx context.Context, client *chain.Client) error {
				return runConnect(ctx, cmd, client)
			})
		},
	}
}

func runConnect(ctx context.Context, cmd *cobra.Command, client *chain.Client) error {
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return err
	}

	latest, err := client.LatestBlockNumber(ctx)
	if err != nil {
		return err
	}

	block, err := client.Block(ctx, latest)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Connected:    true")
	fmt.Fprintf(out, "Endpoint:     %s\n", client.Endpoint())
	fmt.Fprintf(out, "Chain ID:     %s\n", chainID)
	fmt.Fprintf(out, "Latest block: %d (%s)\n", block.Number, block.Timestamp.Format("2006-01-02 15:04:05 UTC"))

	return nil
}
