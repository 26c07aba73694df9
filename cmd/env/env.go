package env

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/truewear/go-registrar/internal/chain"
	"github.com/truewear/go-registrar/internal/config"
)

type effectiveConfig struct {
	config.Registrar
	PrivateKeySet bool
}

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Prints the effective configuration as JSON",
		Long: `Prints the effective configuration as JSON.

The private key is never printed, only whether it is set. RPC URLs are
printed without credentials or path, which may hold a provider key.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultServiceConfigFromEnv()

			urls := make([]string, 0, len(cfg.Chain.RPCURLs))
			for _, u := range cfg.Chain.RPCURLs {
				urls = append(urls, chain.RedactURL(u))
			}
			cfg.Chain.RPCURLs = urls

			c, err := json.MarshalIndent(effectiveConfig{
				Registrar:     cfg,
				PrivateKeySet: cfg.Chain.PrivateKey != "",
			}, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to marshal config")
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(c))

			return nil
		},
	}
}
