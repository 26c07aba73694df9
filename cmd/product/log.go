package product

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/truewear/go-registrar/internal/config"
	"github.com/truewear/go-registrar/internal/reglog"
)

func newLog() *cobra.Command {
	return &cobra.Command{
		Use:   "log",
		Short: "Prints the local registration log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultServiceConfigFromEnv()

			store, err := reglog.Open(cfg.RegLog)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			out, err := reglog.Marshal(records)
			if err != nil {
				return err
			}

			if _, err := cmd.OutOrStdout().Write(out); err != nil {
				return errors.Wrap(err, "failed to print log")
			}

			return nil
		},
	}
}
