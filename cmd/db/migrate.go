package db

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/truewear/go-registrar/internal/config"
	"github.com/truewear/go-registrar/internal/reglog"
	"github.com/truewear/go-registrar/internal/util"
)

const (
	fromFlag = "from"
	toFlag   = "to"
)

func newMigrate() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copies the JSON registration log into the sqlite log",
		Long: `Copies every record of the JSON registration log into the sqlite log.

Records whose transaction hash is already stored are skipped, so the command
can be run repeatedly. Set LOG_BACKEND=sqlite afterwards.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultServiceConfigFromEnv()

			from, err := cmd.Flags().GetString(fromFlag)
			if err != nil {
				return errors.Wrap(err, "failed to read from flag")
			}
			if from == "" {
				from = cfg.RegLog.File
			}

			to, err := cmd.Flags().GetString(toFlag)
			if err != nil {
				return errors.Wrap(err, "failed to read to flag")
			}
			if to == "" {
				to = cfg.RegLog.SQLitePath
			}

			records, err := reglog.NewJSONStore(from).List(cmd.Context())
			if err != nil {
				return err
			}

			target, err := reglog.NewSQLiteStore(to)
			if err != nil {
				return err
			}
			defer target.Close()

			imported, err := target.Import(cmd.Context(), records)
			if err != nil {
				return err
			}

			util.LogFromContext(cmd.Context()).Info().
				Str("from", from).
				Str("to", to).
				Int("records", len(records)).
				Int("imported", imported).
				Msg("Migrated registration log")

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d records from %s into %s\n", imported, len(records), from, to)

			return nil
		},
	}

	cmd.Flags().String(fromFlag, "", "JSON log, defaults to "+config.KeyLogFile)
	cmd.Flags().String(toFlag, "", "sqlite database, defaults to "+config.KeyLogSQLitePath)

	return cmd
}
