package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/truewear/go-registrar/cmd/contract"
	"github.com/truewear/go-registrar/cmd/db"
	"github.com/truewear/go-registrar/cmd/env"
	"github.com/truewear/go-registrar/cmd/probe"
	"github.com/truewear/go-registrar/cmd/product"
	"github.com/truewear/go-registrar/internal/config"
	"github.com/truewear/go-registrar/internal/util"
	"github.com/truewear/go-registrar/internal/util/command"
)

const (
	envFileFlag  = "env-file"
	logLevelFlag = "log-level"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Version: config.GetFormattedBuildArgs(),
	Use:     "registrar",
	Short:   config.ModuleName,
	Long: fmt.Sprintf(`%v

Registers TrueWear products on an EVM test network, records every
confirmed registration in a local log and renders a QR code for it.
Requires configuration through ENV or a .env file.`, config.ModuleName),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		envFile, err := cmd.Flags().GetString(envFileFlag)
		if err != nil {
			return errors.Wrap(err, "failed to read env-file flag")
		}

		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}

		cfg := config.DefaultServiceConfigFromEnv()
		command.ConfigureLogger(cfg.Logger)

		cmd.SetContext(util.WithRunID(cmd.Context(), uuid.NewString()))

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.PersistentFlags().String(envFileFlag, ".env", "file with KEY=VALUE pairs loaded before the environment is read")
	rootCmd.PersistentFlags().String(logLevelFlag, "", "log level (trace, debug, info, warn, error), overrides "+config.KeyLogLevel)
	if err := viper.BindPFlag(config.KeyLogLevel, rootCmd.PersistentFlags().Lookup(logLevelFlag)); err != nil {
		log.Fatal().Err(err).Msg("Failed to bind log-level flag")
	}

	// attach the subcommands
	rootCmd.AddCommand(
		contract.New(),
		db.New(),
		env.New(),
		probe.New(),
		product.New(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		log.Error().Err(err).Msg("Failed to execute root command")
		os.Exit(1)
	}
}
