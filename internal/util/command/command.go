package command

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/truewear/go-registrar/internal/chain"
	"github.com/truewear/go-registrar/internal/config"
	"github.com/truewear/go-registrar/internal/metrics"
	"github.com/truewear/go-registrar/internal/registrar"
	"github.com/truewear/go-registrar/internal/reglog"
	"github.com/truewear/go-registrar/internal/signer"
	"github.com/truewear/go-registrar/internal/util"
)

// ConfigureLogger sets the global zerolog level and output for a run.
func ConfigureLogger(cfg config.Logger) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(cfg.Level)

	if cfg.PrettyPrintConsole {
		log.Logger = log.Output(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = os.Stderr
			w.TimeFormat = "15:04:05"
		}))
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// WithChain connects to the configured RPC endpoints, runs f and closes the
// connection.
func WithChain(ctx context.Context, cfg config.Registrar, f func(ctx context.Context, client *chain.Client) error) error {
	if err := cfg.Validate(config.KeyRPCURL); err != nil {
		return err
	}

	client, err := chain.Connect(ctx, cfg.Chain.RPCURLs)
	if err != nil {
		return err
	}
	defer client.Close()

	return run(ctx, func(ctx context.Context) error {
		return f(ctx, client)
	})
}

// WithRegistrar connects to the chain and runs f with a fully wired
// registration service. Every resource is released when f returns.
func WithRegistrar(ctx context.Context, cfg config.Registrar, f func(ctx context.Context, svc *registrar.Service) error) error {
	if err := cfg.Validate(config.KeyRPCURL, config.KeyPrivateKey); err != nil {
		return err
	}

	client, err := chain.Connect(ctx, cfg.Chain.RPCURLs)
	if err != nil {
		return err
	}

	return RunRegistrar(ctx, cfg, client, f)
}

// RunRegistrar is WithRegistrar for an existing connection. connector is
// closed before it returns.
func RunRegistrar(
	ctx context.Context,
	cfg config.Registrar,
	connector chain.Connector,
	f func(ctx context.Context, svc *registrar.Service) error,
) error {
	defer connector.Close()

	signerService, err := signer.NewService(cfg.Chain.PrivateKey)
	if err != nil {
		return err
	}

	store, err := reglog.Open(cfg.RegLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close registration log")
		}
	}()

	metricsService, err := metrics.New(cfg.Metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := metricsService.Flush(); err != nil {
			log.Warn().Err(err).Msg("Failed to flush metrics")
		}
	}()

	svc, err := registrar.New(cfg, connector, signerService, store, registrar.WithMetrics(metricsService))
	if err != nil {
		return err
	}

	return run(ctx, func(ctx context.Context) error {
		return f(ctx, svc)
	})
}

func run(ctx context.Context, f func(ctx context.Context) error) error {
	start := time.Now()

	if err := f(ctx); err != nil {
		util.LogFromContext(ctx).Debug().Err(err).Dur("duration", time.Since(start)).Msg("Failed to run command")
		return err
	}

	util.LogFromContext(ctx).Debug().Dur("duration", time.Since(start)).Msg("Successfully ran command")

	return nil
}

// NewSubcommandGroup returns a command that only groups subCommands.
func NewSubcommandGroup(name string, subCommands ...*cobra.Command) *cobra.Command {
	c := &cobra.Command{
		Use:   fmt.Sprintf("%s <subcommand>", name),
		Short: fmt.Sprintf("%s related subcommands", name),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return errors.Wrap(cmd.Help(), "failed to print help")
		},
	}

	c.AddCommand(subCommands...)

	return c
}
