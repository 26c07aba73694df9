package product

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/truewear/go-registrar/internal/config"
	"github.com/truewear/go-registrar/internal/registrar"
	"github.com/truewear/go-registrar/internal/reglog"
	"github.com/truewear/go-registrar/internal/util/command"
)

const (
	idFlag        = "id"
	recipientFlag = "recipient"
	addressFlag   = "address"
	noPromptFlag  = "no-prompt"

	defaultRecipient = "John Doe"
	defaultAddress   = "123 Main St, Hyderabad"
)

func newRegister() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Registers a new product on chain and logs the confirmed transaction",
		Long: `Registers a new product on chain, waits for the receipt, renders the QR
code and appends the registration to the local log.

Recipient and delivery address are prompted for when stdin is a terminal and
the flags are omitted. The product id defaults to P<UTC yyyymmddhhmmss>.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultServiceConfigFromEnv()
			if err := cfg.Validate(config.KeyRPCURL, config.KeyPrivateKey, config.KeyContractAddress); err != nil {
				return err
			}

			reg, err := registrationFromFlags(cmd)
			if err != nil {
				return err
			}

			return command.WithRegistrar(cmd.Context(), cfg, func(ctx context.Context, svc *registrar.Service) error {
				return runRegister(ctx, cmd, cfg, svc, reg)
			})
		},
	}

	cmd.Flags().String(idFlag, "", "product id, generated when empty")
	cmd.Flags().String(recipientFlag, "", "delivery recipient (default \""+defaultRecipient+"\")")
	cmd.Flags().String(addressFlag, "", "delivery address (default \""+defaultAddress+"\")")
	cmd.Flags().Bool(noPromptFlag, false, "never prompt, use defaults for omitted values")

	return cmd
}

func registrationFromFlags(cmd *cobra.Command) (registrar.Registration, error) {
	var reg registrar.Registration

	flags := cmd.Flags()
	id, err := flags.GetString(idFlag)
	if err != nil {
		return reg, errors.Wrap(err, "failed to read id flag")
	}
	recipient, err := flags.GetString(recipientFlag)
	if err != nil {
		return reg, errors.Wrap(err, "failed to read recipient flag")
	}
	address, err := flags.GetString(addressFlag)
	if err != nil {
		return reg, errors.Wrap(err, "failed to read address flag")
	}
	noPrompt, err := flags.GetBool(noPromptFlag)
	if err != nil {
		return reg, errors.Wrap(err, "failed to read no-prompt flag")
	}

	interactive := !noPrompt && isTerminal(cmd.InOrStdin())
	in := bufio.NewReader(cmd.InOrStdin())

	if recipient == "" && interactive {
		if recipient, err = prompt(in, cmd.OutOrStdout(), "Enter Recipient Name"); err != nil {
			return reg, err
		}
	}
	if address == "" && interactive {
		if address, err = prompt(in, cmd.OutOrStdout(), "Enter Delivery Address"); err != nil {
			return reg, err
		}
	}

	if recipient == "" {
		recipient = defaultRecipient
	}
	if address == "" {
		address = defaultAddress
	}

	reg.ProductID = strings.TrimSpace(id)
	reg.Delivery = reglog.DeliveryInfo{
		Recipient: recipient,
		Address:   address,
	}

	return reg, nil
}

// isTerminal reports whether in is an interactive terminal.
var isTerminal = func(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec
}

func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprintf(out, "%s: ", label)

	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", errors.Wrapf(err, "failed to read %s", strings.ToLower(label))
	}

	return strings.TrimSpace(line), nil
}

func runRegister(ctx context.Context, cmd *cobra.Command, cfg config.Registrar, svc *registrar.Service, reg registrar.Registration) error {
	out := cmd.OutOrStdout()

	record, err := svc.RegisterProduct(ctx, reg)
	if err != nil {
		hintOnTimeout(cmd.ErrOrStderr(), err)
		return err
	}

	fmt.Fprintf(out, "Product:     %s\n", record.ProductID)
	fmt.Fprintf(out, "Transaction: %s\n", record.TxHash)
	fmt.Fprintf(out, "Block:       %d\n", record.BlockNumber)
	fmt.Fprintf(out, "Status:      %s\n", record.Status)
	fmt.Fprintf(out, "Explorer:    %s\n", record.EtherscanLink)
	if record.QRCodeFile != "" {
		fmt.Fprintf(out, "QR code:     %s\n", record.QRCodeFile)
	}
	fmt.Fprintf(out, "Logged to:   %s\n", logLocation(cfg.RegLog))

	if record.Status != "Success" {
		return errors.Errorf("registration of %s failed on chain (tx %s)", record.ProductID, record.TxHash)
	}

	return nil
}

func logLocation(cfg config.RegLog) string {
	if cfg.Backend == config.LogBackendSQLite {
		return cfg.SQLitePath
	}

	return cfg.File
}
