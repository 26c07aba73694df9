package product

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/truewear/go-registrar/internal/submitter"
	"github.com/truewear/go-registrar/internal/txerrors"
	"github.com/truewear/go-registrar/internal/util/command"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("product",
		newRegister(),
		newDeliver(),
		newReplace(),
		newShow(),
		newList(),
		newLog(),
		newReceipt(),
	)
}

func printReceipt(out io.Writer, receipt *submitter.Receipt, link string) {
	fmt.Fprintf(out, "Transaction: %s\n", receipt.TxHash.Hex())
	fmt.Fprintf(out, "Block:       %d\n", receipt.BlockNumber)
	fmt.Fprintf(out, "Status:      %s\n", receipt.Status)
	fmt.Fprintf(out, "Timestamp:   %s\n", receipt.Timestamp.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(out, "Explorer:    %s\n", link)
}

// hintOnTimeout tells the operator how to resume after a confirmation timeout.
func hintOnTimeout(out io.Writer, err error) {
	txErr, ok := txerrors.As(err)
	if !ok || txErr.Kind != txerrors.KindConfirmationTimeout {
		return
	}

	fmt.Fprintf(out, "Transaction %s was sent but is not confirmed yet.\n", txErr.TxHash.Hex())
	fmt.Fprintf(out, "Do not register again, poll with: registrar product receipt %s\n", txErr.TxHash.Hex())
}
