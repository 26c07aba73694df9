package contract

import (
	"github.com/spf13/cobra"

	"github.com/truewear/go-registrar/internal/util/command"
)

func New() *cobra.Command {
	return command.NewSubcommandGroup("contract",
		newCompile(),
		newDeploy(),
	)
}
