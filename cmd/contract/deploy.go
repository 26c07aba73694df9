package contract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/truewear/go-registrar/internal/config"
	truewear "github.com/truewear/go-registrar/internal/contract"
	"github.com/truewear/go-registrar/internal/registrar"
	"github.com/truewear/go-registrar/internal/util"
	"github.com/truewear/go-registrar/internal/util/command"
)

const artifactFlag = "artifact"

func newDeploy() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploys the compiled contract and prints its address",
		Long: `Deploys the contract artifact written by "contract compile".

When the artifact does not exist yet the contract is compiled first. Put the
printed address into CONTRACT_ADDRESS.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultServiceConfigFromEnv()
			applyPathFlags(cmd, &cfg.Paths)

			artifact, err := loadOrCompile(cmd, cfg.Paths)
			if err != nil {
				return err
			}

			return command.WithRegistrar(cmd.Context(), cfg, func(ctx context.Context, svc *registrar.Service) error {
				receipt, err := svc.Deploy(ctx, artifact)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Deployed %s at %s\n", artifact.Name, receipt.ContractAddress.Hex())
				fmt.Fprintf(out, "Transaction: %s (block %d)\n", svc.ExplorerLink(receipt.TxHash), receipt.BlockNumber)
				fmt.Fprintf(out, "\n%s=%s\n", config.KeyContractAddress, receipt.ContractAddress.Hex())

				return nil
			})
		},
	}

	addPathFlags(cmd)
	cmd.Flags().String(artifactFlag, "", "artifact file, defaults to <ARTIFACT_DIR>/<CONTRACT_NAME>.json")

	return cmd
}

func loadOrCompile(cmd *cobra.Command, paths config.Paths) (*truewear.Artifact, error) {
	path, err := cmd.Flags().GetString(artifactFlag)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read artifact flag")
	}
	if path == "" {
		path = filepath.Join(paths.ArtifactDir, paths.ContractName+".json")
	}

	if _, err := os.Stat(path); err == nil {
		return truewear.ReadArtifact(path)
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "failed to stat artifact %q", path)
	}

	util.LogFromContext(cmd.Context()).Info().Str("artifact", path).Msg("Artifact not found, compiling first")

	artifact, err := compile(cmd, paths)
	if err != nil {
		return nil, err
	}

	if _, err := truewear.WriteArtifacts(paths.ArtifactDir, artifact); err != nil {
		return nil, err
	}

	return artifact, nil
}
