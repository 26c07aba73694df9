package contract

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/truewear/go-registrar/internal/config"
	truewear "github.com/truewear/go-registrar/internal/contract"
	"github.com/truewear/go-registrar/internal/util"
)

const (
	sourceFlag = "source"
	nameFlag   = "name"
	outFlag    = "out"
	solcFlag   = "solc"
)

func newCompile() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compiles the contract with solc and writes the ABI and artifact files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultServiceConfigFromEnv()
			applyPathFlags(cmd, &cfg.Paths)

			artifact, err := compile(cmd, cfg.Paths)
			if err != nil {
				return err
			}

			abiPath, err := truewear.WriteArtifacts(cfg.Paths.ArtifactDir, artifact)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Compiled %s with solc %s\n", artifact.Name, artifact.Compiler)
			fmt.Fprintf(out, "ABI:      %s\n", abiPath)
			fmt.Fprintf(out, "Artifact: %s\n", filepath.Join(cfg.Paths.ArtifactDir, artifact.Name+".json"))

			return nil
		},
	}

	addPathFlags(cmd)

	return cmd
}

func addPathFlags(cmd *cobra.Command) {
	cmd.Flags().String(sourceFlag, "", "contract source, overrides "+config.KeyContractSource)
	cmd.Flags().String(nameFlag, "", "contract name, overrides "+config.KeyContractName)
	cmd.Flags().String(outFlag, "", "artifact directory, overrides "+config.KeyArtifactDir)
	cmd.Flags().String(solcFlag, "", "solc binary, overrides "+config.KeySolcPath)
}

func applyPathFlags(cmd *cobra.Command, paths *config.Paths) {
	for flag, target := range map[string]*string{
		sourceFlag: &paths.ContractSource,
		nameFlag:   &paths.ContractName,
		outFlag:    &paths.ArtifactDir,
		solcFlag:   &paths.SolcPath,
	} {
		if value, err := cmd.Flags().GetString(flag); err == nil && value != "" {
			*target = value
		}
	}
}

func compile(cmd *cobra.Command, paths config.Paths) (*truewear.Artifact, error) {
	util.LogFromContext(cmd.Context()).Info().
		Str("source", paths.ContractSource).
		Str("contract", paths.ContractName).
		Msg("Compiling contract")

	return truewear.Compile(cmd.Context(), paths.SolcPath, paths.ContractSource, paths.ContractName)
}
