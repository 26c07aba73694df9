package contract

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/compiler"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Artifact is a compiled contract ready for deployment.
type Artifact struct {
	Name     string
	ABIJSON  json.RawMessage
	ABI      abi.ABI
	Bytecode []byte
	Compiler string
}

type artifactFile struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
	Compiler     string          `json:"compiler,omitempty"`
}

// Compile runs solc on source and returns the artifact of contract name.
func Compile(ctx context.Context, solc string, source string, name string) (*Artifact, error) {
	if _, err := os.Stat(source); err != nil {
		return nil, errors.Wrapf(err, "contract source %q not readable", source)
	}

	//nolint:gosec // solc path comes from the operator's configuration
	cmd := exec.CommandContext(ctx, solc, "--combined-json", "abi,bin", source)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().Str("solc", solc).Str("source", source).Msg("Compiling contract")

	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "solc failed: %s", strings.TrimSpace(stderr.String()))
	}

	return ParseCombined(stdout.Bytes(), name)
}

// ParseCombined extracts contract name from solc --combined-json output.
func ParseCombined(combinedJSON []byte, name string) (*Artifact, error) {
	var header struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(combinedJSON, &header); err != nil {
		return nil, errors.Wrap(err, "solc output is not valid JSON")
	}

	contracts, err := compiler.ParseCombinedJSON(combinedJSON, "", "", header.Version, "")
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse solc output")
	}

	var found *compiler.Contract
	for key, contract := range contracts {
		if key == name || strings.HasSuffix(key, ":"+name) {
			found = contract
			break
		}
	}
	if found == nil {
		return nil, errors.Errorf("contract %q not found in solc output", name)
	}

	abiJSON, err := json.Marshal(found.Info.AbiDefinition)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode ABI")
	}

	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, errors.Wrap(err, "solc produced an invalid ABI")
	}

	bytecode, err := hexutil.Decode(found.Code)
	if err != nil {
		return nil, errors.Wrap(err, "solc produced invalid bytecode")
	}
	if len(bytecode) == 0 {
		return nil, errors.Errorf("contract %q has no bytecode, is it abstract?", name)
	}

	return &Artifact{
		Name:     name,
		ABIJSON:  abiJSON,
		ABI:      parsed,
		Bytecode: bytecode,
		Compiler: found.Info.CompilerVersion,
	}, nil
}

// WriteArtifacts writes <Name>_abi.json and <Name>.json into dir and returns
// the ABI file path.
func WriteArtifacts(dir string, artifact *Artifact) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create artifact dir %q", dir)
	}

	var abiOut bytes.Buffer
	if err := json.Indent(&abiOut, artifact.ABIJSON, "", "    "); err != nil {
		return "", errors.Wrap(err, "failed to format ABI")
	}
	abiOut.WriteByte('\n')

	abiPath := filepath.Join(dir, artifact.Name+"_abi.json")
	if err := os.WriteFile(abiPath, abiOut.Bytes(), 0o644); err != nil { //nolint:gosec
		return "", errors.Wrapf(err, "failed to write %q", abiPath)
	}

	full, err := json.MarshalIndent(artifactFile{
		ContractName: artifact.Name,
		ABI:          artifact.ABIJSON,
		Bytecode:     hexutil.Encode(artifact.Bytecode),
		Compiler:     artifact.Compiler,
	}, "", "    ")
	if err != nil {
		return "", errors.Wrap(err, "failed to encode artifact")
	}

	artifactPath := filepath.Join(dir, artifact.Name+".json")
	if err := os.WriteFile(artifactPath, append(full, '\n'), 0o644); err != nil { //nolint:gosec
		return "", errors.Wrapf(err, "failed to write %q", artifactPath)
	}

	return abiPath, nil
}

// ReadArtifact loads an artifact previously written by WriteArtifacts.
func ReadArtifact(path string) (*Artifact, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read artifact %q", path)
	}

	var file artifactFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrapf(err, "artifact %q is not valid JSON", path)
	}

	parsed, err := abi.JSON(bytes.NewReader(file.ABI))
	if err != nil {
		return nil, errors.Wrapf(err, "artifact %q has an invalid ABI", path)
	}

	bytecode, err := hexutil.Decode(file.Bytecode)
	if err != nil {
		return nil, errors.Wrapf(err, "artifact %q has invalid bytecode", path)
	}

	return &Artifact{
		Name:     file.ContractName,
		ABIJSON:  file.ABI,
		ABI:      parsed,
		Bytecode: bytecode,
		Compiler: file.Compiler,
	}, nil
}
