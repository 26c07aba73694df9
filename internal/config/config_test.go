package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truewear/go-registrar/internal/config"
	"github.com/truewear/go-registrar/internal/txerrors"
)

func TestPrintServiceEnv(t *testing.T) {
	t.Setenv(config.KeyPrivateKey, "deadbeef")

	cfg := config.DefaultServiceConfigFromEnv()
	out, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)

	assert.NotContains(t, string(out), "deadbeef")
}

func TestDefaults(t *testing.T) {
	cfg := config.DefaultServiceConfigFromEnv()

	assert.Equal(t, 2*time.Minute, cfg.Submission.ReceiptTimeout)
	assert.Equal(t, 3*time.Second, cfg.Submission.ReceiptPollInterval)
	assert.Equal(t, 15*time.Second, cfg.Submission.ReceiptMaxPollInterval)
	assert.Equal(t, 3, cfg.Submission.SendMaxRetries)
	assert.Equal(t, "sepolia.etherscan.io", cfg.Chain.ExplorerHost)
	assert.Equal(t, "TrueWear_abi.json", cfg.Paths.ABIFile)
	assert.Equal(t, "products_log.json", cfg.RegLog.File)
	assert.Equal(t, config.LogBackendJSON, cfg.RegLog.Backend)
}

func TestRPCURLFallbackAndList(t *testing.T) {
	t.Setenv(config.KeyRPCURL, "")
	t.Setenv(config.KeyRPCURLFallback, "https://a.example, https://b.example ,")

	cfg := config.DefaultServiceConfigFromEnv()
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Chain.RPCURLs)

	t.Setenv(config.KeyRPCURL, "https://primary.example")
	cfg = config.DefaultServiceConfigFromEnv()
	assert.Equal(t, []string{"https://primary.example"}, cfg.Chain.RPCURLs)
}

func TestOverrides(t *testing.T) {
	t.Setenv(config.KeyReceiptTimeout, "45s")
	t.Setenv(config.KeyChainID, "11155111")
	t.Setenv(config.KeyLogLevel, "WARN")
	t.Setenv(config.KeyLogBackend, "SQLite")

	cfg := config.DefaultServiceConfigFromEnv()
	assert.Equal(t, 45*time.Second, cfg.Submission.ReceiptTimeout)
	assert.Equal(t, int64(11155111), cfg.Chain.ChainID)
	assert.Equal(t, zerolog.WarnLevel, cfg.Logger.Level)
	assert.Equal(t, config.LogBackendSQLite, cfg.RegLog.Backend)
}

func TestValidateReportsAllMissing(t *testing.T) {
	t.Setenv(config.KeyRPCURL, "")
	t.Setenv(config.KeyRPCURLFallback, "")
	t.Setenv(config.KeyPrivateKey, "")
	t.Setenv(config.KeyContractAddress, "")

	cfg := config.DefaultServiceConfigFromEnv()
	err := cfg.Validate(config.KeyRPCURL, config.KeyPrivateKey, config.KeyContractAddress)
	require.Error(t, err)

	assert.True(t, txerrors.Is(err, txerrors.KindConfiguration))
	assert.Contains(t, err.Error(), config.KeyRPCURL)
	assert.Contains(t, err.Error(), config.KeyPrivateKey)
	assert.Contains(t, err.Error(), config.KeyContractAddress)

	txErr, ok := txerrors.As(err)
	require.True(t, ok)
	assert.True(t, txErr.Fatal())
}

func TestValidateContractAddress(t *testing.T) {
	t.Setenv(config.KeyContractAddress, "not-an-address")

	cfg := config.DefaultServiceConfigFromEnv()
	err := cfg.Validate(config.KeyContractAddress)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid address")

	t.Setenv(config.KeyContractAddress, "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	cfg = config.DefaultServiceConfigFromEnv()
	require.NoError(t, cfg.Validate(config.KeyContractAddress))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CONTRACT_ADDRESS=0x5FbDB2315678afecb367f032d93F642f64180aa3\nQR_DIR=from-file\n"), 0o600))

	t.Setenv(config.KeyQRDir, "from-env")
	t.Setenv(config.KeyContractAddress, "")
	require.NoError(t, os.Unsetenv(config.KeyContractAddress))

	require.NoError(t, config.LoadDotEnv(path))

	cfg := config.DefaultServiceConfigFromEnv()
	assert.Equal(t, "from-env", cfg.Paths.QRDir)
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", cfg.Chain.ContractAddress)

	require.NoError(t, config.LoadDotEnv(filepath.Join(dir, "missing.env")))
	require.NoError(t, config.LoadDotEnv(""))
}
