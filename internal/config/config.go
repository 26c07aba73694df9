package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/truewear/go-registrar/internal/txerrors"
)

// Environment keys.
const (
	KeyRPCURL          = "SEPOLIA_RPC_URL"
	KeyRPCURLFallback  = "INFURA_URL"
	KeyPrivateKey      = "PRIVATE_KEY"
	KeyContractAddress = "CONTRACT_ADDRESS"
	KeyChainID         = "CHAIN_ID"
	KeyExplorerHost    = "EXPLORER_HOST"
	KeyGasLimit        = "GAS_LIMIT"

	KeyReceiptTimeout         = "RECEIPT_TIMEOUT"
	KeyReceiptPollInterval    = "RECEIPT_POLL_INTERVAL"
	KeyReceiptMaxPollInterval = "RECEIPT_MAX_POLL_INTERVAL"
	KeySendMaxRetries         = "SEND_MAX_RETRIES"

	KeyABIFile        = "ABI_FILE"
	KeyContractSource = "CONTRACT_SOURCE"
	KeyContractName   = "CONTRACT_NAME"
	KeyArtifactDir    = "ARTIFACT_DIR"
	KeySolcPath       = "SOLC_PATH"
	KeyQRDir          = "QR_DIR"

	KeyLogBackend    = "LOG_BACKEND"
	KeyLogFile       = "LOG_FILE"
	KeyLogSQLitePath = "LOG_SQLITE_PATH"

	KeyLogLevel           = "LOG_LEVEL"
	KeyPrettyPrintConsole = "LOG_PRETTY_PRINT_CONSOLE"
	KeyMetricsTextfile    = "METRICS_TEXTFILE"
)

// Log backends.
const (
	LogBackendJSON   = "json"
	LogBackendSQLite = "sqlite"
)

type Chain struct {
	RPCURLs []string
	// PrivateKey is hex encoded, with or without 0x. Never serialized.
	PrivateKey      string `json:"-"`
	ContractAddress string
	// ChainID guards against a misconfigured endpoint; 0 accepts whatever the node reports.
	ChainID      int64
	ExplorerHost string
	// GasLimit overrides the node's estimate when non-zero.
	GasLimit uint64
}

type Submission struct {
	ReceiptTimeout         time.Duration
	ReceiptPollInterval    time.Duration
	ReceiptMaxPollInterval time.Duration
	SendMaxRetries         int
}

type Paths struct {
	ABIFile        string
	ContractSource string
	ContractName   string
	ArtifactDir    string
	SolcPath       string
	QRDir          string
}

type RegLog struct {
	Backend    string
	File       string
	SQLitePath string
}

type Logger struct {
	Level              zerolog.Level
	PrettyPrintConsole bool
}

type Metrics struct {
	Textfile string
}

// Registrar is the complete runtime configuration. It is resolved once per
// process and handed to every component by value.
type Registrar struct {
	Chain      Chain
	Submission Submission
	Paths      Paths
	RegLog     RegLog
	Logger     Logger
	Metrics    Metrics
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyChainID, 0)
	v.SetDefault(KeyExplorerHost, "sepolia.etherscan.io")
	v.SetDefault(KeyGasLimit, 0)

	v.SetDefault(KeyReceiptTimeout, 2*time.Minute)
	v.SetDefault(KeyReceiptPollInterval, 3*time.Second)
	v.SetDefault(KeyReceiptMaxPollInterval, 15*time.Second)
	v.SetDefault(KeySendMaxRetries, 3)

	v.SetDefault(KeyABIFile, "TrueWear_abi.json")
	v.SetDefault(KeyContractSource, "contracts/TrueWear.sol")
	v.SetDefault(KeyContractName, "TrueWear")
	v.SetDefault(KeyArtifactDir, ".")
	v.SetDefault(KeySolcPath, "solc")
	v.SetDefault(KeyQRDir, ".")

	v.SetDefault(KeyLogBackend, LogBackendJSON)
	v.SetDefault(KeyLogFile, "products_log.json")
	v.SetDefault(KeyLogSQLitePath, "products_log.db")

	v.SetDefault(KeyLogLevel, zerolog.InfoLevel.String())
	v.SetDefault(KeyPrettyPrintConsole, true)
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "failed to stat env file %q", path)
	}

	if err := gotenv.Load(path); err != nil {
		return errors.Wrapf(err, "failed to load env file %q", path)
	}

	return nil
}

// DefaultServiceConfigFromEnv resolves the configuration from the environment
// and any flags bound to the global viper instance.
func DefaultServiceConfigFromEnv() Registrar {
	v := viper.GetViper()
	setDefaults(v)
	v.AutomaticEnv()

	rpcURL := v.GetString(KeyRPCURL)
	if rpcURL == "" {
		rpcURL = v.GetString(KeyRPCURLFallback)
	}

	level, err := zerolog.ParseLevel(strings.ToLower(v.GetString(KeyLogLevel)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return Registrar{
		Chain: Chain{
			RPCURLs:         splitList(rpcURL),
			PrivateKey:      strings.TrimSpace(v.GetString(KeyPrivateKey)),
			ContractAddress: strings.TrimSpace(v.GetString(KeyContractAddress)),
			ChainID:         v.GetInt64(KeyChainID),
			ExplorerHost:    v.GetString(KeyExplorerHost),
			GasLimit:        v.GetUint64(KeyGasLimit),
		},
		Submission: Submission{
			ReceiptTimeout:         v.GetDuration(KeyReceiptTimeout),
			ReceiptPollInterval:    v.GetDuration(KeyReceiptPollInterval),
			ReceiptMaxPollInterval: v.GetDuration(KeyReceiptMaxPollInterval),
			SendMaxRetries:         v.GetInt(KeySendMaxRetries),
		},
		Paths: Paths{
			ABIFile:        v.GetString(KeyABIFile),
			ContractSource: v.GetString(KeyContractSource),
			ContractName:   v.GetString(KeyContractName),
			ArtifactDir:    v.GetString(KeyArtifactDir),
			SolcPath:       v.GetString(KeySolcPath),
			QRDir:          v.GetString(KeyQRDir),
		},
		RegLog: RegLog{
			Backend:    strings.ToLower(v.GetString(KeyLogBackend)),
			File:       v.GetString(KeyLogFile),
			SQLitePath: v.GetString(KeyLogSQLitePath),
		},
		Logger: Logger{
			Level:              level,
			PrettyPrintConsole: v.GetBool(KeyPrettyPrintConsole),
		},
		Metrics: Metrics{
			Textfile: v.GetString(KeyMetricsTextfile),
		},
	}
}

// Validate checks that every required key is present and well formed, plus
// the tunables every command relies on. All problems are reported at once.
func (c Registrar) Validate(required ...string) error {
	var problems []string

	for _, key := range required {
		switch key {
		case KeyRPCURL:
			if len(c.Chain.RPCURLs) == 0 {
				problems = append(problems, fmt.Sprintf("%s (or %s) is not set", KeyRPCURL, KeyRPCURLFallback))
			}
		case KeyPrivateKey:
			if c.Chain.PrivateKey == "" {
				problems = append(problems, KeyPrivateKey+" is not set")
			}
		case KeyContractAddress:
			switch {
			case c.Chain.ContractAddress == "":
				problems = append(problems, KeyContractAddress+" is not set")
			case !common.IsHexAddress(c.Chain.ContractAddress):
				problems = append(problems, KeyContractAddress+" is not a valid address")
			}
		default:
			problems = append(problems, "unknown required key "+key)
		}
	}

	if c.Submission.ReceiptTimeout <= 0 {
		problems = append(problems, KeyReceiptTimeout+" must be positive")
	}
	if c.Submission.ReceiptPollInterval <= 0 {
		problems = append(problems, KeyReceiptPollInterval+" must be positive")
	}
	if c.Submission.ReceiptMaxPollInterval < c.Submission.ReceiptPollInterval {
		problems = append(problems, KeyReceiptMaxPollInterval+" must not be below "+KeyReceiptPollInterval)
	}
	if c.Submission.SendMaxRetries < 0 {
		problems = append(problems, KeySendMaxRetries+" must not be negative")
	}
	if c.RegLog.Backend != LogBackendJSON && c.RegLog.Backend != LogBackendSQLite {
		problems = append(problems, fmt.Sprintf("%s must be %q or %q", KeyLogBackend, LogBackendJSON, LogBackendSQLite))
	}

	if len(problems) > 0 {
		return txerrors.Configuration(strings.Join(problems, "; "))
	}

	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}
