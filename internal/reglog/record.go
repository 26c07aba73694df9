// Package reglog persists confirmed product registrations as an append-only
// log.
package reglog

import (
	"context"
	"time"
)

// TimestampLayout is the timestamp format used throughout the log.
const TimestampLayout = "2006-01-02 15:04:05 UTC"

type DeliveryInfo struct {
	Recipient string `json:"recipient"`
	Address   string `json:"address"`
	Timestamp string `json:"timestamp"`
}

type ReplacementInfo struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NoReplacement is the replacement info of a freshly registered product.
func NoReplacement() ReplacementInfo {
	return ReplacementInfo{Status: "None", Timestamp: ""}
}

// Record is one confirmed registration. Records are never updated.
type Record struct {
	Timestamp       string          `json:"timestamp"`
	ProductID       string          `json:"product_id"`
	DeliveryInfo    DeliveryInfo    `json:"delivery_info"`
	ReplacementInfo ReplacementInfo `json:"replacement_info"`
	TxHash          string          `json:"tx_hash"`
	BlockNumber     uint64          `json:"block_number"`
	Status          string          `json:"status"`
	EtherscanLink   string          `json:"etherscan_link"`
	QRCodeFile      string          `json:"qr_code_file"`
}

// FormatTimestamp renders t in the log's UTC layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Store is an append-only sequence of records.
type Store interface {
	// Append adds record at the end of the log.
	Append(ctx context.Context, record Record) error
	// List returns all records in append order.
	List(ctx context.Context) ([]Record, error)
	// Find returns the first record for productID.
	Find(ctx context.Context, productID string) (*Record, bool, error)
	Close() error
}
