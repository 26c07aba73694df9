// Package qr renders the registration QR code image.
package qr

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	qrcode "github.com/skip2/go-qrcode"
)

const imageSize = 256

// Content is the text encoded into a registration QR code.
func Content(productID string, txHash string, explorerLink string) string {
	return fmt.Sprintf("Product ID: %s\nTX Hash: %s\nEtherscan: %s", productID, txHash, explorerLink)
}

// FileName is the image file name for productID.
func FileName(productID string) string {
	return productID + "_qrcode.png"
}

// Generate writes the QR code PNG for a registration into dir and returns the
// file name relative to dir.
func Generate(dir string, productID string, txHash string, explorerLink string) (string, error) {
	if productID == "" || txHash == "" {
		return "", errors.New("product id and tx hash are required for the QR code")
	}

	name := FileName(productID)
	if filepath.Base(name) != name {
		return "", errors.Errorf("product id %q is not a valid file name", productID)
	}

	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create QR dir %q", dir)
	}

	path := filepath.Join(dir, name)

	if err := qrcode.WriteFile(Content(productID, txHash, explorerLink), qrcode.Medium, imageSize, path); err != nil {
		return "", errors.Wrapf(err, "failed to write QR code %q", path)
	}

	return name, nil
}
