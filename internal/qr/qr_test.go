package qr_test

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gabriel-vasile/mimetype"
	"github.com/makiuchi-d/gozxing"
	gozxingqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truewear/go-registrar/internal/qr"
)

func decode(t *testing.T, path string) string {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err)

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	require.NoError(t, err)

	result, err := gozxingqr.NewQRCodeReader().Decode(bmp, nil)
	require.NoError(t, err)

	return result.GetText()
}

func TestGenerateDecodesToRegistration(t *testing.T) {
	dir := t.TempDir()
	hash := "0x0901524b0c06fa31159614d0770a04aa0062f70c606c6c9c39c7ea8a2f7f68e9"
	link := "https://sepolia.etherscan.io/tx/" + hash

	name, err := qr.Generate(dir, "P20240101000000", hash, link)
	require.NoError(t, err)
	assert.Equal(t, "P20240101000000_qrcode.png", name)

	path := filepath.Join(dir, name)

	mtype, err := mimetype.DetectFile(path)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mtype.String())

	text := decode(t, path)
	assert.Contains(t, text, "P20240101000000")
	assert.Contains(t, text, hash)
	assert.Equal(t, qr.Content("P20240101000000", hash, link), text)
}

func TestGenerateRequiresIdentifiers(t *testing.T) {
	_, err := qr.Generate(t.TempDir(), "", "0x01", "")
	require.Error(t, err)

	_, err = qr.Generate(t.TempDir(), "P1", "", "")
	require.Error(t, err)
}

func TestGenerateCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "qr")

	name, err := qr.Generate(dir, "P1", "0x01", "https://sepolia.etherscan.io/tx/0x01")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, name))
	require.NoError(t, err)
}

func TestGenerateRejectsPathInProductID(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "qr")

	for _, id := range []string{"../escaped", "nested/P1", "/abs"} {
		name, err := qr.Generate(dir, id, "0xabc", "https://sepolia.etherscan.io/tx/0xabc")
		require.Error(t, err, id)
		assert.Empty(t, name, id)
	}

	assert.NoFileExists(t, filepath.Join(root, "escaped_qrcode.png"))
}
