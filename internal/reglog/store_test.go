package reglog_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truewear/go-registrar/internal/config"
	"github.com/truewear/go-registrar/internal/reglog"
)

func sampleRecord(i int) reglog.Record {
	id := fmt.Sprintf("P2024010100000%d", i)
	hash := fmt.Sprintf("0x%064x", i+1)

	return reglog.Record{
		Timestamp: "2024-01-01 00:00:12 UTC",
		ProductID: id,
		DeliveryInfo: reglog.DeliveryInfo{
			Recipient: "John Doe",
			Address:   "123 Main St, Hyderabad <Block A> & Co",
			Timestamp: "2024-01-01 00:00:00 UTC",
		},
		ReplacementInfo: reglog.NoReplacement(),
		TxHash:          hash,
		BlockNumber:     uint64(12345 + i),
		Status:          "Success",
		EtherscanLink:   "https://sepolia.etherscan.io/tx/" + hash,
		QRCodeFile:      id + "_qrcode.png",
	}
}

func stores(t *testing.T) map[string]reglog.Store {
	t.Helper()
	dir := t.TempDir()

	sqliteStore, err := reglog.NewSQLiteStore(filepath.Join(dir, "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })

	return map[string]reglog.Store{
		"json":   reglog.NewJSONStore(filepath.Join(dir, "products_log.json")),
		"sqlite": sqliteStore,
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()

			records, err := store.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, records)

			const n = 5
			for i := range n {
				require.NoError(t, store.Append(ctx, sampleRecord(i)))
			}

			records, err = store.List(ctx)
			require.NoError(t, err)
			require.Len(t, records, n)
			for i := range n {
				assert.Equal(t, sampleRecord(i), records[i])
			}

			found, ok, err := store.Find(ctx, sampleRecord(3).ProductID)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, sampleRecord(3), *found)

			_, ok, err = store.Find(ctx, "P-missing")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestJSONStoreRoundTripsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products_log.json")
	store := reglog.NewJSONStore(path)
	ctx := t.Context()

	for i := range 3 {
		require.NoError(t, store.Append(ctx, sampleRecord(i)))
	}

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)

	records, err := store.List(ctx)
	require.NoError(t, err)

	again, err := reglog.Marshal(records)
	require.NoError(t, err)
	assert.Equal(t, string(onDisk), string(again))

	assert.Contains(t, string(onDisk), "\n    {\n        \"timestamp\"")
	assert.Contains(t, string(onDisk), "<Block A> & Co")
}

func TestJSONStoreToleratesMissingEmptyAndCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	ctx := t.Context()

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o600))
	records, err := reglog.NewJSONStore(empty).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = reglog.NewJSONStore(filepath.Join(dir, "missing.json")).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("[{\"product_id\": "), 0o600))
	store := reglog.NewJSONStore(corrupt)

	records, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, store.Append(ctx, sampleRecord(0)))
	records, err = store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// the unreadable content is kept aside, not destroyed
	backups, err := filepath.Glob(corrupt + ".corrupt-*")
	require.NoError(t, err)
	require.Len(t, backups, 1)
	content, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "[{\"product_id\": ", string(content))
}

func TestSQLiteImportSkipsKnownHashes(t *testing.T) {
	store, err := reglog.NewSQLiteStore(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := t.Context()

	require.NoError(t, store.Append(ctx, sampleRecord(0)))

	imported, err := store.Import(ctx, []reglog.Record{sampleRecord(0), sampleRecord(1), sampleRecord(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, imported)

	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	// the same tx hash cannot be appended twice
	require.Error(t, store.Append(ctx, sampleRecord(1)))
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	store, err := reglog.Open(config.RegLog{Backend: config.LogBackendJSON, File: filepath.Join(dir, "a.json")})
	require.NoError(t, err)
	assert.IsType(t, &reglog.JSONStore{}, store)

	store, err = reglog.Open(config.RegLog{Backend: config.LogBackendSQLite, SQLitePath: filepath.Join(dir, "a.db")})
	require.NoError(t, err)
	assert.IsType(t, &reglog.SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = reglog.Open(config.RegLog{Backend: "csv"})
	require.Error(t, err)
}
