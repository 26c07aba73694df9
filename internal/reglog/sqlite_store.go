package reglog

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/url"
	"time"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

const sqliteTimeout = 10 * time.Second

// SQLiteStore keeps the log in an append-only table. Unlike JSONStore it is
// safe to share between processes.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite path is required")
	}

	dsn := "file:" + dbPath + "?" + url.Values{
		"_pragma": []string{"busy_timeout(5000)", "journal_mode(WAL)"},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sqlite log %q", dbPath)
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS registrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			product_id TEXT NOT NULL,
			delivery_info TEXT NOT NULL,
			replacement_info TEXT NOT NULL,
			tx_hash TEXT NOT NULL,
			block_number INTEGER NOT NULL,
			status TEXT NOT NULL,
			etherscan_link TEXT NOT NULL,
			qr_code_file TEXT NOT NULL,
			UNIQUE(tx_hash)
		)`,
		`CREATE INDEX IF NOT EXISTS registrations_product_id ON registrations (product_id)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return errors.Wrap(err, "failed to create registrations schema")
		}
	}

	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, record Record) error {
	ctx, cancel := context.WithTimeout(ctx, sqliteTimeout)
	defer cancel()

	delivery, replacement, err := encodeInfo(record)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO registrations
		(timestamp, product_id, delivery_info, replacement_info, tx_hash, block_number, status, etherscan_link, qr_code_file)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Timestamp, record.ProductID, delivery, replacement, record.TxHash,
		int64(record.BlockNumber), record.Status, record.EtherscanLink, record.QRCodeFile) //nolint:gosec
	if err != nil {
		return errors.Wrapf(err, "failed to append registration %s", record.ProductID)
	}

	return nil
}

// Import appends every record whose tx hash is not stored yet and returns how
// many were added.
func (s *SQLiteStore) Import(ctx context.Context, records []Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, sqliteTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin import")
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO registrations
		(timestamp, product_id, delivery_info, replacement_info, tx_hash, block_number, status, etherscan_link, qr_code_file)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tx_hash) DO NOTHING`)
	if err != nil {
		_ = tx.Rollback()
		return 0, errors.Wrap(err, "failed to prepare import")
	}
	defer stmt.Close()

	imported := 0
	for _, record := range records {
		delivery, replacement, err := encodeInfo(record)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}

		res, err := stmt.ExecContext(ctx,
			record.Timestamp, record.ProductID, delivery, replacement, record.TxHash,
			int64(record.BlockNumber), record.Status, record.EtherscanLink, record.QRCodeFile) //nolint:gosec
		if err != nil {
			_ = tx.Rollback()
			return 0, errors.Wrapf(err, "failed to import registration %s", record.ProductID)
		}

		if n, err := res.RowsAffected(); err == nil {
			imported += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit import")
	}

	return imported, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	return s.query(ctx, `SELECT timestamp, product_id, delivery_info, replacement_info, tx_hash, block_number, status, etherscan_link, qr_code_file
		FROM registrations ORDER BY id`)
}

func (s *SQLiteStore) Find(ctx context.Context, productID string) (*Record, bool, error) {
	records, err := s.query(ctx, `SELECT timestamp, product_id, delivery_info, replacement_info, tx_hash, block_number, status, etherscan_link, qr_code_file
		FROM registrations WHERE product_id = ? ORDER BY id LIMIT 1`, productID)
	if err != nil {
		return nil, false, err
	}

	if len(records) == 0 {
		return nil, false, nil
	}

	return &records[0], true, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, sqliteTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query registrations")
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			record      Record
			delivery    string
			replacement string
			blockNumber int64
		)
		if err := rows.Scan(&record.Timestamp, &record.ProductID, &delivery, &replacement, &record.TxHash,
			&blockNumber, &record.Status, &record.EtherscanLink, &record.QRCodeFile); err != nil {
			return nil, errors.Wrap(err, "failed to scan registration")
		}

		if err := json.Unmarshal([]byte(delivery), &record.DeliveryInfo); err != nil {
			return nil, errors.Wrapf(err, "invalid delivery_info for %s", record.ProductID)
		}
		if err := json.Unmarshal([]byte(replacement), &record.ReplacementInfo); err != nil {
			return nil, errors.Wrapf(err, "invalid replacement_info for %s", record.ProductID)
		}
		record.BlockNumber = uint64(blockNumber) //nolint:gosec

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate registrations")
	}

	return records, nil
}

func encodeInfo(record Record) (string, string, error) {
	delivery, err := json.Marshal(record.DeliveryInfo)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to encode delivery_info")
	}

	replacement, err := json.Marshal(record.ReplacementInfo)
	if err != nil {
		return "", "", errors.Wrap(err, "failed to encode replacement_info")
	}

	return string(delivery), string(replacement), nil
}
