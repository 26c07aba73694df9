package reglog

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/truewear/go-registrar/internal/util"
)

// JSONStore keeps the log as one indented JSON array in a file. Every append
// rewrites the file through a temp file and a rename. Only one process may
// write at a time.
type JSONStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*JSONStore)(nil)

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

func (s *JSONStore) Path() string {
	return s.path
}

func (s *JSONStore) Append(ctx context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, corrupt, err := s.read()
	if err != nil {
		return err
	}

	if corrupt {
		backup := s.path + ".corrupt-" + time.Now().UTC().Format("20060102T150405")
		if err := os.Rename(s.path, backup); err != nil {
			return errors.Wrapf(err, "failed to move corrupt log %q aside", s.path)
		}
		util.LogFromContext(ctx).Warn().
			Str("path", s.path).
			Str("backup", backup).
			Msg("Registration log was not valid JSON, starting a new one")
	}

	records = append(records, record)

	return s.write(records)
}

func (s *JSONStore) List(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, corrupt, err := s.read()
	if err != nil {
		return nil, err
	}

	if corrupt {
		util.LogFromContext(ctx).Warn().Str("path", s.path).Msg("Registration log is not valid JSON, reading as empty")
	}

	return records, nil
}

func (s *JSONStore) Find(ctx context.Context, productID string) (*Record, bool, error) {
	records, err := s.List(ctx)
	if err != nil {
		return nil, false, err
	}

	for i := range records {
		if records[i].ProductID == productID {
			return &records[i], true, nil
		}
	}

	return nil, false, nil
}

func (s *JSONStore) Close() error {
	return nil
}

// read returns the stored records. A missing or empty file is an empty log,
// a file that does not parse is reported as corrupt and read as empty.
func (s *JSONStore) read() ([]Record, bool, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, false, nil
		}
		return nil, false, errors.Wrapf(err, "failed to read log %q", s.path)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return []Record{}, false, nil
	}

	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return []Record{}, true, nil
	}
	if records == nil {
		records = []Record{}
	}

	return records, false, nil
}

func (s *JSONStore) write(records []Record) error {
	data, err := Marshal(records)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create log dir %q", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp log file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to write temp log file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to sync temp log file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp log file")
	}

	//nolint:gosec // the log is meant to be readable by other tools
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return errors.Wrap(err, "failed to set log file mode")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrapf(err, "failed to replace log %q", s.path)
	}

	return nil
}

// Marshal renders records exactly as JSONStore stores them: a four-space
// indented array without HTML escaping.
func Marshal(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)

	if err := enc.Encode(records); err != nil {
		return nil, errors.Wrap(err, "failed to encode log")
	}

	return buf.Bytes(), nil
}
