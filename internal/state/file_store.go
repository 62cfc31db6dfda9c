package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/afinia/internal/params"
)

// #region file-store
// FileStore keeps one pretty-printed JSON document per user in dir. There
// is no locking: concurrent writers for the same user race and the last
// rename wins.
type FileStore struct {
	dir    string
	def    int
	logger *zap.Logger
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string, defaultValue int, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{dir: dir, def: defaultValue, logger: logger}, nil
}

// Path returns the file backing userID.
func (s *FileStore) Path(userID string) (string, error) {
	id, err := ValidUserID(userID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// Load reads the user's document, defaulting anything missing or unreadable.
func (s *FileStore) Load(_ context.Context, userID string) params.Set {
	path, err := s.Path(userID)
	if err != nil {
		return params.Defaults(s.def)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("read parameters", zap.String("user", userID), zap.Error(err))
		}
		return params.Defaults(s.def)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		s.logger.Warn("corrupt parameters file, using defaults", zap.String("path", path), zap.Error(err))
		return params.Defaults(s.def)
	}
	set, _ := params.FromMap(raw, s.def)
	return set
}

// Save overwrites the user's document through a temp file and rename.
func (s *FileStore) Save(_ context.Context, userID string, set params.Set) error {
	path, err := s.Path(userID)
	if err != nil {
		return err
	}
	out := set.Clone()
	out.Complete(s.def)

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal: %w", ErrSaveFailed, err)
	}
	if err := writeFileAtomic(path, b, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrSaveFailed, path, err)
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error {
	return nil
}

// #endregion file-store

// #region atomic-write
func writeFileAtomic(path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp_params_*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// #endregion atomic-write
