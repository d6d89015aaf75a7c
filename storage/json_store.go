package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/spf13/afero"
)

// FileName is the settings document inside the data directory.
const FileName = "config.json"

// JSONStore implements Store as a single JSON document.
type JSONStore struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewJSONStore creates a store for the document at path on fsys. A nil
// fsys means the OS filesystem.
func NewJSONStore(fsys afero.Fs, path string) *JSONStore {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &JSONStore{fs: fsys, path: path}
}

// Path returns the document location.
func (s *JSONStore) Path() string {
	return s.path
}

// Load implements Store. A missing document is created with defaults. A
// document that does not decode returns ErrStorageCorrupt and is left
// untouched.
func (s *JSONStore) Load(ctx context.Context) (*Settings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
			def := DefaultSettings()
			if err := s.write(def); err != nil {
				return nil, err
			}
			return def, nil
		}
		return nil, &StorageError{Op: "read", Entity: "settings", Err: err}
	}

	var raw Settings
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &StorageError{Op: "read", Entity: "settings", Err: ErrStorageCorrupt}
	}
	return raw.Normalize(), nil
}

// Save implements Store.
func (s *JSONStore) Save(ctx context.Context, settings *Settings) (*Settings, error) {
	if settings == nil {
		return nil, &StorageError{Op: "write", Entity: "settings", Err: ErrInvalidInput}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := settings.Normalize()
	if err := s.write(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *JSONStore) write(settings *Settings) error {
	writer, err := NewAtomicWriter(s.fs, s.path)
	if err != nil {
		return &StorageError{Op: "write", Entity: "settings", Err: err}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(settings); err != nil {
		writer.Abort()
		return &StorageError{Op: "write", Entity: "settings", Err: err}
	}

	if err := writer.Commit(); err != nil {
		return &StorageError{Op: "write", Entity: "settings", Err: err}
	}
	return nil
}
