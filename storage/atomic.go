package storage

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// AtomicWriter writes a file through a temp file and rename so readers
// never see a partial document.
type AtomicWriter struct {
	fs      afero.Fs
	path    string
	tmpPath string
	file    afero.File
}

// NewAtomicWriter creates a temp file next to path on fs.
func NewAtomicWriter(fs afero.Fs, path string) (*AtomicWriter, error) {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	tmpFile, err := afero.TempFile(fs, dir, ".ytaddon-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	return &AtomicWriter{
		fs:      fs,
		path:    path,
		tmpPath: tmpFile.Name(),
		file:    tmpFile,
	}, nil
}

// Write writes data to the temporary file.
func (w *AtomicWriter) Write(p []byte) (n int, err error) {
	return w.file.Write(p)
}

// Commit syncs the temp file and renames it over the target.
func (w *AtomicWriter) Commit() error {
	if err := w.file.Sync(); err != nil {
		w.Abort()
		return fmt.Errorf("sync: %w", err)
	}
	if err := w.file.Close(); err != nil {
		_ = w.fs.Remove(w.tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := w.fs.Rename(w.tmpPath, w.path); err != nil {
		_ = w.fs.Remove(w.tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Abort discards the temporary file without committing.
func (w *AtomicWriter) Abort() error {
	w.file.Close()
	return w.fs.Remove(w.tmpPath)
}
