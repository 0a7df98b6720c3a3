// Package atomicfile writes files so that readers observe either the old or
// the new complete contents, never a partial write.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// TempSuffix is appended to the destination path for the transient file.
const TempSuffix = ".tmp"

// Writer writes files via temp file, fsync and rename.
type Writer struct {
	// Perm is the mode of the final file. Zero means 0o644.
	Perm os.FileMode

	// BeforeRename, when set, runs after the temp file is synced and closed
	// but before it is renamed into place. A non-nil error aborts the write.
	BeforeRename func(tmpPath string) error
}

// WriteFile writes data to path atomically with mode perm.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	return Writer{Perm: perm}.Write(path, data)
}

// Write writes data to path atomically.
func (w Writer) Write(path string, data []byte) error {
	perm := w.Perm
	if perm == 0 {
		perm = 0o644
	}
	tmpPath := path + TempSuffix

	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm) //nolint:gosec // G304: path built by caller from validated ids
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if w.BeforeRename != nil {
		if err := w.BeforeRename(tmpPath); err != nil {
			return err
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	committed = true

	// The rename is already visible; failing to sync the directory only
	// weakens durability across power loss, so it is not reported.
	_ = SyncDir(filepath.Dir(path))
	return nil
}

// SyncDir fsyncs a directory so that entries created or renamed in it are durable.
func SyncDir(dir string) error {
	f, err := os.Open(dir) //nolint:gosec // G304: caller-controlled directory
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return f.Sync()
}
