// Package ledgerfile persists the resource ledger as a single JSON file.
package ledgerfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hexswarm/hexswarm/internal/atomicfile"
	"github.com/hexswarm/hexswarm/internal/domain/resource"
	"github.com/hexswarm/hexswarm/internal/port/ledgerstore"
)

// File is a ledger store backed by one file, rewritten atomically.
type File struct {
	path string
}

var _ ledgerstore.Store = (*File)(nil)

// New returns a store at path. The parent directory is created on first save.
func New(path string) *File {
	return &File{path: path}
}

// Path returns the ledger file path.
func (f *File) Path() string { return f.path }

// Load reads the ledger. A missing file yields an empty ledger.
func (f *File) Load(ctx context.Context) (resource.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return resource.Ledger{}, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return resource.Ledger{Agents: map[string]resource.Snapshot{}}, nil
		}
		return resource.Ledger{}, fmt.Errorf("read ledger: %w", err)
	}
	var l resource.Ledger
	if err := json.Unmarshal(data, &l); err != nil {
		return resource.Ledger{}, fmt.Errorf("parse ledger %s: %w", f.path, err)
	}
	if l.Agents == nil {
		l.Agents = map[string]resource.Snapshot{}
	}
	return l, nil
}

// Save replaces the ledger file.
func (f *File) Save(ctx context.Context, l resource.Ledger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	if err := atomicfile.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}
