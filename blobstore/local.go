package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/hupe1980/gvsingest/internal/mmap"
)

// LocalStore implements Store over a local directory.
//
// Only the directory itself is listed; subdirectories are skipped.
type LocalStore struct {
	root string
}

// NewLocalStore creates a new LocalStore rooted at the given directory.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root}
}

// List returns the regular files in the root directory starting with prefix.
func (s *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() || !hasPrefix(e.Name(), prefix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Open maps the named file into memory.
func (s *LocalStore) Open(_ context.Context, name string) (Blob, error) {
	m, err := mmap.Open(filepath.Join(s.root, name))
	if err != nil {
		return nil, err
	}
	// Best effort; a failed hint does not affect reads.
	_ = m.AdviseSequential()
	return m, nil
}
