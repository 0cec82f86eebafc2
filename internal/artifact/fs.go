package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FSStore is a filesystem implementation of Store, intended for local
// development and tests.
type FSStore struct {
	root string
}

var _ Store = (*FSStore)(nil)

// NewFSStore creates an FSStore rooted at dir.
func NewFSStore(dir string) *FSStore {
	return &FSStore{root: dir}
}

// Put writes data at path under the store root.
func (s *FSStore) Put(_ context.Context, path string, data []byte) error {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// Get reads the object at path, or ErrNotFound.
func (s *FSStore) Get(_ context.Context, path string) ([]byte, error) {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}
