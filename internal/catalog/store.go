package catalog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"soundserver/internal/platform/remote"
)

// DirStore is the flat directory holding one file per local sound.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

func (s *DirStore) Dir() string {
	return s.dir
}

// List returns the visible files of the store in directory order.
// Hidden files (including in-progress downloads) are skipped.
func (s *DirStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// Path returns the location of filename inside the store.
func (s *DirStore) Path(filename string) (string, error) {
	if !validFilename(filename) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	return filepath.Join(s.dir, filename), nil
}

// Save writes r to filename, replacing any existing file once fully written.
func (s *DirStore) Save(filename string, r io.Reader) (int64, error) {
	p, err := s.Path(filename)
	if err != nil {
		return 0, err
	}
	return remote.WriteFile(p, r)
}

func validFilename(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}
