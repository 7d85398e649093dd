package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// TempScope owns the temporary files of one unit of work. Every path it
// hands out or adopts is removed by Release. Release is safe to call more
// than once and from a defer.
type TempScope struct {
	dir string

	mu    sync.Mutex
	owned []string
}

func NewTempScope(dir string) *TempScope {
	if dir == "" {
		dir = os.TempDir()
	}
	return &TempScope{dir: dir}
}

// Adopt takes ownership of a file created elsewhere (e.g. an upload).
func (s *TempScope) Adopt(path string) {
	if path == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owned = append(s.owned, path)
}

// NewPath reserves a unique path inside the scope directory. The file itself
// is not created; whoever writes it can rely on Release to remove it.
func (s *TempScope) NewPath(ext string) (string, error) {
	if err := MakeDir(s.dir); err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	path := filepath.Join(s.dir, "soundmeta-"+uuid.NewString()+ext)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.owned = append(s.owned, path)
	return path, nil
}

// Paths lists the files currently owned by the scope.
func (s *TempScope) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.owned))
	copy(out, s.owned)
	return out
}

// Release removes every owned file exactly once. Files that were never
// written or are already gone are not errors.
func (s *TempScope) Release() error {
	s.mu.Lock()
	owned := s.owned
	s.owned = nil
	s.mu.Unlock()

	var errs []error
	for _, path := range owned {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("removing %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}
