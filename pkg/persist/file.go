package persist

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// FileStorage stores one file per key under a directory of an afero
// filesystem. Keys are path-escaped so any string is a valid key.
type FileStorage struct {
	fs  afero.Fs
	dir string

	mu sync.Mutex
}

// NewFileStorage creates dir on fs if needed.
//
//	store, err := persist.NewFileStorage(afero.NewOsFs(), "/var/lib/app/state")
func NewFileStorage(fs afero.Fs, dir string) (*FileStorage, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persist: create %s: %w", dir, err)
	}
	return &FileStorage{fs: fs, dir: dir}, nil
}

func (s *FileStorage) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+".dat")
}

func (s *FileStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if key == "" {
		return nil, false, ErrInvalidKey
	}

	data, err := afero.ReadFile(s.fs, s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("persist: read %q: %w", key, err)
	}
	return data, true, nil
}

// Set writes to a temporary file first so a reader never sees a partial
// payload.
func (s *FileStorage) Set(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("persist: write %q: %w", key, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("persist: write %q: %w", key, err)
	}
	return nil
}

func (s *FileStorage) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.fs.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("persist: remove %q: %w", key, err)
	}
	return nil
}

// Keys lists the stored keys.
func (s *FileStorage) Keys() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".dat" {
			continue
		}
		key, err := url.PathUnescape(name[:len(name)-len(".dat")])
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}
