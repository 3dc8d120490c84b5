package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	fberrors "github.com/matzehuels/flowboard/pkg/errors"
)

// FileStore keeps each document as <dir>/<name>.json so the files can be
// opened and edited directly.
type FileStore struct {
	mu  sync.RWMutex
	dir string
}

// NewFileStore creates a file store in dir.
// If dir is empty, defaults to ~/.config/flowboard/documents/.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create document dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// DefaultDir returns ~/.config/flowboard/documents.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".config", "flowboard", "documents"), nil
}

// Path returns the file backing the named document.
func (s *FileStore) Path(name string) (string, error) {
	if err := fberrors.ValidateDocumentName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name+".json"), nil
}

// Dir returns the base directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Get(ctx context.Context, name string) (Entry, error) {
	path, err := s.Path(name)
	if err != nil {
		return Entry{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	fi, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, notFound(name)
	}
	if err != nil {
		return Entry{}, storageErr(err, "stat %s", name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, storageErr(err, "read %s", name)
	}
	return Entry{Info: newInfo(name, data, fi.ModTime()), Data: data}, nil
}

func (s *FileStore) Put(ctx context.Context, name string, data []byte) (Info, error) {
	path, err := s.Path(name)
	if err != nil {
		return Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, "."+name+"-*")
	if err != nil {
		return Info{}, storageErr(err, "write %s", name)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Info{}, storageErr(err, "write %s", name)
	}
	if err := tmp.Close(); err != nil {
		return Info{}, storageErr(err, "write %s", name)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Info{}, storageErr(err, "write %s", name)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return Info{}, storageErr(err, "stat %s", name)
	}
	return newInfo(name, data, fi.ModTime()), nil
}

func (s *FileStore) Delete(ctx context.Context, name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return notFound(name)
	}
	return storageErr(err, "remove %s", name)
}

func (s *FileStore) List(ctx context.Context) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, storageErr(err, "read document dir")
	}
	out := []Info{}
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), ".json")
		if entry.IsDir() || !ok || fberrors.ValidateDocumentName(name) != nil {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, newInfo(name, data, fi.ModTime()))
	}
	slices.SortFunc(out, func(a, b Info) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Close does nothing for the file store.
func (s *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
