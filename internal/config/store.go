package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Store loads and persists the settings tree. Each request loads its own
// copy, mutates it, and calls Save at most once.
type Store interface {
	Load() (*Settings, error)
	Save(s *Settings) error
}

// FileStore keeps the settings in a single HCL file. Writes go through a
// temporary file and a rename; the previous version is kept as <path>.bak.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file does not need to
// exist yet; loading a missing file yields the defaults.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (fs *FileStore) Path() string {
	return fs.path
}

// Load reads and decodes the settings file.
func (fs *FileStore) Load() (*Settings, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := os.ReadFile(fs.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Defaults(), nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return ParseSettings(fs.path, data)
}

// Save writes the settings file, keeping a backup of the previous version.
func (fs *FileStore) Save(s *Settings) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if _, err := os.Stat(fs.path); err == nil {
		if err := copyFile(fs.path, fs.path+".bak"); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fs.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(MarshalSettings(s)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.path); err != nil {
		return fmt.Errorf("failed to replace settings: %w", err)
	}
	return nil
}

// Watch calls onChange whenever the settings file is written or replaced,
// until ctx is cancelled. The parent directory is watched so atomic renames
// are seen.
func (fs *FileStore) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(fs.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(fs.path), err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(fs.path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					onChange()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// MemoryStore keeps the settings in memory. Load hands out deep copies so
// callers cannot mutate the stored tree without Save.
type MemoryStore struct {
	mu       sync.Mutex
	settings *Settings
	saves    int
}

// NewMemoryStore returns a store seeded with s, or with the defaults when s is nil.
func NewMemoryStore(s *Settings) *MemoryStore {
	if s == nil {
		s = Defaults()
	}
	return &MemoryStore{settings: s.Clone()}
}

// Load returns a copy of the stored settings.
func (m *MemoryStore) Load() (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.Clone(), nil
}

// Save replaces the stored settings with a copy of s.
func (m *MemoryStore) Save(s *Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s.Clone()
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
