package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultSessionFile is the name of the session file kept next to the config.
const DefaultSessionFile = "session.yaml"

// FileStore persists the session as a YAML map in a file readable only by the
// owner. The whole file is rewritten on every change.
type FileStore struct {
	path string
	mu   sync.RWMutex
	data map[string]string
}

var _ Store = (*FileStore)(nil)

// OpenFileStore loads the store at path. A missing file yields an empty store.
func OpenFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("session file path cannot be empty")
	}
	fs := &FileStore{path: path, data: map[string]string{}}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, fmt.Errorf("unable to read session file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &fs.data); err != nil {
		return nil, fmt.Errorf("unable to parse session file: %w", err)
	}
	if fs.data == nil {
		fs.data = map[string]string{}
	}
	return fs, nil
}

// Path returns the backing file.
func (fs *FileStore) Path() string {
	return fs.path
}

func (fs *FileStore) Get(key string) (string, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	v, ok := fs.data[key]
	return v, ok
}

func (fs *FileStore) Set(values map[string]string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for k, v := range values {
		fs.data[k] = v
	}
	return fs.save()
}

func (fs *FileStore) Remove(keys ...string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, k := range keys {
		delete(fs.data, k)
	}
	return fs.save()
}

// save must be called with mu held.
func (fs *FileStore) save() error {
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return fmt.Errorf("unable to create session directory: %w", err)
	}
	raw, err := yaml.Marshal(fs.data)
	if err != nil {
		return fmt.Errorf("unable to encode session: %w", err)
	}
	if err := os.WriteFile(fs.path, raw, 0o600); err != nil {
		return fmt.Errorf("unable to write session file: %w", err)
	}
	return nil
}
