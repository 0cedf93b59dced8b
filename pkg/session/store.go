package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

var (
	_ Store = &FileStore{}
	_ Store = &MemoryStore{}
)

// FileStore keeps session keys as a JSON object in a single file, so a
// session survives restarts of the process.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return "", false, err
	}

	value, ok := data[key]

	return value, ok, nil
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}

	data[key] = value

	return s.write(data)
}

func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read()
	if err != nil {
		return err
	}

	if _, ok := data[key]; !ok {
		return nil
	}

	delete(data, key)

	return s.write(data)
}

func (s *FileStore) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}

		return nil, fmt.Errorf("reading session file: %w", err)
	}

	data := map[string]string{}
	if len(raw) == 0 {
		return data, nil
	}

	err = json.Unmarshal(raw, &data)
	if err != nil {
		return nil, fmt.Errorf("decoding session file: %w", err)
	}

	return data, nil
}

func (s *FileStore) write(data map[string]string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding session file: %w", err)
	}

	dir := filepath.Dir(s.path)

	err = os.MkdirAll(dir, 0o700)
	if err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("creating temp session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(raw)
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp session file: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		return fmt.Errorf("closing temp session file: %w", err)
	}

	err = os.Chmod(tmp.Name(), 0o600)
	if err != nil {
		return fmt.Errorf("chmod temp session file: %w", err)
	}

	err = os.Rename(tmp.Name(), s.path)
	if err != nil {
		return fmt.Errorf("replacing session file: %w", err)
	}

	return nil
}

func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
	}
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]

	return value, ok, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value

	return nil
}

func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)

	return nil
}

// Len is the number of keys held, mostly useful in tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: map[string]string{},
	}
}
