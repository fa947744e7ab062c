package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// JSONStore persists one JSON document per file. Writes go through a temp file and a
// rename so a crash never leaves a half-written snapshot behind.
type JSONStore struct {
	mu       sync.Mutex
	filePath string
}

// NewJSONStore creates the data directory if needed. An empty dataDir disables persistence
// and returns a nil store; a nil *JSONStore accepts Load and Save as no-ops.
func NewJSONStore(dataDir, filename string) (*JSONStore, error) {
	if dataDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	return &JSONStore{filePath: filepath.Join(dataDir, filename)}, nil
}

// Load decodes the snapshot into data. A missing file leaves data untouched.
func (s *JSONStore) Load(data any) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.Open(s.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(data)
}

func (s *JSONStore) Save(data any) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tempFile := s.filePath + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		file.Close()
		os.Remove(tempFile)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempFile)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}

	return os.Rename(tempFile, s.filePath)
}

func (s *JSONStore) Path() string {
	if s == nil {
		return ""
	}
	return s.filePath
}
