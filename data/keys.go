package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ndidplatform/idp-agent/accessor"
)

// KeyStore holds accessor material per subject id ("ns:identifier").
type KeyStore interface {
	Put(sid string, material accessor.Material) error
	Get(sid string) (accessor.Material, bool, error)
}

type MemoryKeyStore struct {
	mu        sync.RWMutex
	materials map[string]accessor.Material
}

var _ KeyStore = (*MemoryKeyStore)(nil)

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{materials: map[string]accessor.Material{}}
}

func (s *MemoryKeyStore) Put(sid string, material accessor.Material) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materials[sid] = material
	return nil
}

func (s *MemoryKeyStore) Get(sid string) (accessor.Material, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	material, ok := s.materials[sid]
	return material, ok, nil
}

// FileKeyStore keeps one JSON file per subject under dir, so onboarded
// identities survive agent restarts.
type FileKeyStore struct {
	dir string
	mu  sync.Mutex
}

var _ KeyStore = (*FileKeyStore)(nil)

func NewFileKeyStore(dir string) (*FileKeyStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	return &FileKeyStore{dir: dir}, nil
}

func (s *FileKeyStore) Put(sid string, material accessor.Material) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(material)
	if err != nil {
		return fmt.Errorf("marshal material: %w", err)
	}
	if err := os.WriteFile(s.path(sid), raw, 0o600); err != nil {
		return fmt.Errorf("write material: %w", err)
	}
	return nil
}

func (s *FileKeyStore) Get(sid string) (accessor.Material, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path(sid))
	if errors.Is(err, fs.ErrNotExist) {
		return accessor.Material{}, false, nil
	}
	if err != nil {
		return accessor.Material{}, false, fmt.Errorf("read material: %w", err)
	}

	var material accessor.Material
	if err := json.Unmarshal(raw, &material); err != nil {
		return accessor.Material{}, false, fmt.Errorf("unmarshal material: %w", err)
	}
	return material, true, nil
}

func (s *FileKeyStore) path(sid string) string {
	// Subject ids carry a ':' separator; keep file names portable.
	name := strings.ReplaceAll(sid, ":", "_") + ".json"
	return filepath.Join(s.dir, name)
}
