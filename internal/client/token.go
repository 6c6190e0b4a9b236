package client

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// TokenStore holds the process-wide bearer token. It is mutated only by
// login, refresh and logout/failure-clear operations; request construction
// reads it but never mutates it directly.
type TokenStore interface {
	Get() string
	Set(token string)
	Clear()
}

// MemoryTokenStore is an in-memory TokenStore.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *MemoryTokenStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *MemoryTokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// FileTokenStore persists the token in a small key-value JSON file so a
// gateway restart does not force a re-login. Reads hit memory; writes go
// through to disk best-effort.
type FileTokenStore struct {
	mu    sync.RWMutex
	path  string
	token string
}

type tokenFile struct {
	Token string `json:"token"`
}

// NewFileTokenStore loads any previously persisted token from path.
func NewFileTokenStore(path string) (*FileTokenStore, error) {
	s := &FileTokenStore{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err == nil {
		s.token = tf.Token
	}
	return s, nil
}

func (s *FileTokenStore) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *FileTokenStore) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.persist()
}

func (s *FileTokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.persist()
}

func (s *FileTokenStore) persist() {
	data, err := json.Marshal(tokenFile{Token: s.token})
	if err != nil {
		return
	}
	os.MkdirAll(filepath.Dir(s.path), 0755)
	os.WriteFile(s.path, data, 0600)
}
