package client

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// DefaultDevBaseURL is the hard-coded fallback used in a development
// context when no server settings have been persisted.
const DefaultDevBaseURL = "http://localhost:8000"

// ServerSettings is the locally persisted upstream address used in a
// development context.
type ServerSettings struct {
	IP   string `json:"ip,omitempty"`
	Port int    `json:"port,omitempty"`
}

// SettingsStore persists development-mode server settings as JSON.
type SettingsStore struct {
	mu   sync.RWMutex
	path string
}

func NewSettingsStore(path string) *SettingsStore {
	return &SettingsStore{path: path}
}

// Load returns the persisted settings, or zero settings if none exist or
// the file is unreadable.
func (s *SettingsStore) Load() ServerSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var settings ServerSettings
	data, err := os.ReadFile(s.path)
	if err != nil {
		return settings
	}
	json.Unmarshal(data, &settings)
	return settings
}

// Save persists new settings. The next request picks them up immediately
// since the base URL is resolved per request.
func (s *SettingsStore) Save(settings ServerSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

// Resolver computes the active upstream base URL. The result is computed
// per request, never cached, so settings changes take effect immediately.
//
// In a deployed context requests are always routed through the fixed
// prefix (the reverse proxy owns the real address). In a development
// context the address comes from the persisted server settings with a
// hard-coded fallback.
type Resolver struct {
	Deployed bool
	Prefix   string
	Settings *SettingsStore
}

func (r *Resolver) BaseURL() string {
	if r.Deployed {
		return r.Prefix
	}
	if r.Settings != nil {
		s := r.Settings.Load()
		if s.IP != "" || s.Port != 0 {
			ip := s.IP
			if ip == "" {
				ip = "localhost"
			}
			port := s.Port
			if port == 0 {
				port = 8000
			}
			return fmt.Sprintf("http://%s:%d", ip, port)
		}
	}
	return DefaultDevBaseURL
}
