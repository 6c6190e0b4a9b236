// Package health tracks the upstream session-store status. The status is
// peripheral: it is cached on disk with a freshness window and nothing in
// the import pipeline blocks on it, or on it being current.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wms-admin/gateway/internal/client"
)

// Freshness is how long a cached session-store status stays usable before
// the background loop probes again.
const Freshness = 30 * time.Minute

// Status is the cached session-store probe result.
type Status struct {
	Available bool      `json:"available"`
	Strategy  string    `json:"strategy,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Fresh reports whether the status is within the freshness window.
func (s Status) Fresh(now time.Time) bool {
	return !s.CheckedAt.IsZero() && now.Sub(s.CheckedAt) < Freshness
}

// Monitor probes the upstream session-store endpoint on a timer and
// caches the outcome on disk. All reads are non-blocking; a stale or
// missing cache simply reports unknown.
type Monitor struct {
	api       *client.Client
	cachePath string
	log       *zap.Logger

	mu     sync.RWMutex
	status Status
}

func NewMonitor(api *client.Client, cachePath string, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Monitor{api: api, cachePath: cachePath, log: log}
	m.loadCache()
	return m
}

// Current returns the cached status and whether it is still fresh. It
// never performs network I/O.
func (m *Monitor) Current() (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.status.Fresh(time.Now())
}

// Run probes on the given interval until the context ends. A fresh
// cached status suppresses the first probe.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if _, fresh := m.Current(); !fresh {
		m.probe(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, fresh := m.Current(); !fresh {
				m.probe(ctx)
			}
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	status := Status{CheckedAt: time.Now()}

	// Raw send: a failing probe must not clear credentials or trigger
	// a login redirect.
	resp, err := m.api.Send(ctx, http.MethodGet, "/health/session-store", nil, nil)
	if err == nil && resp.Status == http.StatusOK {
		var body struct {
			Available bool   `json:"available"`
			Strategy  string `json:"strategy"`
		}
		if jsonErr := json.Unmarshal(resp.Body, &body); jsonErr == nil {
			status.Available = body.Available
			status.Strategy = body.Strategy
		}
	} else {
		m.log.Debug("session-store probe failed", zap.Error(err))
	}

	m.mu.Lock()
	m.status = status
	m.mu.Unlock()

	m.saveCache(status)
}

func (m *Monitor) loadCache() {
	if m.cachePath == "" {
		return
	}
	data, err := os.ReadFile(m.cachePath)
	if err != nil {
		return
	}
	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return
	}
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
}

func (m *Monitor) saveCache(status Status) {
	if m.cachePath == "" {
		return
	}
	data, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := os.WriteFile(m.cachePath, data, 0o644); err != nil {
		m.log.Debug("failed to persist session-store status", zap.Error(err))
	}
}
