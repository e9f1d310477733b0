// Package forward fans ingested readings out to registered downstream
// servers. Delivery is best effort: a failing endpoint is logged and
// skipped, never blocking ingest.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	defaults "github.com/xtxerr/sensorlog/config"
	"github.com/xtxerr/sensorlog/internal/logging"
	"github.com/xtxerr/sensorlog/internal/schema"
)

var log = logging.Component("forward")

// Manager keeps the set of downstream endpoints. Safe for concurrent
// use; endpoints are mutated by HTTP handlers while broadcasts run.
type Manager struct {
	mu        sync.Mutex
	endpoints []string
	http      *http.Client
}

// New creates a Manager whose deliveries are bounded by timeout.
func New(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaults.DefaultForwardTimeout
	}
	return &Manager{http: &http.Client{Timeout: timeout}}
}

// Register adds an endpoint. Registering an existing endpoint is a
// no-op.
func (m *Manager) Register(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if slices.Contains(m.endpoints, url) {
		return
	}
	m.endpoints = append(m.endpoints, url)
	log.Info("registered forwarding endpoint", "url", url, "endpoints", len(m.endpoints))
}

// Remove drops an endpoint. Removing an unknown endpoint is a no-op.
func (m *Manager) Remove(url string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.endpoints)
	m.endpoints = slices.DeleteFunc(m.endpoints, func(e string) bool { return e == url })
	if len(m.endpoints) != before {
		log.Info("removed forwarding endpoint", "url", url, "endpoints", len(m.endpoints))
	}
}

// Endpoints returns a copy of the registered endpoints.
func (m *Manager) Endpoints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.endpoints)
}

// Broadcast posts the reading as JSON to every registered endpoint.
func (m *Manager) Broadcast(ctx context.Context, r schema.Reading) {
	endpoints := m.Endpoints()
	if len(endpoints) == 0 {
		return
	}

	body, err := json.Marshal(r)
	if err != nil {
		log.Error("encode reading for forwarding", "error", err)
		return
	}

	for _, url := range endpoints {
		if err := m.post(ctx, url, body); err != nil {
			log.Warn("forwarding failed", "url", url, "error", err)
		}
	}
}

func (m *Manager) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
