package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/coreerrors"
)

// ManagerConfig tunes the health-scan loop. Zero values fall back to the
// defaults from the data model.
type ManagerConfig struct {
	CheckInterval      time.Duration
	DegradedThreshold  time.Duration
	UnhealthyThreshold time.Duration
}

const (
	defaultCheckInterval      = 30 * time.Second
	defaultDegradedThreshold  = 60 * time.Second
	defaultUnhealthyThreshold = 120 * time.Second
)

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.CheckInterval <= 0 {
		c.CheckInterval = defaultCheckInterval
	}
	if c.DegradedThreshold <= 0 {
		c.DegradedThreshold = defaultDegradedThreshold
	}
	if c.UnhealthyThreshold <= 0 {
		c.UnhealthyThreshold = defaultUnhealthyThreshold
	}
	return c
}

// Manager owns the set of live connections and periodically demotes idle
// ones, logging each health transition. Grounded on
// original_source's security::bridge BridgeManager connection half.
type Manager struct {
	cfg    ManagerConfig
	log    *slog.Logger
	nowFn  func() time.Time

	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewManager(cfg ManagerConfig, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		cfg:   cfg.withDefaults(),
		log:   log.With("component", "bridge.manager"),
		nowFn: time.Now,
		conns: make(map[string]*Connection),
	}
}

// Register creates a Connection record for a freshly accepted peer and
// returns its id.
func (m *Manager) Register(peer PeerIdentity) string {
	id := uuid.NewString()
	now := m.nowFn()
	conn := &Connection{
		ID:          id,
		PeerUID:     peer.UID,
		PeerPID:     peer.PID,
		ConnectedAt: now,
		LastActive:  now,
		Health:      HealthHealthy,
	}

	m.mu.Lock()
	m.conns[id] = conn
	m.mu.Unlock()

	m.log.Info("connection registered", "connection_id", id)
	return id
}

// Unregister removes a connection record on disconnect.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	_, ok := m.conns[id]
	delete(m.conns, id)
	m.mu.Unlock()
	if ok {
		m.log.Info("connection closed", "connection_id", id)
	}
}

// Touch marks a connection active (on every successful RPC) and clears any
// degraded/unhealthy state immediately, matching spec boundary scenario 6's
// "activity resets health".
func (m *Manager) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	if !ok {
		return
	}
	c.LastActive = m.nowFn()
	if c.Health != HealthHealthy {
		m.log.Info("connection recovered", "connection_id", id, "previous_health", c.Health)
	}
	c.Health = HealthHealthy
	c.ConsecutiveFailures = 0
	c.unhealthyStreak = 0
}

// BindName associates a bridge name with a connection once it has
// authenticated via get_credentials.
func (m *Manager) BindName(id, bridgeName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conns[id]; ok {
		c.BridgeName = bridgeName
	}
}

// Get returns a snapshot of one connection.
func (m *Manager) Get(id string) (Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	if !ok {
		return Connection{}, coreerrors.NotFound(id)
	}
	return c.Snapshot(), nil
}

// List returns a snapshot of every tracked connection.
func (m *Manager) List() []Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Connection, 0, len(m.conns))
	for _, c := range m.conns {
		out = append(out, c.Snapshot())
	}
	return out
}

// Run drives the periodic health scan until ctx is canceled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scan()
		}
	}
}

// scan recomputes health for every connection from idle duration. A
// connection that is already Unhealthy gets an additional log line every
// third consecutive scan it remains so, instead of once per scan.
func (m *Manager) scan() {
	now := m.nowFn()

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, c := range m.conns {
		idle := now.Sub(c.LastActive)

		var next Health
		switch {
		case idle >= m.cfg.UnhealthyThreshold:
			next = HealthUnhealthy
		case idle >= m.cfg.DegradedThreshold:
			next = HealthDegraded
		default:
			next = HealthHealthy
		}

		if next == c.Health {
			if next == HealthUnhealthy {
				c.unhealthyStreak++
				if c.unhealthyStreak%3 == 0 {
					m.log.Warn("connection persistently unhealthy",
						"connection_id", id, "idle", idle, "streak", c.unhealthyStreak)
				}
			}
			continue
		}

		if next != HealthHealthy {
			c.ConsecutiveFailures++
		}
		if next == HealthUnhealthy {
			c.unhealthyStreak = 1
		} else {
			c.unhealthyStreak = 0
		}

		m.log.Info("connection health transition",
			"connection_id", id, "from", c.Health, "to", next, "idle", idle)
		c.Health = next
	}
}
