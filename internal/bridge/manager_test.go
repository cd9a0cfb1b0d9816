package bridge

import (
	"testing"
	"time"
)

func TestManagerHealthTransitions(t *testing.T) {
	m := NewManager(ManagerConfig{
		CheckInterval:      time.Second,
		DegradedThreshold:  time.Minute,
		UnhealthyThreshold: 2 * time.Minute,
	}, nil)

	uid := uint32(1000)
	id := m.Register(PeerIdentity{UID: &uid})

	base := time.Now()
	m.nowFn = func() time.Time { return base }

	got, err := m.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Health != HealthHealthy {
		t.Fatalf("new connection health = %v, want Healthy", got.Health)
	}

	m.nowFn = func() time.Time { return base.Add(90 * time.Second) }
	m.scan()
	got, _ = m.Get(id)
	if got.Health != HealthDegraded {
		t.Fatalf("after 90s idle: health = %v, want Degraded", got.Health)
	}
	if got.ConsecutiveFailures != 1 {
		t.Fatalf("ConsecutiveFailures = %d, want 1", got.ConsecutiveFailures)
	}

	m.nowFn = func() time.Time { return base.Add(150 * time.Second) }
	m.scan()
	got, _ = m.Get(id)
	if got.Health != HealthUnhealthy {
		t.Fatalf("after 150s idle: health = %v, want Unhealthy", got.Health)
	}

	// Repeated scans while still unhealthy should not re-log a transition
	// (no observable state change here) but must keep counting the streak.
	m.scan()
	m.scan()
	m.mu.RLock()
	streak := m.conns[id].unhealthyStreak
	m.mu.RUnlock()
	if streak != 3 {
		t.Fatalf("unhealthyStreak = %d, want 3", streak)
	}

	// Activity resets health immediately regardless of scan timing.
	m.Touch(id)
	got, _ = m.Get(id)
	if got.Health != HealthHealthy {
		t.Fatalf("after touch: health = %v, want Healthy", got.Health)
	}
	if got.ConsecutiveFailures != 0 {
		t.Fatalf("after touch: ConsecutiveFailures = %d, want 0", got.ConsecutiveFailures)
	}
}

func TestManagerUnregisterRemovesConnection(t *testing.T) {
	m := NewManager(ManagerConfig{}, nil)
	uid := uint32(1000)
	id := m.Register(PeerIdentity{UID: &uid})

	m.Unregister(id)

	if _, err := m.Get(id); err == nil {
		t.Fatal("expected NotFound after unregister")
	}
}

func TestManagerBindName(t *testing.T) {
	m := NewManager(ManagerConfig{}, nil)
	uid := uint32(1000)
	id := m.Register(PeerIdentity{UID: &uid})

	m.BindName(id, "telegram")

	got, err := m.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BridgeName != "telegram" {
		t.Fatalf("BridgeName = %q, want telegram", got.BridgeName)
	}
}
