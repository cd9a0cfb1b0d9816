package sessionrt

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSessionFile(t *testing.T, dir, name string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("test"), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
	return path
}

func TestPruneSessionsByAge(t *testing.T) {
	stateDir := t.TempDir()
	sessionsDir := filepath.Join(stateDir, "agents", "agent-1", "sessions")
	if err := os.MkdirAll(sessionsDir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	old := writeSessionFile(t, sessionsDir, "old.jsonl", time.Now().Add(-31*24*time.Hour))

	result, err := PruneSessions(stateDir, "agent-1", 30*24*time.Hour, 0, nil)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if result.Deleted != 1 {
		t.Fatalf("Deleted = %d, want 1", result.Deleted)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expected old session file to be removed")
	}
}

func TestPruneSessionsByCount(t *testing.T) {
	stateDir := t.TempDir()
	sessionsDir := filepath.Join(stateDir, "agents", "agent-1", "sessions")
	if err := os.MkdirAll(sessionsDir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		writeSessionFile(t, sessionsDir, fmt.Sprintf("session-%d.jsonl", i), base.Add(time.Duration(i)*time.Minute))
	}

	result, err := PruneSessions(stateDir, "agent-1", 0, 3, nil)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if result.Deleted != 2 {
		t.Fatalf("Deleted = %d, want 2", result.Deleted)
	}

	if _, err := os.Stat(filepath.Join(sessionsDir, "session-0.jsonl")); !os.IsNotExist(err) {
		t.Error("expected session-0 (oldest) removed")
	}
	if _, err := os.Stat(filepath.Join(sessionsDir, "session-4.jsonl")); err != nil {
		t.Error("expected session-4 (newest) to remain")
	}
}

func TestPruneSessionsMissingDirIsNotError(t *testing.T) {
	stateDir := t.TempDir()
	result, err := PruneSessions(stateDir, "no-such-agent", time.Hour, 0, nil)
	if err != nil {
		t.Fatalf("expected no error for missing dir, got %v", err)
	}
	if result.Deleted != 0 {
		t.Errorf("expected nothing deleted, got %d", result.Deleted)
	}
}
