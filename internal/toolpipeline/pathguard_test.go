package toolpipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckPathAllowedEmptyPermitsAll(t *testing.T) {
	if err := CheckPathAllowed("/etc/passwd", nil); err != nil {
		t.Errorf("expected empty allow list to permit all, got %v", err)
	}
}

func TestCheckPathAllowedWithinDir(t *testing.T) {
	if err := CheckPathAllowed("/tmp/foo.txt", []string{"/tmp", "/home"}); err != nil {
		t.Errorf("expected /tmp/foo.txt to be allowed, got %v", err)
	}
}

func TestCheckPathDeniedOutsideDir(t *testing.T) {
	if err := CheckPathAllowed("/etc/passwd", []string{"/tmp"}); err == nil {
		t.Error("expected /etc/passwd to be denied")
	}
}

func TestCheckPathDeniedSimilarPrefix(t *testing.T) {
	// "/tmpfoo" must not be treated as within "/tmp".
	if err := CheckPathAllowed("/tmpfoo/file", []string{"/tmp"}); err == nil {
		t.Error("expected /tmpfoo to be denied despite string prefix match")
	}
}

func TestResolveRealPathExistingDir(t *testing.T) {
	dir := t.TempDir()
	real, err := ResolveRealPath(dir)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := os.Stat(real); err != nil {
		t.Errorf("resolved path does not exist: %v", err)
	}
}

func TestResolveRealPathNonexistentFileInExistingDir(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nonexistent.txt")
	real, err := ResolveRealPath(target)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if filepath.Base(real) != "nonexistent.txt" {
		t.Errorf("expected filename preserved, got %s", real)
	}
}

func TestResolveRealPathTildeExpansion(t *testing.T) {
	real, err := ResolveRealPath("~/some_file.txt")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(real) > 0 && real[0] == '~' {
		t.Errorf("expected tilde to be expanded, got %s", real)
	}
}
