package toolpipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/nexus/internal/coreerrors"
)

// ResolveRealPath expands a leading ~ and canonicalizes path, resolving
// symlinks. For a path that doesn't exist yet (a file about to be
// created), it canonicalizes the parent directory instead and rejoins the
// filename, since the file itself has nothing to resolve. Ported from
// original_source's path_utils::resolve_real_path.
func ResolveRealPath(path string) (string, error) {
	expanded, err := expandTilde(path)
	if err != nil {
		return "", err
	}

	if real, err := filepath.EvalSymlinks(expanded); err == nil {
		return real, nil
	}

	parent := filepath.Dir(expanded)
	filename := filepath.Base(expanded)
	if realParent, err := filepath.EvalSymlinks(parent); err == nil {
		return filepath.Join(realParent, filename), nil
	}

	return expanded, nil
}

func expandTilde(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

// CheckPathAllowed verifies realPath falls under one of allowedDirs. An
// empty allowedDirs list means unrestricted mode (every path passes),
// matching the original's "empty = all permitted" convention.
func CheckPathAllowed(realPath string, allowedDirs []string) error {
	if len(allowedDirs) == 0 {
		return nil
	}
	for _, dir := range allowedDirs {
		if isWithin(realPath, dir) {
			return nil
		}
	}
	return coreerrors.Denied(fmt.Sprintf("%s is outside allowed directories", realPath))
}

func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "..")
}
