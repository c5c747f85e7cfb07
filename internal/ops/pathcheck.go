package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/lineage/internal/config"
	"github.com/hpungsan/lineage/internal/errors"
)

// ValidateExportDir checks that dir may receive export files. It checks:
// 1. Path traversal (.. sequences)
// 2. Directory restrictions (dir must be ~/.lineage/exports or an allowed_paths
//    entry, or a direct child of one)
// 3. Symlink safety (neither dir nor its parent may be a symlink)
func ValidateExportDir(dir string, cfg *config.Config) error {
	if strings.TrimSpace(dir) == "" {
		return errors.NewInvalidRequest("dir is required")
	}

	if containsTraversal(dir) {
		return errors.NewInvalidRequest("dir must not contain directory traversal (..)")
	}

	absDir, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid dir: %v", err))
	}

	// Symlink restrictions apply even when unsafe paths are allowed.
	if isSymlink(absDir) {
		return errors.NewPathNotAllowed(dir, "dir must not be a symlink")
	}
	if cfg != nil && cfg.AllowUnsafePaths {
		return nil
	}

	allowedDirs, err := getAllowedDirs(cfg)
	if err != nil {
		return err
	}

	if isAllowedDir(absDir, allowedDirs) {
		return nil
	}
	parentDir := filepath.Dir(absDir)
	if !isAllowedDir(parentDir, allowedDirs) {
		return errors.NewPathNotAllowed(dir,
			fmt.Sprintf("must be an allowed directory or directly inside one; allowed: %v", allowedDirs))
	}
	if isSymlink(parentDir) {
		return errors.NewPathNotAllowed(dir, "parent directory must not be a symlink")
	}
	return nil
}

// getAllowedDirs returns the list of allowed directories (absolute, cleaned).
// If an allowed directory is a symlink, it is resolved to its target.
func getAllowedDirs(cfg *config.Config) ([]string, error) {
	defaultDir, err := DefaultExportsDir()
	if err != nil {
		return nil, err
	}
	dirs := []string{defaultDir}

	// Only absolute allowed paths count.
	if cfg != nil {
		for _, p := range cfg.AllowedPaths {
			if filepath.IsAbs(p) {
				dirs = append(dirs, filepath.Clean(p))
			}
		}
	}

	result := make([]string, 0, len(dirs))
	for _, d := range dirs {
		abs, err := filepath.Abs(filepath.Clean(d))
		if err != nil {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid allowed path: %v", err))
		}
		if isSymlink(abs) {
			resolved, err := filepath.EvalSymlinks(abs)
			if err != nil {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot resolve symlink in allowed path: %v", err))
			}
			abs = resolved
		}
		result = append(result, abs)
	}
	return result, nil
}

// isAllowedDir checks if dir exactly matches one of the allowed directories.
func isAllowedDir(dir string, allowedDirs []string) bool {
	dir = filepath.Clean(dir)
	for _, allowed := range allowedDirs {
		if dir == filepath.Clean(allowed) {
			return true
		}
	}
	return false
}

func isSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}

// DefaultExportsDir returns the default exports directory (~/.lineage/exports).
func DefaultExportsDir() (string, error) {
	baseDir, err := config.DefaultBaseDir()
	if err != nil {
		return "", errors.NewInternal(err)
	}
	return filepath.Join(baseDir, "exports"), nil
}

// containsTraversal checks if path contains ".." directory traversal.
func containsTraversal(path string) bool {
	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == ".." {
			return true
		}
	}
	// Forward slashes count on every platform.
	if filepath.Separator != '/' {
		for _, part := range strings.Split(path, "/") {
			if part == ".." {
				return true
			}
		}
	}
	return false
}

// SanitizeForFilename sanitizes a string for safe use as a single path
// component.
func SanitizeForFilename(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	s = strings.ReplaceAll(s, "..", "-")

	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}
	s = result.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")

	if s == "" {
		s = "unnamed"
	}
	return s
}
