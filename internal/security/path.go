package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilePath rejects empty paths, NUL bytes and relative paths that
// climb out of the working directory. Absolute paths are accepted so that
// operators can point the database and config at a mounted volume.
func ValidateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("file path cannot be empty")
	}

	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("file path contains NUL byte")
	}

	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		for _, part := range strings.Split(filepath.ToSlash(cleanPath), "/") {
			if part == ".." {
				return fmt.Errorf("path contains directory traversal: %s", path)
			}
		}
	}

	return nil
}
