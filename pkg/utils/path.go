package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GetOwnerMediaPath returns the directory holding generated media for one page.
func GetOwnerMediaPath(mediaRoot, ownerID string) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		ownerID = "shared"
	}
	path := filepath.Join(mediaRoot, "pages", filepath.Base(ownerID))
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return path, nil
}

// FileRef turns a local path into the media reference format stored on items.
func FileRef(path string) string {
	return "file://" + filepath.ToSlash(path)
}

// LocalPath returns the filesystem path behind a file:// reference.
func LocalPath(ref string) (string, bool) {
	if !strings.HasPrefix(ref, "file://") {
		return "", false
	}
	return filepath.FromSlash(strings.TrimPrefix(ref, "file://")), true
}
