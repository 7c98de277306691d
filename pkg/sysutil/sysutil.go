// Package sysutil holds the small generic utilities the orchestrator needs
// that don't belong to any one component: disambiguating names and
// extension-guarded file removal.
package sysutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// RandomName appends the first 6 hex characters of a fresh UUIDv4 to name.
func RandomName(name string) string {
	id := uuid.New().String()
	id = strings.ReplaceAll(id, "-", "")
	return fmt.Sprintf("%s-%s", name, id[:6])
}

// RemoveFilesInDir deletes the direct children of dir matching any of
// endsWith. Each element of endsWith is either:
//   - a dotted extension chain (e.g. ".tar.gz"), matched only against a
//     file name that literally ends with that chain, or
//   - a literal whole file name.
//
// Non-matching entries and subdirectories are left untouched.
func RemoveFilesInDir(dir string, endsWith []string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("sysutil: read dir %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		for _, suffix := range endsWith {
			if matches(name, suffix) {
				if err := os.Remove(filepath.Join(dir, name)); err != nil {
					return fmt.Errorf("sysutil: remove %s: %w", name, err)
				}
				break
			}
		}
	}
	return nil
}

func matches(name, pattern string) bool {
	if strings.HasPrefix(pattern, ".") {
		return strings.HasSuffix(name, pattern)
	}
	return name == pattern
}
