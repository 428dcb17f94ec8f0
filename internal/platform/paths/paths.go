// Package paths resolves where the service keeps its mutable state:
// snapshots, the audit spool, and logs. Everything lives under one data
// root (./data by default, PPE_DATA_ROOT to relocate) so a deployment
// is a single directory to back up or mount.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const DefaultDataRoot = "data"

// DataRoot returns the directory holding all mutable service state.
func DataRoot() string {
	if root := os.Getenv("PPE_DATA_ROOT"); root != "" {
		return root
	}
	return DefaultDataRoot
}

// ResolveConfigPath picks the configuration file: an explicit path wins,
// then $PPE_CONFIG, then the conventional config/default.yaml.
func ResolveConfigPath(customPath string) string {
	if customPath != "" {
		return customPath
	}
	if env := os.Getenv("PPE_CONFIG"); env != "" {
		return env
	}
	return filepath.Join("config", "default.yaml")
}

// EnsureDirs creates the data-root subdirectories the service writes to.
func EnsureDirs() error {
	root := DataRoot()
	for _, sub := range []string{"violations", "audit_spool", "logs", "tmp"} {
		path := filepath.Join(root, sub)
		if err := os.MkdirAll(path, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}
	return nil
}

// SafeJoin joins elements under base and rejects any combination that
// would escape it (absolute elements, UNC prefixes, or ".." traversal).
func SafeJoin(base string, elements ...string) (string, error) {
	for _, el := range elements {
		if filepath.IsAbs(el) || strings.HasPrefix(el, `\\`) {
			return "", fmt.Errorf("path traversal attempt detected: absolute path not allowed in elements: %s", el)
		}
	}

	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	absJoined, err := filepath.Abs(filepath.Join(append([]string{base}, elements...)...))
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(absBase, absJoined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal attempt detected: %s is outside %s", absJoined, absBase)
	}
	return absJoined, nil
}
