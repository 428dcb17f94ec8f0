package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataRoot(t *testing.T) {
	os.Unsetenv("PPE_DATA_ROOT")
	assert.Equal(t, DefaultDataRoot, DataRoot())

	os.Setenv("PPE_DATA_ROOT", "/srv/ppe")
	defer os.Unsetenv("PPE_DATA_ROOT")
	assert.Equal(t, "/srv/ppe", DataRoot())
}

func TestResolveConfigPath(t *testing.T) {
	os.Unsetenv("PPE_CONFIG")
	assert.Equal(t, filepath.Join("config", "default.yaml"), ResolveConfigPath(""))
	assert.Equal(t, "override.yaml", ResolveConfigPath("override.yaml"))

	os.Setenv("PPE_CONFIG", "/etc/ppe/monitor.yaml")
	defer os.Unsetenv("PPE_CONFIG")
	assert.Equal(t, "/etc/ppe/monitor.yaml", ResolveConfigPath(""))
}

func TestSafeJoin(t *testing.T) {
	base := t.TempDir()

	cases := []struct {
		name     string
		elements []string
		valid    bool
	}{
		{"normal", []string{"logs", "app.log"}, true},
		{"parent", []string{"..", "other"}, false},
		{"nested_parent", []string{"logs", "..", "..", "secrets"}, false},
		{"absolute", []string{string(filepath.Separator) + "etc"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := SafeJoin(base, tc.elements...)
			if tc.valid {
				assert.NoError(t, err)
				assert.Contains(t, res, base)
			} else {
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), "traversal")
				}
			}
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	tmpRoot := filepath.Join(t.TempDir(), "ppe_data")
	os.Setenv("PPE_DATA_ROOT", tmpRoot)
	defer os.Unsetenv("PPE_DATA_ROOT")

	assert.NoError(t, EnsureDirs())

	for _, sub := range []string{"violations", "audit_spool", "logs", "tmp"} {
		_, err := os.Stat(filepath.Join(tmpRoot, sub))
		assert.NoError(t, err, "subdirectory %s should exist", sub)
	}
}
