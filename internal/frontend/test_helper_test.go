package frontend_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bazelbuild/rules_go/go/tools/bazel"
	"github.com/stretchr/testify/require"
)

// fixture reads a file from testdata. In Bazel tests it is found through
// runfiles; outside Bazel the module root is located by walking up to go.mod.
func fixture(t *testing.T, name string) []byte {
	t.Helper()
	rel := filepath.Join("internal", "frontend", "testdata", name)
	path, err := bazel.Runfile(rel)
	if err != nil {
		root := moduleRoot()
		require.NotEmpty(t, root, "module root not found")
		path = filepath.Join(root, rel)
	}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func moduleRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
