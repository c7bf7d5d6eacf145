package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("PYAOT_HOME", "/opt/pyaot")
	t.Setenv("PYAOT_RUNTIME_PATH", "")

	cfg := DefaultConfig()
	assert.Equal(t, "/opt/pyaot", cfg.Home)
	assert.Equal(t, 4, cfg.Indent)
	assert.Equal(t, "arena", cfg.Allocator)
	assert.GreaterOrEqual(t, cfg.Jobs, 1)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "json", cfg.ImportPath("json"))
}

func TestRuntimePathFromEnvironment(t *testing.T) {
	t.Setenv("PYAOT_RUNTIME_PATH", "/usr/lib/pyaot")

	cfg := DefaultConfig()
	assert.Equal(t, "/usr/lib/pyaot/json.zig", cfg.ImportPath("json"))
	assert.Len(t, cfg.CodegenOptions(), 2+len(RuntimeModules))
}

func TestLoad(t *testing.T) {
	t.Setenv("PYAOT_RUNTIME_PATH", "")
	path := filepath.Join(t.TempDir(), "pyaot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
indent: 2
allocator: gpa
jobs: 3
out_dir: build/zig
imports:
  json: vendor/json.zig
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Indent)
	assert.Equal(t, "gpa", cfg.Allocator)
	assert.Equal(t, 3, cfg.Jobs)
	assert.Equal(t, "vendor/json.zig", cfg.ImportPath("json"))
	assert.Equal(t, "http", cfg.ImportPath("http"))
	assert.Equal(t, filepath.Join("build/zig", "main.zig"), cfg.OutputPath("src/main.py"))
	assert.Len(t, cfg.CodegenOptions(), 3)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Indent)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "colour: blue\n", "colour"},
		{"bad allocator", "allocator: bump\n", "allocator"},
		{"bad indent", "indent: 0\n", "indent"},
		{"bad jobs", "jobs: -1\n", "jobs"},
		{"unknown import", "imports:\n  numpy: np.zig\n", "numpy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := DefaultConfig().Decode(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestOutputPathNextToSource(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("examples", "hello.zig"), cfg.OutputPath(filepath.Join("examples", "hello.py")))
}
