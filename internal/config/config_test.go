package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StormyCloudInc/selector-vanitygen/kernels"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Setenv("AppData", dir)
	t.Chdir(dir)
	return dir
}

func TestDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, "cpu", cfg.Backend)
	assert.Equal(t, 8, cfg.SlotCapacity)
	assert.Equal(t, "text", cfg.Output)
	assert.False(t, cfg.StopOnFirst)
	assert.True(t, cfg.Progress)
	assert.Empty(t, cfg.LoadedFrom())

	src, err := cfg.KernelSource()
	require.NoError(t, err)
	assert.Equal(t, kernels.Keccak256, src)
}

func TestFileEnvAndDotenvLayers(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: opencl\nthrottle: 0.25\nslot_capacity: 16\n"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SELECTORGEN_OUTPUT=json\n"), 0600))
	t.Setenv("SELECTORGEN_SLOT_CAPACITY", "32")
	t.Cleanup(func() { os.Unsetenv("SELECTORGEN_OUTPUT") })

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "opencl", cfg.Backend)
	assert.Equal(t, 0.25, cfg.Throttle)
	assert.Equal(t, 32, cfg.SlotCapacity, "environment beats file")
	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, path, cfg.LoadedFrom())
}

func TestDefaultPathIsRead(t *testing.T) {
	isolate(t)
	p, err := DefaultPath()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0700))
	require.NoError(t, os.WriteFile(p, []byte("stop_on_first: true\n"), 0600))

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.True(t, cfg.StopOnFirst)
	assert.Equal(t, p, cfg.LoadedFrom())
}

func TestExplicitPathMustExist(t *testing.T) {
	dir := isolate(t)
	_, err := Load(NewViper(), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{Backend: "cpu", Output: "text", SlotCapacity: 8}
	require.NoError(t, base.Validate())

	bad := map[string]func(c *Config){
		"backend":  func(c *Config) { c.Backend = "cuda" },
		"output":   func(c *Config) { c.Output = "xml" },
		"throttle": func(c *Config) { c.Throttle = -1 },
		"slots":    func(c *Config) { c.SlotCapacity = 0 },
		"workers":  func(c *Config) { c.Workers = -2 },
	}
	for name, mutate := range bad {
		c := base
		mutate(&c)
		assert.Error(t, c.Validate(), name)
	}
}

func TestKernelSourceFromFile(t *testing.T) {
	dir := isolate(t)
	p := filepath.Join(dir, "k.cl")
	require.NoError(t, os.WriteFile(p, []byte("__kernel void hashMessage() {}\n"), 0600))

	c := Config{KernelPath: p}
	src, err := c.KernelSource()
	require.NoError(t, err)
	assert.Equal(t, "__kernel void hashMessage() {}\n", src)

	c.KernelPath = filepath.Join(dir, "nope.cl")
	_, err = c.KernelSource()
	assert.Error(t, err)
}

func TestResolvedStorePath(t *testing.T) {
	isolate(t)
	dir, err := Dir()
	require.NoError(t, err)

	c := Config{}
	p, err := c.ResolvedStorePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, storeFile), p)
	assert.DirExists(t, dir)

	c.StorePath = "/tmp/x.db"
	p, err = c.ResolvedStorePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", p)
}
