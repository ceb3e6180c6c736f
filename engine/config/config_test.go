package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-sort/common"
	"github.com/Carmen-Shannon/oxy-sort/engine/backend"
	"github.com/Carmen-Shannon/oxy-sort/engine/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "wgpu", c.Backend.Type)
	assert.Equal(t, uint32(8), c.Sort.GroupCapacityLog)
	assert.Equal(t, 1, c.Sort.MaxAttempts)
	assert.True(t, c.Sort.Verify)
	assert.Equal(t, uint32(20), c.Run.LogLen)

	kind, err := c.ElementKind()
	require.NoError(t, err)
	assert.Equal(t, common.ElementKindFloat32, kind)
}

func TestLoadOverridesDefaults(t *testing.T) {
	p := writeFile(t, t.TempDir(), `
log_level = "debug"

[backend]
type = "host"
host_workers = 3

[sort]
max_attempts = 2
verify = false

[run]
log_len = 12
element = "i32"
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 3, c.Backend.HostWorkers)
	assert.Equal(t, "high-performance", c.Backend.PowerPreference)
	assert.Equal(t, 2, c.Sort.MaxAttempts)
	assert.False(t, c.Sort.Verify)
	assert.Equal(t, uint32(8), c.Sort.GroupCapacityLog)
	assert.Equal(t, uint32(12), c.Run.LogLen)

	bt, err := c.BackendType()
	require.NoError(t, err)
	assert.Equal(t, backend.BackendTypeHost, bt)

	opts, err := c.BackendOptions(nil)
	require.NoError(t, err)
	b, err := backend.NewBackend(bt, opts...)
	require.NoError(t, err)
	defer b.Release()
	assert.Contains(t, b.Name(), "3 workers")
	assert.Len(t, c.SorterOptions(nil), 4)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"unknown key":   "colour = \"blue\"\n",
		"bad backend":   "[backend]\ntype = \"metal\"\n",
		"bad element":   "[run]\nelement = \"f64\"\n",
		"bad group log": "[sort]\ngroup_capacity_log = 9\n",
		"bad poll":      "[backend]\npoll_interval = \"soon\"\n",
		"bad power":     "[backend]\npower_preference = \"max\"\n",
		"not toml":      "[[[",
	} {
		_, err := Load(writeFile(t, dir, body))
		assert.Error(t, err, name)
	}
	_, err := Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestWriteRoundTrip(t *testing.T) {
	c := Default()
	c.Backend.Type = "host"
	c.Run.Seed = 42

	var buf bytes.Buffer
	require.NoError(t, c.Write(&buf))
	assert.Contains(t, buf.String(), "[backend]")

	c2, err := Load(writeFile(t, t.TempDir(), buf.String()))
	require.NoError(t, err)
	assert.Equal(t, c, c2)
}

func TestFind(t *testing.T) {
	dir := t.TempDir()
	saved := SearchPaths
	t.Cleanup(func() { SearchPaths = saved })

	SearchPaths = []string{filepath.Join(dir, "nope"), dir}
	_, ok := Find()
	assert.False(t, ok)

	want := writeFile(t, dir, "")
	got, ok := Find()
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestZeroSettingsSelectDefaults(t *testing.T) {
	c, err := Load(writeFile(t, t.TempDir(), "[sort]\ngroup_capacity_log = 0\nmax_attempts = 0\n"))
	require.NoError(t, err)
	assert.Equal(t, kernel.DefaultGroupCapacityLog, c.Sort.GroupCapacityLog)
	assert.Equal(t, 1, c.Sort.MaxAttempts)

	var zero Config
	zero.ApplyDefaults()
	assert.Equal(t, kernel.DefaultGroupCapacityLog, zero.Sort.GroupCapacityLog)
	assert.Equal(t, "wgpu", zero.Backend.Type)
	assert.False(t, zero.Sort.Verify)
}
