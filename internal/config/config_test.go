package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"MHS_PORT", "MHS_TIMEOUT_MS", "MHS_DEMO", "MHS_DEBUG", "MHS_TRACE",
	"MHS_TRACE_PATH", "MHS_LISTEN", "MHS_LOG_LEVEL", "MHS_LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Load(path, quiet())
	want := Default()
	assert.Equal(t, want.Device, cfg.Device)
	assert.Equal(t, want.Server, cfg.Server)
	assert.Equal(t, want.Log, cfg.Log)
	assert.Equal(t, path, cfg.Path())
	assert.Equal(t, time.Second, cfg.Timeout())
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
device:
  port: /dev/ttyACM3
  timeout_ms: 250
debug: true
trace:
  enabled: true
  path: /tmp/trace
server:
  poll_ms: 200
log:
  format: json
`)

	cfg := Load(path, quiet())
	assert.Equal(t, "/dev/ttyACM3", cfg.Device.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout())
	assert.True(t, cfg.Debug)
	assert.Equal(t, TraceConfig{Enabled: true, Path: "/tmp/trace"}, cfg.Trace)
	assert.Equal(t, 200*time.Millisecond, cfg.PollInterval())
	assert.Equal(t, ":8080", cfg.Server.ListenAddr, "unset keys keep defaults")
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_BadYAMLFallsBack(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "device: [not, a, map\n")

	cfg := Load(path, quiet())
	assert.Equal(t, Default().Device, cfg.Device)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MHS_PORT", "/dev/ttyS9")
	t.Setenv("MHS_TIMEOUT_MS", "500")
	t.Setenv("MHS_DEMO", "yes")
	t.Setenv("MHS_DEBUG", "1")
	t.Setenv("MHS_TRACE", "true")
	t.Setenv("MHS_TRACE_PATH", "/srv/trace")
	t.Setenv("MHS_LISTEN", ":9000")
	t.Setenv("MHS_LOG_LEVEL", "debug")
	t.Setenv("MHS_LOG_FORMAT", "json")

	cfg := Load(filepath.Join(t.TempDir(), "config.yaml"), quiet())
	assert.Equal(t, DeviceConfig{Port: "/dev/ttyS9", TimeoutMs: 500, Demo: true}, cfg.Device)
	assert.True(t, cfg.Debug)
	assert.Equal(t, TraceConfig{Enabled: true, Path: "/srv/trace"}, cfg.Trace)
	assert.Equal(t, ":9000", cfg.Server.ListenAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_InvalidTimeoutIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("MHS_TIMEOUT_MS", "-3")

	cfg := Load(filepath.Join(t.TempDir(), "config.yaml"), quiet())
	assert.Equal(t, 1000, cfg.Device.TimeoutMs)
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".env"), "# comment\nMHS_LISTEN=\":7000\"\nMHS_PORT=/dev/from-env-file\nbroken line\n")
	t.Setenv("MHS_PORT", "/dev/real")

	cfg := Load(filepath.Join(dir, "config.yaml"), quiet())
	assert.Equal(t, ":7000", cfg.Server.ListenAddr)
	assert.Equal(t, "/dev/real", cfg.Device.Port, "real environment wins over .env")
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := Load(path, quiet())
	cfg.Device.Port = "/dev/ttyUSB7"
	cfg.Server.PollMs = 50
	require.NoError(t, cfg.Save())

	again := Load(path, quiet())
	assert.Equal(t, "/dev/ttyUSB7", again.Device.Port)
	assert.Equal(t, 50, again.Server.PollMs)
}

func TestUpdateFromJSON(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.UpdateFromJSON([]byte(`{"device":{"timeoutMs":300},"debug":true}`)))

	assert.Equal(t, 300, cfg.Device.TimeoutMs)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Device.Port, "fields missing from the patch are kept")
	assert.True(t, cfg.Debug)

	assert.Error(t, cfg.UpdateFromJSON([]byte(`{not json`)))

	data, err := cfg.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"timeoutMs":300`)
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"a": map[string]any{"x": 1.0, "y": 2.0},
		"b": "keep",
	}
	deepMerge(dst, map[string]any{
		"a": map[string]any{"y": 3.0},
		"c": true,
	})
	assert.Equal(t, map[string]any{
		"a": map[string]any{"x": 1.0, "y": 3.0},
		"b": "keep",
		"c": true,
	}, dst)
}
