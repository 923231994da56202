package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 2*time.Second, cfg.Stream.Interval)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.BLE.Probe)
	assert.Equal(t, "sim", cfg.Driver.Name)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  format: json
shutdown_timeout: 2s
stream:
  interval: 500ms
  count: 10
ble:
  probe: false
driver:
  latency: 5ms
  seed: 42
devices:
  - name: van
    url: powermon://aa@bb
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "stderr", cfg.Log.Output, "unset keys keep defaults")
	assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Stream.Interval)
	assert.Equal(t, 10, cfg.Stream.Count)
	assert.False(t, cfg.BLE.Probe)
	assert.Equal(t, int64(42), cfg.Driver.Seed)
	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, "van", cfg.Devices[0].Name)
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "log: [unclosed"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PMBRIDGE_LOG_LEVEL", "warn")
	t.Setenv("PMBRIDGE_SOCKET", "/run/x.sock")
	t.Setenv("PMBRIDGE_DRIVER", "other")
	t.Setenv("PMBRIDGE_METRICS_ADDR", ":9100")
	t.Setenv("PMBRIDGE_TRACER_ENABLED", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "/run/x.sock", cfg.Socket)
	assert.Equal(t, "other", cfg.Driver.Name)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.True(t, cfg.Tracer.Enabled)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Log.Level = "loud"
	cfg.Log.Output = "stdout"
	cfg.ShutdownTimeout = -time.Second
	cfg.Devices = []DeviceConfig{{Name: "a", URL: "x://"}, {Name: "a"}}

	err := Validate(cfg)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 5)
	assert.Contains(t, err.Error(), "log.output")
}

func TestResolveDevice(t *testing.T) {
	cfg := Defaults()
	_, err := cfg.ResolveDevice("")
	assert.Error(t, err)

	cfg.Devices = []DeviceConfig{{Name: "van", URL: "u1"}, {Name: "boat", URL: "u2"}}
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"", "u1", false},
		{"boat", "u2", false},
		{"powermon://k@c", "powermon://k@c", false},
		{"plane", "", true},
	}
	for _, tt := range tests {
		got, err := cfg.ResolveDevice(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	t.Setenv("XDG_RUNTIME_DIR", "")
	assert.Equal(t, "/cfg/pmbridge/config.yaml", DefaultPath())
	assert.Equal(t, "/tmp/pmbridge.sock", DefaultSocket())
}
