// Package config loads the bridge configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log             LogConfig      `yaml:"log"`
	Tracer          TracerConfig   `yaml:"tracer"`
	Metrics         MetricsConfig  `yaml:"metrics"`
	Socket          string         `yaml:"socket"`
	ShutdownTimeout time.Duration  `yaml:"shutdown_timeout"`
	Stream          StreamConfig   `yaml:"stream"`
	BLE             BLEConfig      `yaml:"ble"`
	Driver          DriverConfig   `yaml:"driver"`
	Devices         []DeviceConfig `yaml:"devices"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
	Output string `yaml:"output"` // stderr or a file path
}

type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout | noop
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// StreamConfig holds the defaults used when a stream command omits them.
type StreamConfig struct {
	Interval time.Duration `yaml:"interval"`
	Count    int           `yaml:"count"`
}

type BLEConfig struct {
	Probe bool `yaml:"probe"`
}

type DriverConfig struct {
	Name     string        `yaml:"name"`
	Latency  time.Duration `yaml:"latency"`
	Seed     int64         `yaml:"seed"`
	LogFiles int           `yaml:"log_files"`
}

// DeviceConfig names an access URL.
type DeviceConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// DefaultPath is $XDG_CONFIG_HOME/pmbridge/config.yaml.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		dir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(dir, "pmbridge", "config.yaml")
}

// DefaultSocket is $XDG_RUNTIME_DIR/pmbridge.sock, or under /tmp.
func DefaultSocket() string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = "/tmp"
	}
	return filepath.Join(dir, "pmbridge.sock")
}

func Defaults() *Config {
	return &Config{
		Log:             LogConfig{Level: "info", Format: "text", Output: "stderr"},
		Tracer:          TracerConfig{Exporter: "stdout"},
		Socket:          DefaultSocket(),
		ShutdownTimeout: 5 * time.Second,
		Stream:          StreamConfig{Interval: 2 * time.Second},
		BLE:             BLEConfig{Probe: true},
		Driver:          DriverConfig{Name: "sim", Latency: 50 * time.Millisecond, LogFiles: 3},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PMBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PMBRIDGE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("PMBRIDGE_SOCKET"); v != "" {
		cfg.Socket = v
	}
	if v := os.Getenv("PMBRIDGE_DRIVER"); v != "" {
		cfg.Driver.Name = v
	}
	if v := os.Getenv("PMBRIDGE_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("PMBRIDGE_TRACER_ENABLED"); v != "" {
		cfg.Tracer.Enabled = v == "true" || v == "1"
	}
}

// ResolveDevice turns a device name or URL into an access URL. A value
// containing "://" is already a URL; an empty value selects the first
// configured device.
func (c *Config) ResolveDevice(v string) (string, error) {
	if strings.Contains(v, "://") {
		return v, nil
	}
	if v == "" {
		if len(c.Devices) == 0 {
			return "", fmt.Errorf("no device specified and config has no devices")
		}
		return c.Devices[0].URL, nil
	}
	for _, d := range c.Devices {
		if d.Name == v {
			return d.URL, nil
		}
	}
	return "", fmt.Errorf("unknown device %q", v)
}
