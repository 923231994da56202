package config

import (
	"fmt"
	"strings"
)

// ValidationError lists every problem found in a config.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

func (v *ValidationError) HasErrors() bool { return len(v.Errors) > 0 }

func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate returns a *ValidationError when cfg has one or more problems.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLog(cfg, ve)
	validateTracer(cfg, ve)
	validateTimings(cfg, ve)
	validateDriver(cfg, ve)
	validateDevices(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateLog(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("log.level %q is not one of debug, info, warn, error", cfg.Log.Level)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json", "":
	default:
		ve.Add("log.format %q must be text or json", cfg.Log.Format)
	}
	if strings.EqualFold(cfg.Log.Output, "stdout") {
		ve.Add("log.output: stdout carries the line protocol")
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	switch cfg.Tracer.Exporter {
	case "stdout", "noop", "":
	default:
		ve.Add("tracer.exporter %q must be stdout or noop", cfg.Tracer.Exporter)
	}
}

func validateTimings(cfg *Config, ve *ValidationError) {
	if cfg.ShutdownTimeout < 0 {
		ve.Add("shutdown_timeout must not be negative")
	}
	if cfg.Stream.Interval < 0 {
		ve.Add("stream.interval must not be negative")
	}
	if cfg.Stream.Count < 0 {
		ve.Add("stream.count must not be negative")
	}
	if cfg.Driver.Latency < 0 {
		ve.Add("driver.latency must not be negative")
	}
}

func validateDriver(cfg *Config, ve *ValidationError) {
	if cfg.Driver.Name == "" {
		ve.Add("driver.name is required")
	}
	if cfg.Driver.LogFiles < 0 {
		ve.Add("driver.log_files must not be negative")
	}
}

func validateDevices(cfg *Config, ve *ValidationError) {
	seen := map[string]bool{}
	for i, d := range cfg.Devices {
		if d.Name == "" {
			ve.Add("devices[%d].name is required", i)
		} else if seen[d.Name] {
			ve.Add("devices[%d].name %q is duplicated", i, d.Name)
		}
		seen[d.Name] = true
		if d.URL == "" {
			ve.Add("devices[%d].url is required", i)
		}
	}
}
