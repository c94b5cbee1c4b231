// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.Audio.FramesPerBuffer != DefaultFramesPerBuffer {
		t.Errorf("FramesPerBuffer = %d, want %d", cfg.Audio.FramesPerBuffer, DefaultFramesPerBuffer)
	}
	if cfg.Plugins.Active != DefaultActivePlugin {
		t.Errorf("Plugins.Active = %q, want %q", cfg.Plugins.Active, DefaultActivePlugin)
	}
	if cfg.Analysis.BeatHistory != 43 || cfg.Analysis.BeatThreshold != 1.3 {
		t.Errorf("analysis defaults = %+v", cfg.Analysis)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_FileValues(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: warn
audio:
  sample_rate: 48000
  frames_per_buffer: 2048
  input_channels: 2
analysis:
  beat_threshold: 1.5
  max_bpm: 180
plugins:
  active: pulse
  udp_send_interval: 50ms
metrics:
  enabled: true
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.FramesPerBuffer != 2048 || cfg.Audio.InputChannels != 2 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Plugins.Active != PluginPulse {
		t.Errorf("Plugins.Active = %q", cfg.Plugins.Active)
	}
	if cfg.Plugins.UDPSendInterval != 50*time.Millisecond {
		t.Errorf("UDPSendInterval = %v", cfg.Plugins.UDPSendInterval)
	}

	// Unset keys keep their defaults.
	if cfg.Audio.InputDevice != DefaultDeviceID {
		t.Errorf("InputDevice = %d, want default", cfg.Audio.InputDevice)
	}
	if cfg.Metrics.Addr != DefaultMetricsAddr {
		t.Errorf("Metrics.Addr = %q, want default", cfg.Metrics.Addr)
	}

	beat := cfg.Analysis.BeatConfig()
	if beat.Threshold != 1.5 || beat.MaxBPM != 180 || beat.MinBPM != 60 || beat.HistorySize != 43 {
		t.Errorf("BeatConfig() = %+v", beat)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENV_DEBUG", "true")
	t.Setenv("ENV_LOG_LEVEL", "debug")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "10.0.0.2:7000")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "10ms")
	t.Setenv("ENV_METRICS_ADDR", ":9999")

	path := writeTempConfig(t, "debug: false\nlog_level: error\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if !cfg.Debug || cfg.LogLevel != "debug" {
		t.Errorf("debug/log_level = %v/%q, want env values", cfg.Debug, cfg.LogLevel)
	}
	if cfg.Plugins.UDPTargetAddress != "10.0.0.2:7000" || cfg.Plugins.UDPSendInterval != 10*time.Millisecond {
		t.Errorf("plugins = %+v", cfg.Plugins)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != ":9999" {
		t.Errorf("metrics = %+v", cfg.Metrics)
	}
}

func TestLoadConfig_EnvIgnoresBadValues(t *testing.T) {
	t.Setenv("ENV_DEBUG", "maybe")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "soon")

	cfg, err := LoadConfig(writeTempConfig(t, "debug: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("unparseable ENV_DEBUG changed the file value")
	}
	if cfg.Plugins.UDPSendInterval != DefaultUDPSendInterval {
		t.Errorf("UDPSendInterval = %v, want default", cfg.Plugins.UDPSendInterval)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"device", func(c *Config) { c.Audio.InputDevice = -2 }, "audio.input_device"},
		{"sample rate low", func(c *Config) { c.Audio.SampleRate = 100 }, "audio.sample_rate"},
		{"sample rate high", func(c *Config) { c.Audio.SampleRate = 384000 }, "audio.sample_rate"},
		{"buffer not pow2", func(c *Config) { c.Audio.FramesPerBuffer = 1000 }, "nearest: 1024"},
		{"buffer too large", func(c *Config) { c.Audio.FramesPerBuffer = 16384 }, "audio.frames_per_buffer"},
		{"channels", func(c *Config) { c.Audio.InputChannels = 0 }, "audio.input_channels"},
		{"gate", func(c *Config) { c.Audio.GateThreshold = 2 }, "audio.gate_threshold"},
		{"beat history", func(c *Config) { c.Analysis.BeatHistory = 0 }, "analysis.beat_history"},
		{"beat threshold", func(c *Config) { c.Analysis.BeatThreshold = 0 }, "analysis.beat_threshold"},
		{"bpm history", func(c *Config) { c.Analysis.BPMHistory = -1 }, "analysis.bpm_history"},
		{"bpm range", func(c *Config) { c.Analysis.MinBPM = 250 }, "analysis.min_bpm"},
		{"default bpm", func(c *Config) { c.Analysis.DefaultBPM = 0 }, "analysis.default_bpm"},
		{"active plugin", func(c *Config) { c.Plugins.Active = "lasers" }, "plugins.active"},
		{"udp interval", func(c *Config) { c.Plugins.UDPSendInterval = 0 }, "plugins.udp_send_interval"},
		{"bit depth", func(c *Config) { c.Recording.BitDepth = 8 }, "recording.bit_depth"},
		{"output dir", func(c *Config) { c.Recording.Enabled = true; c.Recording.OutputDir = "" }, "recording.output_dir"},
		{"metrics addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }, "metrics.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Validate() = %q, want mention of %q", err, tt.field)
			}
		})
	}

	t.Run("defaults", func(t *testing.T) {
		if err := NewConfig().Validate(); err != nil {
			t.Errorf("default config invalid: %v", err)
		}
	})

	t.Run("no active plugin", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Plugins.Active = ""
		if err := cfg.Validate(); err != nil {
			t.Errorf("empty active plugin rejected: %v", err)
		}
	})
}
