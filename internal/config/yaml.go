// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"vizpipe/internal/log"
	"vizpipe/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// LoadConfig loads configuration from a YAML file specified by path. If path
// is empty it looks for "config.yaml" in the working directory and falls
// back to built-in defaults when there is none. Environment overrides are
// applied after the file, then the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		log.Debugf("Config: Loaded %s", path)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every problem found, joined, each wrapping
// ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		fail("log_level %q is not one of debug, info, warn, error, fatal", c.LogLevel)
	}

	a := c.Audio
	if a.InputDevice < MinDeviceID {
		fail("audio.input_device %d must be >= %d", a.InputDevice, MinDeviceID)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		fail("audio.sample_rate %.0f outside %d-%d", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if !bitint.IsPowerOfTwo(a.FramesPerBuffer) || a.FramesPerBuffer < MinBufferFrames || a.FramesPerBuffer > MaxBufferFrames {
		fail("audio.frames_per_buffer %d must be a power of 2 in %d-%d (nearest: %d)",
			a.FramesPerBuffer, MinBufferFrames, MaxBufferFrames, bitint.NextPowerOfTwo(a.FramesPerBuffer))
	}
	if a.InputChannels < 1 || a.InputChannels > MaxChannels {
		fail("audio.input_channels %d outside 1-%d", a.InputChannels, MaxChannels)
	}
	if a.GateThreshold < 0 || a.GateThreshold > 1 {
		fail("audio.gate_threshold %.3f outside 0-1", a.GateThreshold)
	}

	b := c.Analysis
	if b.BeatHistory < 1 {
		fail("analysis.beat_history must be >= 1")
	}
	if b.BeatThreshold <= 0 {
		fail("analysis.beat_threshold must be positive")
	}
	if b.BPMHistory < 1 {
		fail("analysis.bpm_history must be >= 1")
	}
	if b.MinBPM <= 0 || b.MaxBPM <= b.MinBPM {
		fail("analysis.min_bpm/max_bpm must satisfy 0 < min < max")
	}
	if b.DefaultBPM <= 0 {
		fail("analysis.default_bpm must be positive")
	}

	p := c.Plugins
	if p.Active != "" && !slices.Contains(BuiltinPlugins, p.Active) {
		fail("plugins.active %q is not one of %v", p.Active, BuiltinPlugins)
	}
	if p.UDPSendInterval <= 0 {
		fail("plugins.udp_send_interval must be positive")
	}

	switch c.Recording.BitDepth {
	case 16, 24, 32:
	default:
		fail("recording.bit_depth %d must be 16, 24 or 32", c.Recording.BitDepth)
	}
	if c.Recording.Enabled && c.Recording.OutputDir == "" {
		fail("recording.output_dir must be set when recording is enabled")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		fail("metrics.addr must be set when metrics are enabled")
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies the ENV_* variables on top of the file.
// Unparseable values are ignored with a warning.
func (c *Config) applyEnvOverrides() {
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
			log.Infof("Config: Overriding debug from env: %v", bVal)
		} else {
			log.Warnf("Config: Ignoring ENV_DEBUG=%q: %v", val, err)
		}
	}

	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		log.Infof("Config: Overriding log_level from env: %s", val)
	}

	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Plugins.UDPTargetAddress = val
		log.Infof("Config: Overriding plugins.udp_target_address from env: %s", val)
	}

	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Plugins.UDPSendInterval = dur
			log.Infof("Config: Overriding plugins.udp_send_interval from env: %s", dur)
		} else {
			log.Warnf("Config: Ignoring ENV_UDP_SEND_INTERVAL=%q: %v", val, err)
		}
	}

	if val, ok := os.LookupEnv("ENV_METRICS_ADDR"); ok {
		c.Metrics.Addr = val
		c.Metrics.Enabled = val != ""
		log.Infof("Config: Overriding metrics.addr from env: %s", val)
	}
}
