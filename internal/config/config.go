// SPDX-License-Identifier: MIT
package config

import (
	"time"

	"vizpipe/internal/analysis"
)

// Defaults and limits for the analysis pipeline and its front-ends.
const (
	DefaultDeviceID        = MinDeviceID // System default input device
	DefaultSampleRate      = 44100       // CD-quality audio
	DefaultFramesPerBuffer = 1024        // Block size, also the FFT size
	DefaultInputChannels   = 1           // Folded to mono either way
	DefaultLowLatency      = false
	DefaultGateThreshold   = 0.001 // ~-60dBFS peak, 0 disables the gate

	DefaultActivePlugin     = PluginBars
	DefaultWebSocketAddr    = ":8080"
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond // ~30Hz

	DefaultOutputDir = "./recordings"
	DefaultBitDepth  = 16

	DefaultMetricsAddr = ":9100"
	DefaultLogLevel    = "info"

	MinDeviceID     = -1 // -1 represents the system default device
	MinSampleRate   = 8000
	MaxSampleRate   = 192000
	MinBufferFrames = 64
	MaxBufferFrames = 8192
	MaxChannels     = 32
)

// Identifiers of the built-in visualization plugins.
const (
	PluginBars      = "bars"
	PluginPulse     = "pulse"
	PluginWebSocket = "websocket"
	PluginUDP       = "udp"
)

// BuiltinPlugins lists the plugin identifiers in registration order.
var BuiltinPlugins = []string{PluginBars, PluginPulse, PluginWebSocket, PluginUDP}

// Config is the application configuration, loaded from YAML and then
// overridden by environment variables and command line flags.
type Config struct {
	Debug     bool            `yaml:"debug"`
	LogLevel  string          `yaml:"log_level"` // debug, info, warn, error
	Audio     AudioConfig     `yaml:"audio"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Plugins   PluginsConfig   `yaml:"plugins"`
	Recording RecordingConfig `yaml:"recording"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// AudioConfig holds the live input settings.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index, -1 for default
	SampleRate      float64 `yaml:"sample_rate"`       // Hz
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // power of 2, also the FFT size
	InputChannels   int     `yaml:"input_channels"`
	LowLatency      bool    `yaml:"low_latency"`
	GateThreshold   float64 `yaml:"gate_threshold"` // peak amplitude 0..1, 0 disables the gate
}

// AnalysisConfig holds the beat tracker tunables.
type AnalysisConfig struct {
	BeatHistory   int     `yaml:"beat_history"`   // blocks of energy history
	BeatThreshold float64 `yaml:"beat_threshold"` // multiple of the average energy
	BPMHistory    int     `yaml:"bpm_history"`    // tempo estimates averaged
	MinBPM        float64 `yaml:"min_bpm"`
	MaxBPM        float64 `yaml:"max_bpm"`
	DefaultBPM    float64 `yaml:"default_bpm"`
}

// BeatConfig converts the section to the tracker's tunables.
func (a AnalysisConfig) BeatConfig() analysis.BeatConfig {
	return analysis.BeatConfig{
		HistorySize:    a.BeatHistory,
		Threshold:      a.BeatThreshold,
		BPMHistorySize: a.BPMHistory,
		MinBPM:         a.MinBPM,
		MaxBPM:         a.MaxBPM,
		DefaultBPM:     a.DefaultBPM,
	}
}

// PluginsConfig selects the initial plugin and configures the network ones.
type PluginsConfig struct {
	Active           string        `yaml:"active"`
	WebSocketAddr    string        `yaml:"websocket_addr"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
}

// RecordingConfig controls recording the raw input to WAV.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	BitDepth  int    `yaml:"bit_depth"` // 16, 24 or 32
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	beat := analysis.DefaultBeatConfig()
	return &Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultInputChannels,
			LowLatency:      DefaultLowLatency,
			GateThreshold:   DefaultGateThreshold,
		},
		Analysis: AnalysisConfig{
			BeatHistory:   beat.HistorySize,
			BeatThreshold: beat.Threshold,
			BPMHistory:    beat.BPMHistorySize,
			MinBPM:        beat.MinBPM,
			MaxBPM:        beat.MaxBPM,
			DefaultBPM:    beat.DefaultBPM,
		},
		Plugins: PluginsConfig{
			Active:           DefaultActivePlugin,
			WebSocketAddr:    DefaultWebSocketAddr,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
		Recording: RecordingConfig{
			OutputDir: DefaultOutputDir,
			BitDepth:  DefaultBitDepth,
		},
		Metrics: MetricsConfig{
			Addr: DefaultMetricsAddr,
		},
	}
}
