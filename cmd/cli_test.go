// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"vizpipe/internal/config"
)

func TestParseArgsDefaults(t *testing.T) {
	inv, err := ParseArgs(nil)
	if err != nil {
		t.Fatalf("ParseArgs error: %v", err)
	}
	if !inv.Live || inv.Command != "" {
		t.Errorf("invocation = %+v, want the live visualizer", inv)
	}
	if inv.Config == nil {
		t.Fatal("config not loaded")
	}
	if inv.Config.Audio.FramesPerBuffer != config.DefaultFramesPerBuffer ||
		inv.Config.Plugins.Active != config.DefaultActivePlugin {
		t.Errorf("defaults not applied: %+v", inv.Config)
	}
}

func TestParseArgsFlagOverrides(t *testing.T) {
	inv, err := ParseArgs([]string{
		"-d", "3", "-c", "2", "-s", "48000", "-b", "2048", "-l",
		"--gate", "0", "-p", "pulse", "-r", "-o", "/tmp/rec",
		"--metrics", "-v",
	})
	if err != nil {
		t.Fatalf("ParseArgs error: %v", err)
	}

	cfg := inv.Config
	tests := []struct {
		name      string
		got, want any
	}{
		{"device", cfg.Audio.InputDevice, 3},
		{"channels", cfg.Audio.InputChannels, 2},
		{"sample rate", cfg.Audio.SampleRate, 48000.0},
		{"frames", cfg.Audio.FramesPerBuffer, 2048},
		{"low latency", cfg.Audio.LowLatency, true},
		{"gate", cfg.Audio.GateThreshold, 0.0},
		{"plugin", cfg.Plugins.Active, "pulse"},
		{"record", cfg.Recording.Enabled, true},
		{"output dir", cfg.Recording.OutputDir, "/tmp/rec"},
		{"metrics", cfg.Metrics.Enabled, true},
		{"debug", cfg.Debug, true},
		{"log level", cfg.LogLevel, "debug"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestParseArgsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vizpipe.yaml")
	data := []byte("audio:\n  frames_per_buffer: 2048\n  sample_rate: 48000\nplugins:\n  active: websocket\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	inv, err := ParseArgs([]string{"--config", path, "-b", "512"})
	if err != nil {
		t.Fatalf("ParseArgs error: %v", err)
	}
	if inv.Config.Audio.FramesPerBuffer != 512 {
		t.Errorf("frames = %d, flag should override the file", inv.Config.Audio.FramesPerBuffer)
	}
	if inv.Config.Audio.SampleRate != 48000 || inv.Config.Plugins.Active != config.PluginWebSocket {
		t.Errorf("file values lost: %+v", inv.Config.Audio)
	}

	if _, err := ParseArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Error("expected error for a missing config file")
	}
}

func TestParseArgsInvalid(t *testing.T) {
	tests := []struct {
		desc string
		args []string
	}{
		{"Buffer not a power of two", []string{"-b", "1000"}},
		{"Unknown plugin", []string{"-p", "oscilloscope"}},
		{"No channels", []string{"-c", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := ParseArgs(tt.args)
			if !errors.Is(err, config.ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
		})
	}

	for _, args := range [][]string{{"analyze"}, {"analyze", "a.wav", "b.wav"}, {"stray"}, {"--no-such-flag"}} {
		if _, err := ParseArgs(args); err == nil {
			t.Errorf("ParseArgs(%q) expected error", args)
		}
	}
}

func TestParseArgsCommands(t *testing.T) {
	tests := []struct {
		args []string
		want Invocation
	}{
		{[]string{"list"}, Invocation{Command: CommandList}},
		{[]string{"list", "-i"}, Invocation{Command: CommandList, Interactive: true}},
		{[]string{"plugins"}, Invocation{Command: CommandPlugins}},
		{[]string{"analyze", "song.wav"}, Invocation{Command: CommandAnalyze, File: "song.wav"}},
		{[]string{"analyze", "song.wav", "--json", "--realtime", "-p", "udp"},
			Invocation{Command: CommandAnalyze, File: "song.wav", JSON: true, Realtime: true, Plugin: "udp"}},
	}

	for _, tt := range tests {
		inv, err := ParseArgs(tt.args)
		if err != nil {
			t.Errorf("ParseArgs(%q) error: %v", tt.args, err)
			continue
		}
		if inv.Config == nil {
			t.Errorf("ParseArgs(%q) did not load config", tt.args)
			continue
		}
		got := *inv
		got.Config = nil
		if got != tt.want {
			t.Errorf("ParseArgs(%q) = %+v, want %+v", tt.args, got, tt.want)
		}
	}
}

func TestParseArgsVersion(t *testing.T) {
	inv, err := ParseArgs([]string{"--version"})
	if err != nil {
		t.Fatalf("ParseArgs error: %v", err)
	}
	if inv.Config != nil || inv.Live {
		t.Errorf("--version should not start anything: %+v", inv)
	}
}
