// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"vizpipe/internal/analysis"
	"vizpipe/internal/audio"
	"vizpipe/internal/config"
	"vizpipe/internal/log"
	"vizpipe/internal/metrics"
	"vizpipe/internal/pipeline"
	"vizpipe/internal/plugin"
	"vizpipe/internal/transport"
	"vizpipe/internal/transport/udp"
	"vizpipe/internal/tui"
	"vizpipe/pkg/json"

	"gopkg.in/yaml.v3"
)

// Plugins holds the built-in plugins and the registry they are registered
// in, in config.BuiltinPlugins order.
type Plugins struct {
	Registry  *plugin.Registry
	Bars      *tui.Bars
	Pulse     *tui.Pulse
	WebSocket *transport.WebSocketTransport
	UDP       *udp.UDPPublisher

	sender *udp.UDPSender
}

var displayNames = map[string]string{
	config.PluginBars:      "Spectrum Bars",
	config.PluginPulse:     "Beat Pulse",
	config.PluginWebSocket: "WebSocket Stream",
	config.PluginUDP:       "UDP Publisher",
}

// NewPlugins builds and registers every built-in plugin. active is
// activated when non-empty. Network listeners are not started.
func NewPlugins(cfg *config.Config, active string) (*Plugins, error) {
	bins := cfg.Audio.FramesPerBuffer / 2

	sender, err := udp.NewUDPSender(cfg.Plugins.UDPTargetAddress)
	if err != nil {
		return nil, err
	}
	publisher, err := udp.NewUDPPublisher(cfg.Plugins.UDPSendInterval, sender, bins)
	if err != nil {
		sender.Close()
		return nil, err
	}

	p := &Plugins{
		Registry:  plugin.NewRegistry(),
		Bars:      tui.NewBars(),
		Pulse:     tui.NewPulse(),
		WebSocket: transport.NewWebSocketTransport(cfg.Plugins.WebSocketAddr, bins),
		UDP:       publisher,
		sender:    sender,
	}

	byID := map[string]plugin.Plugin{
		config.PluginBars:      p.Bars,
		config.PluginPulse:     p.Pulse,
		config.PluginWebSocket: p.WebSocket,
		config.PluginUDP:       p.UDP,
	}
	for _, id := range config.BuiltinPlugins {
		desc := plugin.Descriptor{ID: id, DisplayName: displayNames[id]}
		if err := p.Registry.Register(desc, byID[id]); err != nil {
			p.Close()
			return nil, err
		}
	}

	if active != "" {
		if err := p.Registry.Activate(active); err != nil {
			p.Close()
			return nil, err
		}
	}
	return p, nil
}

// Close deactivates the active plugin and releases network resources.
func (p *Plugins) Close() error {
	p.Registry.Deactivate()
	return errors.Join(
		p.UDP.Close(),
		p.sender.Close(),
		p.WebSocket.Close(),
	)
}

// NewDriver builds the analysis stages for cfg around registry.
func NewDriver(cfg *config.Config, registry *plugin.Registry, withMetrics bool) (*pipeline.Driver, error) {
	spectrum, err := analysis.NewSpectrum(cfg.Audio.FramesPerBuffer)
	if err != nil {
		return nil, err
	}
	beats := analysis.NewBeatTracker(cfg.Analysis.BeatConfig())
	return pipeline.NewDriver(spectrum, beats, registry, pipeline.WithMetrics(withMetrics))
}

// RunPlugins writes the built-in plugins, marking the configured default.
func RunPlugins(w io.Writer, cfg *config.Config) error {
	for i, id := range config.BuiltinPlugins {
		marker := " "
		if id == cfg.Plugins.Active {
			marker = "*"
		}
		if _, err := fmt.Fprintf(w, "%s %d  %-10s %s\n", marker, i+1, id, displayNames[id]); err != nil {
			return err
		}
	}
	return nil
}

// RunList lists devices, or runs the device picker and writes the choice
// as a config snippet.
func RunList(w io.Writer, interactive bool) error {
	if !interactive {
		return audio.ListDevices(w)
	}

	sel, ok, err := tui.StartDeviceListUI(audio.HostDevices)
	if err != nil || !ok {
		return err
	}
	return WriteSelection(w, sel)
}

// WriteSelection writes sel as the audio section of a config file.
func WriteSelection(w io.Writer, sel tui.Selection) error {
	fmt.Fprintf(w, "# %s\n", sel.DeviceName)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]tui.Selection{"audio": sel}); err != nil {
		return err
	}
	return enc.Close()
}

// Summary is the result of an offline analysis.
type Summary struct {
	File         string  `json:"file"`
	SampleRate   float64 `json:"sampleRate"`
	Channels     int     `json:"channels"`
	Duration     float64 `json:"durationSeconds"`
	Blocks       uint64  `json:"blocks"`
	Insufficient uint64  `json:"insufficientBlocks"`
	Beats        uint64  `json:"beats"`
	BPM          float64 `json:"bpm"`
	Plugin       string  `json:"plugin,omitempty"`
	Delivered    uint64  `json:"delivered"`
}

// Analyze runs a WAV file through the pipeline and returns its summary.
// When pluginID is set, frames are delivered to that built-in plugin.
func Analyze(ctx context.Context, cfg *config.Config, path, pluginID string, realtime bool) (Summary, error) {
	src, err := audio.OpenFile(path, cfg.Audio.FramesPerBuffer)
	if err != nil {
		return Summary{}, err
	}
	defer src.Close()

	var registry *plugin.Registry
	if pluginID != "" {
		plugins, err := NewPlugins(cfg, pluginID)
		if err != nil {
			return Summary{}, err
		}
		defer plugins.Close()
		if pluginID == config.PluginWebSocket {
			if err := plugins.WebSocket.Start(); err != nil {
				return Summary{}, err
			}
		}
		registry = plugins.Registry
	}

	driver, err := NewDriver(cfg, registry, cfg.Metrics.Enabled)
	if err != nil {
		return Summary{}, err
	}

	log.Infof("Analyze: %s (%.0f Hz, %d channels, %s per block)",
		path, src.SampleRate(), src.Channels(), src.BlockDuration())

	blocks, err := src.Run(ctx, driver, realtime)
	if err != nil {
		return Summary{}, err
	}

	stats := driver.Stats()
	return Summary{
		File:         path,
		SampleRate:   src.SampleRate(),
		Channels:     src.Channels(),
		Duration:     float64(blocks) * src.BlockDuration().Seconds(),
		Blocks:       stats.Blocks,
		Insufficient: stats.Insufficient,
		Beats:        stats.Beats,
		BPM:          stats.BPM,
		Plugin:       pluginID,
		Delivered:    stats.Delivered,
	}, nil
}

// WriteSummary writes s as text or indented JSON.
func WriteSummary(w io.Writer, s Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	_, err := fmt.Fprintf(w,
		"File:        %s\nFormat:      %.0f Hz, %d channels\nDuration:    %s\nBlocks:      %d (%d short)\nBeats:       %d\nTempo:       %.1f BPM\n",
		s.File, s.SampleRate, s.Channels,
		time.Duration(s.Duration*float64(time.Second)).Round(time.Millisecond),
		s.Blocks, s.Insufficient, s.Beats, s.BPM)
	if err == nil && s.Plugin != "" {
		_, err = fmt.Fprintf(w, "Plugin:      %s (%d frames delivered)\n", s.Plugin, s.Delivered)
	}
	return err
}

// RunLive captures from the configured device and hosts the plugins in the
// terminal until the user quits or ctx is done. PortAudio must be
// initialized.
func RunLive(ctx context.Context, cfg *config.Config) error {
	plugins, err := NewPlugins(cfg, cfg.Plugins.Active)
	if err != nil {
		return err
	}
	defer plugins.Close()

	if err := plugins.WebSocket.Start(); err != nil {
		log.Warnf("Live: WebSocket plugin unavailable: %v", err)
	}

	if cfg.Metrics.Enabled {
		server := metrics.NewServer(cfg.Metrics.Addr)
		server.Start()
		defer server.Close()
	}

	driver, err := NewDriver(cfg, plugins.Registry, cfg.Metrics.Enabled)
	if err != nil {
		return err
	}

	engine, err := audio.NewEngine(cfg, driver)
	if err != nil {
		return err
	}
	defer engine.Close()

	// CRITICAL: Start of real-time audio processing
	if err := engine.StartInputStream(); err != nil {
		return err
	}

	if cfg.Recording.Enabled {
		path, err := audio.RecordingPath(cfg.Recording.OutputDir, time.Now())
		if err != nil {
			return err
		}
		if err := engine.StartRecording(path); err != nil {
			return err
		}
		defer func() {
			if err := engine.StopRecording(); err != nil {
				log.Errorf("Live: Error stopping recording: %v", err)
				return
			}
			log.Infof("Live: Recording saved to %s", path)
		}()
	}

	return tui.RunVisualizer(ctx, tui.Options{
		Registry: plugins.Registry,
		Stats:    driver.Stats,
		Gate:     engine,
	})
}
