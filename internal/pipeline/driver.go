// SPDX-License-Identifier: MIT
/*
Package pipeline connects the analysis stages to the plugin registry.

For every block the Driver runs the spectrum transform and the beat tracker
on the same samples, assembles an analysis.Frame in buffers it owns and
hands the frame to the active plugin:

	block -> Spectrum.AnalyzeInto ─┐
	      -> BeatTracker.Process  ─┴-> Frame -> Registry.Dispatch

Process is called from the audio callback. It does not allocate, perform
I/O or take locks; statistics are kept in atomics so other goroutines can
read them while the stream runs.
*/
package pipeline

import (
	"errors"
	"math"
	"sync/atomic"
	"time"

	"vizpipe/internal/analysis"
	"vizpipe/internal/log"
	"vizpipe/internal/metrics"
	"vizpipe/internal/plugin"
)

var (
	ErrNilSpectrum    = errors.New("pipeline: spectrum transform is required")
	ErrNilBeatTracker = errors.New("pipeline: beat tracker is required")
)

// Block is one chunk of mono samples from a front-end.
type Block struct {
	Samples    []float64
	SampleRate float64
	Channels   int     // channel count of the source before the mono fold
	Timestamp  float64 // seconds on the front-end's monotonic clock
}

// Stats is a snapshot of the driver's counters.
type Stats struct {
	Blocks       uint64  `json:"blocks"`
	Insufficient uint64  `json:"insufficient"`
	Beats        uint64  `json:"beats"`
	Delivered    uint64  `json:"delivered"`
	BPM          float64 `json:"bpm"`
}

// Option configures a Driver.
type Option func(*Driver)

// WithMetrics enables or disables Prometheus updates. Enabled by default.
func WithMetrics(enabled bool) Option {
	return func(d *Driver) { d.metrics = enabled }
}

// Driver runs the per-block analysis. One Driver serves one stream.
type Driver struct {
	spectrum *analysis.Spectrum
	beats    *analysis.BeatTracker
	registry *plugin.Registry
	metrics  bool

	spectrumBuf []float64

	blocks       atomic.Uint64
	insufficient atomic.Uint64
	beatCount    atomic.Uint64
	delivered    atomic.Uint64
	bpmBits      atomic.Uint64
}

// NewDriver creates a driver. registry may be nil, in which case frames are
// computed but never dispatched.
func NewDriver(spectrum *analysis.Spectrum, beats *analysis.BeatTracker, registry *plugin.Registry, opts ...Option) (*Driver, error) {
	if spectrum == nil {
		return nil, ErrNilSpectrum
	}
	if beats == nil {
		return nil, ErrNilBeatTracker
	}

	d := &Driver{
		spectrum:    spectrum,
		beats:       beats,
		registry:    registry,
		metrics:     true,
		spectrumBuf: make([]float64, spectrum.Bins()),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.bpmBits.Store(math.Float64bits(beats.BPM()))

	log.Debugf("Pipeline: Initializing Driver (FFT: %d, Bins: %d, Metrics: %t)",
		spectrum.Size(), spectrum.Bins(), d.metrics)

	return d, nil
}

// Process analyzes one block and dispatches the resulting frame. The
// returned frame aliases the driver's buffers and is only valid until the
// next call.
//
// A block shorter than the transform size gets an empty spectrum; beat
// tracking and dispatch still run.
func (d *Driver) Process(block Block) analysis.Frame {
	start := time.Now()

	spectrum, err := d.spectrum.AnalyzeInto(d.spectrumBuf, block.Samples)
	if err != nil {
		d.insufficient.Add(1)
		if d.metrics {
			metrics.InsufficientBlocks.Inc()
		}
	}

	beat := d.beats.Process(block.Samples, block.Timestamp)

	frame := analysis.Frame{
		Samples:    block.Samples,
		Spectrum:   spectrum,
		SampleRate: block.SampleRate,
		Channels:   block.Channels,
		Timestamp:  block.Timestamp,
		Beat:       beat,
	}

	if d.registry != nil && d.registry.Dispatch(frame) {
		d.delivered.Add(1)
	}

	d.blocks.Add(1)
	d.bpmBits.Store(math.Float64bits(beat.BPM))
	if beat.IsBeat {
		d.beatCount.Add(1)
	}

	if d.metrics {
		metrics.BlocksProcessed.Inc()
		metrics.TempoBPM.Set(beat.BPM)
		if beat.IsBeat {
			metrics.BeatsDetected.Inc()
		}
		metrics.BlockDuration.Observe(time.Since(start).Seconds())
	}

	return frame
}

// Stats returns the counters accumulated since the driver was created or
// last reset. Safe to call from any goroutine.
func (d *Driver) Stats() Stats {
	return Stats{
		Blocks:       d.blocks.Load(),
		Insufficient: d.insufficient.Load(),
		Beats:        d.beatCount.Load(),
		Delivered:    d.delivered.Load(),
		BPM:          math.Float64frombits(d.bpmBits.Load()),
	}
}

// Reset clears the beat tracker and the counters, as when a new track
// starts. It must not run concurrently with Process.
func (d *Driver) Reset() {
	d.beats.Reset()
	d.blocks.Store(0)
	d.insufficient.Store(0)
	d.beatCount.Store(0)
	d.delivered.Store(0)
	d.bpmBits.Store(math.Float64bits(d.beats.BPM()))
}

// FFTSize returns the transform size, which is also the block size the
// front-ends should deliver.
func (d *Driver) FFTSize() int { return d.spectrum.Size() }

// Registry returns the registry frames are dispatched to, possibly nil.
func (d *Driver) Registry() *plugin.Registry { return d.registry }
