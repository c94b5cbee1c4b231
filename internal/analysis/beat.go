// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"vizpipe/internal/log"
)

// Default beat detection tunables. 43 blocks is ~1s of history for
// 1024-sample blocks at 44.1kHz; none of these scale with block duration.
const (
	DefaultHistorySize    = 43
	DefaultBeatThreshold  = 1.3
	DefaultBPMHistorySize = 10
	DefaultMinBPM         = 60.0
	DefaultMaxBPM         = 200.0
	DefaultBPM            = 120.0
)

// BeatResult is the per-block output of the BeatTracker.
type BeatResult struct {
	IsBeat    bool    `json:"isBeat"`
	BPM       float64 `json:"bpm"`       // smoothed tempo, DefaultBPM until evidence accumulates
	Intensity float64 `json:"intensity"` // [0, 1]
}

// BeatConfig holds the tunables of a BeatTracker.
type BeatConfig struct {
	HistorySize    int     // number of block energies averaged as the local baseline
	Threshold      float64 // beat when instant energy > baseline * Threshold
	BPMHistorySize int     // number of tempo estimates averaged into BPM
	MinBPM         float64 // tempo estimates outside [MinBPM, MaxBPM] are ignored
	MaxBPM         float64
	DefaultBPM     float64 // reported until the first plausible estimate
}

// DefaultBeatConfig returns the standard tunables.
func DefaultBeatConfig() BeatConfig {
	return BeatConfig{
		HistorySize:    DefaultHistorySize,
		Threshold:      DefaultBeatThreshold,
		BPMHistorySize: DefaultBPMHistorySize,
		MinBPM:         DefaultMinBPM,
		MaxBPM:         DefaultMaxBPM,
		DefaultBPM:     DefaultBPM,
	}
}

// withDefaults replaces unusable fields with their defaults.
func (c BeatConfig) withDefaults() BeatConfig {
	d := DefaultBeatConfig()
	if c.HistorySize < 1 {
		c.HistorySize = d.HistorySize
	}
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.BPMHistorySize < 1 {
		c.BPMHistorySize = d.BPMHistorySize
	}
	if c.MinBPM <= 0 || c.MaxBPM <= c.MinBPM {
		c.MinBPM, c.MaxBPM = d.MinBPM, d.MaxBPM
	}
	if c.DefaultBPM <= 0 {
		c.DefaultBPM = d.DefaultBPM
	}
	return c
}

// BeatTracker flags energy onsets and estimates tempo from the spacing
// between them. It keeps a rolling history of block energies and of recent
// tempo estimates, both in fixed-size rings.
//
// A BeatTracker belongs to a single stream and is not safe for concurrent
// use; the pipeline calls it from the audio callback only.
type BeatTracker struct {
	cfg BeatConfig

	energy *ring
	bpms   *ring

	bpm      float64
	lastBeat float64
	hasBeat  bool
}

// NewBeatTracker creates a tracker. Zero or invalid fields in cfg fall back
// to DefaultBeatConfig.
func NewBeatTracker(cfg BeatConfig) *BeatTracker {
	cfg = cfg.withDefaults()
	log.Debugf("Analysis: Initializing BeatTracker (History: %d, Threshold: %.2f, BPM history: %d, Range: %.0f-%.0f)",
		cfg.HistorySize, cfg.Threshold, cfg.BPMHistorySize, cfg.MinBPM, cfg.MaxBPM)
	return &BeatTracker{
		cfg:    cfg,
		energy: newRing(cfg.HistorySize),
		bpms:   newRing(cfg.BPMHistorySize),
		bpm:    cfg.DefaultBPM,
	}
}

// Config returns the effective tunables.
func (bt *BeatTracker) Config() BeatConfig { return bt.cfg }

// BPM returns the current tempo estimate.
func (bt *BeatTracker) BPM() float64 { return bt.bpm }

// Process consumes one block. timestamp is the block's position in seconds
// on a monotonic clock owned by the caller; it is only used to measure the
// spacing between beats.
func (bt *BeatTracker) Process(samples []float64, timestamp float64) BeatResult {
	instant := meanSquare(samples)

	bt.energy.Push(instant)
	average := bt.energy.Mean()

	isBeat := instant > average*bt.cfg.Threshold

	if isBeat {
		if bt.hasBeat {
			if elapsed := timestamp - bt.lastBeat; elapsed > 0 {
				bpm := 60 / elapsed
				if bpm >= bt.cfg.MinBPM && bpm <= bt.cfg.MaxBPM {
					bt.bpms.Push(bpm)
					bt.bpm = bt.bpms.Mean()
				}
			}
		}
		bt.lastBeat = timestamp
		bt.hasBeat = true
	}

	var intensity float64
	if average > 0 {
		intensity = clamp01(instant / (average * 2))
	}

	return BeatResult{
		IsBeat:    isBeat,
		BPM:       bt.bpm,
		Intensity: intensity,
	}
}

// Reset clears both histories and the tempo estimate, as when a new track
// starts.
func (bt *BeatTracker) Reset() {
	bt.energy.Reset()
	bt.bpms.Reset()
	bt.bpm = bt.cfg.DefaultBPM
	bt.lastBeat = 0
	bt.hasBeat = false
}

// meanSquare returns the mean of the squared samples; non-finite samples
// count as silence.
func meanSquare(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		sum += s * s
	}
	return sum / float64(len(samples))
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
