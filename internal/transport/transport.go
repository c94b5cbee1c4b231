// SPDX-License-Identifier: MIT
//
// Package transport holds the visualization plugins that forward frames to
// out-of-process renderers: browsers over WebSocket and UDP listeners (see
// the udp subpackage).
//
// Render runs on the audio path, so these plugins only copy the frame into
// a pre-allocated Snapshot there. Encoding and network I/O happen on their
// own goroutines.
package transport

import (
	"vizpipe/internal/analysis"
)

// Transport sends encoded payloads to remote renderers.
// Implementations must be safe for concurrent use.
type Transport interface {
	Send(data []byte) error
	Close() error
}

// Snapshot is a copy of the parts of a Frame that remote renderers use.
type Snapshot struct {
	Timestamp  float64             `json:"timestamp"`
	SampleRate float64             `json:"sampleRate"`
	Spectrum   []float64           `json:"spectrum"`
	Bands      []float64           `json:"bands"`
	Beat       analysis.BeatResult `json:"beat"`
}

// NewSnapshot returns a snapshot with room for bins spectrum values and
// bands band levels, so Capture does not allocate for frames of that size.
func NewSnapshot(bins, bands int) *Snapshot {
	return &Snapshot{
		Spectrum: make([]float64, 0, bins),
		Bands:    make([]float64, 0, bands),
	}
}

// Capture copies frame into s, reusing s's buffers.
func (s *Snapshot) Capture(frame analysis.Frame, bands []analysis.Band) {
	s.Timestamp = frame.Timestamp
	s.SampleRate = frame.SampleRate
	s.Spectrum = append(s.Spectrum[:0], frame.Spectrum...)
	s.Bands = frame.Bands(s.Bands, bands)
	s.Beat = frame.Beat
}
