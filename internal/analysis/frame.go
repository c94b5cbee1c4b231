// SPDX-License-Identifier: MIT
package analysis

// Frame is the analysis result for one block, handed to the active
// visualization plugin.
//
// Samples and Spectrum point into buffers owned by the pipeline and are
// overwritten by the next block. They are valid for the duration of the
// Render call only; a plugin that keeps data past Render must copy it.
type Frame struct {
	Samples    []float64  `json:"-"`
	Spectrum   []float64  `json:"spectrum"` // len N/2, or 0 for a short block
	SampleRate float64    `json:"sampleRate"`
	Channels   int        `json:"channels"`
	Timestamp  float64    `json:"timestamp"` // seconds, monotonic
	Beat       BeatResult `json:"beat"`
}

// FFTSize returns the transform size that produced the spectrum, or 0 when
// the spectrum is empty.
func (f Frame) FFTSize() int {
	return 2 * len(f.Spectrum)
}

// Bands summarizes the spectrum into dst using BandLevels.
func (f Frame) Bands(dst []float64, bands []Band) []float64 {
	return BandLevels(dst, f.Spectrum, f.SampleRate, f.FFTSize(), bands)
}

// Clone returns a deep copy whose slices are safe to keep after Render.
func (f Frame) Clone() Frame {
	c := f
	c.Samples = append([]float64(nil), f.Samples...)
	c.Spectrum = append([]float64(nil), f.Spectrum...)
	return c
}
