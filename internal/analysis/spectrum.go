// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"

	"vizpipe/internal/log"
	"vizpipe/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// ErrInsufficientSamples is returned when a block is shorter than the
// transform size. The spectrum for such a block is empty.
var ErrInsufficientSamples = errors.New("insufficient samples for transform")

const (
	// FloorDB is the level mapped to 0 in the normalized spectrum; 0 dB maps to 1.
	FloorDB = -60.0
)

// Spectrum turns a block of mono samples into a normalized magnitude
// spectrum of Size()/2 bins, each in [0, 1].
//
// The Hann window and the FFT plan are built once in NewSpectrum and never
// change; a different transform size needs a new Spectrum. The windowed
// input and coefficient buffers are reused across calls, so a Spectrum must
// not be shared between concurrent streams.
type Spectrum struct {
	size   int
	plan   *fourier.FFT
	window []float64

	input  []float64    // windowed samples
	coeffs []complex128 // N/2+1 coefficients, the Nyquist bin is dropped
}

// NewSpectrum builds a transform of the given size, which must be a power
// of two of at least 2.
func NewSpectrum(size int) (*Spectrum, error) {
	if size < 2 || !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("transform size must be a power of 2 >= 2, got %d (next: %d)",
			size, bitint.NextPowerOfTwo(size))
	}

	coeffs := make([]float64, size)
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	window.Hann(coeffs)

	log.Debugf("Analysis: Initializing Spectrum (Size: %d, Bins: %d)", size, size/2)

	return &Spectrum{
		size:   size,
		plan:   fourier.NewFFT(size),
		window: coeffs,
		input:  make([]float64, size),
		coeffs: make([]complex128, size/2+1),
	}, nil
}

// Size returns the transform size N.
func (s *Spectrum) Size() int { return s.size }

// Bins returns the number of output bins, N/2.
func (s *Spectrum) Bins() int { return s.size / 2 }

// FrequencyForBin returns the center frequency in Hz of bin i for the given
// sample rate, or 0 when i is out of range.
func (s *Spectrum) FrequencyForBin(i int, sampleRate float64) float64 {
	if i < 0 || i >= s.Bins() {
		return 0
	}
	return float64(i) * sampleRate / float64(s.size)
}

// Analyze returns a newly allocated spectrum for samples. Blocks shorter
// than Size() yield an empty spectrum.
func (s *Spectrum) Analyze(samples []float64) []float64 {
	out, err := s.AnalyzeInto(make([]float64, s.Bins()), samples)
	if err != nil {
		return out[:0]
	}
	return out
}

// AnalyzeInto computes the spectrum of the first Size() samples into dst and
// returns dst resliced to Size()/2. dst is grown only if its capacity is too
// small, so passing a buffer from a previous call keeps the path allocation
// free. When samples is too short it returns dst[:0] and
// ErrInsufficientSamples.
//
// Steps: Hann window, real FFT, squared magnitude, 10*log10 relative to 1.0,
// then (dB+60)/60 clamped to [0, 1]. An all-zero block produces -Inf dB in
// every bin, which clamps to 0.
func (s *Spectrum) AnalyzeInto(dst, samples []float64) ([]float64, error) {
	if len(samples) < s.size {
		return dst[:0], ErrInsufficientSamples
	}

	bins := s.Bins()
	if cap(dst) < bins {
		dst = make([]float64, bins)
	}
	dst = dst[:bins]

	for i := range s.size {
		v := samples[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		s.input[i] = v * s.window[i]
	}

	s.plan.Coefficients(s.coeffs, s.input)

	for i := range bins {
		c := s.coeffs[i]
		power := real(c)*real(c) + imag(c)*imag(c)
		dst[i] = normalizeDB(10 * math.Log10(power))
	}

	return dst, nil
}

// normalizeDB maps FloorDB..0 dB onto 0..1.
func normalizeDB(db float64) float64 {
	return clamp01((db - FloorDB) / -FloorDB)
}
