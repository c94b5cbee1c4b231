// SPDX-License-Identifier: MIT
package analysis_test

import (
	"math"
	"testing"

	"vizpipe/internal/analysis"
)

func TestBandLevelsFlatSpectrum(t *testing.T) {
	spectrum := make([]float64, testFFTSize/2)
	for i := range spectrum {
		spectrum[i] = 0.75
	}

	levels := analysis.BandLevels(nil, spectrum, testSampleRate, testFFTSize, analysis.DefaultBands)
	if len(levels) != len(analysis.DefaultBands) {
		t.Fatalf("got %d levels, want %d", len(levels), len(analysis.DefaultBands))
	}
	for i, v := range levels {
		if math.Abs(v-0.75) > 1e-12 {
			t.Errorf("band %s = %f, want 0.75", analysis.DefaultBands[i].Name, v)
		}
	}
}

func TestBandLevelsIsolatesBass(t *testing.T) {
	spectrum := make([]float64, testFFTSize/2)
	// ~129 Hz at 44.1kHz / 1024 falls in the bass band.
	spectrum[3] = 1

	levels := analysis.BandLevels(nil, spectrum, testSampleRate, testFFTSize, analysis.DefaultBands)
	for i, band := range analysis.DefaultBands {
		if band.Name == "bass" {
			if levels[i] <= 0 {
				t.Errorf("bass level = %f, want > 0", levels[i])
			}
			continue
		}
		if levels[i] != 0 {
			t.Errorf("band %s = %f, want 0", band.Name, levels[i])
		}
	}
}

func TestBandLevelsEmptySpectrum(t *testing.T) {
	dst := []float64{9, 9, 9, 9, 9, 9}
	levels := analysis.BandLevels(dst, nil, testSampleRate, testFFTSize, analysis.DefaultBands)
	for i, v := range levels {
		if v != 0 {
			t.Errorf("band %d = %f, want 0 for empty spectrum", i, v)
		}
	}
}

func TestFrameBandsAndClone(t *testing.T) {
	spectrum := make([]float64, testFFTSize/2)
	frame := analysis.Frame{Spectrum: spectrum, Samples: []float64{0.1}, SampleRate: testSampleRate, Channels: 1}

	if frame.FFTSize() != testFFTSize {
		t.Errorf("FFTSize() = %d, want %d", frame.FFTSize(), testFFTSize)
	}

	clone := frame.Clone()
	spectrum[0] = 1
	frame.Samples[0] = 0.9
	if clone.Spectrum[0] != 0 || clone.Samples[0] != 0.1 {
		t.Error("Clone shares buffers with the original frame")
	}

	if got := frame.Bands(nil, analysis.DefaultBands); got[0] <= 0 {
		t.Errorf("sub band = %f, want > 0 after setting bin 0", got[0])
	}
}

func TestBandLevelsZeroAllocs(t *testing.T) {
	spectrum := make([]float64, testFFTSize/2)
	dst := make([]float64, len(analysis.DefaultBands))
	allocs := testing.AllocsPerRun(100, func() {
		dst = analysis.BandLevels(dst, spectrum, testSampleRate, testFFTSize, analysis.DefaultBands)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in BandLevels, got %.1f", allocs)
	}
}
