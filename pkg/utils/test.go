// SPDX-License-Identifier: MIT
//
// Package utils holds signal generators and test doubles shared by the
// analysis, pipeline and plugin tests.
package utils

import (
	"math"
	"sync"

	"vizpipe/internal/analysis"
)

// MockPlugin records every frame it is asked to render. Frames are cloned
// because the pipeline reuses its buffers between blocks.
type MockPlugin struct {
	mu      sync.Mutex
	Frames  []analysis.Frame
	Configs map[string]any
}

// Render stores a copy of the frame.
func (m *MockPlugin) Render(frame analysis.Frame) {
	m.mu.Lock()
	m.Frames = append(m.Frames, frame.Clone())
	m.mu.Unlock()
}

// Configure stores the value under key.
func (m *MockPlugin) Configure(key string, value any) {
	m.mu.Lock()
	if m.Configs == nil {
		m.Configs = make(map[string]any)
	}
	m.Configs[key] = value
	m.mu.Unlock()
}

// Count returns the number of frames rendered so far.
func (m *MockPlugin) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Frames)
}

// Last returns the most recent frame and whether any frame was rendered.
func (m *MockPlugin) Last() (analysis.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Frames) == 0 {
		return analysis.Frame{}, false
	}
	return m.Frames[len(m.Frames)-1], true
}

// GenerateComplexWave returns a 440Hz tone with two harmonics, peaking at 0.9.
func GenerateComplexWave(size int, sampleRate float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = signal * 0.9
	}
	return buffer
}

// GenerateSineWave returns a sine of the given frequency and amplitude.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = math.Sin(2*math.Pi*frequency*t) * amplitude
	}
	return buffer
}

// GenerateConstant returns a block where every sample equals value. The
// block's mean square energy is value*value.
func GenerateConstant(size int, value float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		buffer[i] = value
	}
	return buffer
}

// FindPeakBin returns the index of the largest value in magnitudes[startBin:endBin+1].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
