// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"strconv"
	"testing"

	"vizpipe/internal/analysis"
	"vizpipe/internal/config"
	"vizpipe/internal/pipeline"
	"vizpipe/internal/plugin"
	"vizpipe/pkg/utils"
)

const (
	testSampleRate = 44100
	testFrameSize  = 1024
)

var (
	lowThreshold  = int32(math.MaxInt32 / 10000)    // ~0.01%
	highThreshold = int32(math.MaxInt32 / 10 * 9)   // 90%
	testBuffer    = sineInt32(testFrameSize, 0.5)   // -6dBFS
	quietBuffer   = sineInt32(testFrameSize, 0.001) // -60dBFS
	loudBuffer    = sineInt32(testFrameSize, 0.95)
)

// sineInt32 returns a 440Hz sine as int32 PCM at the given peak ratio.
func sineInt32(size int, amplitude float64) []int32 {
	buf := make([]int32, size)
	for i := range buf {
		v := math.Sin(2*math.Pi*440*float64(i)/testSampleRate) * amplitude
		buf[i] = int32(v * math.MaxInt32)
	}
	return buf
}

// interleave duplicates a mono buffer across channels.
func interleave(mono []int32, channels int) []int32 {
	out := make([]int32, len(mono)*channels)
	for i, s := range mono {
		for c := range channels {
			out[i*channels+c] = s
		}
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func absFloat(x float64) float64 {
	return math.Abs(x)
}

func testAudioConfig(channels int) config.AudioConfig {
	return config.AudioConfig{
		InputDevice:     config.DefaultDeviceID,
		SampleRate:      testSampleRate,
		FramesPerBuffer: testFrameSize,
		InputChannels:   channels,
	}
}

// newTestEngine builds an engine without a device, wired to a driver whose
// registry has a recording mock plugin active.
func newTestEngine(t testing.TB, channels int) (*Engine, *utils.MockPlugin) {
	t.Helper()

	spectrum, err := analysis.NewSpectrum(testFrameSize)
	if err != nil {
		t.Fatal(err)
	}
	registry := plugin.NewRegistry()
	mock := &utils.MockPlugin{}
	if err := registry.Register(plugin.Descriptor{ID: "mock"}, mock); err != nil {
		t.Fatal(err)
	}
	if err := registry.Activate("mock"); err != nil {
		t.Fatal(err)
	}
	driver, err := pipeline.NewDriver(spectrum, analysis.NewBeatTracker(analysis.DefaultBeatConfig()), registry,
		pipeline.WithMetrics(false))
	if err != nil {
		t.Fatal(err)
	}

	e, err := newEngine(testAudioConfig(channels), 16, driver)
	if err != nil {
		t.Fatal(err)
	}
	return e, mock
}
