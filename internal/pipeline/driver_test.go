// SPDX-License-Identifier: MIT
package pipeline_test

import (
	"errors"
	"testing"

	"vizpipe/internal/analysis"
	"vizpipe/internal/pipeline"
	"vizpipe/internal/plugin"
	"vizpipe/pkg/utils"
)

const (
	testFFTSize    = 1024
	testSampleRate = 44100.0
)

type nopPlugin struct{ renders int }

func (p *nopPlugin) Render(analysis.Frame)  { p.renders++ }
func (p *nopPlugin) Configure(string, any) {}

func newDriver(t testing.TB, registry *plugin.Registry, opts ...pipeline.Option) *pipeline.Driver {
	t.Helper()
	spectrum, err := analysis.NewSpectrum(testFFTSize)
	if err != nil {
		t.Fatal(err)
	}
	d, err := pipeline.NewDriver(spectrum, analysis.NewBeatTracker(analysis.DefaultBeatConfig()), registry, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func activeMock(t *testing.T) (*plugin.Registry, *utils.MockPlugin) {
	t.Helper()
	r := plugin.NewRegistry()
	p := &utils.MockPlugin{}
	if err := r.Register(plugin.Descriptor{ID: "mock"}, p); err != nil {
		t.Fatal(err)
	}
	if err := r.Activate("mock"); err != nil {
		t.Fatal(err)
	}
	return r, p
}

func TestNewDriverRequiresStages(t *testing.T) {
	spectrum, _ := analysis.NewSpectrum(testFFTSize)
	beats := analysis.NewBeatTracker(analysis.BeatConfig{})

	if _, err := pipeline.NewDriver(nil, beats, nil); !errors.Is(err, pipeline.ErrNilSpectrum) {
		t.Errorf("nil spectrum error = %v", err)
	}
	if _, err := pipeline.NewDriver(spectrum, nil, nil); !errors.Is(err, pipeline.ErrNilBeatTracker) {
		t.Errorf("nil beat tracker error = %v", err)
	}
}

func TestProcessAssemblesFrame(t *testing.T) {
	r, p := activeMock(t)
	d := newDriver(t, r)

	// Bin 20 center frequency, quiet enough that the main lobe stays below
	// 0 dB and no neighbouring bin clamps to 1.
	freq := 20 * testSampleRate / testFFTSize
	samples := utils.GenerateSineWave(testFFTSize, testSampleRate, freq, 1.2/testFFTSize)

	frame := d.Process(pipeline.Block{
		Samples:    samples,
		SampleRate: testSampleRate,
		Channels:   2,
		Timestamp:  3.25,
	})

	got, ok := p.Last()
	if !ok {
		t.Fatal("active plugin received no frame")
	}
	if len(got.Spectrum) != testFFTSize/2 {
		t.Fatalf("spectrum length = %d, want %d", len(got.Spectrum), testFFTSize/2)
	}
	if peak := utils.FindPeakBin(got.Spectrum, 0, len(got.Spectrum)-1); peak != 20 {
		t.Errorf("peak bin = %d, want 20", peak)
	}
	if got.Spectrum[20] >= 1 || got.Spectrum[19] >= got.Spectrum[20] || got.Spectrum[21] >= got.Spectrum[20] {
		t.Errorf("bins 19..21 = %v, want an unclamped peak at 20", got.Spectrum[19:22])
	}
	if got.SampleRate != testSampleRate || got.Channels != 2 || got.Timestamp != 3.25 {
		t.Errorf("metadata = (%v, %d, %v), want (%v, 2, 3.25)",
			got.SampleRate, got.Channels, got.Timestamp, testSampleRate)
	}
	if len(got.Samples) != testFFTSize {
		t.Errorf("samples length = %d, want %d", len(got.Samples), testFFTSize)
	}
	if got.Beat.BPM != analysis.DefaultBPM {
		t.Errorf("BPM = %f, want default %f", got.Beat.BPM, analysis.DefaultBPM)
	}
	if frame.Timestamp != got.Timestamp {
		t.Error("returned frame differs from dispatched frame")
	}

	stats := d.Stats()
	if stats.Blocks != 1 || stats.Delivered != 1 || stats.Insufficient != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestProcessShortBlock(t *testing.T) {
	r, p := activeMock(t)
	d := newDriver(t, r)

	frame := d.Process(pipeline.Block{
		Samples:    utils.GenerateConstant(100, 0.5),
		SampleRate: testSampleRate,
		Channels:   1,
	})

	if len(frame.Spectrum) != 0 {
		t.Errorf("short block spectrum length = %d, want 0", len(frame.Spectrum))
	}
	if frame.FFTSize() != 0 {
		t.Errorf("FFTSize() = %d, want 0", frame.FFTSize())
	}
	// With a single history entry the average equals the instant energy,
	// so the intensity is exactly one half.
	if frame.Beat.Intensity != 0.5 {
		t.Errorf("intensity = %f, want 0.5 (beat tracker must still run)", frame.Beat.Intensity)
	}
	if p.Count() != 1 {
		t.Errorf("short block dispatched %d times, want 1", p.Count())
	}
	if s := d.Stats(); s.Insufficient != 1 || s.Blocks != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestProcessWithoutActivePlugin(t *testing.T) {
	r := plugin.NewRegistry()
	r.Register(plugin.Descriptor{ID: "idle"}, &utils.MockPlugin{})
	d := newDriver(t, r)

	frame := d.Process(pipeline.Block{Samples: utils.GenerateConstant(testFFTSize, 0.1), SampleRate: testSampleRate})
	if len(frame.Spectrum) != testFFTSize/2 {
		t.Errorf("spectrum length = %d", len(frame.Spectrum))
	}
	if s := d.Stats(); s.Delivered != 0 || s.Blocks != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestProcessNilRegistry(t *testing.T) {
	d := newDriver(t, nil, pipeline.WithMetrics(false))
	d.Process(pipeline.Block{Samples: utils.GenerateConstant(testFFTSize, 0.1), SampleRate: testSampleRate})
	if s := d.Stats(); s.Blocks != 1 || s.Delivered != 0 {
		t.Errorf("stats = %+v", s)
	}
	if d.Registry() != nil {
		t.Error("Registry() should be nil")
	}
}

func TestProcessReusesSpectrumBuffer(t *testing.T) {
	d := newDriver(t, nil)
	block := pipeline.Block{Samples: utils.GenerateComplexWave(testFFTSize, testSampleRate), SampleRate: testSampleRate}

	first := d.Process(block)
	second := d.Process(block)
	if &first.Spectrum[0] != &second.Spectrum[0] {
		t.Error("spectrum buffer was reallocated between blocks")
	}
}

func TestProcessCountsBeats(t *testing.T) {
	r, p := activeMock(t)
	d := newDriver(t, r)

	quiet := utils.GenerateConstant(testFFTSize, 0.1)
	loud := utils.GenerateConstant(testFFTSize, 0.5)

	for i := range 20 {
		d.Process(pipeline.Block{Samples: quiet, SampleRate: testSampleRate, Timestamp: float64(i) * 0.02})
	}
	frame := d.Process(pipeline.Block{Samples: loud, SampleRate: testSampleRate, Timestamp: 0.4})

	if !frame.Beat.IsBeat {
		t.Fatal("energy spike not flagged as beat")
	}
	last, _ := p.Last()
	if !last.Beat.IsBeat {
		t.Error("dispatched frame lost the beat flag")
	}
	s := d.Stats()
	if s.Beats != 1 || s.Blocks != 21 || s.Delivered != 21 {
		t.Errorf("stats = %+v", s)
	}

	d.Reset()
	if s := d.Stats(); s.Blocks != 0 || s.Beats != 0 || s.BPM != analysis.DefaultBPM {
		t.Errorf("stats after Reset = %+v", s)
	}
}

func TestProcessZeroAllocs(t *testing.T) {
	r := plugin.NewRegistry()
	r.Register(plugin.Descriptor{ID: "nop"}, &nopPlugin{})
	r.Activate("nop")
	d := newDriver(t, r)
	block := pipeline.Block{
		Samples:    utils.GenerateComplexWave(testFFTSize, testSampleRate),
		SampleRate: testSampleRate,
		Channels:   1,
	}

	allocs := testing.AllocsPerRun(100, func() {
		block.Timestamp += 0.023
		d.Process(block)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Process, got %.1f", allocs)
	}
}

func BenchmarkProcess(b *testing.B) {
	r := plugin.NewRegistry()
	r.Register(plugin.Descriptor{ID: "nop"}, &nopPlugin{})
	r.Activate("nop")
	d := newDriver(b, r)
	block := pipeline.Block{
		Samples:    utils.GenerateComplexWave(testFFTSize, testSampleRate),
		SampleRate: testSampleRate,
		Channels:   1,
	}

	b.ReportAllocs()
	for b.Loop() {
		d.Process(block)
	}
}
