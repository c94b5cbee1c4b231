// SPDX-License-Identifier: MIT
package analysis_test

import (
	"math"
	"testing"

	"vizpipe/internal/analysis"
	"vizpipe/pkg/utils"
)

const testBlockSize = 1024

// energyBlock returns a block whose mean square energy is e.
func energyBlock(e float64) []float64 {
	return utils.GenerateConstant(testBlockSize, math.Sqrt(e))
}

func TestBeatTrackerDefaults(t *testing.T) {
	bt := analysis.NewBeatTracker(analysis.BeatConfig{})
	cfg := bt.Config()

	if cfg != analysis.DefaultBeatConfig() {
		t.Errorf("zero config resolved to %+v, want %+v", cfg, analysis.DefaultBeatConfig())
	}
	if bt.BPM() != analysis.DefaultBPM {
		t.Errorf("initial BPM = %f, want %f", bt.BPM(), analysis.DefaultBPM)
	}

	inverted := analysis.NewBeatTracker(analysis.BeatConfig{MinBPM: 200, MaxBPM: 60})
	if c := inverted.Config(); c.MinBPM != analysis.DefaultMinBPM || c.MaxBPM != analysis.DefaultMaxBPM {
		t.Errorf("inverted BPM range not replaced: %+v", c)
	}
}

func TestBeatTrackerSilence(t *testing.T) {
	tests := []struct {
		name  string
		block []float64
	}{
		{"Empty", nil},
		{"Zeros", make([]float64, testBlockSize)},
		{"NaN", []float64{math.NaN(), math.NaN()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bt := analysis.NewBeatTracker(analysis.DefaultBeatConfig())
			for i := range 100 {
				res := bt.Process(tt.block, float64(i)*0.023)
				if res.IsBeat {
					t.Fatalf("block %d: silence flagged as beat", i)
				}
				if res.Intensity != 0 {
					t.Fatalf("block %d: intensity = %f, want 0", i, res.Intensity)
				}
				if res.BPM != analysis.DefaultBPM {
					t.Fatalf("block %d: BPM = %f, want default %f", i, res.BPM, analysis.DefaultBPM)
				}
			}
		})
	}
}

func TestBeatTrackerConvergesTo120BPM(t *testing.T) {
	const (
		sampleRate = 44100.0
		baseline   = 0.01
		beatPeriod = 0.5 // 120 BPM
	)
	blockDuration := testBlockSize / sampleRate

	bt := analysis.NewBeatTracker(analysis.DefaultBeatConfig())
	quiet := energyBlock(baseline)
	spike := energyBlock(2 * baseline)

	var beats int
	var last analysis.BeatResult
	for k := 1; k < 1000; k++ {
		ts := float64(k) * blockDuration
		// Spike on the first block of every half-second period.
		isSpike := int(ts/beatPeriod) != int((ts-blockDuration)/beatPeriod)
		block := quiet
		if isSpike {
			block = spike
		}

		last = bt.Process(block, ts)
		if last.IsBeat {
			beats++
			if !isSpike {
				t.Fatalf("block %d: baseline block flagged as beat", k)
			}
		}
	}

	// Needs at least BPM-history + 1 beats for the history to fill.
	if beats < analysis.DefaultBPMHistorySize+1 {
		t.Fatalf("detected %d beats, want at least %d", beats, analysis.DefaultBPMHistorySize+1)
	}
	if math.Abs(last.BPM-120) > 5 {
		t.Errorf("BPM = %.2f, want 120±5", last.BPM)
	}
}

func TestBeatTrackerIgnoresImplausibleTempo(t *testing.T) {
	bt := analysis.NewBeatTracker(analysis.DefaultBeatConfig())
	quiet := energyBlock(0.01)
	spike := energyBlock(0.02)

	var beats int
	// A spike every 4 blocks of 25ms is 600 BPM, outside the plausible range.
	for k := range 200 {
		block := quiet
		if k%4 == 3 {
			block = spike
		}
		if bt.Process(block, float64(k)*0.025).IsBeat {
			beats++
		}
	}

	if beats == 0 {
		t.Fatal("expected spikes to be detected as beats")
	}
	if bt.BPM() != analysis.DefaultBPM {
		t.Errorf("BPM = %f, want default %f for out-of-range tempo", bt.BPM(), analysis.DefaultBPM)
	}
}

func TestBeatTrackerHistoryWindow(t *testing.T) {
	bt := analysis.NewBeatTracker(analysis.BeatConfig{HistorySize: 3})

	for i := range 3 {
		bt.Process(energyBlock(1), float64(i))
	}

	res := bt.Process(energyBlock(4), 3)
	if !res.IsBeat {
		t.Fatal("spike should be a beat: 4 > 1.3 * mean(1, 1, 4)")
	}

	// Spike still in history, mean 2: intensity 1 / (2 * 2).
	bt.Process(energyBlock(1), 4)
	if res := bt.Process(energyBlock(1), 5); math.Abs(res.Intensity-0.25) > 1e-9 {
		t.Errorf("intensity with spike in history = %f, want 0.25", res.Intensity)
	}
	// Spike evicted, history (1, 1, 1): intensity 1 / 2.
	if res := bt.Process(energyBlock(1), 6); math.Abs(res.Intensity-0.5) > 1e-9 {
		t.Errorf("intensity after eviction = %f, want 0.5", res.Intensity)
	}
}

func TestBeatTrackerIntensityClamped(t *testing.T) {
	bt := analysis.NewBeatTracker(analysis.DefaultBeatConfig())
	for i := range 20 {
		bt.Process(make([]float64, testBlockSize), float64(i))
	}

	res := bt.Process(energyBlock(0.5), 20)
	if !res.IsBeat {
		t.Error("onset after silence should be a beat")
	}
	if res.Intensity != 1 {
		t.Errorf("intensity = %f, want clamp to 1", res.Intensity)
	}
}

func TestBeatTrackerFirstBeatKeepsDefaultBPM(t *testing.T) {
	bt := analysis.NewBeatTracker(analysis.DefaultBeatConfig())
	bt.Process(energyBlock(0.01), 0)
	res := bt.Process(energyBlock(0.1), 0.1)

	if !res.IsBeat {
		t.Fatal("expected a beat")
	}
	if res.BPM != analysis.DefaultBPM {
		t.Errorf("BPM after first beat = %f, want %f", res.BPM, analysis.DefaultBPM)
	}
}

func TestBeatTrackerReset(t *testing.T) {
	bt := analysis.NewBeatTracker(analysis.DefaultBeatConfig())
	quiet, spike := energyBlock(0.01), energyBlock(0.02)
	for k := range 200 {
		block := quiet
		if k%20 == 10 {
			block = spike
		}
		bt.Process(block, float64(k)*0.03) // 0.6s between beats, 100 BPM
	}
	if math.Abs(bt.BPM()-100) > 1 {
		t.Fatalf("BPM before reset = %f, want ~100", bt.BPM())
	}

	bt.Reset()
	if bt.BPM() != analysis.DefaultBPM {
		t.Errorf("BPM after reset = %f, want %f", bt.BPM(), analysis.DefaultBPM)
	}
	if res := bt.Process(make([]float64, testBlockSize), 0); res.IsBeat || res.Intensity != 0 {
		t.Errorf("silence after reset = %+v, want no beat and zero intensity", res)
	}
}

func TestBeatTrackerHotPath(t *testing.T) {
	bt := analysis.NewBeatTracker(analysis.DefaultBeatConfig())
	block := utils.GenerateComplexWave(testBlockSize, 44100)

	var ts float64
	allocs := testing.AllocsPerRun(100, func() {
		ts += 0.023
		bt.Process(block, ts)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in BeatTracker.Process, got %.1f", allocs)
	}
}

func BenchmarkBeatTrackerProcess(b *testing.B) {
	bt := analysis.NewBeatTracker(analysis.DefaultBeatConfig())
	block := utils.GenerateComplexWave(testBlockSize, 44100)

	var ts float64
	b.ReportAllocs()
	for b.Loop() {
		ts += 0.023
		bt.Process(block, ts)
	}
}
