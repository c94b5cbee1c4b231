// SPDX-License-Identifier: MIT
package audio

import "math"

// The noise gate compares the peak amplitude of the raw interleaved input
// against a threshold. A closed gate makes the block analyze as silence;
// the block is still dispatched so beat tracking and plugins keep running.
// Both fields are atomics because the terminal UI adjusts them while the
// callback runs.

func (e *Engine) EnableGate() {
	e.gateEnabled.Store(true)
}

func (e *Engine) DisableGate() {
	e.gateEnabled.Store(false)
}

// GateEnabled reports whether the noise gate is active.
func (e *Engine) GateEnabled() bool {
	return e.gateEnabled.Load()
}

// SetGateThreshold adjusts the noise gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (e *Engine) SetGateThreshold(threshold float64) {
	if threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}

	e.gateThreshold.Store(int32(threshold * float64(math.MaxInt32)))
}

// GetGateThreshold returns the current noise gate threshold as a float64.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed.
func (e *Engine) GetGateThreshold() float64 {
	return float64(e.gateThreshold.Load()) / float64(math.MaxInt32)
}

// gateOpen reports whether the block should be analyzed as captured.
func (e *Engine) gateOpen(buffer []int32) bool {
	if !e.gateEnabled.Load() {
		return true
	}
	return peakAmplitude(buffer) > e.gateThreshold.Load()
}

// peakAmplitude returns max(|s|) without branching in the loop body.
// math.MinInt32 has no positive counterpart and is treated as 0.
func peakAmplitude(buffer []int32) int32 {
	var maxAmplitude int32
	for _, sample := range buffer {
		mask := sample >> 31
		amplitude := (sample ^ mask) - mask
		amplitude &^= amplitude >> 31 // MinInt32 stays negative, clear it

		diff := amplitude - maxAmplitude
		maxAmplitude += diff &^ (diff >> 31)
	}
	return maxAmplitude
}
