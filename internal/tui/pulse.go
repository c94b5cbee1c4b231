// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"vizpipe/internal/analysis"
	"vizpipe/internal/log"
	"vizpipe/internal/plugin"
)

const defaultFlashFrames = 4

// Pulse shows tempo, beat flashes, intensity and per-band levels.
type Pulse struct {
	scratch []float64 // audio path only

	// Set when a beat frame was skipped on contention, folded into the
	// next frame that gets through.
	missedBeat atomic.Bool

	mu        sync.Mutex
	bpm       float64
	intensity float64
	beats     uint64
	sinceBeat int
	flash     int
	bands     []float64
}

// NewPulse returns a pulse view over analysis.DefaultBands.
func NewPulse() *Pulse {
	return &Pulse{
		scratch:   make([]float64, len(analysis.DefaultBands)),
		bands:     make([]float64, len(analysis.DefaultBands)),
		bpm:       analysis.DefaultBPM,
		sinceBeat: defaultFlashFrames,
		flash:     defaultFlashFrames,
	}
}

func (p *Pulse) Render(frame analysis.Frame) {
	levels := frame.Bands(p.scratch, analysis.DefaultBands)

	if !p.mu.TryLock() {
		if frame.Beat.IsBeat {
			p.missedBeat.Store(true)
		}
		return
	}
	p.bpm = frame.Beat.BPM
	p.intensity = frame.Beat.Intensity
	if p.missedBeat.Swap(false) || frame.Beat.IsBeat {
		p.beats++
		p.sinceBeat = 0
	} else if p.sinceBeat < p.flash {
		p.sinceBeat++
	}
	copy(p.bands, levels)
	p.mu.Unlock()
}

// Configure accepts "flash", the number of frames a beat stays highlighted.
func (p *Pulse) Configure(key string, value any) {
	switch key {
	case "flash":
		n, ok := value.(int)
		if !ok || n < 1 {
			log.Warnf("Pulse: flash must be a positive int, got %v", value)
			return
		}
		p.mu.Lock()
		p.flash = n
		p.mu.Unlock()
	default:
		log.Warnf("Pulse: Unknown configuration key %q", key)
	}
}

// Beats returns the number of beats seen while active.
func (p *Pulse) Beats() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.beats
}

func (p *Pulse) View(width, height int) string {
	p.mu.Lock()
	bpm, intensity, flashing := p.bpm, p.intensity, p.sinceBeat < p.flash
	bands := append([]float64(nil), p.bands...)
	p.mu.Unlock()

	if width < 1 || height < 1 {
		return ""
	}

	lines := make([]string, 0, len(bands)+4)

	tempo := fmt.Sprintf("%6.1f BPM", bpm)
	if flashing {
		lines = append(lines, beatStyle.Render("● "+tempo+"  BEAT"))
	} else {
		lines = append(lines, dimStyle.Render("○ ")+highlightStyle.Render(tempo))
	}
	lines = append(lines, "")

	const label = 10
	barWidth := max(width-label-6, 1)
	lines = append(lines, fmt.Sprintf("%-*s%s %.2f", label, "intensity", meter(intensity, barWidth), intensity))
	lines = append(lines, "")
	for i, level := range bands {
		lines = append(lines, fmt.Sprintf("%-*s%s", label, analysis.DefaultBands[i].Name, barLow.Render(meter(level, barWidth))))
	}

	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

var (
	_ plugin.Plugin = (*Pulse)(nil)
	_ plugin.Viewer = (*Pulse)(nil)
)
