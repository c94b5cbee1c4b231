// SPDX-License-Identifier: MIT
package tui

import (
	"math"
	"strings"
	"sync"

	"vizpipe/internal/analysis"
	"vizpipe/internal/log"
	"vizpipe/internal/plugin"
)

const (
	defaultColumns = 32
	minColumns     = 4
	maxColumns     = 256
	defaultDecay   = 0.85
)

// Bars draws the spectrum as a bar graph with logarithmically spaced
// columns, so low frequencies get as much room as high ones.
//
// Render reduces the spectrum into a private scratch buffer, then publishes
// it under TryLock. If the UI is drawing at that moment the frame is skipped.
type Bars struct {
	scratch []float64 // audio path only

	mu      sync.Mutex
	levels  []float64
	columns int
	decay   float64
	frames  uint64
}

// NewBars returns a bar graph with the default column count.
func NewBars() *Bars {
	return &Bars{
		scratch: make([]float64, maxColumns),
		levels:  make([]float64, maxColumns),
		columns: defaultColumns,
		decay:   defaultDecay,
	}
}

func (b *Bars) Render(frame analysis.Frame) {
	if !b.mu.TryLock() {
		return
	}
	columns, decay := b.columns, b.decay
	b.mu.Unlock()

	reduceLog(b.scratch[:columns], frame.Spectrum)

	if !b.mu.TryLock() {
		return
	}
	// Configure may have changed the layout in between.
	if b.columns == columns {
		for i, v := range b.scratch[:columns] {
			// Rise immediately, fall smoothly.
			b.levels[i] = math.Max(v, b.levels[i]*decay)
		}
	}
	b.frames++
	b.mu.Unlock()
}

// Configure accepts "columns" (int) and "decay" (float64 in [0, 1)).
func (b *Bars) Configure(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch key {
	case "columns":
		n, ok := value.(int)
		if !ok || n < minColumns || n > maxColumns {
			log.Warnf("Bars: columns must be an int in %d-%d, got %v", minColumns, maxColumns, value)
			return
		}
		b.columns = n
		clear(b.levels)
	case "decay":
		d, ok := value.(float64)
		if !ok || d < 0 || d >= 1 {
			log.Warnf("Bars: decay must be a float64 in [0, 1), got %v", value)
			return
		}
		b.decay = d
	default:
		log.Warnf("Bars: Unknown configuration key %q", key)
	}
}

// Levels returns a copy of the current column levels.
func (b *Bars) Levels() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]float64(nil), b.levels[:b.columns]...)
}

// View draws the bars into a width x height block of text. Columns that do
// not fit the width are dropped from the right.
func (b *Bars) View(width, height int) string {
	if width < 1 || height < 1 {
		return ""
	}
	levels := b.Levels()
	if len(levels) > width {
		levels = levels[:width]
	}

	rows := make([]string, height)
	var sb strings.Builder
	for r := range height {
		// Row 0 is the top of the graph.
		floor := float64(height-1-r) / float64(height)
		style := barLow
		switch {
		case floor >= 0.75:
			style = barHigh
		case floor >= 0.4:
			style = barMid
		}

		sb.Reset()
		for _, level := range levels {
			fill := (level - floor) * float64(height) * 8
			idx := int(math.Max(0, math.Min(8, fill)))
			sb.WriteString(eighths[idx])
		}
		rows[r] = style.Render(sb.String())
	}
	return strings.Join(rows, "\n")
}

// reduceLog averages spectrum into len(dst) logarithmically spaced columns.
// Bin 0 (DC) is skipped.
func reduceLog(dst, spectrum []float64) {
	bins := len(spectrum)
	if bins < 2 {
		clear(dst)
		return
	}

	n := float64(len(dst))
	span := float64(bins)
	for c := range dst {
		lo := int(math.Pow(span, float64(c)/n))
		hi := int(math.Pow(span, float64(c+1)/n))
		lo = max(lo, 1)
		hi = min(max(hi, lo+1), bins)
		if lo >= bins {
			dst[c] = 0
			continue
		}

		var sum float64
		for _, v := range spectrum[lo:hi] {
			sum += v
		}
		dst[c] = sum / float64(hi-lo)
	}
}

var (
	_ plugin.Plugin = (*Bars)(nil)
	_ plugin.Viewer = (*Bars)(nil)
)
