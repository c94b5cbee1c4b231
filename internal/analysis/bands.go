// SPDX-License-Identifier: MIT
package analysis

// Band is a named frequency range used to summarize a spectrum.
type Band struct {
	Name   string  `json:"name"`
	LowHz  float64 `json:"lowHz"`
	HighHz float64 `json:"highHz"`
}

// DefaultBands covers the audible range in six bands. The last band extends
// to the Nyquist frequency of whatever sample rate is in use.
var DefaultBands = []Band{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000, HighHz: 1e9},
}

// BandLevels averages the normalized spectrum over each band and writes one
// level per band into dst, which must have len(bands) capacity to stay
// allocation free. fftSize is the transform size that produced spectrum.
// Bands that contain no bins report 0.
func BandLevels(dst []float64, spectrum []float64, sampleRate float64, fftSize int, bands []Band) []float64 {
	if cap(dst) < len(bands) {
		dst = make([]float64, len(bands))
	}
	dst = dst[:len(bands)]
	for i := range dst {
		dst[i] = 0
	}
	if len(spectrum) == 0 || sampleRate <= 0 || fftSize <= 0 {
		return dst
	}

	resolution := sampleRate / float64(fftSize)
	for bi, band := range bands {
		lo := int(band.LowHz/resolution + 0.5)
		hi := int(band.HighHz / resolution)
		if lo < 0 {
			lo = 0
		}
		if hi >= len(spectrum) {
			hi = len(spectrum) - 1
		}
		if hi < lo {
			continue
		}

		var sum float64
		for _, v := range spectrum[lo : hi+1] {
			sum += v
		}
		dst[bi] = sum / float64(hi-lo+1)
	}
	return dst
}
