package waveform

import (
	"fmt"
	"io"
	"math"
	"strings"
)

var blocks = []rune("▁▂▃▄▅▆▇█")

// Peaks reduces samples to n column heights in [0, 1]. Each column is the
// absolute peak of its slice, scaled so the loudest column is full height.
func Peaks(samples []float32, n int) []float64 {
	if n <= 0 {
		return nil
	}
	peaks := make([]float64, n)
	if len(samples) == 0 {
		return peaks
	}
	var loudest float64
	for i := range peaks {
		lo := i * len(samples) / n
		hi := (i + 1) * len(samples) / n
		var peak float64
		for _, s := range samples[lo:hi] {
			peak = math.Max(peak, math.Abs(float64(s)))
		}
		peaks[i] = peak
		loudest = math.Max(loudest, peak)
	}
	if loudest == 0 {
		return peaks
	}
	for i := range peaks {
		peaks[i] = math.Min(1, peaks[i]/loudest)
	}
	return peaks
}

// Render writes peaks as one line of block characters.
func Render(w io.Writer, peaks []float64) error {
	if w == nil {
		return nil
	}
	var b strings.Builder
	for _, p := range peaks {
		p = min(max(p, 0), 1)
		b.WriteRune(blocks[int(math.Round(p*float64(len(blocks)-1)))])
	}
	b.WriteByte('\n')
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("render waveform: %w", err)
	}
	return nil
}
