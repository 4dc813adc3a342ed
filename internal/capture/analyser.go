package capture

import "sync"

// DefaultAnalyserSize is the number of recent samples an Analyser keeps.
const DefaultAnalyserSize = 1024

// Analyser keeps the most recent samples written to it so a meter can read
// the current waveform without touching the recorder's buffers.
type Analyser struct {
	mu     sync.Mutex
	ring   []float32
	pos    int
	closed bool
}

// NewAnalyser returns an analyser holding size samples.
func NewAnalyser(size int) *Analyser {
	if size <= 0 {
		size = DefaultAnalyserSize
	}
	return &Analyser{ring: make([]float32, size)}
}

// Size returns the ring capacity.
func (a *Analyser) Size() int { return len(a.ring) }

// Write appends samples, overwriting the oldest ones.
func (a *Analyser) Write(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	for _, s := range samples {
		a.ring[a.pos] = s
		a.pos++
		if a.pos == len(a.ring) {
			a.pos = 0
		}
	}
}

// TimeDomain copies the most recent samples into dst, oldest first, and
// returns how many were copied. Unwritten positions read as silence.
func (a *Analyser) TimeDomain(dst []float32) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(dst)
	if n > len(a.ring) {
		n = len(a.ring)
	}
	start := a.pos - n
	if start < 0 {
		start += len(a.ring)
	}
	for i := 0; i < n; i++ {
		dst[i] = a.ring[(start+i)%len(a.ring)]
	}
	return n
}

// Reset fills the ring with silence.
func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	a.pos = 0
}

// Close detaches the analyser; later writes are dropped.
func (a *Analyser) Close() {
	a.mu.Lock()
	a.closed = true
	clear(a.ring)
	a.mu.Unlock()
}

// Closed reports whether Close was called.
func (a *Analyser) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}
