// Package synthetic provides an in-memory microphone that produces a sine
// tone. It is the "synthetic" capture backend for machines without an input
// device, and drives the recording tests.
package synthetic

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rubiojr/lunarvox/internal/capture"
)

// Microphone opens synthetic streams and counts device acquisitions.
type Microphone struct {
	SampleRate int
	ChunkSize  int
	// Amplitude of the generated sine tone, 0..1.
	Amplitude float32
	// Frequency of the tone in Hz.
	Frequency float64
	// Period is how long Read takes to deliver one chunk. Zero means the
	// real chunk duration.
	Period time.Duration

	mu      sync.Mutex
	openErr error
	readErr error
	failAt  int
	gate    chan struct{}
	opens   int
	closes  int
	streams []*Stream
}

// New returns a microphone producing a 440Hz tone at half amplitude,
// delivering chunks every millisecond.
func New() *Microphone {
	return &Microphone{
		SampleRate: capture.DefaultSampleRate,
		ChunkSize:  160,
		Amplitude:  0.5,
		Frequency:  440,
		Period:     time.Millisecond,
	}
}

// Fail makes subsequent Open calls return err.
func (m *Microphone) Fail(err error) {
	m.mu.Lock()
	m.openErr = err
	m.mu.Unlock()
}

// FailReads makes streams opened afterwards return err once they delivered
// after chunks, like a device unplugged mid-take.
func (m *Microphone) FailReads(after int, err error) {
	m.mu.Lock()
	m.failAt = after
	m.readErr = err
	m.mu.Unlock()
}

// Hold makes subsequent Open calls block until the returned func is called,
// simulating a pending permission prompt.
func (m *Microphone) Hold() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.gate == gate {
				m.gate = nil
			}
			m.mu.Unlock()
			close(gate)
		})
	}
}

// Open implements capture.Microphone.
func (m *Microphone) Open(ctx context.Context) (capture.Stream, error) {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("open mic: %w: %w", capture.ErrDeviceUnavailable, ctx.Err())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, fmt.Errorf("open mic: %w: %w", capture.ErrDeviceUnavailable, m.openErr)
	}
	period := m.Period
	if period <= 0 {
		period = time.Duration(m.ChunkSize) * time.Second / time.Duration(m.SampleRate)
	}
	s := &Stream{mic: m, period: period, failAt: m.failAt, readErr: m.readErr}
	m.opens++
	m.streams = append(m.streams, s)
	return s, nil
}

// Opens returns how many streams were opened.
func (m *Microphone) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// Closes returns how many streams were closed.
func (m *Microphone) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// Held returns the number of streams opened and not yet closed.
func (m *Microphone) Held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens - m.closes
}

// Streams returns every stream opened so far.
func (m *Microphone) Streams() []*Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Stream(nil), m.streams...)
}

// Stream is a synthetic capture stream.
type Stream struct {
	mic     *Microphone
	period  time.Duration
	failAt  int
	readErr error

	mu      sync.Mutex
	running bool
	closed  bool
	phase   float64
	reads   int
	starts  int
	stops   int
	closes  int
}

// Start implements capture.Stream.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("start closed stream")
	}
	s.running = true
	s.starts++
	return nil
}

// Stop implements capture.Stream.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.stops++
	return nil
}

// Read implements capture.Stream.
func (s *Stream) Read() ([]float32, error) {
	time.Sleep(s.period)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("read closed stream")
	}
	if !s.running {
		return nil, nil
	}
	if s.readErr != nil && s.reads >= s.failAt {
		return nil, s.readErr
	}
	s.reads++
	chunk := make([]float32, s.mic.ChunkSize)
	step := 2 * math.Pi * s.mic.Frequency / float64(s.mic.SampleRate)
	for i := range chunk {
		chunk[i] = s.mic.Amplitude * float32(math.Sin(s.phase))
		s.phase += step
	}
	return chunk, nil
}

// Close implements capture.Stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	s.closes++
	first := !s.closed
	s.closed = true
	s.running = false
	s.mu.Unlock()
	if first {
		s.mic.mu.Lock()
		s.mic.closes++
		s.mic.mu.Unlock()
	}
	return nil
}

// SampleRate implements capture.Stream.
func (s *Stream) SampleRate() int { return s.mic.SampleRate }

// Counts returns how often Start, Stop and Close were called.
func (s *Stream) Counts() (starts, stops, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops, s.closes
}

// Running reports whether the stream is started.
func (s *Stream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
