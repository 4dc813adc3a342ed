// Package portaudiomic captures the default input device through PortAudio.
package portaudiomic

// #cgo pkg-config: portaudio-2.0
import "C"

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/rubiojr/lunarvox/internal/capture"
)

// Microphone opens the default PortAudio input device.
type Microphone struct {
	sampleRate int
	chunkSize  int
}

// New returns a PortAudio microphone.
func New(sampleRate, chunkSize int) *Microphone {
	if sampleRate <= 0 {
		sampleRate = capture.DefaultSampleRate
	}
	if chunkSize <= 0 {
		chunkSize = capture.DefaultChunkSize
	}
	return &Microphone{sampleRate: sampleRate, chunkSize: chunkSize}
}

// Open initializes PortAudio and opens the default input stream.
// The stream terminates PortAudio when closed.
func (m *Microphone) Open(ctx context.Context) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open mic: %w: %w", capture.ErrDeviceUnavailable, err)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w: %w", capture.ErrDeviceUnavailable, err)
	}

	buf := make([]float32, m.chunkSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), m.chunkSize, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open mic: %w: %w", capture.ErrDeviceUnavailable, err)
	}
	return &Stream{stream: stream, buf: buf, sampleRate: m.sampleRate}, nil
}

// Stream is an open PortAudio input stream.
type Stream struct {
	stream     *portaudio.Stream
	buf        []float32
	sampleRate int

	closeOnce sync.Once
	closeErr  error
}

func (s *Stream) Start() error { return s.stream.Start() }

func (s *Stream) Stop() error { return s.stream.Stop() }

// Read blocks until one chunk has been captured.
func (s *Stream) Read() ([]float32, error) {
	if err := s.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		return nil, err
	}
	chunk := make([]float32, len(s.buf))
	copy(chunk, s.buf)
	return chunk, nil
}

// Close releases the stream and terminates PortAudio.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if err := s.stream.Close(); err != nil {
			s.closeErr = fmt.Errorf("close mic: %w", err)
		}
		if err := portaudio.Terminate(); err != nil && s.closeErr == nil {
			s.closeErr = fmt.Errorf("portaudio terminate: %w", err)
		}
	})
	return s.closeErr
}

func (s *Stream) SampleRate() int { return s.sampleRate }
