// Package malgomic captures the default input device through miniaudio.
package malgomic

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/rubiojr/lunarvox/internal/capture"
)

// Microphone opens the default miniaudio capture device.
type Microphone struct {
	sampleRate int
	chunkSize  int
}

// New returns a miniaudio microphone.
func New(sampleRate, chunkSize int) *Microphone {
	if sampleRate <= 0 {
		sampleRate = capture.DefaultSampleRate
	}
	if chunkSize <= 0 {
		chunkSize = capture.DefaultChunkSize
	}
	return &Microphone{sampleRate: sampleRate, chunkSize: chunkSize}
}

// Open allocates a miniaudio context and a mono float32 capture device.
func (m *Microphone) Open(ctx context.Context) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open mic: %w: %w", capture.ErrDeviceUnavailable, err)
	}
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w: %w", capture.ErrDeviceUnavailable, err)
	}

	s := &Stream{
		mctx:       mctx,
		sampleRate: m.sampleRate,
		chunkSize:  m.chunkSize,
		chunks:     make(chan []float32, 32),
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = 1
	deviceCfg.SampleRate = uint32(m.sampleRate)

	device, err := malgo.InitDevice(mctx.Context, deviceCfg, malgo.DeviceCallbacks{Data: s.onData})
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, fmt.Errorf("initializing capture device: %w: %w", capture.ErrDeviceUnavailable, err)
	}
	s.device = device
	return s, nil
}

// Stream is an open miniaudio capture device.
type Stream struct {
	mctx       *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate int
	chunkSize  int
	chunks     chan []float32

	mu      sync.Mutex
	pending []float32

	closeOnce sync.Once
	closeErr  error
}

func (s *Stream) Start() error { return s.device.Start() }

func (s *Stream) Stop() error { return s.device.Stop() }

// Read waits up to two chunk periods for the next chunk.
func (s *Stream) Read() ([]float32, error) {
	wait := 2 * time.Duration(s.chunkSize) * time.Second / time.Duration(s.sampleRate)
	select {
	case chunk := <-s.chunks:
		return chunk, nil
	case <-time.After(wait):
		return nil, nil
	}
}

// onData is invoked by miniaudio on its own thread with little-endian
// float32 frames. Frames are regrouped into chunkSize chunks; chunks are
// dropped when the reader falls behind.
func (s *Stream) onData(_, input []byte, frameCount uint32) {
	samples := make([]float32, 0, frameCount)
	for i := uint32(0); i < frameCount; i++ {
		off := i * 4
		if off+4 > uint32(len(input)) {
			break
		}
		samples = append(samples, math.Float32frombits(binary.LittleEndian.Uint32(input[off:off+4])))
	}

	s.mu.Lock()
	s.pending = append(s.pending, samples...)
	for len(s.pending) >= s.chunkSize {
		chunk := make([]float32, s.chunkSize)
		copy(chunk, s.pending[:s.chunkSize])
		s.pending = s.pending[s.chunkSize:]
		select {
		case s.chunks <- chunk:
		default:
		}
	}
	s.mu.Unlock()
}

// Close uninitializes the device and frees the context.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.device.Uninit()
		if err := s.mctx.Uninit(); err != nil {
			s.closeErr = fmt.Errorf("uninitializing audio context: %w", err)
		}
		s.mctx.Free()
	})
	return s.closeErr
}

func (s *Stream) SampleRate() int { return s.sampleRate }
