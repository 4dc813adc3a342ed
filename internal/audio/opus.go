package audio

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/hraban/opus"
)

const (
	// SampleRate is the default capture and encoding rate.
	SampleRate = 16000
	// DefaultBitrate suits speech.
	DefaultBitrate = 32000

	channels      = 1
	maxFrameBytes = 1024
)

// frameSize returns the 20ms frame length at rate.
func frameSize(rate int) int { return rate / 50 }

func validOpusRate(rate int) bool {
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	}
	return false
}

// OpusEncoder encodes mono PCM to Opus frames incrementally.
type OpusEncoder struct {
	enc        *opus.Encoder
	sampleRate int
	frameLen   int
	buf        []float32
	frames     [][]byte
	frame      []byte
	mu         sync.Mutex
}

// NewOpusEncoder creates a VoIP-tuned encoder for mono audio at sampleRate.
func NewOpusEncoder(sampleRate, bitrate int) (*OpusEncoder, error) {
	if !validOpusRate(sampleRate) {
		return nil, fmt.Errorf("create encoder: unsupported sample rate %d", sampleRate)
	}
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, fmt.Errorf("set bitrate: %w", err)
	}
	return &OpusEncoder{
		enc:        enc,
		sampleRate: sampleRate,
		frameLen:   frameSize(sampleRate),
		frame:      make([]byte, maxFrameBytes),
	}, nil
}

// Write adds PCM samples and encodes every complete frame.
func (e *OpusEncoder) Write(samples []float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.buf = append(e.buf, samples...)
	for len(e.buf) >= e.frameLen {
		if err := e.encode(e.buf[:e.frameLen]); err != nil {
			return err
		}
		e.buf = e.buf[e.frameLen:]
	}
	return nil
}

// Flush encodes the remaining samples padded with silence.
func (e *OpusEncoder) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.buf) == 0 {
		return nil
	}
	pcm := make([]float32, e.frameLen)
	copy(pcm, e.buf)
	e.buf = nil
	return e.encode(pcm)
}

func (e *OpusEncoder) encode(pcm []float32) error {
	n, err := e.enc.EncodeFloat32(pcm, e.frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	e.frames = append(e.frames, bytes.Clone(e.frame[:n]))
	return nil
}

// Frames returns how many frames were encoded.
func (e *OpusEncoder) Frames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.frames)
}

// Ogg returns the encoded frames as an Ogg Opus file.
func (e *OpusEncoder) Ogg() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return muxOggOpus(e.frames, e.sampleRate, channels, e.frameLen)
}

// DecodeOggOpus decodes an Ogg Opus file written by OpusEncoder back to PCM.
// The stream's input rate from OpusHead is used as the decode rate.
func DecodeOggOpus(data []byte) ([]float32, int, error) {
	packets, err := demuxOgg(data)
	if err != nil {
		return nil, 0, err
	}
	if len(packets) < 2 || !bytes.HasPrefix(packets[0], []byte("OpusHead")) || len(packets[0]) < 19 {
		return nil, 0, fmt.Errorf("missing OpusHead")
	}
	head := packets[0]
	rate := int(uint32(head[12]) | uint32(head[13])<<8 | uint32(head[14])<<16 | uint32(head[15])<<24)
	if !validOpusRate(rate) {
		rate = 48000
	}

	dec, err := opus.NewDecoder(rate, channels)
	if err != nil {
		return nil, 0, fmt.Errorf("create decoder: %w", err)
	}
	// 120ms is the largest Opus frame.
	pcm := make([]float32, rate*120/1000)
	var samples []float32
	for _, p := range packets[2:] {
		n, err := dec.DecodeFloat32(p, pcm)
		if err != nil {
			return nil, 0, fmt.Errorf("decode frame: %w", err)
		}
		samples = append(samples, pcm[:n]...)
	}
	return samples, rate, nil
}
