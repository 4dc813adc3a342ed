// Package capture defines the microphone boundary of a voice recording: a
// device that can be opened into a PCM stream, a media recorder that buffers
// chunks with pause/resume, and an analyser exposing recent time-domain
// samples for level metering.
package capture

import (
	"context"
	"errors"
)

const (
	// DefaultSampleRate matches the rate voice assets are encoded at.
	DefaultSampleRate = 16000
	// DefaultChunkSize is 64ms at 16kHz.
	DefaultChunkSize = 1024
)

// ErrDeviceUnavailable wraps every failure to obtain the microphone:
// permission denied, no input device, or an OS-level capture error.
var ErrDeviceUnavailable = errors.New("microphone unavailable")

// Microphone hands out exclusive capture streams.
type Microphone interface {
	// Open acquires the input device. The returned stream holds the device
	// until Close is called.
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open mono float32 input stream.
type Stream interface {
	Start() error
	Stop() error
	// Read blocks for at most about one chunk period and returns the next
	// chunk of samples. An empty chunk means nothing was captured yet.
	// The returned slice is owned by the caller.
	Read() ([]float32, error)
	// Close releases the device.
	Close() error
	SampleRate() int
}
