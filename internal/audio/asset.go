// Package audio turns captured PCM into playable voice-message payloads and
// back: Ogg Opus for sending, WAV for lossless previews.
package audio

import (
	"fmt"
	"strings"
	"time"

	"github.com/rubiojr/lunarvox/internal/wav"
)

// Format selects the container of an encoded payload.
type Format string

const (
	FormatOgg Format = "ogg"
	FormatWAV Format = "wav"
)

const (
	MIMEOggOpus = "audio/ogg; codecs=opus"
	MIMEWAV     = "audio/wav"
)

// ParseFormat accepts "ogg", "opus" and "wav".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ogg", "opus", "":
		return FormatOgg, nil
	case "wav":
		return FormatWAV, nil
	}
	return "", fmt.Errorf("unknown audio format %q", s)
}

// MIMEType returns the content type of payloads in f.
func (f Format) MIMEType() string {
	if f == FormatWAV {
		return MIMEWAV
	}
	return MIMEOggOpus
}

// Ext returns the file extension for payloads in f.
func (f Format) Ext() string {
	if f == FormatWAV {
		return ".wav"
	}
	return ".ogg"
}

// Payload is an encoded recording.
type Payload struct {
	Data     []byte
	MIMEType string
	// Length is the duration of the encoded audio.
	Length time.Duration
}

// Encoder builds payloads from PCM samples.
type Encoder struct {
	Format    Format
	Bitrate   int
	Normalize bool
}

// Encode encodes mono samples captured at sampleRate.
// Samples are normalized in place when e.Normalize is set.
func (e Encoder) Encode(samples []float32, sampleRate int) (Payload, error) {
	if e.Normalize {
		Normalize(samples)
	}
	length := SamplesDuration(len(samples), sampleRate)

	switch e.Format {
	case FormatWAV:
		return Payload{Data: wav.Encode(samples, sampleRate), MIMEType: MIMEWAV, Length: length}, nil
	case FormatOgg, "":
		bitrate := e.Bitrate
		if bitrate <= 0 {
			bitrate = DefaultBitrate
		}
		enc, err := NewOpusEncoder(sampleRate, bitrate)
		if err != nil {
			return Payload{}, err
		}
		if err := enc.Write(samples); err != nil {
			return Payload{}, err
		}
		if err := enc.Flush(); err != nil {
			return Payload{}, err
		}
		return Payload{Data: enc.Ogg(), MIMEType: MIMEOggOpus, Length: length}, nil
	}
	return Payload{}, fmt.Errorf("encode: unknown format %q", e.Format)
}

// Decode returns PCM samples and the sample rate of a payload.
func Decode(data []byte, mimeType string) ([]float32, int, error) {
	switch {
	case strings.HasPrefix(mimeType, "audio/wav"), strings.HasPrefix(mimeType, "audio/x-wav"):
		samples, rate, err := wav.Decode(data)
		return samples, int(rate), err
	case strings.HasPrefix(mimeType, "audio/ogg"), strings.HasPrefix(mimeType, "audio/opus"):
		return DecodeOggOpus(data)
	}
	// Sniff when the type is missing or generic.
	if len(data) >= 4 && string(data[:4]) == "RIFF" {
		samples, rate, err := wav.Decode(data)
		return samples, int(rate), err
	}
	if len(data) >= 4 && string(data[:4]) == "OggS" {
		return DecodeOggOpus(data)
	}
	return nil, 0, fmt.Errorf("decode: unsupported content type %q", mimeType)
}

// SamplesDuration converts a sample count to a duration.
func SamplesDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}
