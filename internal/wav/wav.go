// Package wav reads and writes PCM WAV files.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const headerSize = 44

// ErrNotWAV is returned when data lacks a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a WAV file")

// Decode parses a PCM WAV file and returns mono float32 samples and the
// sample rate. Multi-channel audio is downmixed by averaging.
func Decode(data []byte) ([]float32, int32, error) {
	if len(data) < headerSize {
		return nil, 0, fmt.Errorf("file too small for WAV header")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, ErrNotWAV
	}

	var (
		format, numChannels, bitsPerSample uint16
		sampleRate                         uint32
		haveFmt                            bool
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8

		switch {
		case id == "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, 0, fmt.Errorf("fmt chunk too small")
			}
			format = binary.LittleEndian.Uint16(data[body:])
			numChannels = binary.LittleEndian.Uint16(data[body+2:])
			sampleRate = binary.LittleEndian.Uint32(data[body+4:])
			bitsPerSample = binary.LittleEndian.Uint16(data[body+14:])
			haveFmt = true
		case id == "data" && haveFmt:
			if format != 1 {
				return nil, 0, fmt.Errorf("only PCM WAV supported (got format %d)", format)
			}
			if numChannels == 0 {
				return nil, 0, fmt.Errorf("invalid channel count 0")
			}
			end := min(body+size, len(data))
			samples, err := toMono(data[body:end], bitsPerSample, numChannels)
			if err != nil {
				return nil, 0, err
			}
			return samples, int32(sampleRate), nil
		}
		// Chunks are word aligned.
		off = body + size + size%2
	}
	return nil, 0, fmt.Errorf("missing fmt or data chunk")
}

// Encode creates a 16-bit mono PCM WAV from float32 samples, clamping
// values to [-1, 1].
func Encode(samples []float32, sampleRate int) []byte {
	dataSize := len(samples) * 2
	buf := make([]byte, 0, headerSize+dataSize)

	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataSize))
	buf = append(buf, "WAVE"...)

	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, 1) // mono
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate*2))
	buf = binary.LittleEndian.AppendUint16(buf, 2)
	buf = binary.LittleEndian.AppendUint16(buf, 16)

	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataSize))
	for _, s := range samples {
		s = max(-1, min(1, s))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(int16(s*32767)))
	}
	return buf
}

func toMono(data []byte, bitsPerSample, numChannels uint16) ([]float32, error) {
	width := int(bitsPerSample / 8)
	var read func(b []byte) float32
	switch bitsPerSample {
	case 8:
		read = func(b []byte) float32 { return (float32(b[0]) - 128) / 128 }
	case 16:
		read = func(b []byte) float32 { return float32(int16(binary.LittleEndian.Uint16(b))) / 32768 }
	case 24:
		read = func(b []byte) float32 {
			v := int32(uint32(b[0])<<8|uint32(b[1])<<16|uint32(b[2])<<24) >> 8
			return float32(v) / 8388608
		}
	case 32:
		read = func(b []byte) float32 { return float32(int32(binary.LittleEndian.Uint32(b))) / 2147483648 }
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", bitsPerSample)
	}

	frame := width * int(numChannels)
	frames := len(data) / frame
	out := make([]float32, frames)
	for i := range out {
		var sum float32
		for c := 0; c < int(numChannels); c++ {
			off := i*frame + c*width
			sum += read(data[off : off+width])
		}
		out[i] = sum / float32(numChannels)
	}
	return out, nil
}
