package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	oggFlagContinued = 0x01
	oggFlagBOS       = 0x02
	oggFlagEOS       = 0x04

	// Audio frames are flushed into a page every framesPerPage frames.
	framesPerPage = 10

	oggSerial = 0x564F5831 // "VOX1"
	vendor    = "lunarvox"
)

// ErrNotOgg is returned when data does not start with an Ogg page.
var ErrNotOgg = errors.New("not an ogg stream")

// muxOggOpus wraps Opus frames in an Ogg Opus container playable by any
// media player. samplesPerFrame is the frame size at sampleRate.
func muxOggOpus(frames [][]byte, sampleRate, channels, samplesPerFrame int) []byte {
	var buf bytes.Buffer
	writeOggPage(&buf, 0, 0, oggFlagBOS, [][]byte{opusHead(sampleRate, channels)})
	writeOggPage(&buf, 0, 1, 0, [][]byte{opusTags()})

	// Opus granule positions always count 48kHz samples.
	granuleStep := uint64(samplesPerFrame) * 48000 / uint64(sampleRate)
	var granule uint64
	seq := uint32(2)
	for start := 0; start < len(frames); start += framesPerPage {
		end := min(start+framesPerPage, len(frames))
		granule += granuleStep * uint64(end-start)
		var flags byte
		if end == len(frames) {
			flags = oggFlagEOS
		}
		writeOggPage(&buf, granule, seq, flags, frames[start:end])
		seq++
	}
	return buf.Bytes()
}

func opusHead(sampleRate, channels int) []byte {
	head := make([]byte, 0, 19)
	head = append(head, "OpusHead"...)
	head = append(head, 1, byte(channels))
	head = binary.LittleEndian.AppendUint16(head, 0) // pre-skip
	head = binary.LittleEndian.AppendUint32(head, uint32(sampleRate))
	head = binary.LittleEndian.AppendUint16(head, 0) // output gain
	head = append(head, 0)                           // mapping family
	return head
}

func opusTags() []byte {
	tags := make([]byte, 0, 16+len(vendor))
	tags = append(tags, "OpusTags"...)
	tags = binary.LittleEndian.AppendUint32(tags, uint32(len(vendor)))
	tags = append(tags, vendor...)
	tags = binary.LittleEndian.AppendUint32(tags, 0)
	return tags
}

// writeOggPage appends one page holding whole packets.
func writeOggPage(buf *bytes.Buffer, granule uint64, seq uint32, flags byte, packets [][]byte) {
	var lacing []byte
	size := 0
	for _, p := range packets {
		n := len(p)
		for ; n >= 255; n -= 255 {
			lacing = append(lacing, 255)
		}
		lacing = append(lacing, byte(n))
		size += len(p)
	}

	page := make([]byte, 0, 27+len(lacing)+size)
	page = append(page, "OggS"...)
	page = append(page, 0, flags)
	page = binary.LittleEndian.AppendUint64(page, granule)
	page = binary.LittleEndian.AppendUint32(page, oggSerial)
	page = binary.LittleEndian.AppendUint32(page, seq)
	page = binary.LittleEndian.AppendUint32(page, 0) // crc, patched below
	page = append(page, byte(len(lacing)))
	page = append(page, lacing...)
	for _, p := range packets {
		page = append(page, p...)
	}
	binary.LittleEndian.PutUint32(page[22:26], oggCRC(page))
	buf.Write(page)
}

// demuxOgg returns the packets of a single logical Ogg stream, verifying
// page checksums.
func demuxOgg(data []byte) ([][]byte, error) {
	if len(data) < 4 || string(data[:4]) != "OggS" {
		return nil, ErrNotOgg
	}
	var packets [][]byte
	var partial []byte
	for off := 0; off < len(data); {
		if len(data)-off < 27 || string(data[off:off+4]) != "OggS" {
			return nil, fmt.Errorf("ogg page at %d: truncated header", off)
		}
		nseg := int(data[off+26])
		hdrLen := 27 + nseg
		if len(data)-off < hdrLen {
			return nil, fmt.Errorf("ogg page at %d: truncated lacing", off)
		}
		lacing := data[off+27 : off+hdrLen]
		bodyLen := 0
		for _, l := range lacing {
			bodyLen += int(l)
		}
		if len(data)-off < hdrLen+bodyLen {
			return nil, fmt.Errorf("ogg page at %d: truncated body", off)
		}

		page := make([]byte, hdrLen+bodyLen)
		copy(page, data[off:off+hdrLen+bodyLen])
		want := binary.LittleEndian.Uint32(page[22:26])
		binary.LittleEndian.PutUint32(page[22:26], 0)
		if got := oggCRC(page); got != want {
			return nil, fmt.Errorf("ogg page at %d: crc mismatch", off)
		}

		if data[off+5]&oggFlagContinued == 0 {
			partial = nil
		}
		body := data[off+hdrLen : off+hdrLen+bodyLen]
		pos := 0
		for _, l := range lacing {
			partial = append(partial, body[pos:pos+int(l)]...)
			pos += int(l)
			if l < 255 {
				packets = append(packets, partial)
				partial = nil
			}
		}
		off += hdrLen + bodyLen
	}
	return packets, nil
}

// Ogg checksums use polynomial 0x04C11DB7 without bit reflection, which
// hash/crc32 does not offer.
var oggCRCTable = func() (t [256]uint32) {
	for i := range t {
		r := uint32(i) << 24
		for range 8 {
			if r&0x80000000 != 0 {
				r = r<<1 ^ 0x04C11DB7
			} else {
				r <<= 1
			}
		}
		t[i] = r
	}
	return t
}()

func oggCRC(data []byte) uint32 {
	var crc uint32
	for _, b := range data {
		crc = crc<<8 ^ oggCRCTable[byte(crc>>24)^b]
	}
	return crc
}
