package wav

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 1, -1}
	data := Encode(in, 16000)

	if len(data) != headerSize+len(in)*2 {
		t.Fatalf("Expected %d bytes, got %d", headerSize+len(in)*2, len(data))
	}

	out, rate, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if rate != 16000 {
		t.Errorf("Expected rate 16000, got %d", rate)
	}
	if len(out) != len(in) {
		t.Fatalf("Expected %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 0.001 {
			t.Errorf("sample %d: got %v, want %v", i, out[i], in[i])
		}
	}
}

func TestEncodeClamps(t *testing.T) {
	out, _, err := Decode(Encode([]float32{2, -3}, 8000))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out[0] < 0.99 || out[1] > -0.99 {
		t.Errorf("Expected clamped samples, got %v", out)
	}
}

func TestDecodeStereoDownmix(t *testing.T) {
	data := Encode(nil, 8000)
	// Rewrite the header as 16-bit stereo and append one frame.
	binary.LittleEndian.PutUint16(data[22:], 2)
	binary.LittleEndian.PutUint32(data[40:], 4)
	data = binary.LittleEndian.AppendUint16(data, uint16(int16(16384)))
	data = binary.LittleEndian.AppendUint16(data, 0)

	out, _, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(out) != 1 || math.Abs(float64(out[0])-0.25) > 0.001 {
		t.Errorf("Expected one averaged sample of 0.25, got %v", out)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := Decode(make([]byte, 64)); !errors.Is(err, ErrNotWAV) {
		t.Errorf("Expected ErrNotWAV, got %v", err)
	}
	if _, _, err := Decode([]byte("RIFF")); err == nil {
		t.Error("Expected error for short input")
	}
}
