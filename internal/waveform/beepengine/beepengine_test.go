package beepengine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rubiojr/lunarvox/internal/audio"
	"github.com/rubiojr/lunarvox/internal/blob"
)

func TestPCMStreamAndSeek(t *testing.T) {
	p := &pcm{samples: []float32{0.1, -0.2, 0.3, -0.4, 0.5}, rate: 5}

	frames := make([][2]float64, 3)
	n, ok := p.Stream(frames)
	if !ok || n != 3 {
		t.Fatalf("Expected 3 frames, got %d (ok=%v)", n, ok)
	}
	if frames[1][0] != frames[1][1] || float32(frames[1][0]) != -0.2 {
		t.Errorf("Expected mono sample duplicated on both channels, got %v", frames[1])
	}

	n, ok = p.Stream(frames)
	if !ok || n != 2 {
		t.Fatalf("Expected 2 trailing frames, got %d (ok=%v)", n, ok)
	}
	if _, ok := p.Stream(frames); ok {
		t.Error("Expected end of stream")
	}

	if err := p.Seek(0); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if p.Position() != 0 {
		t.Errorf("Expected position 0, got %d", p.Position())
	}
	if err := p.Seek(6); err == nil {
		t.Error("Expected out of range seek to fail")
	}
	if p.seconds() != 1 {
		t.Errorf("Expected 1 second, got %v", p.seconds())
	}
}

func TestResolveBlob(t *testing.T) {
	store := blob.NewStore()
	ref := store.Put([]byte("RIFF"), audio.MIMEWAV)

	data, mimeType, err := resolve(store, ref.String())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if string(data) != "RIFF" || mimeType != audio.MIMEWAV {
		t.Errorf("Unexpected blob %q %q", data, mimeType)
	}

	store.Revoke(ref)
	if _, _, err := resolve(store, ref.String()); !errors.Is(err, blob.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for revoked ref, got %v", err)
	}
}

func TestResolveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "message.ogg")
	if err := os.WriteFile(path, []byte("OggS"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, mimeType, err := resolve(nil, path)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if mimeType != audio.MIMEOggOpus {
		t.Errorf("Expected %s, got %s", audio.MIMEOggOpus, mimeType)
	}

	if _, _, err := resolve(nil, filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("Expected error for missing file")
	}
}
