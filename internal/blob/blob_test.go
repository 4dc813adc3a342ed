package blob

import (
	"errors"
	"testing"
)

func TestPutGetRevoke(t *testing.T) {
	s := NewStore()
	ref := s.Put([]byte("abc"), "audio/wav")

	if !ref.Valid() {
		t.Fatalf("Expected valid ref, got %q", ref)
	}
	if s.Live() != 1 {
		t.Errorf("Expected 1 live blob, got %d", s.Live())
	}

	b, err := s.Get(ref)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(b.Data) != "abc" || b.MIMEType != "audio/wav" {
		t.Errorf("Unexpected blob %+v", b)
	}

	if !s.Revoke(ref) {
		t.Error("Expected first revoke to report a live ref")
	}
	if s.Revoke(ref) {
		t.Error("Expected second revoke to be a no-op")
	}
	if _, err := s.Get(ref); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after revoke, got %v", err)
	}
	if s.Live() != 0 {
		t.Errorf("Expected 0 live blobs, got %d", s.Live())
	}
}

func TestRefsAreUnique(t *testing.T) {
	s := NewStore()
	a := s.Put(nil, "")
	b := s.Put(nil, "")
	if a == b {
		t.Errorf("Expected distinct refs, got %q twice", a)
	}
}

func TestRefValid(t *testing.T) {
	for _, r := range []Ref{"", "blob:", "http://x", "blob:not-a-uuid"} {
		if r.Valid() {
			t.Errorf("Expected %q to be invalid", r)
		}
	}
}
