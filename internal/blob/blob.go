// Package blob keeps in-memory audio payloads addressable by opaque refs,
// the way object URLs are handed out for recorded audio in a chat view.
package blob

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const scheme = "blob:"

// ErrNotFound is returned for refs that were never created or were revoked.
var ErrNotFound = errors.New("blob not found")

// Ref is an opaque handle to a stored payload.
type Ref string

// String returns the ref as a locator string.
func (r Ref) String() string { return string(r) }

// Valid reports whether r looks like a ref produced by a Store.
func (r Ref) Valid() bool {
	if !strings.HasPrefix(string(r), scheme) {
		return false
	}
	_, err := uuid.Parse(strings.TrimPrefix(string(r), scheme))
	return err == nil
}

// Blob is a stored payload.
type Blob struct {
	Data     []byte
	MIMEType string
}

// Store holds payloads until they are revoked.
type Store struct {
	mu    sync.RWMutex
	blobs map[Ref]Blob
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{blobs: make(map[Ref]Blob)}
}

// Put stores data and returns a fresh ref for it.
func (s *Store) Put(data []byte, mimeType string) Ref {
	ref := Ref(scheme + uuid.NewString())
	s.mu.Lock()
	s.blobs[ref] = Blob{Data: data, MIMEType: mimeType}
	s.mu.Unlock()
	return ref
}

// Get returns the payload behind ref.
func (s *Store) Get(ref Ref) (Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[ref]
	if !ok {
		return Blob{}, ErrNotFound
	}
	return b, nil
}

// Revoke drops the payload behind ref. It reports whether the ref was live.
func (s *Store) Revoke(ref Ref) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[ref]; !ok {
		return false
	}
	delete(s.blobs, ref)
	return true
}

// Live returns the number of refs that have not been revoked.
func (s *Store) Live() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
