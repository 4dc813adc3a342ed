// Package chat is the host side of a voice message: it receives finished
// takes from a recording controller and turns them into thread messages.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/rubiojr/lunarvox/internal/blob"
)

// ErrNotFound is returned by stores for unknown message IDs.
var ErrNotFound = errors.New("message not found")

// Message is a sent voice message.
type Message struct {
	ID              string    `json:"id"`
	Thread          string    `json:"thread"`
	Ref             blob.Ref  `json:"ref"`
	DurationSeconds int       `json:"duration_seconds"`
	MIMEType        string    `json:"mime_type"`
	Size            int       `json:"size"`
	Audio           []byte    `json:"-"`
	Transcript      string    `json:"transcript,omitempty"`
	Translation     string    `json:"translation,omitempty"`
	PostID          string    `json:"post_id,omitempty"`
	SentAt          time.Time `json:"sent_at"`
}

// Store persists messages.
type Store interface {
	Save(ctx context.Context, m *Message) error
	Get(ctx context.Context, id string) (*Message, error)
	// List returns the newest limit messages of thread, oldest first.
	// A limit of zero returns every message.
	List(ctx context.Context, thread string, limit int) ([]*Message, error)
	Close() error
}

// Blobs resolves asset refs and releases them once their audio is stored.
// *blob.Store implements it.
type Blobs interface {
	Get(ref blob.Ref) (blob.Blob, error)
	Revoke(ref blob.Ref) bool
}

// Publisher mirrors a message to an external chat and returns the remote
// post ID.
type Publisher interface {
	Publish(ctx context.Context, m *Message) (string, error)
}

// Transcriber turns voice audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Translator translates text into another language.
type Translator interface {
	Translate(ctx context.Context, text, toLang string) (string, error)
}
