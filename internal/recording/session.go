package recording

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rubiojr/lunarvox/internal/blob"
	"github.com/rubiojr/lunarvox/internal/capture"
)

var (
	// ErrDeviceUnavailable is wrapped by Start when the microphone cannot be
	// acquired.
	ErrDeviceUnavailable = capture.ErrDeviceUnavailable
	// ErrBusy is returned by Start while a take is being recorded or the
	// microphone is still being acquired.
	ErrBusy = errors.New("recording already in progress")
	// ErrNotRecording is returned by Stop and StopAndSend outside a take.
	ErrNotRecording = errors.New("not recording")
	// ErrNoPreview is returned by Send when there is nothing to send.
	ErrNoPreview = errors.New("no recording to send")
	// ErrAborted is returned by Start when the take was discarded or the
	// controller closed while the microphone was being acquired.
	ErrAborted = errors.New("recording aborted")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("controller closed")
)

// Status is the top-level state of a chat view's recording session.
type Status int

const (
	StatusIdle Status = iota
	StatusRecording
	StatusPreview
)

func (s Status) String() string {
	switch s {
	case StatusRecording:
		return "recording"
	case StatusPreview:
		return "preview"
	default:
		return "idle"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = StatusIdle
	case "recording":
		*s = StatusRecording
	case "preview":
		*s = StatusPreview
	default:
		return fmt.Errorf("unknown status %q", b)
	}
	return nil
}

// Asset is a finished recording held as a blob.
type Asset struct {
	Ref             blob.Ref `json:"ref"`
	DurationSeconds int      `json:"duration_seconds"`
	MIMEType        string   `json:"mime_type"`
	Size            int      `json:"size"`
	// Captured is the length of the encoded audio. It can differ from
	// DurationSeconds, which is measured on the wall clock.
	Captured time.Duration `json:"captured"`
}

// Session is a snapshot of the controller state.
// StartedAt and Elapsed are set while recording; Preview while previewing.
type Session struct {
	Status    Status    `json:"status"`
	Paused    bool      `json:"paused"`
	StartedAt time.Time `json:"started_at,omitzero"`
	Elapsed   int       `json:"elapsed"`
	Preview   *Asset    `json:"preview,omitempty"`
}

// Sink is the host's message-send path.
type Sink interface {
	Send(ctx context.Context, asset Asset) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, asset Asset) error

func (f SinkFunc) Send(ctx context.Context, asset Asset) error { return f(ctx, asset) }

// Notifier shows a human-readable error to the user.
type Notifier interface {
	Error(msg string)
}

// Observer receives display updates. Calls are made while the controller
// holds its lock so none arrive after the update that stopped them;
// implementations must not call back into the controller.
type Observer interface {
	StateChanged(s Session)
	LevelsChanged(levels []float64)
	ElapsedChanged(seconds int)
}

type nopObserver struct{}

func (nopObserver) StateChanged(Session)    {}
func (nopObserver) LevelsChanged([]float64) {}
func (nopObserver) ElapsedChanged(int)      {}

type nopNotifier struct{}

func (nopNotifier) Error(string) {}

type stopIntent int

const (
	intentNone stopIntent = iota
	intentDiscard
	intentPreview
	intentSend
)
