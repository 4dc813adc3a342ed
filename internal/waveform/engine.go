// Package waveform plays a finished voice message behind a single
// play/pause control, drawing its waveform into a caller-supplied container.
// The audio itself is handled by a pluggable Engine.
package waveform

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"
)

var (
	// ErrEngineInit is returned when an engine cannot be created or cannot
	// load the audio.
	ErrEngineInit = errors.New("waveform engine unavailable")
	// ErrNotReady is returned by controls used before the audio loaded.
	ErrNotReady = errors.New("player not ready")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("player closed")
)

// Event is a notification an Engine emits.
type Event int

const (
	EventReady Event = iota
	EventPlay
	EventPause
	EventFinish
)

func (e Event) String() string {
	switch e {
	case EventReady:
		return "ready"
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventFinish:
		return "finish"
	default:
		return "unknown"
	}
}

// Engine renders and plays one audio resource. Handlers registered with On
// must not be called while the engine holds its own locks.
type Engine interface {
	// On registers fn for ev. Registration happens before Load.
	On(ev Event, fn func())
	// Load fetches and decodes the resource, then emits EventReady.
	Load(ctx context.Context, locator string) error
	// Duration is the audio length in seconds, valid after EventReady.
	Duration() float64
	// PlayPause toggles playback.
	PlayPause() error
	// SeekTo moves the playhead to progress, in [0, 1].
	SeekTo(progress float64) error
	// Destroy stops playback and frees the engine's resources. No event is
	// emitted afterwards.
	Destroy() error
}

// EngineConfig binds an engine to its visual container.
type EngineConfig struct {
	// Container receives the rendered waveform. May be nil.
	Container io.Writer
	// Bars is the number of waveform columns.
	Bars   int
	Logger *zap.Logger
}

// EngineFactory creates engines on demand.
type EngineFactory interface {
	NewEngine(ctx context.Context, cfg EngineConfig) (Engine, error)
}

// EngineFactoryFunc adapts a function to EngineFactory.
type EngineFactoryFunc func(ctx context.Context, cfg EngineConfig) (Engine, error)

func (f EngineFactoryFunc) NewEngine(ctx context.Context, cfg EngineConfig) (Engine, error) {
	return f(ctx, cfg)
}

// Source is what the player loads: a locator and, optionally, a duration
// already known to the caller.
type Source struct {
	Locator string
	// Duration in seconds. When nil it is read from the engine once ready.
	Duration *float64
}
