package waveform

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/rubiojr/lunarvox/internal/timefmt"
)

// DefaultBars is the waveform width used when none is configured.
const DefaultBars = 48

// Option configures a Player.
type Option func(*Player)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Player) { p.logger = l }
}

// WithContainer sets where engines draw the waveform.
func WithContainer(w io.Writer) Option {
	return func(p *Player) { p.container = w }
}

// WithBars sets the waveform width.
func WithBars(n int) Option {
	return func(p *Player) {
		if n > 0 {
			p.bars = n
		}
	}
}

// OnPlayStateChange registers the play-state callback.
func OnPlayStateChange(fn func(playing bool)) Option {
	return func(p *Player) { p.onPlayState = fn }
}

// OnFinished registers the end-of-playback callback.
func OnFinished(fn func()) Option {
	return func(p *Player) { p.onFinished = fn }
}

// Player owns at most one engine at a time. Loading a new source tears the
// previous engine down first; results of a superseded load are destroyed
// without ever becoming visible.
//
// Callbacks run with the player locked and must not call back into it.
// The player never revokes the resource it plays; that belongs to whoever
// created it.
type Player struct {
	factory     EngineFactory
	logger      *zap.Logger
	container   io.Writer
	bars        int
	onPlayState func(bool)
	onFinished  func()

	mu       sync.Mutex
	gen      uint64
	closed   bool
	engine   Engine
	ready    bool
	playing  bool
	finished bool
	duration *float64
	err      error
	settled  chan struct{}
}

// New returns a player with nothing loaded.
func New(factory EngineFactory, opts ...Option) *Player {
	p := &Player{factory: factory, bars: DefaultBars}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.onPlayState == nil {
		p.onPlayState = func(bool) {}
	}
	if p.onFinished == nil {
		p.onFinished = func() {}
	}
	return p
}

// Load replaces the current source. The engine is created and loaded in
// the background; use Wait to block until it settles.
func (p *Player) Load(ctx context.Context, src Source) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	old := p.detachLocked()
	p.gen++
	gen := p.gen
	if src.Duration != nil {
		d := *src.Duration
		p.duration = &d
	}
	settled := make(chan struct{})
	p.settled = settled
	p.mu.Unlock()

	p.destroy(old)
	go p.load(ctx, gen, src.Locator, settled)
	return nil
}

func (p *Player) load(ctx context.Context, gen uint64, locator string, settled chan struct{}) {
	defer close(settled)

	cfg := EngineConfig{Container: p.container, Bars: p.bars, Logger: p.logger}
	engine, err := p.factory.NewEngine(ctx, cfg)
	if err != nil {
		p.failed(gen, fmt.Errorf("create engine: %w: %w", ErrEngineInit, err))
		return
	}

	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		p.logger.Debug("dropping superseded engine", zap.String("locator", locator))
		p.destroy(engine)
		return
	}
	p.engine = engine
	p.mu.Unlock()

	engine.On(EventReady, func() { p.handleReady(gen, engine) })
	engine.On(EventPlay, func() { p.handlePlaying(gen, true) })
	engine.On(EventPause, func() { p.handlePlaying(gen, false) })
	engine.On(EventFinish, func() { p.handleFinish(gen, engine) })

	if err := engine.Load(ctx, locator); err != nil {
		p.failed(gen, fmt.Errorf("load %s: %w: %w", locator, ErrEngineInit, err))
	}
}

// failed records a load error for the current generation and drops its
// engine. Stale failures are ignored.
func (p *Player) failed(gen uint64, err error) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.logger.Error("waveform engine failed", zap.Error(err))
	engine := p.detachLocked()
	p.err = err
	p.mu.Unlock()
	p.destroy(engine)
}

func (p *Player) handleReady(gen uint64, engine Engine) {
	d := engine.Duration()
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return
	}
	p.ready = true
	if p.duration == nil && d > 0 {
		p.duration = &d
	}
	p.logger.Debug("waveform ready", zap.Float64("duration", d))
}

func (p *Player) handlePlaying(gen uint64, playing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen || p.playing == playing {
		return
	}
	p.playing = playing
	if playing {
		p.finished = false
	}
	p.onPlayState(playing)
}

func (p *Player) handleFinish(gen uint64, engine Engine) {
	p.mu.Lock()
	if gen != p.gen || p.finished {
		p.mu.Unlock()
		return
	}
	p.finished = true
	if p.playing {
		p.playing = false
		p.onPlayState(false)
	}
	p.onFinished()
	p.mu.Unlock()

	if err := engine.SeekTo(0); err != nil {
		p.logger.Warn("rewind after finish", zap.Error(err))
	}
}

// Toggle plays or pauses. It returns ErrNotReady until the audio loaded.
func (p *Player) Toggle() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if !p.ready || p.engine == nil {
		p.mu.Unlock()
		return ErrNotReady
	}
	engine := p.engine
	p.mu.Unlock()
	if err := engine.PlayPause(); err != nil {
		return fmt.Errorf("toggle playback: %w", err)
	}
	return nil
}

// Seek moves the playhead to progress, in [0, 1].
func (p *Player) Seek(progress float64) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if !p.ready || p.engine == nil {
		p.mu.Unlock()
		return ErrNotReady
	}
	engine := p.engine
	p.mu.Unlock()
	progress = min(max(progress, 0), 1)
	if err := engine.SeekTo(progress); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	return nil
}

// Wait blocks until the current load settled, then reports its error.
func (p *Player) Wait(ctx context.Context) error {
	p.mu.Lock()
	settled := p.settled
	p.mu.Unlock()
	if settled == nil {
		return ErrNotReady
	}
	select {
	case <-settled:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Ready reports whether the control is enabled.
func (p *Player) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// Playing reports whether audio is playing.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Duration returns the known duration in seconds, or nil.
func (p *Player) Duration() *float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.duration == nil {
		return nil
	}
	d := *p.duration
	return &d
}

// DurationLabel formats the duration as M:SS.
func (p *Player) DurationLabel() string {
	return timefmt.FormatOptional(p.Duration())
}

// Err returns the error of the last load, if it failed.
func (p *Player) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Close destroys the engine. No callback fires after Close returns.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.gen++
	engine := p.detachLocked()
	p.mu.Unlock()
	p.destroy(engine)
	return nil
}

// detachLocked resets playback state and hands back the engine to destroy.
func (p *Player) detachLocked() Engine {
	engine := p.engine
	p.engine = nil
	p.ready = false
	p.playing = false
	p.finished = false
	p.duration = nil
	p.err = nil
	return engine
}

func (p *Player) destroy(engine Engine) {
	if engine == nil {
		return
	}
	if err := engine.Destroy(); err != nil {
		p.logger.Warn("destroy waveform engine", zap.Error(err))
	}
}
