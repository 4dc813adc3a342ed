// Package beepengine plays voice messages through the system speaker with
// faiface/beep. Locators are blob refs or paths to WAV / Ogg Opus files.
package beepengine

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"go.uber.org/zap"

	"github.com/rubiojr/lunarvox/internal/audio"
	"github.com/rubiojr/lunarvox/internal/blob"
	"github.com/rubiojr/lunarvox/internal/waveform"
)

// DefaultSampleRate is the speaker output rate.
const DefaultSampleRate = 44100

const resampleQuality = 4

var (
	speakerOnce sync.Once
	speakerRate beep.SampleRate
	speakerErr  error
)

// initSpeaker opens the output device once per process. Later calls reuse
// the first rate.
func initSpeaker(rate beep.SampleRate) (beep.SampleRate, error) {
	speakerOnce.Do(func() {
		speakerRate = rate
		speakerErr = speaker.Init(rate, rate.N(time.Second/10))
	})
	return speakerRate, speakerErr
}

// Factory creates speaker-backed engines.
type Factory struct {
	// Blobs resolves blob: locators. May be nil when only files are played.
	Blobs *blob.Store
	// SampleRate of the speaker; DefaultSampleRate when zero.
	SampleRate int
}

// NewEngine implements waveform.EngineFactory.
func (f Factory) NewEngine(_ context.Context, cfg waveform.EngineConfig) (waveform.Engine, error) {
	rate := f.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	out, err := initSpeaker(beep.SampleRate(rate))
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		blobs:    f.Blobs,
		cfg:      cfg,
		out:      out,
		logger:   logger,
		handlers: make(map[waveform.Event][]func()),
	}, nil
}

// Engine plays one resource. Fields read by the speaker goroutine are only
// touched under speaker.Lock.
type Engine struct {
	blobs  *blob.Store
	cfg    waveform.EngineConfig
	out    beep.SampleRate
	logger *zap.Logger

	mu        sync.Mutex
	handlers  map[waveform.Event][]func()
	src       *pcm
	ctrl      *beep.Ctrl
	queued    bool
	playID    uint64
	destroyed bool
}

// On implements waveform.Engine.
func (e *Engine) On(ev waveform.Event, fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[ev] = append(e.handlers[ev], fn)
}

func (e *Engine) emit(ev waveform.Event) {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	fns := append([]func(){}, e.handlers[ev]...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Load implements waveform.Engine.
func (e *Engine) Load(ctx context.Context, locator string) error {
	data, mimeType, err := resolve(e.blobs, locator)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	samples, rate, err := audio.Decode(data, mimeType)
	if err != nil {
		return fmt.Errorf("decode %s: %w", locator, err)
	}

	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return nil
	}
	e.src = &pcm{samples: samples, rate: rate}
	e.mu.Unlock()

	bars := e.cfg.Bars
	if bars <= 0 {
		bars = waveform.DefaultBars
	}
	if err := waveform.Render(e.cfg.Container, waveform.Peaks(samples, bars)); err != nil {
		e.logger.Warn("draw waveform", zap.Error(err))
	}
	e.logger.Debug("audio loaded",
		zap.String("locator", locator),
		zap.Int("sample_rate", rate),
		zap.Int("samples", len(samples)))
	e.emit(waveform.EventReady)
	return nil
}

// Duration implements waveform.Engine.
func (e *Engine) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src == nil {
		return 0
	}
	return e.src.seconds()
}

// PlayPause implements waveform.Engine.
func (e *Engine) PlayPause() error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return fmt.Errorf("play: engine destroyed")
	}
	if e.src == nil {
		e.mu.Unlock()
		return fmt.Errorf("play: nothing loaded")
	}

	if !e.queued {
		e.queued = true
		e.playID++
		id := e.playID
		var s beep.Streamer = e.src
		speaker.Lock()
		if e.src.pos >= len(e.src.samples) {
			e.src.pos = 0
		}
		speaker.Unlock()
		if beep.SampleRate(e.src.rate) != e.out {
			s = beep.Resample(resampleQuality, beep.SampleRate(e.src.rate), e.out, s)
		}
		e.ctrl = &beep.Ctrl{Streamer: s}
		ctrl := e.ctrl
		e.mu.Unlock()

		// The callback runs on the speaker goroutine with the speaker locked.
		speaker.Play(beep.Seq(ctrl, beep.Callback(func() { go e.finished(id) })))
		e.emit(waveform.EventPlay)
		return nil
	}

	speaker.Lock()
	e.ctrl.Paused = !e.ctrl.Paused
	paused := e.ctrl.Paused
	speaker.Unlock()
	e.mu.Unlock()

	if paused {
		e.emit(waveform.EventPause)
	} else {
		e.emit(waveform.EventPlay)
	}
	return nil
}

func (e *Engine) finished(id uint64) {
	e.mu.Lock()
	if e.destroyed || id != e.playID {
		e.mu.Unlock()
		return
	}
	e.queued = false
	e.ctrl = nil
	e.mu.Unlock()
	e.emit(waveform.EventFinish)
}

// SeekTo implements waveform.Engine.
func (e *Engine) SeekTo(progress float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src == nil {
		return nil
	}
	speaker.Lock()
	defer speaker.Unlock()
	return e.src.Seek(int(progress * float64(e.src.Len())))
}

// Destroy implements waveform.Engine.
func (e *Engine) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return nil
	}
	e.destroyed = true
	e.handlers = nil
	if e.ctrl != nil {
		// A nil streamer ends the sequence on the next buffer.
		speaker.Lock()
		e.ctrl.Streamer = nil
		e.ctrl.Paused = false
		speaker.Unlock()
		e.ctrl = nil
	}
	e.src = nil
	return nil
}

// resolve loads the bytes behind a blob ref or file path.
func resolve(blobs *blob.Store, locator string) ([]byte, string, error) {
	if ref := blob.Ref(locator); ref.Valid() {
		if blobs == nil {
			return nil, "", fmt.Errorf("resolve %s: no blob store", locator)
		}
		b, err := blobs.Get(ref)
		if err != nil {
			return nil, "", fmt.Errorf("resolve %s: %w", locator, err)
		}
		return b.Data, b.MIMEType, nil
	}
	data, err := os.ReadFile(locator)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", locator, err)
	}
	mimeType := ""
	switch {
	case strings.HasSuffix(strings.ToLower(locator), ".wav"):
		mimeType = audio.MIMEWAV
	case strings.HasSuffix(strings.ToLower(locator), ".ogg"), strings.HasSuffix(strings.ToLower(locator), ".opus"):
		mimeType = audio.MIMEOggOpus
	}
	return data, mimeType, nil
}

// pcm streams mono samples as stereo frames and supports seeking.
type pcm struct {
	samples []float32
	rate    int
	pos     int
}

func (p *pcm) Stream(frames [][2]float64) (int, bool) {
	if p.pos >= len(p.samples) {
		return 0, false
	}
	n := copyFrames(frames, p.samples[p.pos:])
	p.pos += n
	return n, true
}

func copyFrames(frames [][2]float64, samples []float32) int {
	n := min(len(frames), len(samples))
	for i := 0; i < n; i++ {
		v := float64(samples[i])
		frames[i] = [2]float64{v, v}
	}
	return n
}

func (p *pcm) Err() error    { return nil }
func (p *pcm) Len() int      { return len(p.samples) }
func (p *pcm) Position() int { return p.pos }

func (p *pcm) Seek(pos int) error {
	if pos < 0 || pos > len(p.samples) {
		return fmt.Errorf("seek %d out of range [0, %d]", pos, len(p.samples))
	}
	p.pos = pos
	return nil
}

func (p *pcm) seconds() float64 {
	if p.rate <= 0 {
		return 0
	}
	return float64(len(p.samples)) / float64(p.rate)
}
