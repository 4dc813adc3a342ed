// Package recording implements the voice-message capture flow of a chat
// view: microphone acquisition, live amplitude bars, pause and resume, and
// finishing a take into either an immediate send or a discardable preview.
package recording

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/rubiojr/lunarvox/internal/audio"
	"github.com/rubiojr/lunarvox/internal/blob"
	"github.com/rubiojr/lunarvox/internal/capture"
)

// Controller owns one chat view's recording session. All methods are safe
// for concurrent use; transitions are serialized.
type Controller struct {
	mic      capture.Microphone
	blobs    *blob.Store
	sink     Sink
	encoder  audio.Encoder
	clock    clockwork.Clock
	logger   *zap.Logger
	notifier Notifier
	observer Observer
	meter    *Meter

	bars           int
	rng            *rand.Rand
	sampleInterval time.Duration
	tickInterval   time.Duration

	mu        sync.Mutex
	status    Status
	paused    bool
	closed    bool
	acquiring bool
	// gen changes whenever a pending microphone request becomes stale.
	gen uint64
	// loopID identifies the live sampling goroutine; a loop that sees a
	// different value exits without writing.
	loopID   uint64
	loopStop chan struct{}

	startedAt time.Time // moved forward by every paused interval
	pausedAt  time.Time
	elapsed   int
	levels    []float64

	stream   capture.Stream
	recorder *capture.Recorder
	analyser *capture.Analyser
	intent   stopIntent
	preview  *Asset
}

// New returns an idle controller. Finished takes are stored in blobs and
// delivered to sink.
func New(mic capture.Microphone, blobs *blob.Store, sink Sink, opts ...Option) *Controller {
	c := &Controller{
		mic:            mic,
		blobs:          blobs,
		sink:           sink,
		encoder:        audio.Encoder{Format: audio.FormatOgg, Bitrate: audio.DefaultBitrate},
		clock:          clockwork.NewRealClock(),
		sampleInterval: DefaultSampleInterval,
		tickInterval:   DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.notifier == nil {
		c.notifier = nopNotifier{}
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	c.meter = NewMeter(c.bars, c.rng)
	c.levels = c.meter.Resting()
	return c
}

// Session returns a snapshot of the current state.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionLocked()
}

// Levels returns the current bar heights.
func (c *Controller) Levels() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.levels...)
}

// Start acquires the microphone and begins a take. A held preview is
// revoked once the microphone is acquired. On device failure the user is
// notified, the controller keeps its previous state and the returned error
// wraps capture.ErrDeviceUnavailable.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.status == StatusRecording || c.acquiring {
		c.mu.Unlock()
		return ErrBusy
	}
	c.gen++
	gen := c.gen
	c.acquiring = true
	c.mu.Unlock()

	stream, err := c.mic.Open(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		if stream != nil {
			if cerr := stream.Close(); cerr != nil {
				c.logger.Warn("release stale microphone", zap.Error(cerr))
			}
		}
		c.logger.Debug("dropping stale microphone request", zap.Uint64("gen", gen))
		return ErrAborted
	}
	c.acquiring = false

	if err != nil {
		return c.deviceFailedLocked(err)
	}

	analyser := capture.NewAnalyser(DefaultWindow)
	recorder := capture.NewRecorder(stream, analyser, c.logger)
	if err := recorder.Start(); err != nil {
		analyser.Close()
		if cerr := stream.Close(); cerr != nil {
			c.logger.Warn("release microphone", zap.Error(cerr))
		}
		return c.deviceFailedLocked(err)
	}

	// The new take replaces a held preview only once the device is ours.
	c.revokePreviewLocked()
	c.stream = stream
	c.analyser = analyser
	c.recorder = recorder
	c.status = StatusRecording
	c.paused = false
	c.startedAt = c.clock.Now()
	c.elapsed = 0
	c.intent = intentNone
	c.startLoopLocked()
	c.logger.Info("recording started", zap.Int("sample_rate", stream.SampleRate()))
	c.observer.StateChanged(c.sessionLocked())
	return nil
}

func (c *Controller) deviceFailedLocked(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	c.logger.Warn("microphone unavailable", zap.Error(err))
	c.notifier.Error("Could not access the microphone. Check that one is connected and that access is allowed.")
	if !errors.Is(err, capture.ErrDeviceUnavailable) {
		err = fmt.Errorf("%w: %w", capture.ErrDeviceUnavailable, err)
	}
	return fmt.Errorf("start recording: %w", err)
}

// Pause suspends capture and the amplitude bars. It is a no-op unless a
// take is actively recording.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusRecording || c.paused {
		return
	}
	if err := c.recorder.Pause(); err != nil {
		c.logger.Warn("pause recorder", zap.Error(err))
	}
	c.stopLoopLocked()
	c.analyser.Reset()
	c.paused = true
	c.pausedAt = c.clock.Now()
	c.setRestingLocked()
	c.observer.StateChanged(c.sessionLocked())
}

// Resume continues a paused take. It is a no-op unless the take is paused.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusRecording || !c.paused {
		return
	}
	if err := c.recorder.Resume(); err != nil {
		c.logger.Warn("resume recorder", zap.Error(err))
		c.notifier.Error("The microphone stopped responding.")
		return
	}
	c.startedAt = c.startedAt.Add(c.clock.Since(c.pausedAt))
	c.paused = false
	c.startLoopLocked()
	c.observer.StateChanged(c.sessionLocked())
}

// Discard drops the current take or preview. While recording, buffered
// audio is thrown away and the microphone released; while previewing, the
// held resource is revoked. A pending microphone request is abandoned.
func (c *Controller) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acquiring {
		c.gen++
		c.acquiring = false
		return
	}
	switch c.status {
	case StatusRecording:
		c.intent = intentDiscard
		if _, err := c.finishLocked(); err != nil {
			c.logger.Warn("discard recording", zap.Error(err))
		}
		c.logger.Info("recording discarded")
	case StatusPreview:
		c.revokePreviewLocked()
		c.status = StatusIdle
		c.logger.Info("preview discarded")
		c.observer.StateChanged(c.sessionLocked())
	}
}

// Stop finishes the take into a preview that can be sent or discarded.
func (c *Controller) Stop() (Asset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Asset{}, ErrClosed
	}
	if c.status != StatusRecording {
		return Asset{}, ErrNotRecording
	}
	c.intent = intentPreview
	asset, err := c.finishLocked()
	if err != nil {
		return Asset{}, err
	}
	return *asset, nil
}

// StopAndSend finishes the take and hands it straight to the sink.
func (c *Controller) StopAndSend(ctx context.Context) (Asset, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Asset{}, ErrClosed
	}
	if c.status != StatusRecording {
		c.mu.Unlock()
		return Asset{}, ErrNotRecording
	}
	c.intent = intentSend
	asset, err := c.finishLocked()
	c.mu.Unlock()
	if err != nil {
		return Asset{}, err
	}
	return *asset, c.deliver(ctx, *asset)
}

// Send hands the previewed take to the sink.
func (c *Controller) Send(ctx context.Context) (Asset, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Asset{}, ErrClosed
	}
	if c.status != StatusPreview || c.preview == nil {
		c.mu.Unlock()
		return Asset{}, ErrNoPreview
	}
	asset := *c.preview
	c.preview = nil
	c.status = StatusIdle
	c.observer.StateChanged(c.sessionLocked())
	c.mu.Unlock()
	return asset, c.deliver(ctx, asset)
}

// deliver passes ownership of asset to the sink. If the sink fails the
// asset goes back to preview so it can be retried, unless the controller
// moved on in the meantime, in which case it is revoked.
func (c *Controller) deliver(ctx context.Context, asset Asset) error {
	err := c.sink.Send(ctx, asset)
	if err == nil {
		c.logger.Info("voice message sent",
			zap.String("ref", asset.Ref.String()),
			zap.Int("duration_seconds", asset.DurationSeconds))
		return nil
	}

	c.logger.Error("send voice message", zap.Error(err))
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier.Error("The voice message could not be sent.")
	if c.closed || c.status != StatusIdle || c.acquiring {
		c.blobs.Revoke(asset.Ref)
		return fmt.Errorf("send: %w", err)
	}
	c.preview = &asset
	c.status = StatusPreview
	c.observer.StateChanged(c.sessionLocked())
	return fmt.Errorf("send: %w", err)
}

// Close tears the controller down: an active take is discarded, the
// microphone released and any preview revoked.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.gen++
	c.acquiring = false
	if c.status == StatusRecording {
		c.intent = intentDiscard
		if _, err := c.finishLocked(); err != nil {
			c.logger.Warn("close recording", zap.Error(err))
		}
	}
	c.revokePreviewLocked()
	c.status = StatusIdle
	return nil
}

// finishLocked is the stop-completion handler. It consumes the stop intent,
// stops sampling and capture, releases the device unconditionally, and then
// drops, previews or returns the take.
func (c *Controller) finishLocked() (*Asset, error) {
	intent := c.intent
	c.intent = intentNone

	c.stopLoopLocked()
	chunks := c.recorder.Stop()
	elapsed := c.elapsedLocked()
	sampleRate := c.stream.SampleRate()
	c.releaseDeviceLocked()

	c.status = StatusIdle
	c.paused = false
	c.elapsed = 0
	c.setRestingLocked()

	if intent == intentDiscard || intent == intentNone {
		c.observer.StateChanged(c.sessionLocked())
		return nil, nil
	}

	payload, err := c.encoder.Encode(capture.Flatten(chunks), sampleRate)
	if err != nil {
		c.logger.Error("encode recording", zap.Error(err))
		c.notifier.Error("The recording could not be saved.")
		c.observer.StateChanged(c.sessionLocked())
		return nil, fmt.Errorf("encode recording: %w", err)
	}

	// Never hold two live previews.
	c.revokePreviewLocked()
	asset := &Asset{
		Ref:             c.blobs.Put(payload.Data, payload.MIMEType),
		DurationSeconds: max(1, roundSeconds(elapsed)),
		MIMEType:        payload.MIMEType,
		Size:            len(payload.Data),
		Captured:        payload.Length,
	}
	if intent == intentPreview {
		c.preview = asset
		c.status = StatusPreview
	}
	c.logger.Info("recording finished",
		zap.Int("duration_seconds", asset.DurationSeconds),
		zap.Duration("captured", asset.Captured),
		zap.Int("bytes", asset.Size))
	c.observer.StateChanged(c.sessionLocked())
	return asset, nil
}

func (c *Controller) releaseDeviceLocked() {
	if c.analyser != nil {
		c.analyser.Close()
		c.analyser = nil
	}
	if c.stream != nil {
		if err := c.stream.Close(); err != nil {
			c.logger.Warn("release microphone", zap.Error(err))
		}
		c.stream = nil
	}
	c.recorder = nil
}

func (c *Controller) revokePreviewLocked() {
	if c.preview == nil {
		return
	}
	c.blobs.Revoke(c.preview.Ref)
	c.preview = nil
}

func (c *Controller) setRestingLocked() {
	c.levels = c.meter.Resting()
	c.observer.LevelsChanged(append([]float64(nil), c.levels...))
}

// elapsedLocked is the recorded time excluding pauses.
func (c *Controller) elapsedLocked() time.Duration {
	now := c.clock.Now()
	if c.paused {
		now = c.pausedAt
	}
	return now.Sub(c.startedAt)
}

func (c *Controller) sessionLocked() Session {
	s := Session{Status: c.status, Paused: c.paused}
	switch c.status {
	case StatusRecording:
		s.StartedAt = c.startedAt
		s.Elapsed = c.elapsed
	case StatusPreview:
		p := *c.preview
		s.Preview = &p
	}
	return s
}

func (c *Controller) startLoopLocked() {
	c.loopID++
	stop := make(chan struct{})
	c.loopStop = stop
	go c.sample(c.loopID, stop, c.recorder.Failed())
}

func (c *Controller) stopLoopLocked() {
	c.loopID++
	if c.loopStop != nil {
		close(c.loopStop)
		c.loopStop = nil
	}
}

// sample redraws the bars every sample interval and recomputes the elapsed
// seconds every tick interval until its loop id goes stale.
func (c *Controller) sample(id uint64, stop, failed <-chan struct{}) {
	frames := c.clock.NewTicker(c.sampleInterval)
	defer frames.Stop()
	ticks := c.clock.NewTicker(c.tickInterval)
	defer ticks.Stop()

	buf := make([]float32, DefaultWindow)
	for {
		select {
		case <-stop:
			return
		case <-failed:
			c.mu.Lock()
			if id == c.loopID {
				c.captureFailedLocked()
			}
			c.mu.Unlock()
			return
		case <-frames.Chan():
			c.mu.Lock()
			if id != c.loopID {
				c.mu.Unlock()
				return
			}
			c.analyser.TimeDomain(buf)
			c.levels = c.meter.Levels(buf)
			c.observer.LevelsChanged(append([]float64(nil), c.levels...))
			c.mu.Unlock()
		case <-ticks.Chan():
			c.mu.Lock()
			if id != c.loopID {
				c.mu.Unlock()
				return
			}
			if e := roundSeconds(c.elapsedLocked()); e != c.elapsed {
				c.elapsed = e
				c.observer.ElapsedChanged(e)
			}
			c.mu.Unlock()
		}
	}
}

// captureFailedLocked ends a take whose device stopped delivering audio.
// The partial take is dropped and the microphone released.
func (c *Controller) captureFailedLocked() {
	c.logger.Error("microphone failed during recording", zap.Error(c.recorder.Err()))
	c.notifier.Error("The microphone stopped responding. The recording was discarded.")
	c.intent = intentDiscard
	if _, err := c.finishLocked(); err != nil {
		c.logger.Warn("discard failed recording", zap.Error(err))
	}
}

func roundSeconds(d time.Duration) int {
	return int(math.Round(d.Seconds()))
}
