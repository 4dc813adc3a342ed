package recording

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap/zaptest"

	"github.com/rubiojr/lunarvox/internal/audio"
	"github.com/rubiojr/lunarvox/internal/blob"
	"github.com/rubiojr/lunarvox/internal/capture"
	"github.com/rubiojr/lunarvox/internal/capture/synthetic"
)

type recordingSink struct {
	mu     sync.Mutex
	assets []Asset
	err    error
}

func (s *recordingSink) Send(_ context.Context, a Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.assets = append(s.assets, a)
	return nil
}

func (s *recordingSink) sent() []Asset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Asset(nil), s.assets...)
}

type recordingObserver struct {
	mu       sync.Mutex
	states   []Session
	levels   [][]float64
	elapsed  []int
	sampling int // level updates above rest
}

func (o *recordingObserver) StateChanged(s Session) {
	o.mu.Lock()
	o.states = append(o.states, s)
	o.mu.Unlock()
}

func (o *recordingObserver) LevelsChanged(l []float64) {
	o.mu.Lock()
	o.levels = append(o.levels, l)
	for _, v := range l {
		if v > RestLevel {
			o.sampling++
			break
		}
	}
	o.mu.Unlock()
}

func (o *recordingObserver) ElapsedChanged(s int) {
	o.mu.Lock()
	o.elapsed = append(o.elapsed, s)
	o.mu.Unlock()
}

func (o *recordingObserver) counts() (levels, elapsed, sampling int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.levels), len(o.elapsed), o.sampling
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

// fakeClock is the part of the clockwork fake clock the tests drive.
type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

type fixture struct {
	c        *Controller
	mic      *synthetic.Microphone
	blobs    *blob.Store
	sink     *recordingSink
	clock    fakeClock
	observer *recordingObserver
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mic:      synthetic.New(),
		blobs:    blob.NewStore(),
		sink:     &recordingSink{},
		clock:    clockwork.NewFakeClock(),
		observer: &recordingObserver{},
		notifier: &recordingNotifier{},
	}
	f.c = New(f.mic, f.blobs, f.sink,
		WithLogger(zaptest.NewLogger(t)),
		WithClock(f.clock),
		WithObserver(f.observer),
		WithNotifier(f.notifier),
		WithEncoder(audio.Encoder{Format: audio.FormatWAV}),
		WithRand(rand.New(rand.NewPCG(1, 2))),
	)
	t.Cleanup(func() { f.c.Close() })
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// Let the synthetic stream deliver a few chunks.
	time.Sleep(5 * time.Millisecond)
}

// eventually advances the fake clock in steps until cond holds.
func eventually(t *testing.T, fc fakeClock, step time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		fc.Advance(step)
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStopThenDiscard(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.clock.Advance(3 * time.Second)
	asset, err := f.c.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if asset.DurationSeconds != 3 {
		t.Errorf("Expected duration 3, got %d", asset.DurationSeconds)
	}
	if asset.MIMEType != audio.MIMEWAV {
		t.Errorf("Expected %s, got %s", audio.MIMEWAV, asset.MIMEType)
	}

	s := f.c.Session()
	if s.Status != StatusPreview || s.Preview == nil || s.Preview.Ref != asset.Ref {
		t.Fatalf("Expected preview of %s, got %+v", asset.Ref, s)
	}
	if _, err := f.blobs.Get(asset.Ref); err != nil {
		t.Errorf("Expected playable preview, got %v", err)
	}
	if f.mic.Held() != 0 {
		t.Errorf("Expected microphone released on stop, %d held", f.mic.Held())
	}

	f.c.Discard()
	if s := f.c.Session(); s.Status != StatusIdle || s.Preview != nil {
		t.Errorf("Expected idle after discard, got %+v", s)
	}
	if f.blobs.Live() != 0 {
		t.Errorf("Expected preview revoked, %d blobs live", f.blobs.Live())
	}
	if len(f.sink.sent()) != 0 {
		t.Error("Expected nothing sent")
	}
}

func TestStopThenSend(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.clock.Advance(3 * time.Second)
	if _, err := f.c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	asset, err := f.c.Send(context.Background())
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	sent := f.sink.sent()
	if len(sent) != 1 {
		t.Fatalf("Expected exactly one sent asset, got %d", len(sent))
	}
	if sent[0].DurationSeconds != 3 || sent[0].Ref != asset.Ref {
		t.Errorf("Unexpected sent asset %+v", sent[0])
	}
	if s := f.c.Session(); s.Status != StatusIdle {
		t.Errorf("Expected idle after send, got %s", s.Status)
	}
	// Ownership passed to the sink; the controller must not revoke it.
	if f.blobs.Live() != 1 {
		t.Errorf("Expected sent asset to stay live, %d blobs live", f.blobs.Live())
	}

	if _, err := f.c.Send(context.Background()); !errors.Is(err, ErrNoPreview) {
		t.Errorf("Expected ErrNoPreview on second send, got %v", err)
	}
}

func TestStopAndSendBypassesPreview(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.clock.Advance(2 * time.Second)
	asset, err := f.c.StopAndSend(context.Background())
	if err != nil {
		t.Fatalf("StopAndSend failed: %v", err)
	}
	if asset.DurationSeconds != 2 {
		t.Errorf("Expected duration 2, got %d", asset.DurationSeconds)
	}
	if len(f.sink.sent()) != 1 {
		t.Errorf("Expected one sent asset, got %d", len(f.sink.sent()))
	}
	for _, s := range f.observer.states {
		if s.Status == StatusPreview {
			t.Error("Expected no preview state on immediate send")
		}
	}
	if s := f.c.Session(); s.Status != StatusIdle {
		t.Errorf("Expected idle, got %s", s.Status)
	}
}

func TestMinimumDurationIsOneSecond(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	asset, err := f.c.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if asset.DurationSeconds != 1 {
		t.Errorf("Expected minimum duration 1, got %d", asset.DurationSeconds)
	}
}

func TestDurationExcludesPauses(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.clock.Advance(2 * time.Second)
	f.c.Pause()
	f.c.Pause()
	f.clock.Advance(5 * time.Second)
	f.c.Resume()
	f.c.Resume()
	f.clock.Advance(time.Second)

	asset, err := f.c.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if asset.DurationSeconds != 3 {
		t.Errorf("Expected 3 recorded seconds, got %d", asset.DurationSeconds)
	}
}

func TestStopWhilePausedUsesPauseTime(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.clock.Advance(4 * time.Second)
	f.c.Pause()
	f.clock.Advance(10 * time.Second)

	asset, err := f.c.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if asset.DurationSeconds != 4 {
		t.Errorf("Expected 4 recorded seconds, got %d", asset.DurationSeconds)
	}
}

func TestPauseResumeOutsideRecordingAreNoops(t *testing.T) {
	f := newFixture(t)
	f.c.Pause()
	f.c.Resume()
	if s := f.c.Session(); s.Status != StatusIdle || s.Paused {
		t.Errorf("Expected untouched idle state, got %+v", s)
	}
	if len(f.observer.states) != 0 {
		t.Errorf("Expected no state updates, got %d", len(f.observer.states))
	}

	f.start(t)
	f.c.Resume()
	if s := f.c.Session(); s.Paused {
		t.Error("Resume on an active take must not pause it")
	}
}

func TestResourcesReleasedOnEveryExit(t *testing.T) {
	ctx := context.Background()
	finishers := map[string]func(c *Controller){
		"discard":       func(c *Controller) { c.Discard() },
		"stop":          func(c *Controller) { c.Stop() },
		"stop-and-send": func(c *Controller) { c.StopAndSend(ctx) },
		"close":         func(c *Controller) { c.Close() },
	}
	sequences := map[string][]string{
		"plain":          nil,
		"paused":         {"pause"},
		"pause-resume":   {"pause", "resume"},
		"double-toggles": {"pause", "pause", "resume", "resume", "pause"},
	}

	for fname, finish := range finishers {
		for sname, seq := range sequences {
			t.Run(fname+"/"+sname, func(t *testing.T) {
				f := newFixture(t)
				f.start(t)
				for _, step := range seq {
					f.clock.Advance(500 * time.Millisecond)
					if step == "pause" {
						f.c.Pause()
					} else {
						f.c.Resume()
					}
				}

				finish(f.c)

				if f.mic.Opens() != 1 || f.mic.Closes() != 1 {
					t.Errorf("Expected one open and one close, got %d and %d", f.mic.Opens(), f.mic.Closes())
				}
				_, _, closes := f.mic.Streams()[0].Counts()
				if closes != 1 {
					t.Errorf("Expected stream closed exactly once, got %d", closes)
				}

				levels, elapsed, _ := f.observer.counts()
				for i := 0; i < 5; i++ {
					f.clock.Advance(time.Second)
					time.Sleep(2 * time.Millisecond)
				}
				l2, e2, _ := f.observer.counts()
				if l2 != levels || e2 != elapsed {
					t.Errorf("Expected no updates after release, got %d level and %d elapsed updates", l2-levels, e2-elapsed)
				}
			})
		}
	}
}

func TestLevelsAndElapsedWhileRecording(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	eventually(t, f.clock, DefaultSampleInterval, func() bool {
		_, _, sampling := f.observer.counts()
		return sampling > 0
	})
	for _, v := range f.c.Levels() {
		if v < RestLevel || v > 1 {
			t.Errorf("Level %v out of range", v)
		}
	}
	if n := len(f.c.Levels()); n != DefaultBars {
		t.Errorf("Expected %d bars, got %d", DefaultBars, n)
	}

	eventually(t, f.clock, DefaultTickInterval, func() bool {
		return f.c.Session().Elapsed >= 1
	})

	f.c.Pause()
	for _, v := range f.c.Levels() {
		if v != RestLevel {
			t.Fatalf("Expected resting bars while paused, got %v", f.c.Levels())
		}
	}
	before := f.c.Session().Elapsed
	_, _, sampling := f.observer.counts()
	for i := 0; i < 5; i++ {
		f.clock.Advance(time.Second)
		time.Sleep(2 * time.Millisecond)
	}
	if got := f.c.Session().Elapsed; got != before {
		t.Errorf("Expected elapsed frozen at %d while paused, got %d", before, got)
	}
	if _, _, s := f.observer.counts(); s != sampling {
		t.Error("Expected no sampling while paused")
	}
}

func TestStartFailureStaysIdle(t *testing.T) {
	f := newFixture(t)
	f.mic.Fail(errors.New("permission denied"))

	err := f.c.Start(context.Background())
	if !errors.Is(err, capture.ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}
	if f.notifier.count() != 1 {
		t.Errorf("Expected one user notification, got %d", f.notifier.count())
	}
	if s := f.c.Session(); s.Status != StatusIdle {
		t.Errorf("Expected idle, got %s", s.Status)
	}
	if f.mic.Held() != 0 {
		t.Errorf("Expected no held device, got %d", f.mic.Held())
	}

	// The user may simply try again.
	f.mic.Fail(nil)
	f.start(t)
	if s := f.c.Session(); s.Status != StatusRecording {
		t.Errorf("Expected recording on retry, got %s", s.Status)
	}
}

func TestStartWhileRecordingIsBusy(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	if err := f.c.Start(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	if f.mic.Opens() != 1 {
		t.Errorf("Expected a single device acquisition, got %d", f.mic.Opens())
	}
}

func TestNewTakeSupersedesPreview(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	first, err := f.c.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	f.start(t)
	if _, err := f.blobs.Get(first.Ref); !errors.Is(err, blob.ErrNotFound) {
		t.Errorf("Expected first preview revoked when a new take starts, got %v", err)
	}

	second, err := f.c.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if f.blobs.Live() != 1 {
		t.Errorf("Expected exactly one live preview, got %d", f.blobs.Live())
	}
	if s := f.c.Session(); s.Preview == nil || s.Preview.Ref != second.Ref {
		t.Errorf("Expected second preview held, got %+v", s.Preview)
	}
}

func TestFailedStartKeepsPreview(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	held, err := f.c.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	f.mic.Fail(errors.New("permission denied"))
	if err := f.c.Start(context.Background()); !errors.Is(err, capture.ErrDeviceUnavailable) {
		t.Fatalf("Expected ErrDeviceUnavailable, got %v", err)
	}
	s := f.c.Session()
	if s.Status != StatusPreview || s.Preview == nil || s.Preview.Ref != held.Ref {
		t.Fatalf("Expected preview of %s kept, got %+v", held.Ref, s)
	}
	if _, err := f.blobs.Get(held.Ref); err != nil {
		t.Errorf("Expected preview still playable, got %v", err)
	}
	if _, err := f.c.Send(context.Background()); err != nil {
		t.Errorf("Expected kept preview to be sendable, got %v", err)
	}
}

func TestDeviceFailureDuringTakeDiscards(t *testing.T) {
	f := newFixture(t)
	f.mic.FailReads(3, errors.New("device unplugged"))
	f.start(t)

	eventually(t, f.clock, 100*time.Millisecond, func() bool {
		return f.c.Session().Status == StatusIdle
	})
	if f.notifier.count() != 1 {
		t.Errorf("Expected the user to be told once, got %d notifications", f.notifier.count())
	}
	if f.mic.Held() != 0 {
		t.Errorf("Expected microphone released, %d held", f.mic.Held())
	}
	if f.blobs.Live() != 0 || len(f.sink.sent()) != 0 {
		t.Errorf("Expected the partial take dropped, %d blobs live, %d sent", f.blobs.Live(), len(f.sink.sent()))
	}

	_, elapsed, _ := f.observer.counts()
	f.clock.Advance(10 * time.Second)
	time.Sleep(5 * time.Millisecond)
	if _, after, _ := f.observer.counts(); after != elapsed {
		t.Errorf("Expected elapsed updates to stop, got %d more", after-elapsed)
	}
	if _, err := f.c.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Expected ErrNotRecording after the failure, got %v", err)
	}
}

func TestPauseClearsAnalyser(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.c.Pause()

	buf := make([]float32, DefaultWindow)
	f.c.mu.Lock()
	f.c.analyser.TimeDomain(buf)
	f.c.mu.Unlock()
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("Expected silence after pause, sample %d is %v", i, v)
		}
	}
}

func (c *Controller) isAcquiring() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquiring
}

func TestStaleAcquisitionIsDropped(t *testing.T) {
	for name, cancel := range map[string]func(c *Controller){
		"discard": func(c *Controller) { c.Discard() },
		"close":   func(c *Controller) { c.Close() },
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			release := f.mic.Hold()

			errc := make(chan error, 1)
			go func() { errc <- f.c.Start(context.Background()) }()

			deadline := time.Now().Add(2 * time.Second)
			for !f.c.isAcquiring() {
				if time.Now().After(deadline) {
					t.Fatal("Start never began acquiring")
				}
				time.Sleep(time.Millisecond)
			}

			cancel(f.c)
			release()

			if err := <-errc; !errors.Is(err, ErrAborted) {
				t.Fatalf("Expected ErrAborted, got %v", err)
			}
			if s := f.c.Session(); s.Status != StatusIdle {
				t.Errorf("Expected idle, got %s", s.Status)
			}
			if f.mic.Held() != 0 {
				t.Errorf("Expected late stream released, %d held", f.mic.Held())
			}
			if len(f.observer.states) != 0 {
				t.Errorf("Expected no state updates from a stale request, got %d", len(f.observer.states))
			}
		})
	}
}

func TestSendFailureKeepsPreview(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	if _, err := f.c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	f.sink.err = errors.New("offline")
	if _, err := f.c.Send(context.Background()); err == nil {
		t.Fatal("Expected send error")
	}
	s := f.c.Session()
	if s.Status != StatusPreview || s.Preview == nil {
		t.Fatalf("Expected preview restored for retry, got %+v", s)
	}
	if f.notifier.count() != 1 {
		t.Errorf("Expected one notification, got %d", f.notifier.count())
	}

	f.sink.err = nil
	if _, err := f.c.Send(context.Background()); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if len(f.sink.sent()) != 1 {
		t.Errorf("Expected one sent asset, got %d", len(f.sink.sent()))
	}
}

func TestStopOutsideRecording(t *testing.T) {
	f := newFixture(t)
	if _, err := f.c.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Expected ErrNotRecording, got %v", err)
	}
	if _, err := f.c.StopAndSend(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Expected ErrNotRecording, got %v", err)
	}
}

func TestCloseRevokesPreview(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	if _, err := f.c.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	f.c.Close()
	if f.blobs.Live() != 0 {
		t.Errorf("Expected preview revoked on close, %d live", f.blobs.Live())
	}
	if err := f.c.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
