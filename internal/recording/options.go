package recording

import (
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/rubiojr/lunarvox/internal/audio"
)

const (
	// DefaultSampleInterval approximates one animation frame.
	DefaultSampleInterval = time.Second / 60
	// DefaultTickInterval is how often elapsed time is recomputed.
	DefaultTickInterval = 250 * time.Millisecond
)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithNotifier sets where user-facing errors are shown.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithObserver sets the receiver of state, level and elapsed updates.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithEncoder sets how finished takes are encoded.
func WithEncoder(e audio.Encoder) Option {
	return func(c *Controller) { c.encoder = e }
}

// WithBars sets the number of amplitude bars.
func WithBars(n int) Option {
	return func(c *Controller) { c.bars = n }
}

// WithRand seeds bar jitter, mainly for tests.
func WithRand(rng *rand.Rand) Option {
	return func(c *Controller) { c.rng = rng }
}

// WithSampleInterval sets the amplitude refresh period.
func WithSampleInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.sampleInterval = d
		}
	}
}

// WithTickInterval sets the elapsed-time refresh period, capped at one second.
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.tickInterval = min(d, time.Second)
		}
	}
}
