package recording

import (
	"math"
	"math/rand/v2"
)

const (
	// DefaultBars is the number of amplitude bars drawn while recording.
	DefaultBars = 14
	// DefaultWindow is how many recent samples each frame inspects.
	DefaultWindow = 1024
	// Every stride-th sample contributes to the RMS.
	defaultStride = 8
	// Speech rarely exceeds this RMS; it maps to a full bar.
	defaultCeiling = 0.25
	// RestLevel is the height of an idle bar.
	RestLevel = 0.08
	// Per-bar jitter factors are drawn from [jitterMin, 1).
	jitterMin = 0.55
)

// Meter turns time-domain samples into bar heights in [RestLevel, 1].
type Meter struct {
	bars    int
	stride  int
	ceiling float64
	rng     *rand.Rand
}

// NewMeter returns a meter with n bars. rng may be nil.
func NewMeter(n int, rng *rand.Rand) *Meter {
	if n <= 0 {
		n = DefaultBars
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Meter{bars: n, stride: defaultStride, ceiling: defaultCeiling, rng: rng}
}

// Bars returns the number of bars.
func (m *Meter) Bars() int { return m.bars }

// Level is the RMS of every stride-th sample divided by the ceiling,
// clamped to [0, 1].
func (m *Meter) Level(samples []float32) float64 {
	var sum float64
	n := 0
	for i := 0; i < len(samples); i += m.stride {
		v := float64(samples[i])
		sum += v * v
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Min(1, math.Sqrt(sum/float64(n))/m.ceiling)
}

// Levels returns one height per bar. Each bar scales the frame level by its
// own random factor so the bars don't move in lockstep.
func (m *Meter) Levels(samples []float32) []float64 {
	level := m.Level(samples)
	out := make([]float64, m.bars)
	for i := range out {
		jitter := jitterMin + (1-jitterMin)*m.rng.Float64()
		out[i] = math.Max(RestLevel, level*jitter)
	}
	return out
}

// Resting returns flat idle bars.
func (m *Meter) Resting() []float64 {
	out := make([]float64, m.bars)
	for i := range out {
		out[i] = RestLevel
	}
	return out
}
