package audio

const (
	targetPeak = 0.9
	// maxGain keeps near-silent takes from being blown up into noise.
	maxGain = 8
)

// Normalize scales samples so the peak amplitude reaches 0.9, with the gain
// capped at 8x. It returns the detected peak and the gain applied.
// Below a peak of 0.001 nothing is scaled and gain is 1.
func Normalize(samples []float32) (peak, gain float32) {
	for _, s := range samples {
		peak = max(peak, s, -s)
	}
	if peak < 0.001 {
		return peak, 1
	}
	gain = min(targetPeak/peak, maxGain)
	for i := range samples {
		samples[i] *= gain
	}
	return peak, gain
}
