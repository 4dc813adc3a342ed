// Package timefmt renders playback and recording times as M:SS labels.
package timefmt

import (
	"fmt"
	"math"
	"time"
)

// Format renders seconds as M:SS with unpadded minutes.
// Negative and NaN values render as "0:00".
func Format(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "0:00"
	}
	total := int(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// FormatOptional is Format for a value that may be unknown.
func FormatOptional(seconds *float64) string {
	if seconds == nil {
		return "0:00"
	}
	return Format(*seconds)
}

// FormatDuration formats d with Format.
func FormatDuration(d time.Duration) string {
	return Format(d.Seconds())
}
