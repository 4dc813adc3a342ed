package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rubiojr/lunarvox/internal/recording"
)

func TestLevelsLineIsTerminatedBeforeNextMessage(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)

	f.Levels([]float64{0, 0.5, 1}, 65)
	f.RecordingStopped(recording.Asset{DurationSeconds: 65, Size: 2048})

	got := buf.String()
	if !strings.HasPrefix(got, "\r🔴 1:05 ▁▅█ \n") {
		t.Errorf("Unexpected meter line %q", got)
	}
	if !strings.Contains(got, "Recording stopped (1:05, 2.0 KB)") {
		t.Errorf("Unexpected stop line %q", got)
	}
}

func TestError(t *testing.T) {
	var buf bytes.Buffer
	var n recording.Notifier = NewFormatter(&buf)
	n.Error("Could not access the microphone.")
	if buf.String() != "❌ Could not access the microphone.\n" {
		t.Errorf("Unexpected output %q", buf.String())
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int]string{
		12:      "12 B",
		1536:    "1.5 KB",
		3 << 20: "3.0 MB",
	}
	for n, want := range tests {
		if got := formatBytes(n); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
