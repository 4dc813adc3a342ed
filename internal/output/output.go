package output

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/rubiojr/lunarvox/internal/recording"
	"github.com/rubiojr/lunarvox/internal/timefmt"
)

var bars = []rune("▁▂▃▄▅▆▇█")

// Formatter prints user-facing status lines. It implements
// recording.Notifier.
type Formatter struct {
	mu   sync.Mutex
	w    io.Writer
	live bool // a \r status line is on screen
}

var _ recording.Notifier = (*Formatter)(nil)

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) printf(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.live {
		fmt.Fprint(f.w, "\n")
		f.live = false
	}
	fmt.Fprintf(f.w, format, args...)
}

func (f *Formatter) RecordingStarted() {
	f.printf("🎙️  Recording... (Ctrl+C to stop, p to pause)\n")
}

func (f *Formatter) Paused(paused bool) {
	if paused {
		f.printf("⏸️  Paused\n")
	} else {
		f.printf("▶️  Resumed\n")
	}
}

// Levels redraws the live meter in place.
func (f *Formatter) Levels(levels []float64, elapsed int) {
	var b strings.Builder
	for _, l := range levels {
		l = min(max(l, 0), 1)
		b.WriteRune(bars[int(math.Round(l*float64(len(bars)-1)))])
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintf(f.w, "\r🔴 %s %s ", timefmt.Format(float64(elapsed)), b.String())
	f.live = true
}

func (f *Formatter) RecordingStopped(a recording.Asset) {
	f.printf("⏹️  Recording stopped (%s, %s)\n", timefmt.Format(float64(a.DurationSeconds)), formatBytes(a.Size))
}

func (f *Formatter) Sent(a recording.Asset) {
	f.printf("📨 Voice message sent (%s)\n", timefmt.Format(float64(a.DurationSeconds)))
}

func (f *Formatter) Discarded() {
	f.printf("🗑️  Recording discarded\n")
}

func (f *Formatter) Saved(path string) {
	f.printf("✅ Saved: %s\n", path)
}

func (f *Formatter) Playing(label string) {
	f.printf("🔊 Playing (%s)\n", label)
}

func (f *Formatter) PlaybackFinished() {
	f.printf("⏹️  Playback finished\n")
}

func (f *Formatter) Serving(addr string) {
	f.printf("🌐 Listening on http://%s\n", addr)
}

func (f *Formatter) MessageListHeader(thread string) {
	f.printf("💬 %s:\n\n", thread)
}

func (f *Formatter) MessageListItem(id, sentAt, duration, transcript string) {
	if transcript != "" {
		f.printf("  %s  %s  %s  %q\n", sentAt, duration, id, transcript)
		return
	}
	f.printf("  %s  %s  %s\n", sentAt, duration, id)
}

func (f *Formatter) Error(msg string) {
	f.printf("❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	f.printf("ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	f.printf("✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	f.printf("⚠️  %s\n", msg)
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		f.printf("  ✅ %-20s %s\n", name, detail)
	} else {
		f.printf("  ❌ %-20s %s\n", name, detail)
	}
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
