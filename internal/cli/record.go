package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rubiojr/lunarvox/internal/output"
	"github.com/rubiojr/lunarvox/internal/recording"
)

// ErrReported means the failure was already shown to the user.
var ErrReported = errors.New("already reported")

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var outPath string
	var send bool

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a voice message",
		Long: "Record from the microphone with live level bars.\n" +
			"While recording type p to pause or resume, d to discard, and s or an empty line to stop. Ctrl+C also stops.\n" +
			"Without --send the take is kept as a preview that can be played, sent or discarded.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd, deps, outPath, send)
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Also save the recording to this file")
	cmd.Flags().BoolVarP(&send, "send", "s", false, "Send as soon as recording stops, skipping the preview")

	return cmd
}

func runRecord(cmd *cobra.Command, deps *Dependencies, outPath string, send bool) error {
	f := output.NewFormatter(os.Stderr)

	mic, err := newMicrophone(deps.Config)
	if err != nil {
		return err
	}
	st, err := openStore(deps.Config)
	if err != nil {
		return err
	}
	defer st.Close()
	thread := newThread(deps, st)

	opts, err := controllerOptions(deps)
	if err != nil {
		return err
	}
	m := &meterLine{f: f}
	opts = append(opts, recording.WithNotifier(f), recording.WithObserver(m))
	c := recording.New(mic, deps.Blobs, thread, opts...)
	defer c.Close()

	lines := readLines(cmd.InOrStdin())

	interrupted, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	if err := c.Start(interrupted); err != nil {
		stop()
		if errors.Is(err, recording.ErrDeviceUnavailable) {
			return ErrReported
		}
		return err
	}
	f.RecordingStarted()

	discarded := captureLoop(interrupted, c, f, lines)
	// Ctrl+C exits normally again once the take is over.
	stop()
	if discarded {
		return nil
	}

	ctx := cmd.Context()
	if send && outPath == "" {
		asset, err := c.StopAndSend(ctx)
		if err != nil {
			return sendError(err)
		}
		f.Sent(asset)
		return nil
	}

	asset, err := c.Stop()
	if err != nil {
		return err
	}
	f.RecordingStopped(asset)
	if outPath != "" {
		if err := saveAsset(deps, asset, outPath); err != nil {
			return err
		}
		f.Saved(outPath)
	}
	if send {
		asset, err := c.Send(ctx)
		if err != nil {
			return sendError(err)
		}
		f.Sent(asset)
		return nil
	}

	return previewLoop(ctx, deps, c, f, lines, asset)
}

// captureLoop handles keyboard commands until the take should stop. It
// reports whether the take was discarded instead.
func captureLoop(ctx context.Context, c *recording.Controller, f *output.Formatter, lines <-chan string) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case line, ok := <-lines:
			if !ok {
				return false
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "p":
				togglePause(c)
				f.Paused(c.Session().Paused)
			case "d":
				c.Discard()
				f.Discarded()
				return true
			case "", "s":
				return false
			}
		}
	}
}

// togglePause pauses a running take or resumes a paused one. Either call
// is a no-op once the take has ended.
func togglePause(c *recording.Controller) {
	if c.Session().Paused {
		c.Resume()
	} else {
		c.Pause()
	}
}

func previewLoop(ctx context.Context, deps *Dependencies, c *recording.Controller, f *output.Formatter, lines <-chan string, asset recording.Asset) error {
	for {
		f.Info("s: send, p: play, d: discard")
		line, ok := <-lines
		if !ok {
			c.Discard()
			f.Discarded()
			return nil
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "s":
			sent, err := c.Send(ctx)
			if errors.Is(err, recording.ErrNoPreview) {
				return err
			}
			if err != nil {
				// The failure was shown and the preview kept; offer it again.
				deps.Logger.Debug("send failed", zap.Error(err))
				continue
			}
			f.Sent(sent)
			return nil
		case "p":
			if err := playLocator(ctx, deps, f, asset.Ref.String(), float64(asset.DurationSeconds)); err != nil {
				f.Error(err.Error())
			}
		case "d":
			c.Discard()
			f.Discarded()
			return nil
		}
	}
}

func sendError(err error) error {
	if errors.Is(err, recording.ErrNotRecording) || errors.Is(err, recording.ErrNoPreview) {
		return err
	}
	return ErrReported
}

func saveAsset(deps *Dependencies, asset recording.Asset, path string) error {
	b, err := deps.Blobs.Get(asset.Ref)
	if err != nil {
		return fmt.Errorf("read recording: %w", err)
	}
	if err := os.WriteFile(path, b.Data, 0o644); err != nil {
		return fmt.Errorf("save recording: %w", err)
	}
	return nil
}

// readLines forwards stdin lines until EOF.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			ch <- scanner.Text()
		}
	}()
	return ch
}

// meterLine draws the live level bars. It runs under the controller lock
// and only touches the formatter.
type meterLine struct {
	f *output.Formatter

	mu      sync.Mutex
	elapsed int
	paused  bool
}

func (m *meterLine) StateChanged(s recording.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elapsed = s.Elapsed
	m.paused = s.Paused
}

func (m *meterLine) LevelsChanged(levels []float64) {
	m.mu.Lock()
	elapsed, paused := m.elapsed, m.paused
	m.mu.Unlock()
	if !paused {
		m.f.Levels(levels, elapsed)
	}
}

func (m *meterLine) ElapsedChanged(seconds int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elapsed = seconds
}
