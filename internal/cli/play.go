package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rubiojr/lunarvox/internal/chat"
	"github.com/rubiojr/lunarvox/internal/output"
	"github.com/rubiojr/lunarvox/internal/waveform"
	"github.com/rubiojr/lunarvox/internal/waveform/beepengine"
)

func NewPlayCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "play <file|message-id>",
		Short: "Play a recording or a sent voice message",
		Long:  "Play a WAV or Ogg Opus file, or a message from the configured thread, with its waveform. Ctrl+C stops playback.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(os.Stderr)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			target := args[0]
			if _, err := os.Stat(target); err == nil {
				return playLocator(ctx, deps, f, target, 0)
			}

			st, err := openStore(deps.Config)
			if err != nil {
				return err
			}
			defer st.Close()
			m, err := newThread(deps, st).Message(ctx, target)
			if errors.Is(err, chat.ErrNotFound) {
				return fmt.Errorf("no file or message named %q", target)
			}
			if err != nil {
				return err
			}
			ref := deps.Blobs.Put(m.Audio, m.MIMEType)
			defer deps.Blobs.Revoke(ref)
			return playLocator(ctx, deps, f, ref.String(), float64(m.DurationSeconds))
		},
	}
}

// playLocator plays locator once through the speaker. A positive
// duration overrides the one measured by the engine.
func playLocator(ctx context.Context, deps *Dependencies, f *output.Formatter, locator string, duration float64) error {
	done := make(chan struct{}, 1)
	p := waveform.New(beepengine.Factory{Blobs: deps.Blobs},
		waveform.WithLogger(deps.Logger),
		waveform.WithContainer(os.Stderr),
		waveform.WithBars(deps.Config.Bars*4),
		waveform.OnFinished(func() {
			select {
			case done <- struct{}{}:
			default:
			}
		}),
	)
	defer p.Close()

	src := waveform.Source{Locator: locator}
	if duration > 0 {
		src.Duration = &duration
	}
	if err := p.Load(ctx, src); err != nil {
		return err
	}
	if err := p.Wait(ctx); err != nil {
		return fmt.Errorf("load %s: %w", locator, err)
	}
	if err := p.Toggle(); err != nil {
		return err
	}
	f.Playing(p.DurationLabel())

	select {
	case <-done:
		f.PlaybackFinished()
		return nil
	case <-ctx.Done():
		return nil
	}
}
