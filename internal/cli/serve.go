package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rubiojr/lunarvox/internal/output"
	"github.com/rubiojr/lunarvox/internal/server"
)

func NewServeCmd(deps *Dependencies) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat view over HTTP and websockets",
		Long:  "Serve the chat view API. Every websocket connection gets its own recording session on the host microphone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(os.Stderr)
			if listen == "" {
				listen = deps.Config.Listen
			}

			mic, err := newMicrophone(deps.Config)
			if err != nil {
				return err
			}
			st, err := openStore(deps.Config)
			if err != nil {
				return err
			}
			defer st.Close()
			ctrlOpts, err := controllerOptions(deps)
			if err != nil {
				return err
			}

			srv := server.New(server.Options{
				Mic:        mic,
				Blobs:      deps.Blobs,
				Thread:     newThread(deps, st),
				Controller: ctrlOpts,
				Logger:     deps.Logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(listen) }()
			f.Serving(listen)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			deps.Logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				deps.Logger.Warn("shutdown", zap.Error(err))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (default from config)")

	return cmd
}
