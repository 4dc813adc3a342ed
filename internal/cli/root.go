package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rubiojr/lunarvox/config"
	"github.com/rubiojr/lunarvox/internal/blob"
	"github.com/rubiojr/lunarvox/internal/version"
)

type Dependencies struct {
	Config *config.Config
	// Logger is set by the root command before any subcommand runs.
	Logger *zap.Logger
	// Blobs holds recordings and previews for the lifetime of the process.
	Blobs *blob.Store
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "lunarvox",
		Short: "Record, preview and send voice messages",
		Long:  "A voice message recorder with live level bars, pause and resume, a playable preview, and delivery to a chat thread, Mattermost, and transcription.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(verbose)
			if err != nil {
				return err
			}
			deps.Logger = logger
			if deps.Blobs == nil {
				deps.Blobs = blob.NewStore()
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if deps.Logger != nil {
				deps.Logger.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewPlayCmd(deps))
	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewMessagesCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// newLogger logs warnings and above as JSON unless verbose is set.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}
