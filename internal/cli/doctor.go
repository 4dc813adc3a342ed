package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rubiojr/lunarvox/internal/doctor"
	"github.com/rubiojr/lunarvox/internal/output"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(os.Stderr)
			f.Info("lunarvox preflight checks (backend " + deps.Config.Backend + "):")
			if !doctor.Report(f, doctor.RunChecks(deps.Config)) {
				return ErrReported
			}
			f.Success("All prerequisites met. Ready to record!")
			return nil
		},
	}
}
