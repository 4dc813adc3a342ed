package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rubiojr/lunarvox/internal/output"
	"github.com/rubiojr/lunarvox/internal/timefmt"
)

func NewMessagesCmd(deps *Dependencies) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "messages",
		Short: "List voice messages sent to the thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := output.NewFormatter(os.Stdout)

			st, err := openStore(deps.Config)
			if err != nil {
				return err
			}
			defer st.Close()

			msgs, err := newThread(deps, st).Messages(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				f.Info("No messages yet.")
				return nil
			}

			f.MessageListHeader(deps.Config.Thread)
			for _, m := range msgs {
				text := m.Translation
				if text == "" {
					text = m.Transcript
				}
				f.MessageListItem(m.ID, m.SentAt.Local().Format("2006-01-02 15:04"), timefmt.Format(float64(m.DurationSeconds)), text)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of messages to show (0 for all)")

	return cmd
}
