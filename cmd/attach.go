package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/fuzzherd/internal/mux"
)

var attachCmd = &cobra.Command{
	Use:   "attach <session>",
	Short: "Connect the terminal to a running session",
	Long: `Attach connects the terminal to a session's multiplexer window. Sessions
started without tmux have no window; for those the live statistics view is
shown instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctl, err := newController()
		if err != nil {
			return err
		}
		err = ctl.Attach(cmd.Context(), args[0])
		if errors.Is(err, mux.ErrAttachUnsupported) {
			logger.Debug("no multiplexer window, falling back to the live view", "session", args[0])
			return liveView(cmd, ctl, args[0])
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(attachCmd)
}
