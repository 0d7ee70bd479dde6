package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/fuzzherd/internal/controller"
	"github.com/fakeyudi/fuzzherd/internal/session"
	"github.com/fakeyudi/fuzzherd/internal/tui"
)

var viewCmd = &cobra.Command{
	Use:   "view <session>",
	Short: "Open the live statistics view of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctl, err := newController()
		if err != nil {
			return err
		}
		return liveView(cmd, ctl, args[0])
	},
}

// liveView runs the statistics view for name until the user quits.
func liveView(cmd *cobra.Command, ctl *controller.Controller, name string) error {
	ctx := cmd.Context()
	st := ctl.Lookup(ctx, name)
	if st.RunDir == "" {
		return fmt.Errorf("%w: %s", controller.ErrSessionNotFound, name)
	}
	return tui.Run(ctx, tui.Source{
		Session: name,
		RunDir:  st.RunDir,
		State: func() session.State {
			return ctl.Lookup(context.WithoutCancel(ctx), name).State
		},
	})
}

func init() {
	rootCmd.AddCommand(viewCmd)
}
