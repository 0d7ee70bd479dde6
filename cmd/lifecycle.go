package cmd

import (
	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <session>",
	Short: "Suspend a running session in place",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctl, err := newController()
		if err != nil {
			return err
		}
		w, err := ctl.Pause(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printWarning(cmd, w)
		if w == "" {
			cmd.Printf("Session %s paused.\n", args[0])
		}
		return nil
	},
}

var continueCmd = &cobra.Command{
	Use:     "continue <session>",
	Aliases: []string{"resume"},
	Short:   "Resume a paused session",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctl, err := newController()
		if err != nil {
			return err
		}
		w, err := ctl.Continue(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printWarning(cmd, w)
		if w == "" {
			cmd.Printf("Session %s resumed.\n", args[0])
		}
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <session>",
	Short: "Interrupt a session and mark it stopped",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctl, err := newController()
		if err != nil {
			return err
		}
		w, err := ctl.Stop(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printWarning(cmd, w)
		cmd.Printf("Session %s stopped.\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pauseCmd, continueCmd, stopCmd)
}
