package cmd

import (
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new fuzzing session in the background",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startSession(cmd)
	},
}

func startSession(cmd *cobra.Command) error {
	ctl, err := newController()
	if err != nil {
		return err
	}
	rec, err := ctl.Start(cmd.Context(), GetConfig())
	if err != nil {
		return err
	}
	cmd.Printf("Session %s started (%s, process group %d).\n", rec.Name, rec.Backend, rec.PGID)
	cmd.Printf("Run directory: %s\n", rec.RunDir)
	cmd.Printf("Use 'fuzzherd attach %s' to watch it.\n", rec.Name)
	return nil
}

func init() {
	rootCmd.AddCommand(startCmd)
}
