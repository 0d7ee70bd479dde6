package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/fuzzherd/internal/controller"
	"github.com/fakeyudi/fuzzherd/internal/stats"
)

var statusCmd = &cobra.Command{
	Use:   "status [session]",
	Short: "Print the latest statistics of a session",
	Long: `Status prints the most recent statistics a session published. Without a
session name the most recently created session is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctl, err := newController()
		if err != nil {
			return err
		}

		var st controller.Status
		if len(args) == 1 {
			st = ctl.Lookup(cmd.Context(), args[0])
		} else {
			all, err := ctl.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range all {
				if s.RunDir != "" && s.Created.After(st.Created) {
					st = s
				}
			}
			if st.Name == "" {
				cmd.Println("no sessions")
				return nil
			}
		}
		if st.RunDir == "" {
			return fmt.Errorf("%w: %s", controller.ErrSessionNotFound, st.Name)
		}

		cmd.Printf("Session: %s (%s)\n\n", st.Name, st.State)
		snap, err := stats.ReadFeed(filepath.Join(st.RunDir, stats.FeedFile))
		if errors.Is(err, fs.ErrNotExist) {
			cmd.Println("no statistics yet")
			return nil
		}
		if err != nil {
			return err
		}
		out, err := (&stats.TextRenderer{}).Render(*snap)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
