package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/fuzzherd/internal/driver"
	"github.com/fakeyudi/fuzzherd/internal/logging"
	"github.com/fakeyudi/fuzzherd/internal/session"
)

var runSession string

// runCmd is the driver entry point launched inside a session. Run by hand it
// fuzzes in the foreground without a session record.
var runCmd = &cobra.Command{
	Use:    "run",
	Short:  "Run the fuzzing loop in the foreground",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := GetConfig()
		opts := driver.Options{
			Config:  c,
			Session: runSession,
			Console: cmd.OutOrStdout(),
		}

		if runSession != "" {
			store, err := session.NewStore()
			if err != nil {
				return err
			}
			rec, err := store.Load(runSession)
			if err != nil {
				return fmt.Errorf("loading session %s: %w", runSession, err)
			}
			opts.Store = store
			opts.RunTag = rec.RunTag
			opts.RunDir = rec.RunDir
		}
		if opts.RunTag == "" {
			opts.RunTag = driver.NewRunTag(nowFunc())
		}
		if opts.RunDir == "" {
			opts.RunDir = driver.RunDir(c, opts.RunTag)
		}
		if err := os.MkdirAll(opts.RunDir, 0o755); err != nil {
			return fmt.Errorf("creating run directory: %w", err)
		}

		runLog, err := os.OpenFile(filepath.Join(opts.RunDir, "run.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening run log: %w", err)
		}
		defer runLog.Close()
		opts.Log = logging.NewRun(cmd.ErrOrStderr(), runLog, c.LogLevel)

		d, err := driver.New(opts)
		if err != nil {
			opts.Log.Error("run could not start", "err", err)
			if opts.Store != nil {
				_ = opts.Store.Set(runSession, session.Stopped)
			}
			return err
		}
		return d.Run(cmd.Context())
	},
}

func init() {
	runCmd.Flags().StringVar(&runSession, "session", "", "session this run belongs to")
	rootCmd.AddCommand(runCmd)
}
