package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/fuzzherd/internal/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure fuzzherd defaults (re-run anytime to edit settings)",
	// Bypass the normal PersistentPreRunE so setup works before a config exists.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(cmd)
	},
}

// runSetup runs the interactive wizard and saves the answers as the global
// configuration.
func runSetup(cmd *cobra.Command) error {
	path, err := config.GlobalPath()
	if err != nil {
		return err
	}

	// Existing global settings become the defaults.
	existing := config.Defaults()
	if g, err := config.LoadGlobal(); err == nil {
		existing = *g
	}

	out := cmd.OutOrStdout()
	c, err := config.RunSetup(cmd.InOrStdin(), out, existing)
	if err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}
	if err := config.Save(path, c); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Fprintf(out, "  ✓ Config saved to %s\n", path)

	if _, err := config.Preflight(c); err != nil {
		fmt.Fprintf(out, "  ⚠ %v\n", err)
		fmt.Fprintln(out, "    Fix it before starting a session, or re-run: fuzzherd setup")
	}
	fmt.Fprintln(out, "  Setup complete. Run 'fuzzherd start' to begin a session.")
	fmt.Fprintln(out)
	return nil
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
