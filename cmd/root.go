package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/fuzzherd/internal/config"
	"github.com/fakeyudi/fuzzherd/internal/controller"
	"github.com/fakeyudi/fuzzherd/internal/logging"
	"github.com/fakeyudi/fuzzherd/internal/mux"
	"github.com/fakeyudi/fuzzherd/internal/procgroup"
	"github.com/fakeyudi/fuzzherd/internal/session"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// logger is the CLI logger, populated in PersistentPreRunE.
var logger = slog.New(slog.DiscardHandler)

// nowFunc stamps foreground run tags.
var nowFunc = time.Now

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "fuzzherd",
	Short: "Run and control long-lived mutation fuzzing sessions",
	Long: `fuzzherd cycles a directory of sample inputs through an external mutator,
runs the target on every mutant and keeps the ones that crash, hang or exit
with a recognized code. Sessions run detached and can be paused, resumed,
stopped and inspected from any terminal.

Without a subcommand, fuzzherd starts a new session.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startSession(cmd)
	},
}

// persistentPreRun is rootCmd's PersistentPreRunE. It is attached in init
// because it refers to rootCmd (via isStart), which would otherwise form an
// initialization cycle.
func persistentPreRun(cmd *cobra.Command, args []string) error {
	// First run: no config anywhere and a human at the keyboard.
	if isStart(cmd) && configPath == "" && !configExists() && term.IsTerminal(os.Stdin.Fd()) {
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), "  Welcome to fuzzherd! No configuration found.")
		if err := runSetup(cmd); err != nil {
			return err
		}
	}

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel)
	return nil
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}

func isStart(cmd *cobra.Command) bool {
	return cmd == rootCmd || cmd.Name() == "start"
}

func configExists() bool {
	if _, err := os.Stat(config.ProjectFile); err == nil {
		return true
	}
	p, err := config.GlobalPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// newController wires a Controller for the configured backend.
func newController() (*controller.Controller, error) {
	store, err := session.NewStore()
	if err != nil {
		return nil, err
	}
	sig := procgroup.OS{}
	m, err := mux.New(cfg.Multiplexer, sig)
	if err != nil {
		return nil, err
	}
	ctl := controller.New(store, m, sig, logger)
	ctl.Grace = cfg.Grace()

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating fuzzherd executable: %w", err)
	}
	ctl.Command = []string{exe, "run", "--log-level", cfg.LogLevel}
	if configPath != "" {
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return nil, err
		}
		ctl.Command = append(ctl.Command, "--config", abs)
	}
	if ctl.Dir, err = os.Getwd(); err != nil {
		return nil, err
	}
	return ctl, nil
}

// printWarning reports a no-op transition to the operator.
func printWarning(cmd *cobra.Command, w controller.Warning) {
	if w == "" {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	logger.Warn(string(w))
}

func init() {
	rootCmd.PersistentPreRunE = persistentPreRun
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file to use instead of ./"+config.ProjectFile)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")
}
