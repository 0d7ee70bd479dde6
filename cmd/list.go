package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/fuzzherd/internal/session"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

var stateColors = map[session.State]lipgloss.Color{
	session.Running: lipgloss.Color("10"),
	session.Paused:  lipgloss.Color("11"),
	session.Stopped: lipgloss.Color("8"),
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List fuzzing sessions and their state",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctl, err := newController()
		if err != nil {
			return err
		}
		sessions, err := ctl.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			cmd.Println("no sessions")
			return nil
		}

		states := make([]session.State, len(sessions))
		rows := make([][]string, len(sessions))
		for i, s := range sessions {
			states[i] = s.State
			pgid := "-"
			if s.PGID > 0 {
				pgid = strconv.Itoa(s.PGID)
			}
			created := "-"
			if !s.Created.IsZero() {
				created = s.Created.Local().Format("2006-01-02 15:04:05")
			}
			rows[i] = []string{s.Name, string(s.State), pgid, orDash(s.Backend), created, orDash(s.RunDir)}
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("SESSION", "STATE", "PGID", "BACKEND", "CREATED", "RUN DIR").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				st := lipgloss.NewStyle().Padding(0, 1)
				if row == table.HeaderRow {
					return headerStyle.Padding(0, 1)
				}
				if col == 1 && row >= 0 && row < len(states) {
					return st.Foreground(stateColors[states[row]])
				}
				return st
			})
		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(listCmd)
}
