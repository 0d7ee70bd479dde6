package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/fuzzherd/internal/controller"
	"github.com/fakeyudi/fuzzherd/internal/findings"
)

var findingsKind string

var findingsCmd = &cobra.Command{
	Use:   "findings <session>",
	Short: "List the artifacts a finished session retained",
	Long: `Findings lists the crashes, hangs and intentional exits a session kept,
with the sample, seed and intensity that reproduce each one. The index is
owned by the running driver, so the session must be stopped first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctl, err := newController()
		if err != nil {
			return err
		}
		st := ctl.Lookup(cmd.Context(), args[0])
		if st.Alive {
			return fmt.Errorf("%w: stop %s before reading its findings", findings.ErrLocked, st.Name)
		}
		if st.RunDir == "" {
			return fmt.Errorf("%w: %s", controller.ErrSessionNotFound, st.Name)
		}

		idx, err := findings.Open(findings.Config{
			Path:     filepath.Join(st.RunDir, findings.DirName),
			ReadOnly: true,
		})
		if err != nil {
			return err
		}
		defer idx.Close()

		prefix := ""
		if findingsKind != "" {
			prefix = findingsKind + "/"
		}
		list, err := idx.List(cmd.Context(), prefix)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			cmd.Println("no findings")
			return nil
		}

		rows := make([][]string, len(list))
		for i, f := range list {
			code := "-"
			if f.Kind == "intentional" {
				code = strconv.Itoa(f.Code)
			}
			rows[i] = []string{
				f.Kind,
				code,
				f.At.Local().Format("2006-01-02 15:04:05"),
				filepath.Base(f.Sample),
				strconv.FormatInt(f.Seed, 10),
				strconv.FormatFloat(f.Intensity, 'g', -1, 64),
				f.Artifact,
			}
		}
		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("KIND", "CODE", "FOUND", "SAMPLE", "SEED", "INTENSITY", "ARTIFACT").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle.Padding(0, 1)
				}
				return lipgloss.NewStyle().Padding(0, 1)
			})
		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return nil
	},
}

func init() {
	findingsCmd.Flags().StringVar(&findingsKind, "kind", "", "only show findings of this kind: crash, hang or intentional")
	rootCmd.AddCommand(findingsCmd)
}
