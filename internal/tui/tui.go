// Package tui provides a Bubble Tea live view of a running fuzz session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/fuzzherd/internal/session"
	"github.com/fakeyudi/fuzzherd/internal/stats"
)

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	crashStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	hangStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	intentionalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)

	stateStyles = map[session.State]lipgloss.Style{
		session.Running: lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true),
		session.Paused:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		session.Stopped: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)
)

// ── Tab definitions ─────────────────

type tabID int

const (
	tabOverview tabID = iota
	tabCodes
	tabArtifacts
	tabCount
)

var tabNames = [tabCount]string{"Overview", "Exit Codes", "Artifacts"}

// refreshEvery is the fallback poll period when no file event arrives.
const refreshEvery = time.Second

// maxArtifacts bounds the artifact list.
const maxArtifacts = 200

// ── Messages ────────────────────

type feedMsg struct {
	snap      *stats.Snapshot
	err       error
	artifacts []artifact
}

type changeMsg struct{}

type tickMsg time.Time

type artifact struct {
	kind string
	path string
	mod  time.Time
}

// ── Model ────────────────────

// Source describes the session being viewed.
type Source struct {
	Session string
	RunDir  string
	// State reports the reconciled session state. Optional.
	State func() session.State
}

// Model is the root Bubble Tea model for the live view.
type Model struct {
	src       Source
	feedPath  string
	changes   <-chan struct{}
	snap      *stats.Snapshot
	feedErr   error
	state     session.State
	artifacts []artifact
	activeTab tabID
	viewports [tabCount]viewport.Model
	spinner   spinner.Model
	width     int
	height    int
	ready     bool
	now       func() time.Time
}

// New creates a live view model. changes may be nil, in which case the view
// only refreshes on its timer.
func New(src Source, changes <-chan struct{}) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = stateStyles[session.Running]
	return Model{
		src:      src,
		feedPath: filepath.Join(src.RunDir, stats.FeedFile),
		changes:  changes,
		state:    session.Unknown,
		spinner:  sp,
		now:      time.Now,
	}
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick(), m.load(), waitForChange(m.changes))
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return changeMsg{}
	}
}

func (m Model) load() tea.Cmd {
	feedPath, runDir := m.feedPath, m.src.RunDir
	return func() tea.Msg {
		snap, err := stats.ReadFeed(feedPath)
		return feedMsg{snap: snap, err: err, artifacts: scanArtifacts(runDir)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
			return m, nil
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
			return m, nil
		case "1", "2", "3":
			m.activeTab = tabID(msg.String()[0] - '1')
			return m, nil
		}
		if !m.ready {
			return m, nil
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil

	case tickMsg:
		if m.src.State != nil {
			m.state = m.src.State()
		}
		return m, tea.Batch(m.load(), tick())

	case changeMsg:
		return m, tea.Batch(m.load(), waitForChange(m.changes))

	case feedMsg:
		m.feedErr = msg.err
		if msg.err == nil {
			m.snap = msg.snap
		}
		m.artifacts = msg.artifacts
		m.refreshViewports()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	state := string(m.state)
	if st, ok := stateStyles[m.state]; ok {
		state = st.Render(state)
	}
	if m.state == session.Running {
		state = m.spinner.View() + state
	}
	title := titleStyle.Width(m.width).Render("  fuzzherd  " + m.src.Session + "  ")

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	content := m.viewports[m.activeTab].View()

	hint := "  ←/→ tab  ↑/↓ scroll  1-3 jump  q quit"
	right := "state: " + state
	pad := m.width - lipgloss.Width(hint) - lipgloss.Width(right) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(hint + strings.Repeat(" ", pad) + right)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar)
}

// ── Viewport management ───────────────────────────────────────────────────────

func (m *Model) initViewports() {
	vpHeight := m.height - 3
	if vpHeight < 1 {
		vpHeight = 1
	}
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

func (m *Model) refreshViewports() {
	if !m.ready {
		return
	}
	for i := tabID(0); i < tabCount; i++ {
		m.viewports[i].SetContent(m.renderTab(i))
	}
}

// ── Tab renderers ─────────────────────────────────────────────────────────────

func (m *Model) renderTab(t tabID) string {
	switch t {
	case tabOverview:
		return m.renderOverview()
	case tabCodes:
		return m.renderCodes()
	case tabArtifacts:
		return m.renderArtifacts()
	}
	return ""
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func (m *Model) renderOverview() string {
	var sb strings.Builder
	sb.WriteString(heading("Run"))
	if m.snap == nil {
		msg := "  waiting for the first status update"
		if m.feedErr != nil && !os.IsNotExist(m.feedErr) {
			msg = "  " + m.feedErr.Error()
		}
		sb.WriteString(dimStyle.Render(msg) + "\n")
		return sb.String()
	}
	s := m.snap
	c := s.Counters
	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-16s", label)) + "  " + value + "\n")
	}
	row("Run Tag:", s.RunTag)
	row("Started:", c.Start.Format("2006-01-02 15:04:05 MST"))
	row("Updated:", timeStyle.Render(s.TakenAt.Format("15:04:05")))
	row("Uptime:", s.Uptime.Round(time.Second).String())
	if s.Final {
		row("Final:", "yes")
	}

	sb.WriteString(heading("Counters"))
	row("Samples:", fmt.Sprintf("%d", c.TotalSamples))
	row("Mutants:", fmt.Sprintf("%d", c.TotalMutants))
	row("Exec/s:", fmt.Sprintf("%.2f", s.ExecPerSec()))
	row("Crashes:", crashStyle.Render(fmt.Sprintf("%d", c.Crashes)))
	row("Hangs:", hangStyle.Render(fmt.Sprintf("%d", c.Hangs)))
	row("Intentional:", intentionalStyle.Render(fmt.Sprintf("%d", c.IntentionalTotal())))
	if c.LastDiscovery.IsZero() {
		row("Last Finding:", dimStyle.Render("never"))
	} else {
		ago := m.now().Sub(c.LastDiscovery).Round(time.Second)
		row("Last Finding:", fmt.Sprintf("%s (%s ago)", c.LastDiscovery.Format("15:04:05"), ago))
	}
	return sb.String()
}

func (m *Model) renderCodes() string {
	var sb strings.Builder
	if m.snap == nil || len(m.snap.Counters.Intentional) == 0 {
		sb.WriteString(heading("Intentional Exit Codes (0)"))
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	c := m.snap.Counters
	codes := c.Codes()
	sb.WriteString(heading(fmt.Sprintf("Intentional Exit Codes (%d)", len(codes))))
	for _, code := range codes {
		label := fmt.Sprintf("exit %d", code)
		if code < 0 {
			label = fmt.Sprintf("signal %d", -code)
		}
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-12s", label)) + "  " + fmt.Sprintf("%d", c.Intentional[code]) + "\n")
	}
	return sb.String()
}

func (m *Model) renderArtifacts() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Retained Artifacts (%d)", len(m.artifacts))))
	if len(m.artifacts) == 0 {
		sb.WriteString(dimStyle.Render("  (none)") + "\n")
		return sb.String()
	}
	for _, a := range m.artifacts {
		var badge string
		switch {
		case a.kind == "crashed":
			badge = crashStyle.Render(fmt.Sprintf("  %-14s", a.kind))
		case a.kind == "hanging":
			badge = hangStyle.Render(fmt.Sprintf("  %-14s", a.kind))
		default:
			badge = intentionalStyle.Render(fmt.Sprintf("  %-14s", a.kind))
		}
		ts := timeStyle.Render(a.mod.Format("15:04:05"))
		sb.WriteString(ts + badge + "  " + filepath.Base(a.path) + "\n")
	}
	return sb.String()
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// scanArtifacts lists retained artifacts of a run, newest first.
func scanArtifacts(runDir string) []artifact {
	var out []artifact
	add := func(kind, dir string) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			out = append(out, artifact{kind: kind, path: filepath.Join(dir, e.Name()), mod: info.ModTime()})
		}
	}
	add("crashed", filepath.Join(runDir, "crashed"))
	add("hanging", filepath.Join(runDir, "hanging"))
	codes, _ := os.ReadDir(filepath.Join(runDir, "intentional"))
	for _, c := range codes {
		if c.IsDir() {
			add("intentional/"+c.Name(), filepath.Join(runDir, "intentional", c.Name()))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].mod.After(out[j].mod) })
	if len(out) > maxArtifacts {
		out = out[:maxArtifacts]
	}
	return out
}

// Run starts the live view and blocks until the user quits or ctx ends.
func Run(ctx context.Context, src Source) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	changes, err := Watch(ctx, filepath.Join(src.RunDir, stats.FeedFile))
	if err != nil {
		changes = nil
	}
	p := tea.NewProgram(New(src, changes), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
