package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/bufmap/config"
)

var cmdInteractive = &cobra.Command{
	Use:     "interactive",
	Aliases: []string{"i"},
	Short:   "Drive a live table from a terminal UI",
	Long: `
The "interactive" command opens a terminal UI over a live table. Commands
are the same as for "exec"; the bucket dump on the right is redrawn after
every command. Requires stdout to be a terminal.
`,
	DisableAutoGenTag: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal; use exec for scripts")
		}
		return runInteractive(cmd.Context(), globalOptions.cfg)
	},
}

func init() {
	cmdRoot.AddCommand(cmdInteractive)
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
)

// historyLines is how many output lines the log panel keeps.
const historyLines = 20

type interactiveModel struct {
	env     *env
	session *session
	out     bytes.Buffer
	input   textinput.Model
	history []string
	backend string
}

func newInteractiveModel(e *env, backend string) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "alloc 4096"
	ti.Prompt = "> "
	ti.Width = 40
	ti.Focus()

	m := &interactiveModel{env: e, input: ti, backend: backend}
	m.session = newSession(e, &m.out)
	return m
}

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "enter":
			m.run(m.input.Value())
			m.input.Reset()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// run executes one command line and appends its output to the history.
func (m *interactiveModel) run(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	m.out.Reset()
	err := m.session.Exec(line)

	m.push(helpStyle.Render("> " + line))
	for _, l := range strings.Split(strings.TrimRight(m.out.String(), "\n"), "\n") {
		if l != "" {
			m.push(resultStyle.Render(l))
		}
	}
	if err != nil {
		m.push(errorStyle.Render(fmt.Sprintf("Error: %v", err)))
	}
}

func (m *interactiveModel) push(line string) {
	m.history = append(m.history, line)
	if n := len(m.history) - historyLines; n > 0 {
		m.history = m.history[n:]
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("bufmap"))
	fmt.Fprintf(&b, " %s memory, count %d/%d, len %d\n\n",
		m.backend, m.env.table.Count(), m.env.table.Cap(), m.env.table.Len())

	log := panelStyle.Render(strings.Join(m.history, "\n"))
	dump := panelStyle.Render(renderDump(m.env))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, log, " ", dump))
	b.WriteString("\n\n")

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter run • help list commands • esc quit"))
	return b.String()
}

func runInteractive(ctx context.Context, cfg config.Config) (err error) {
	e, err := newEnv(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	p := tea.NewProgram(newInteractiveModel(e, cfg.Memory.Backend), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}
