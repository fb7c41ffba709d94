package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/limitwatch/limitwatch/internal/monitor"
	"github.com/limitwatch/limitwatch/internal/notify"
	"github.com/limitwatch/limitwatch/pkg/utils"
)

const refreshInterval = time.Second

// Controller defines the subset of the monitor the TUI needs.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	Respond(resp notify.Response) error
	Simulate(reason string) error
	Status() monitor.Status
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).MarginBottom(1)
	alertStyle  = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("203")).Padding(0, 1).MarginBottom(1)
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	stateColors = map[monitor.State]lipgloss.Color{
		monitor.StateIdle:         lipgloss.Color("241"),
		monitor.StateMonitoring:   lipgloss.Color("42"),
		monitor.StateLimitReached: lipgloss.Color("203"),
		monitor.StateExtended:     lipgloss.Color("214"),
	}
)

// Model represents the Bubble Tea state.
type Model struct {
	ctrl          Controller
	extendMinutes int

	status    monitor.Status
	statusMsg string
	err       error

	width int
	now   func() time.Time
}

type statusMsg monitor.Status

type actionDoneMsg struct {
	text string
	err  error
}

type tickMsg time.Time

// New constructs a TUI model. extendMinutes is offered by the e key.
func New(ctrl Controller, extendMinutes int) *Model {
	return &Model{
		ctrl:          ctrl,
		extendMinutes: extendMinutes,
		statusMsg:     "Press m to start monitoring.",
		now:           time.Now,
	}
}

// Run spins up the Bubble Tea program until the user quits or ctx ends.
func Run(ctx context.Context, ctrl Controller, extendMinutes int) error {
	prog := tea.NewProgram(New(ctrl, extendMinutes), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := prog.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) refreshCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg { return statusMsg(ctrl.Status()) }
}

func (m *Model) actionCmd(text string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{text: text, err: fn()}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd())

	case statusMsg:
		m.status = monitor.Status(msg)

	case actionDoneMsg:
		m.err = msg.err
		if msg.err == nil {
			m.statusMsg = msg.text
		}
		return m, m.refreshCmd()

	case tea.KeyMsg:
		return m, m.handleKey(msg.String())
	}

	return m, nil
}

func (m *Model) handleKey(key string) tea.Cmd {
	ctrl := m.ctrl
	switch key {
	case "ctrl+c", "q":
		return tea.Quit
	case "m":
		if m.status.State == monitor.StateIdle {
			return m.actionCmd("Monitoring started.", func() error {
				return ctrl.Start(context.Background())
			})
		}
		return m.actionCmd("Monitoring stopped.", func() error {
			ctrl.Stop()
			return nil
		})
	case "a":
		return m.actionCmd("Limit acknowledged.", func() error {
			return ctrl.Respond(notify.Acknowledge())
		})
	case "e":
		n := m.extendMinutes
		return m.actionCmd(fmt.Sprintf("Extended by %d minutes.", n), func() error {
			return ctrl.Respond(notify.Extend(n))
		})
	case "s":
		return m.actionCmd("Simulated limit.", func() error {
			return ctrl.Simulate("simulated from terminal UI")
		})
	case "r":
		return m.refreshCmd()
	}
	return nil
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("limitwatch"))
	b.WriteString("\n\n")

	st := m.status
	stateStyle := lipgloss.NewStyle().Bold(true).Foreground(stateColors[st.State])
	lines := []string{"State:    " + stateStyle.Render(st.State.String())}
	if st.SessionID != "" {
		lines = append(lines,
			"Session:  "+st.SessionID,
			fmt.Sprintf("Interval: %s", st.Interval),
			fmt.Sprintf("Triggers: %d", st.Triggers),
		)
	}
	if !st.LastCheckAt.IsZero() {
		lines = append(lines, "Checked:  "+st.LastCheckAt.Format("15:04:05"))
	}
	if st.State == monitor.StateExtended && !st.GraceDeadline.IsZero() {
		lines = append(lines, "Resumes:  in "+utils.FormatRemaining(m.now(), st.GraceDeadline))
	}
	b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
	b.WriteByte('\n')

	if st.State == monitor.StateLimitReached {
		alert := notify.Title
		if st.LastSignal != nil {
			alert += "\n" + st.LastSignal.Reason
		}
		alert += fmt.Sprintf("\n[a] OK   [e] Extend %d Minutes", m.extendMinutes)
		b.WriteString(alertStyle.Render(alert))
		b.WriteByte('\n')
	}

	if m.err != nil {
		b.WriteString(errStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	} else {
		b.WriteString(m.statusMsg)
	}
	b.WriteByte('\n')

	b.WriteString(helpStyle.Render("m start/stop • a acknowledge • e extend • s simulate • r refresh • q quit"))
	return b.String()
}
