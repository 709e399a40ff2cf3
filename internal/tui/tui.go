// Package tui is the interactive front end of a playback session: it maps
// key presses to session requests and redraws the status line.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zsiec/prismplay/internal/player"
)

// Controller is the part of a session the UI drives.
type Controller interface {
	TogglePause()
	StepFrame()
	SeekRelative(incr float64) bool
	Quit()
	Status() player.Status
	Done() <-chan struct{}
}

// Seek increments for the arrow keys, in seconds.
const (
	SeekShort = 10.0
	SeekLong  = 60.0
)

// RefreshInterval is how often the status line is redrawn.
const RefreshInterval = 100 * time.Millisecond

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	stateStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("7")).Background(lipgloss.Color("62")).Padding(0, 1)
	pausedStyle  = stateStyle.Background(lipgloss.Color("214")).Foreground(lipgloss.Color("0"))
	faintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	paddingStyle = lipgloss.NewStyle().Padding(1, 2)
)

type tickMsg time.Time

type doneMsg struct{}

// Model is the bubbletea model for one session.
type Model struct {
	ctl    Controller
	title  string
	keys   keymap
	help   help.Model
	status player.Status
}

// New returns a model driving ctl. title is shown above the status line.
func New(ctl Controller, title string) Model {
	return Model{
		ctl:    ctl,
		title:  title,
		keys:   newKeymap(),
		help:   help.New(),
		status: ctl.Status(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) waitDone() tea.Cmd {
	return func() tea.Msg {
		<-m.ctl.Done()
		return doneMsg{}
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), m.waitDone())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tickMsg:
		m.status = m.ctl.Status()
		return m, tick()
	case doneMsg:
		m.status = m.ctl.Status()
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.ctl.Quit()
		return m, tea.Quit
	case key.Matches(msg, m.keys.pause):
		m.ctl.TogglePause()
	case key.Matches(msg, m.keys.step):
		m.ctl.StepFrame()
	case key.Matches(msg, m.keys.back):
		m.ctl.SeekRelative(-SeekShort)
	case key.Matches(msg, m.keys.forward):
		m.ctl.SeekRelative(SeekShort)
	case key.Matches(msg, m.keys.backLong):
		m.ctl.SeekRelative(-SeekLong)
	case key.Matches(msg, m.keys.forwardLong):
		m.ctl.SeekRelative(SeekLong)
	default:
		return m, nil
	}
	m.status = m.ctl.Status()
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	st := m.status
	badge := stateStyle
	if st.State == player.Paused.String() {
		badge = pausedStyle
	}

	header := titleStyle.Render(m.title) + "  " + badge.Render(st.State)
	info := faintStyle.Render(fmt.Sprintf("master %s  session %s", st.Master, st.ID))
	return paddingStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		header,
		"",
		st.String(),
		info,
		"",
		m.help.View(m.keys),
	))
}

// Run shows the UI until the user quits or the session ends.
func Run(ctx context.Context, ctl Controller, title string) error {
	p := tea.NewProgram(New(ctl, title), tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
