package tui

import "github.com/charmbracelet/bubbles/key"

type keymap struct {
	quit, pause, step,
	back, forward,
	backLong, forwardLong key.Binding
}

func newKeymap() keymap {
	return keymap{
		quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		pause: key.NewBinding(
			key.WithKeys(" ", "space", "p"),
			key.WithHelp("space", "pause"),
		),
		step: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "step"),
		),
		back: key.NewBinding(
			key.WithKeys("left"),
			key.WithHelp("←", "-10s"),
		),
		forward: key.NewBinding(
			key.WithKeys("right"),
			key.WithHelp("→", "+10s"),
		),
		backLong: key.NewBinding(
			key.WithKeys("down"),
			key.WithHelp("↓", "-60s"),
		),
		forwardLong: key.NewBinding(
			key.WithKeys("up"),
			key.WithHelp("↑", "+60s"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keymap) ShortHelp() []key.Binding {
	return []key.Binding{k.pause, k.step, k.back, k.forward, k.backLong, k.forwardLong, k.quit}
}

// FullHelp implements help.KeyMap.
func (k keymap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
