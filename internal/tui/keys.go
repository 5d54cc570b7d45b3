package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings of the panel.
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Louder  key.Binding
	Quieter key.Binding
	Mute    key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the default key bindings
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Louder: key.NewBinding(
			key.WithKeys("right", "l", "+"),
			key.WithHelp("→/l", "louder"),
		),
		Quieter: key.NewBinding(
			key.WithKeys("left", "h", "-"),
			key.WithHelp("←/h", "quieter"),
		),
		Mute: key.NewBinding(
			key.WithKeys("m", " "),
			key.WithHelp("m", "mute"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quieter, k.Louder, k.Mute, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Quieter, k.Louder, k.Mute},
		{k.Refresh, k.Help, k.Quit},
	}
}
