package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap declares the board's key bindings. It satisfies help.KeyMap, so
// the footer renders from the same declarations Update matches against.
type KeyMap struct {
	Refresh key.Binding
	Quit    key.Binding
}

// DefaultKeyMap returns the board's standard bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Refresh, k.Quit}}
}
