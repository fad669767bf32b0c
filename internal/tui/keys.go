package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the watch view's bindings.
type keyMap struct {
	None     key.Binding
	Shared   key.Binding
	Blocking key.Binding
	Raise    key.Binding
	Lower    key.Binding
	Info     key.Binding
	Scan     key.Binding
	Quit     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		None:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "none")),
		Shared:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "shared")),
		Blocking: key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "blocking")),
		Raise:    key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "pressure up")),
		Lower:    key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "pressure down")),
		Info:     key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "edit info")),
		Scan:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "scan")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.None, k.Shared, k.Blocking, k.Raise, k.Lower, k.Info, k.Scan, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.None, k.Shared, k.Blocking},
		{k.Raise, k.Lower},
		{k.Info, k.Scan, k.Quit},
	}
}
