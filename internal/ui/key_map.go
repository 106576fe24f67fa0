package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up    key.Binding
	down  key.Binding
	prev  key.Binding
	next  key.Binding
	enter key.Binding
	back  key.Binding
	batch key.Binding
	quit  key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		prev:  key.NewBinding(key.WithKeys("left", "h", "shift+tab"), key.WithHelp("←/h", "prev model")),
		next:  key.NewBinding(key.WithKeys("right", "l", "tab"), key.WithHelp("→/l", "next model")),
		enter: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "classify")),
		back:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		batch: key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "classify all")),
		quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter},
		{k.prev, k.next, k.back},
		{k.batch, k.quit},
	}
}
