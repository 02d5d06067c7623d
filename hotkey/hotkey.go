// Package hotkey listens for the global Ctrl+Shift+Space chord.
package hotkey

type Hotkey interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// Label names the chord for display.
const Label = "ctrl+shift+space"
