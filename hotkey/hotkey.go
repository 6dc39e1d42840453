// Package hotkey listens for the global Ctrl+Shift+Space chord that starts
// and ends a conversation while another window has focus.
package hotkey

const Combo = "Ctrl+Shift+Space"

// Hotkey reports chord edges. Both channels are buffered by one and drop
// edges nobody is waiting for.
type Hotkey interface {
	Register() error
	Unregister()
	// Keydown fires once when the full chord is held.
	Keydown() <-chan struct{}
	// Keyup fires once when Space is released after Keydown.
	Keyup() <-chan struct{}
}
