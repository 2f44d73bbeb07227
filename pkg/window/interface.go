// Package window lists top-level desktop windows.
package window

import "context"

// Info describes one top-level window.
type Info struct {
	ID    uint32
	Title string
	Class string
	PID   uint32
}

// Lister is the window enumeration capability.
type Lister interface {
	// ListWindows returns the windows currently managed by the desktop.
	ListWindows(ctx context.Context) ([]Info, error)

	// IsAvailable checks if this lister can run on the current system
	IsAvailable() bool

	// Close cleans up any resources used by the lister
	Close() error
}

// HasTitle reports whether any window in the list has exactly this title.
func HasTitle(windows []Info, title string) bool {
	for _, w := range windows {
		if w.Title == title {
			return true
		}
	}
	return false
}
