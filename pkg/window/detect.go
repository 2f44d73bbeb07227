package window

import "os"

// Display server names returned by DetectDisplayServer.
const (
	DisplayWayland = "wayland"
	DisplayX11     = "x11"
	DisplayUnknown = "unknown"
)

func DetectDisplayServer() string {
	sessionType := os.Getenv("XDG_SESSION_TYPE")
	waylandDisplay := os.Getenv("WAYLAND_DISPLAY")
	x11Display := os.Getenv("DISPLAY")

	if sessionType == DisplayWayland || waylandDisplay != "" {
		return DisplayWayland
	}

	if sessionType == DisplayX11 || x11Display != "" {
		return DisplayX11
	}

	return DisplayUnknown
}

// New returns the lister for the running desktop, or nil when no window
// list can be read. On Wayland the compositor's own list is preferred;
// XWayland's X11 list only holds X clients.
func New() Lister {
	if DetectDisplayServer() == DisplayWayland {
		if l := NewWaylandLister(); l.IsAvailable() {
			return l
		}
	}

	if l := NewX11Lister(); l.IsAvailable() {
		return l
	}

	return nil
}
