package window

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// X11Lister reads the window list from an EWMH-compliant X11 window manager.
// The connection is opened lazily and reopened after a failure.
type X11Lister struct {
	mu    sync.Mutex
	conn  *xgb.Conn
	root  xproto.Window
	atoms map[string]xproto.Atom
}

var atomNames = []string{
	"_NET_CLIENT_LIST",
	"_NET_WM_NAME",
	"_NET_WM_PID",
	"WM_NAME",
	"WM_CLASS",
	"UTF8_STRING",
}

// NewX11Lister creates a lister. No connection is made until first use.
func NewX11Lister() *X11Lister {
	return &X11Lister{}
}

func (l *X11Lister) IsAvailable() bool {
	return os.Getenv("DISPLAY") != ""
}

func (l *X11Lister) connect() error {
	if l.conn != nil {
		return nil
	}

	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	atoms := make(map[string]xproto.Atom, len(atomNames))
	for _, name := range atomNames {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to intern atom %s: %w", name, err)
		}
		atoms[name] = reply.Atom
	}

	l.conn = conn
	l.root = xproto.Setup(conn).DefaultScreen(conn).Root
	l.atoms = atoms
	return nil
}

func (l *X11Lister) ListWindows(ctx context.Context) ([]Info, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.connect(); err != nil {
		return nil, err
	}

	data, err := l.getProperty(l.root, l.atoms["_NET_CLIENT_LIST"], xproto.AtomWindow, 4096)
	if err != nil {
		l.reset()
		return nil, fmt.Errorf("failed to read client list: %w", err)
	}

	ids := decodeWindowIDs(data)
	windows := make([]Info, 0, len(ids))
	for _, id := range ids {
		win := xproto.Window(id)
		windows = append(windows, Info{
			ID:    id,
			Title: l.windowName(win),
			Class: l.windowClass(win),
			PID:   l.windowPID(win),
		})
	}
	return windows, nil
}

func (l *X11Lister) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset()
	return nil
}

func (l *X11Lister) reset() {
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
}

func (l *X11Lister) getProperty(window xproto.Window, atom, atomType xproto.Atom, length uint32) ([]byte, error) {
	reply, err := xproto.GetProperty(l.conn, false, window, atom, atomType, 0, length).Reply()
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

func (l *X11Lister) windowName(window xproto.Window) string {
	data, err := l.getProperty(window, l.atoms["_NET_WM_NAME"], l.atoms["UTF8_STRING"], 256)
	if err == nil && len(data) > 0 {
		return strings.TrimRight(string(data), "\x00")
	}

	data, err = l.getProperty(window, l.atoms["WM_NAME"], xproto.AtomString, 256)
	if err == nil && len(data) > 0 {
		return strings.TrimRight(string(data), "\x00")
	}

	return ""
}

// windowClass returns the class half of WM_CLASS.
func (l *X11Lister) windowClass(window xproto.Window) string {
	data, err := l.getProperty(window, l.atoms["WM_CLASS"], xproto.AtomString, 256)
	if err != nil || len(data) == 0 {
		return ""
	}

	parts := strings.Split(strings.TrimRight(string(data), "\x00"), "\x00")
	return parts[len(parts)-1]
}

func (l *X11Lister) windowPID(window xproto.Window) uint32 {
	data, err := l.getProperty(window, l.atoms["_NET_WM_PID"], xproto.AtomCardinal, 1)
	if err != nil || len(data) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(data)
}

func decodeWindowIDs(data []byte) []uint32 {
	ids := make([]uint32, 0, len(data)/4)
	for i := 0; i+4 <= len(data); i += 4 {
		ids = append(ids, binary.LittleEndian.Uint32(data[i:i+4]))
	}
	return ids
}
