package window

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLister struct {
	windows []Info
}

func (m *mockLister) ListWindows(context.Context) ([]Info, error) { return m.windows, nil }
func (m *mockLister) IsAvailable() bool                           { return true }
func (m *mockLister) Close() error                                { return nil }

func TestMockLister(t *testing.T) {
	var _ Lister = (*mockLister)(nil)
	var _ Lister = (*X11Lister)(nil)
	var _ Lister = (*WaylandLister)(nil)

	m := &mockLister{windows: []Info{{ID: 1, Title: "Terminal"}, {ID: 2, Title: "Game of the Year"}}}
	windows, err := m.ListWindows(context.Background())
	require.NoError(t, err)

	assert.True(t, HasTitle(windows, "Game of the Year"))
	assert.False(t, HasTitle(windows, "Game of the"))
	assert.False(t, HasTitle(nil, ""))
}

func TestDecodeWindowIDs(t *testing.T) {
	data := make([]byte, 10)
	binary.LittleEndian.PutUint32(data[0:], 0x1400003)
	binary.LittleEndian.PutUint32(data[4:], 0x2a00001)

	assert.Equal(t, []uint32{0x1400003, 0x2a00001}, decodeWindowIDs(data))
	assert.Empty(t, decodeWindowIDs(nil))
}

func TestX11ListerUnavailable(t *testing.T) {
	t.Setenv("DISPLAY", "")
	assert.False(t, NewX11Lister().IsAvailable())
}

const swayTree = `{
  "id": 1, "type": "root", "name": "root", "pid": 0,
  "nodes": [{
    "id": 3, "type": "output", "name": "eDP-1",
    "nodes": [{
      "id": 5, "type": "workspace", "name": "1",
      "nodes": [
        {"id": 7, "type": "con", "name": "Terminal", "app_id": "foot", "pid": 1200, "nodes": []},
        {"id": 8, "type": "con", "name": "Hades", "app_id": null, "pid": 4242,
         "window_properties": {"class": "Hades.exe"}, "nodes": []}
      ],
      "floating_nodes": [
        {"id": 9, "type": "floating_con", "name": "Launcher", "app_id": "steam", "pid": 300, "nodes": []}
      ]
    }]
  }]
}`

func TestParseSwayTree(t *testing.T) {
	windows, err := parseSwayTree([]byte(swayTree))
	require.NoError(t, err)

	assert.Equal(t, []Info{
		{ID: 7, Title: "Terminal", Class: "foot", PID: 1200},
		{ID: 8, Title: "Hades", Class: "Hades.exe", PID: 4242},
		{ID: 9, Title: "Launcher", Class: "steam", PID: 300},
	}, windows)

	_, err = parseSwayTree([]byte("not json"))
	assert.Error(t, err)
}

func TestParseHyprlandClients(t *testing.T) {
	data := `[
	  {"address": "0x55d1c0a0", "title": "Hades", "class": "steam_app_1145360", "pid": 4242, "mapped": true},
	  {"address": "0x55d1c0b0", "title": "hidden", "class": "x", "pid": 1, "mapped": false},
	  {"address": "0x55d1c0c0", "title": "Terminal", "class": "kitty", "pid": 900}
	]`

	windows, err := parseHyprlandClients([]byte(data))
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, Info{ID: 0x55d1c0a0, Title: "Hades", Class: "steam_app_1145360", PID: 4242}, windows[0])
	assert.Equal(t, "Terminal", windows[1].Title)
}

func TestWaylandListerUsesCompositorTool(t *testing.T) {
	var called []string
	l := &WaylandLister{
		compositor: CompositorHyprland,
		run: func(_ context.Context, name string, args ...string) ([]byte, error) {
			called = append(called, name)
			return []byte(`[{"address": "0x1", "title": "Hades", "class": "hades", "pid": 7}]`), nil
		},
	}

	windows, err := l.ListWindows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"hyprctl"}, called)
	assert.True(t, HasTitle(windows, "Hades"))

	l.compositor = ""
	_, err = l.ListWindows(context.Background())
	assert.Error(t, err)
	assert.False(t, l.IsAvailable())
}

func TestDetectDisplayServer(t *testing.T) {
	t.Setenv("XDG_SESSION_TYPE", "")
	t.Setenv("WAYLAND_DISPLAY", "")
	t.Setenv("DISPLAY", "")
	assert.Equal(t, DisplayUnknown, DetectDisplayServer())
	assert.Nil(t, New())

	t.Setenv("DISPLAY", ":0")
	assert.Equal(t, DisplayX11, DetectDisplayServer())

	t.Setenv("WAYLAND_DISPLAY", "wayland-1")
	assert.Equal(t, DisplayWayland, DetectDisplayServer())
}
