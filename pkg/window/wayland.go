package window

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Compositors with a window list the WaylandLister can read.
const (
	CompositorSway     = "sway"
	CompositorHyprland = "hyprland"
)

// WaylandLister lists windows through the IPC tool of a wlroots compositor:
// swaymsg on sway, hyprctl on Hyprland.
type WaylandLister struct {
	compositor string
	run        func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewWaylandLister() *WaylandLister {
	return &WaylandLister{
		compositor: detectCompositor(),
		run:        runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

func commandExists(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}

// detectCompositor uses the IPC socket variables each compositor exports.
func detectCompositor() string {
	switch {
	case os.Getenv("SWAYSOCK") != "":
		return CompositorSway
	case os.Getenv("HYPRLAND_INSTANCE_SIGNATURE") != "":
		return CompositorHyprland
	default:
		return ""
	}
}

func (l *WaylandLister) Compositor() string {
	return l.compositor
}

func (l *WaylandLister) IsAvailable() bool {
	switch l.compositor {
	case CompositorSway:
		return commandExists("swaymsg")
	case CompositorHyprland:
		return commandExists("hyprctl")
	default:
		return false
	}
}

func (l *WaylandLister) ListWindows(ctx context.Context) ([]Info, error) {
	switch l.compositor {
	case CompositorSway:
		out, err := l.run(ctx, "swaymsg", "-t", "get_tree", "-r")
		if err != nil {
			return nil, fmt.Errorf("failed to execute swaymsg: %w", err)
		}
		return parseSwayTree(out)
	case CompositorHyprland:
		out, err := l.run(ctx, "hyprctl", "clients", "-j")
		if err != nil {
			return nil, fmt.Errorf("failed to execute hyprctl: %w", err)
		}
		return parseHyprlandClients(out)
	default:
		return nil, fmt.Errorf("unsupported wayland compositor %q", l.compositor)
	}
}

func (l *WaylandLister) Close() error {
	return nil
}

type swayWindowProperties struct {
	Class string `json:"class"`
}

type swayNode struct {
	ID               uint32                `json:"id"`
	Type             string                `json:"type"`
	Name             *string               `json:"name"`
	AppID            *string               `json:"app_id"`
	PID              uint32                `json:"pid"`
	WindowProperties *swayWindowProperties `json:"window_properties"`
	Nodes            []swayNode            `json:"nodes"`
	FloatingNodes    []swayNode            `json:"floating_nodes"`
}

// parseSwayTree walks the layout tree depth first. Leaf containers with a
// client PID are windows.
func parseSwayTree(data []byte) ([]Info, error) {
	var root swayNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse sway tree: %w", err)
	}

	var windows []Info
	var walk func(n *swayNode)
	walk = func(n *swayNode) {
		if n.PID > 0 && (n.Type == "con" || n.Type == "floating_con") {
			info := Info{ID: n.ID, PID: n.PID}
			if n.Name != nil {
				info.Title = *n.Name
			}
			switch {
			case n.AppID != nil && *n.AppID != "":
				info.Class = *n.AppID
			case n.WindowProperties != nil:
				info.Class = n.WindowProperties.Class
			}
			windows = append(windows, info)
		}
		for i := range n.Nodes {
			walk(&n.Nodes[i])
		}
		for i := range n.FloatingNodes {
			walk(&n.FloatingNodes[i])
		}
	}
	walk(&root)
	return windows, nil
}

type hyprlandClient struct {
	Address string `json:"address"`
	Title   string `json:"title"`
	Class   string `json:"class"`
	PID     int64  `json:"pid"`
	Mapped  *bool  `json:"mapped"`
}

func parseHyprlandClients(data []byte) ([]Info, error) {
	var clients []hyprlandClient
	if err := json.Unmarshal(data, &clients); err != nil {
		return nil, fmt.Errorf("failed to parse hyprctl clients: %w", err)
	}

	windows := make([]Info, 0, len(clients))
	for _, c := range clients {
		if c.Mapped != nil && !*c.Mapped {
			continue
		}
		id, _ := strconv.ParseUint(strings.TrimPrefix(c.Address, "0x"), 16, 64)
		var pid uint32
		if c.PID > 0 {
			pid = uint32(c.PID)
		}
		windows = append(windows, Info{ID: uint32(id), Title: c.Title, Class: c.Class, PID: pid})
	}
	return windows, nil
}
