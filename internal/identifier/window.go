package identifier

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/playtrack/playtrack/internal/models"
	"github.com/playtrack/playtrack/pkg/window"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// WindowIdentifierName is the identifier_plugin value of window-matched UserApps.
const WindowIdentifierName = "WindowIdentifier"

const windowCheckTimeout = 2 * time.Second

// WindowData is the identifier_data payload of a window-matched UserApp.
type WindowData struct {
	Title string `json:"title"`
}

// WindowIdentifier matches UserApps by the exact title of an open window.
type WindowIdentifier struct {
	lister window.Lister
	store  UserAppStore

	mu         sync.Mutex
	titles     map[string]models.UserApp
	cacheValid bool
	// seen holds titles already offered as candidates.
	seen map[string]struct{}
}

func NewWindowIdentifier(lister window.Lister, store UserAppStore) *WindowIdentifier {
	return &WindowIdentifier{
		lister: lister,
		store:  store,
		seen:   make(map[string]struct{}),
	}
}

func (w *WindowIdentifier) Name() string {
	return WindowIdentifierName
}

func (w *WindowIdentifier) ClearCache() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.titles = nil
	w.cacheValid = false
}

// windowTitle is the title a UserApp is matched on: window_text when set,
// otherwise the title stored in identifier_data.
func windowTitle(ua models.UserApp) string {
	if ua.WindowText != nil && *ua.WindowText != "" {
		return *ua.WindowText
	}
	if ua.IdentifierData == nil {
		return ""
	}
	var d WindowData
	if err := json.Unmarshal([]byte(*ua.IdentifierData), &d); err != nil {
		log.Warn().Err(err).Uint("user_app_id", ua.ID).Msg("invalid window identifier data")
		return ""
	}
	return d.Title
}

func (w *WindowIdentifier) userApps() (map[string]models.UserApp, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cacheValid {
		return w.titles, nil
	}

	uas, err := w.store.FindUserAppsByPlugin(WindowIdentifierName)
	if err != nil {
		return nil, err
	}

	titles := make(map[string]models.UserApp, len(uas))
	for _, ua := range uas {
		title := windowTitle(ua)
		if title == "" {
			continue
		}
		if _, dup := titles[title]; !dup {
			titles[title] = ua
		}
	}

	w.titles = titles
	w.cacheValid = true
	return titles, nil
}

// IdentifyGame walks the client list in mapping order, so the window that
// has been open longest wins.
func (w *WindowIdentifier) IdentifyGame(ctx context.Context) (*Match, error) {
	titles, err := w.userApps()
	if err != nil {
		return nil, err
	}
	if len(titles) == 0 {
		return nil, nil
	}

	windows, err := w.lister.ListWindows(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "window scan failed")
	}

	for _, win := range windows {
		ua, ok := titles[win.Title]
		if !ok {
			continue
		}
		log.Debug().Str("title", win.Title).Uint32("pid", win.PID).Uint("user_app_id", ua.ID).Msg("window identified")
		return &Match{
			Handle:  &windowHandle{lister: w.lister, title: win.Title, pid: win.PID},
			UserApp: &ua,
		}, nil
	}
	return nil, nil
}

// Candidates offers each untracked window title once per identifier
// lifetime.
func (w *WindowIdentifier) Candidates(ctx context.Context) []UnboundMatch {
	windows, err := w.lister.ListWindows(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("failed to list candidate windows")
		return nil
	}

	titles, err := w.userApps()
	if err != nil {
		log.Warn().Err(err).Msg("could not load tracked user apps, listing all windows")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var candidates []UnboundMatch
	for i := len(windows) - 1; i >= 0; i-- {
		title := windows[i].Title
		if title == "" {
			continue
		}
		if _, ok := titles[title]; ok {
			continue
		}
		if _, ok := w.seen[title]; ok {
			continue
		}
		w.seen[title] = struct{}{}

		raw, err := json.Marshal(WindowData{Title: title})
		if err != nil {
			log.Error().Stack().Err(err).Str("title", title).Msg("couldn't add candidate")
			continue
		}
		candidates = append(candidates, UnboundMatch{
			Note:             title,
			IdentifierPlugin: WindowIdentifierName,
			IdentifierData:   string(raw),
		})
	}
	return candidates
}

// windowHandle stays alive while a window with the matched title is open.
type windowHandle struct {
	lister window.Lister
	title  string
	pid    uint32
}

func (h *windowHandle) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), windowCheckTimeout)
	defer cancel()

	windows, err := h.lister.ListWindows(ctx)
	if err != nil {
		log.Debug().Err(err).Str("title", h.title).Msg("window liveness check failed")
		return false
	}
	return window.HasTitle(windows, h.title)
}

func (h *windowHandle) PID() int32 {
	return int32(h.pid)
}
