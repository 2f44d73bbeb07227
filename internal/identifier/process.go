package identifier

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/playtrack/playtrack/internal/models"
	"github.com/playtrack/playtrack/pkg/procscan"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ProcessIdentifierName is the identifier_plugin value of process-matched UserApps.
const ProcessIdentifierName = "ProcessIdentifier"

// TrashNamesKey is the settings list of extra ignore patterns.
const TrashNamesKey = "trash_names"

// Process names that never belong to a game.
var baselineTrashNames = []string{
	"bash",
	"cat",
	"dbus-daemon",
	"Discord",
	"dropbox",
	"emacs",
	"gamest",
	"gpg-agent",
	"gvfsd",
	"nautilus",
	"node",
	"playtrack",
	"pyls",
	"pulseaudio",
	"python3",
	"sh",
	"ssh-agent",
	"snap-store",
	"spotify",
	"steam",
	"steamwebhelper",
	"steamwebhelper.",
	"sqlite3",
	"systemd",
	"Xorg",
	// Windows
	"chrome.exe",
	"cmd.exe",
	"conhost.exe",
	"Discord.exe",
	"dllhost.exe",
	"Dropbox.exe",
	"explorer.exe",
	"py.exe",
	"python.exe",
	"pythonw.exe",
	"Registry",
	"rundll32.exe",
	"SearchIndexer.exe",
	"smartscreen.exe",
	"smss.exe",
	"steam.exe",
	"steamwebhelper.exe",
	"svchost.exe",
	"System",
	"SystemSettings.exe",
	"System Idle Process",
	"taskhostw.exe",
	"unsecapp.exe",
	"WmiPrvSE.exe",
}

var baselineTrashPatterns = []string{
	`evolution-.+`,
	`gnome-.+`,
	`gsd-.+`,
	`gvfs-.+`,
	`gvfsd-.+`,
	`ibus-.+`,
	`xdg-.+`,
}

// ProcessData is the identifier_data payload of a process-matched UserApp.
type ProcessData struct {
	Exe     string `json:"exe"`
	Cmdline string `json:"cmdline"`
}

// Matches reports whether p is the program described by d: same executable
// and, when d has one, a command line starting with d's.
func (d ProcessData) Matches(p procscan.Process) bool {
	if p.Exe != d.Exe {
		return false
	}
	return d.Cmdline == "" || strings.HasPrefix(p.CommandLine(), d.Cmdline)
}

// ParseProcessData decodes an identifier_data payload.
func ParseProcessData(raw string) (ProcessData, error) {
	var d ProcessData
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return d, errors.Wrap(err, "invalid process identifier data")
	}
	return d, nil
}

type cachedUserApp struct {
	userApp models.UserApp
	data    ProcessData
}

// ProcessIdentifier matches UserApps by executable path and command line
// prefix.
type ProcessIdentifier struct {
	lister   procscan.Lister
	store    UserAppStore
	settings ListSettings
	filter   procscan.Filter

	mu          sync.Mutex
	ignoreNames map[string]struct{}
	baseline    []*regexp.Regexp
	configured  []*regexp.Regexp
	cache       []cachedUserApp
	cacheValid  bool
}

// ProcessOption customizes a ProcessIdentifier.
type ProcessOption func(*ProcessIdentifier)

// WithUsername restricts matching to processes owned by username.
func WithUsername(username string) ProcessOption {
	return func(p *ProcessIdentifier) {
		p.filter.Username = username
	}
}

// WithIgnoreNames adds exact process names to the ignore set.
func WithIgnoreNames(names ...string) ProcessOption {
	return func(p *ProcessIdentifier) {
		for _, n := range names {
			p.ignoreNames[n] = struct{}{}
		}
	}
}

// NewProcessIdentifier creates the identifier and loads the configured
// ignore patterns. settings may be nil.
func NewProcessIdentifier(lister procscan.Lister, store UserAppStore, settings ListSettings, opts ...ProcessOption) *ProcessIdentifier {
	p := &ProcessIdentifier{
		lister:      lister,
		store:       store,
		settings:    settings,
		ignoreNames: make(map[string]struct{}, len(baselineTrashNames)),
	}
	for _, n := range baselineTrashNames {
		p.ignoreNames[n] = struct{}{}
	}
	for _, pattern := range baselineTrashPatterns {
		p.baseline = append(p.baseline, regexp.MustCompile(anchor(pattern)))
	}
	for _, opt := range opts {
		opt(p)
	}
	p.ReloadSettings()
	return p
}

func (p *ProcessIdentifier) Name() string {
	return ProcessIdentifierName
}

// anchor makes a pattern match only at the start of the name.
func anchor(pattern string) string {
	return "^(?:" + pattern + ")"
}

// ReloadSettings re-reads the configured ignore patterns. Invalid patterns
// are logged and skipped.
func (p *ProcessIdentifier) ReloadSettings() {
	if p.settings == nil {
		return
	}

	patterns, err := p.settings.GetList(TrashNamesKey)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load process ignore list")
		return
	}

	configured := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(anchor(pattern))
		if err != nil {
			log.Warn().Err(err).Str("pattern", pattern).Msg("ignoring invalid process ignore pattern")
			continue
		}
		configured = append(configured, re)
	}

	p.mu.Lock()
	p.configured = configured
	p.mu.Unlock()
	log.Debug().Int("patterns", len(configured)).Msg("process ignore list loaded")
}

// Ignored reports whether a process name is filtered out.
func (p *ProcessIdentifier) Ignored(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.ignoreNames[name]; ok {
		return true
	}
	for _, re := range p.baseline {
		if re.MatchString(name) {
			return true
		}
	}
	for _, re := range p.configured {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

func (p *ProcessIdentifier) ClearCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = nil
	p.cacheValid = false
}

func (p *ProcessIdentifier) userApps() ([]cachedUserApp, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cacheValid {
		return p.cache, nil
	}

	uas, err := p.store.FindUserAppsByPlugin(ProcessIdentifierName)
	if err != nil {
		return nil, err
	}

	cache := make([]cachedUserApp, 0, len(uas))
	for _, ua := range uas {
		if ua.IdentifierData == nil {
			continue
		}
		data, err := ParseProcessData(*ua.IdentifierData)
		if err != nil {
			log.Warn().Err(err).Uint("user_app_id", ua.ID).Msg("skipping user app")
			continue
		}
		cache = append(cache, cachedUserApp{userApp: ua, data: data})
	}

	p.cache = cache
	p.cacheValid = true
	return cache, nil
}

// scan lists the current user's processes minus the ignored ones.
func (p *ProcessIdentifier) scan(ctx context.Context) ([]procscan.Process, error) {
	procs, err := p.lister.List(ctx, p.filter)
	if err != nil {
		return nil, errors.Wrap(err, "process scan failed")
	}

	kept := make([]procscan.Process, 0, len(procs))
	for _, proc := range procs {
		if !p.filter.Matches(proc.Username) || p.Ignored(proc.Name) {
			continue
		}
		kept = append(kept, proc)
	}
	return kept, nil
}

// IdentifyGame checks processes oldest first, so a game's main executable
// wins over helpers it spawned later.
func (p *ProcessIdentifier) IdentifyGame(ctx context.Context) (*Match, error) {
	uas, err := p.userApps()
	if err != nil {
		return nil, err
	}
	if len(uas) == 0 {
		return nil, nil
	}

	procs, err := p.scan(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(procs, func(i, j int) bool {
		return procs[i].CreatedAt.Before(procs[j].CreatedAt)
	})

	for _, proc := range procs {
		for _, c := range uas {
			if !c.data.Matches(proc) {
				continue
			}
			ua := c.userApp
			log.Debug().Str("process", proc.Name).Int32("pid", proc.PID).Uint("user_app_id", ua.ID).Msg("process identified")
			return &Match{Handle: proc.Handle, UserApp: &ua}, nil
		}
	}
	return nil, nil
}

// Candidates lists untracked processes newest first.
func (p *ProcessIdentifier) Candidates(ctx context.Context) []UnboundMatch {
	procs, err := p.scan(ctx)
	if err != nil {
		log.Error().Stack().Err(err).Msg("failed to list candidate processes")
		return nil
	}
	sort.SliceStable(procs, func(i, j int) bool {
		return procs[i].CreatedAt.After(procs[j].CreatedAt)
	})

	tracked, err := p.userApps()
	if err != nil {
		log.Warn().Err(err).Msg("could not load tracked user apps, listing all processes")
	}

	candidates := make([]UnboundMatch, 0, len(procs))
	for _, proc := range procs {
		if isTracked(tracked, proc) {
			continue
		}
		raw, err := json.Marshal(ProcessData{Exe: proc.Exe, Cmdline: proc.CommandLine()})
		if err != nil {
			log.Error().Stack().Err(err).Int32("pid", proc.PID).Msg("couldn't add candidate")
			continue
		}
		candidates = append(candidates, UnboundMatch{
			Note:             proc.Name,
			IdentifierPlugin: ProcessIdentifierName,
			IdentifierData:   string(raw),
		})
	}
	return candidates
}

func isTracked(tracked []cachedUserApp, proc procscan.Process) bool {
	for _, c := range tracked {
		if c.data.Matches(proc) {
			return true
		}
	}
	return false
}
