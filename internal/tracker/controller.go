// Package tracker drives play sessions: it polls the identifiers while
// idle, watches the matched program while a session runs and records the
// elapsed time.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playtrack/playtrack/internal/config"
	"github.com/playtrack/playtrack/internal/database"
	"github.com/playtrack/playtrack/internal/identifier"
	"github.com/playtrack/playtrack/internal/logging"
	"github.com/playtrack/playtrack/internal/models"
	"github.com/playtrack/playtrack/internal/session"
	"github.com/playtrack/playtrack/pkg/procscan"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	// ErrSessionInProgress rejects a manual session while another session runs.
	ErrSessionInProgress = errors.New("another game is already running, quit that game first")
	// ErrNoApp rejects a manual session for an unknown Application.
	ErrNoApp = errors.New("no such application")
	// ErrNoSession is returned by operations that need a running session.
	ErrNoSession = errors.New("no session is running")
	// ErrNotManual is returned when ending a session that was not started manually.
	ErrNotManual = errors.New("the running session is not a manual session")
)

// ApplicationOwner is the settings owner of application-wide keys.
const ApplicationOwner = "Application"

// errorLogInterval is how often an unchanged tick error is stored again.
const errorLogInterval = time.Hour

// State of the session lifecycle.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateManualRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateManualRunning:
		return "MANUAL_RUNNING"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ManualHandle stands in for a process during a manual session. It runs
// until End is called.
type ManualHandle struct {
	running atomic.Bool
}

func NewManualHandle() *ManualHandle {
	h := &ManualHandle{}
	h.running.Store(true)
	return h
}

func (h *ManualHandle) IsRunning() bool { return h.running.Load() }
func (h *ManualHandle) PID() int32      { return 0 }
func (h *ManualHandle) End()            { h.running.Store(false) }

// current is the bookkeeping of the running session.
type current struct {
	session   *models.PlaySession
	userApp   *models.UserApp
	handle    procscan.Handle
	manual    *ManualHandle
	committed int64
	// endedAt is set once the program is seen gone, so a retried final
	// write records the same duration.
	endedAt time.Time
}

// Options wires a Controller.
type Options struct {
	Config      *config.Config
	Repo        *database.Repository
	Settings    *database.Settings
	Identifiers *identifier.Registry
	Dispatcher  *session.Dispatcher
	Notifiers   []session.NotificationService
	Clock       clockwork.Clock
}

// Controller owns the session state machine. Poll ticks, UI actions and
// fired plugin callbacks all run under one mutex, so they never overlap.
type Controller struct {
	config      *config.Config
	repo        *database.Repository
	settings    *database.Settings
	identifiers *identifier.Registry
	dispatcher  *session.Dispatcher
	notifiers   []session.NotificationService
	clock       clockwork.Clock

	mu      sync.Mutex
	state   State
	current *current

	// Storage generations seen by the last tick. Writes made by other
	// processes show up as a change.
	synced      bool
	userAppGen  database.Generation
	settingsGen database.Generation

	lastError     string
	lastErrorTime time.Time

	loopMu   sync.Mutex
	looping  bool
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewController(opts Options) *Controller {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Identifiers == nil {
		opts.Identifiers = identifier.NewRegistry()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = session.NewDispatcher()
	}
	return &Controller{
		config:      opts.Config,
		repo:        opts.Repo,
		settings:    opts.Settings,
		identifiers: opts.Identifiers,
		dispatcher:  opts.Dispatcher,
		notifiers:   opts.Notifiers,
		clock:       opts.Clock,
		stopChan:    make(chan struct{}),
	}
}

// Start polls until ctx is cancelled or Stop is called. The first tick runs
// after the startup delay, each following one a poll interval after the
// previous tick finished.
func (c *Controller) Start(ctx context.Context) error {
	c.loopMu.Lock()
	if c.looping {
		c.loopMu.Unlock()
		return fmt.Errorf("tracker is already running")
	}
	c.looping = true
	c.loopMu.Unlock()
	defer func() {
		c.loopMu.Lock()
		c.looping = false
		c.loopMu.Unlock()
	}()

	log.Info().
		Dur("poll_interval", c.config.Tracker.PollInterval).
		Dur("commit_threshold", c.config.Tracker.CommitThreshold).
		Msg("starting tracker")

	timer := c.clock.NewTimer(c.config.Tracker.StartupDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("tracker stopped by context")
			return ctx.Err()

		case <-c.stopChan:
			log.Info().Msg("tracker stopped")
			return nil

		case <-timer.Chan():
			_ = c.Tick(ctx)
			timer.Reset(c.config.Tracker.PollInterval)
		}
	}
}

// Stop ends the polling loop. It does not finish the running session; use
// Shutdown for that.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

// IsPolling reports whether Start is running.
func (c *Controller) IsPolling() bool {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	return c.looping
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// exec runs fn on the controller's executor. Scheduled plugin callbacks
// arrive here.
func (c *Controller) exec(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("scheduled plugin callback panicked")
		}
	}()
	fn()
}

// syncStorage compares the user app and settings tables with what the last
// tick saw. Caches are dropped and settings reloaded when another process,
// such as the CLI, changed them.
func (c *Controller) syncStorage() {
	if c.repo == nil {
		return
	}
	apps, err := c.repo.UserAppGeneration()
	if err != nil {
		log.Warn().Err(err).Msg("failed to check user apps for changes")
		return
	}
	var settings database.Generation
	if c.settings != nil {
		if settings, err = c.settings.Generation(); err != nil {
			log.Warn().Err(err).Msg("failed to check settings for changes")
			return
		}
	}

	if c.synced {
		if apps != c.userAppGen {
			log.Info().Int64("user_apps", apps.RowCount).Msg("user apps changed, clearing identifier caches")
			c.identifiers.ClearAll()
		}
		if settings != c.settingsGen {
			log.Info().Msg("settings changed, reloading")
			c.reloadSettings()
		}
	}
	c.synced = true
	c.userAppGen = apps
	c.settingsGen = settings
}

// noteUserAppWrite records a user app write this controller has already
// acted on, so the next tick does not act on it again.
func (c *Controller) noteUserAppWrite() {
	if !c.synced {
		return
	}
	if g, err := c.repo.UserAppGeneration(); err == nil {
		c.userAppGen = g
	}
}

// isCurrent must be called on the executor.
func (c *Controller) isCurrent(sessionID uint) bool {
	return c.current != nil && c.current.session.ID == sessionID
}

// Tick runs one poll step: identification while idle, a liveness and
// duration check while a session runs. Errors are logged and recorded;
// the next tick starts from a clean slate.
func (c *Controller) Tick(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tick(ctx)
}

func (c *Controller) tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in poll tick: %v", r)
		}
		if err != nil {
			log.Error().Stack().Err(err).Str("state", c.state.String()).Msg("poll tick failed")
			c.storeError("tick", err)
			return
		}
		c.lastError = ""
	}()

	c.syncStorage()

	if c.current == nil {
		return c.scan(ctx)
	}
	return c.check(ctx)
}

func (c *Controller) scan(ctx context.Context) error {
	m, err := c.identifiers.Identify(ctx)
	if err != nil {
		return fmt.Errorf("identification failed: %w", err)
	}
	if m == nil {
		return nil
	}
	return c.begin(ctx, m.UserApp, m.Handle, nil)
}

func (c *Controller) begin(ctx context.Context, ua *models.UserApp, handle procscan.Handle, manual *ManualHandle) error {
	started := c.clock.Now()

	var ps *models.PlaySession
	err := c.repo.Transaction(func(tx *database.Repository) error {
		var err error
		ps, err = tx.CreatePlaySession(ua.ID, started)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to start session for %s: %w", ua.App.Name, err)
	}
	ps.UserApp = *ua

	c.current = &current{session: ps, userApp: ua, handle: handle, manual: manual}
	if manual != nil {
		c.state = StateManualRunning
	} else {
		c.state = StateRunning
	}

	env := session.Env{
		Session:   ps,
		UserApp:   ua,
		AppName:   ua.App.String(),
		Store:     c.repo,
		Notifiers: c.notifiers,
		Scheduler: session.NewScheduler(c.clock, c.exec),
		IsCurrent: c.isCurrent,
		Clock:     c.clock,
	}
	if c.settings != nil {
		env.Settings = func(owner string) session.Settings { return c.settings.Scoped(owner) }
	}
	c.dispatcher.Activate(ctx, env)

	logger := log.Info().
		Uint("session_id", ps.ID).
		Uint("user_app_id", ua.ID).
		Str("app", ua.App.String()).
		Bool("manual", manual != nil)
	if total, err := c.repo.AppRuntime(ua.AppID); err == nil {
		logger = logger.Int64("total_runtime", total)
	}
	logger.Msg("session started")
	return nil
}

func (c *Controller) elapsed(cur *current, now time.Time) int64 {
	elapsed := int64(now.Sub(cur.session.Started) / time.Second)
	if elapsed < cur.session.Duration {
		return cur.session.Duration
	}
	return elapsed
}

func (c *Controller) check(ctx context.Context) error {
	cur := c.current

	if cur.endedAt.IsZero() && cur.handle.IsRunning() {
		elapsed := c.elapsed(cur, c.clock.Now())
		cur.session.Duration = elapsed
		if elapsed < int64(c.config.Tracker.CommitThreshold/time.Second) {
			return nil
		}
		return c.commit(cur)
	}

	if cur.endedAt.IsZero() {
		cur.endedAt = c.clock.Now()
	}
	return c.finish(ctx)
}

// commit writes the in-memory duration of cur.
func (c *Controller) commit(cur *current) error {
	duration := cur.session.Duration
	err := c.repo.Transaction(func(tx *database.Repository) error {
		return tx.UpdatePlaySessionDuration(cur.session.ID, duration)
	})
	if err != nil {
		return fmt.Errorf("failed to save duration of session %d: %w", cur.session.ID, err)
	}
	cur.committed = duration
	return nil
}

// finish records the final duration and returns to idle. When the write
// fails the session stays current and the next tick retries, unless the
// session no longer exists.
func (c *Controller) finish(ctx context.Context) error {
	cur := c.current
	cur.session.Duration = c.elapsed(cur, cur.endedAt)
	if err := c.commit(cur); err != nil {
		if !database.IsNotFound(err) {
			return err
		}
		// The row is gone; retrying cannot succeed.
		c.dispatcher.Deactivate(ctx)
		c.current = nil
		c.state = StateIdle
		return err
	}

	log.Info().
		Uint("session_id", cur.session.ID).
		Str("app", cur.userApp.App.String()).
		Int64("duration", cur.session.Duration).
		Msg("session ended")

	c.dispatcher.Deactivate(ctx)
	c.current = nil
	c.state = StateIdle
	return nil
}

// BeginManualSession starts a session for an Application without a
// matching process. It fails with ErrSessionInProgress while any session
// runs.
func (c *Controller) BeginManualSession(ctx context.Context, appID uint) (*models.SessionView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		return nil, ErrSessionInProgress
	}

	ua, err := c.repo.GetOrCreateManualUserApp(appID)
	if database.IsNotFound(err) {
		return nil, fmt.Errorf("%w: %d", ErrNoApp, appID)
	}
	if err != nil {
		return nil, err
	}
	c.noteUserAppWrite()

	h := NewManualHandle()
	if err := c.begin(ctx, ua, h, h); err != nil {
		return nil, err
	}
	return c.view(), nil
}

// EndManualSession ends the running manual session through the same
// liveness check a poll tick performs.
func (c *Controller) EndManualSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoSession
	}
	if c.current.manual == nil {
		return ErrNotManual
	}

	c.current.manual.End()
	return c.tick(ctx)
}

// CurrentSessionView describes the running session, or returns nil when idle.
func (c *Controller) CurrentSessionView() *models.SessionView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view()
}

func (c *Controller) view() *models.SessionView {
	cur := c.current
	if cur == nil {
		return nil
	}

	elapsed := c.elapsed(cur, c.clock.Now())
	if !cur.endedAt.IsZero() {
		elapsed = cur.session.Duration
	}

	// Stored runtime includes only what was committed for this session.
	total, err := c.repo.AppRuntime(cur.userApp.AppID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load total runtime")
		total = cur.committed
	}
	total += elapsed - cur.committed

	return &models.SessionView{
		SessionID:    cur.session.ID,
		UserAppID:    cur.userApp.ID,
		AppName:      cur.userApp.App.String(),
		Manual:       cur.manual != nil,
		TotalRuntime: total,
		Elapsed:      elapsed,
	}
}

// SetSessionNote replaces the note of the running session.
func (c *Controller) SetSessionNote(note string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ErrNoSession
	}
	if err := c.repo.SetPlaySessionNote(c.current.session.ID, note); err != nil {
		return err
	}
	c.current.session.Note = models.StringPtr(note)
	return nil
}

// OnSettingsUpdated re-reads runtime settings: log verbosity and the
// identifiers' own settings.
func (c *Controller) OnSettingsUpdated() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reloadSettings()
	if c.synced && c.settings != nil {
		if g, err := c.settings.Generation(); err == nil {
			c.settingsGen = g
		}
	}
}

func (c *Controller) reloadSettings() {
	debug := c.config.Log.Debug
	if c.settings != nil {
		debug = c.settings.GetBool(ApplicationOwner, "debug", debug)
	}
	logging.SetDebug(debug)
	c.identifiers.ReloadSettings()
	log.Debug().Bool("debug", debug).Msg("settings reloaded")
}

// Candidates lists running programs that could be registered.
func (c *Controller) Candidates(ctx context.Context) []identifier.UnboundMatch {
	return c.identifiers.Candidates(ctx)
}

// RegisterUserApp adds a UserApp and makes the identifiers pick it up.
func (c *Controller) RegisterUserApp(in database.NewUserApp) (*models.UserApp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ua, err := c.repo.RegisterUserApp(in)
	if err != nil {
		return nil, err
	}
	c.identifiers.ClearAll()
	c.noteUserAppWrite()
	log.Info().Uint("user_app_id", ua.ID).Str("app", ua.App.String()).Msg("added user app")
	return ua, nil
}

// AddManualTime credits seconds to an Application's manual UserApp.
func (c *Controller) AddManualTime(appID uint, seconds int64) (*models.UserApp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ua, err := c.repo.AddManualTime(appID, seconds)
	if database.IsNotFound(err) {
		return nil, fmt.Errorf("%w: %d", ErrNoApp, appID)
	}
	if err != nil {
		return nil, err
	}
	c.identifiers.ClearAll()
	c.noteUserAppWrite()
	log.Info().Uint("user_app_id", ua.ID).Int64("seconds", seconds).Msg("added manual time")
	return ua, nil
}

// Shutdown stops polling and saves the running session. The returned error
// reports a failed final write; plugins are cleaned up either way.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.current
	if cur == nil {
		return nil
	}

	end := cur.endedAt
	if end.IsZero() {
		end = c.clock.Now()
	}
	cur.session.Duration = c.elapsed(cur, end)
	err := c.commit(cur)

	c.dispatcher.Deactivate(ctx)
	c.current = nil
	c.state = StateIdle

	if err != nil {
		log.Error().Err(err).Uint("session_id", cur.session.ID).Msg("failed to save running session on shutdown")
		return err
	}
	log.Info().Uint("session_id", cur.session.ID).Int64("duration", cur.session.Duration).Msg("running session saved")
	return nil
}

// storeError records err as an ErrorLog row. An error repeating the
// previous one is stored again only after errorLogInterval.
func (c *Controller) storeError(op string, err error) {
	if c.repo == nil {
		return
	}
	now := c.clock.Now()
	msg := err.Error()
	if msg == c.lastError && now.Sub(c.lastErrorTime) < errorLogInterval {
		return
	}
	c.lastError = msg
	c.lastErrorTime = now
	errorLog := &models.ErrorLog{
		Timestamp: now,
		Op:        op,
		ErrorMsg:  msg,
		CreatedAt: now,
	}

	if dbErr := c.repo.CreateErrorLog(errorLog); dbErr != nil {
		log.Warn().Err(dbErr).AnErr("original", err).Msg("failed to store error in database")
	}
}
