package session

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playtrack/playtrack/internal/models"

	"github.com/jonboulle/clockwork"
)

type fakeStore struct {
	mu         sync.Mutex
	updates    []models.StatusUpdate
	appRuntime int64
	err        error
}

func (s *fakeStore) AppendStatusUpdate(sessionID uint, at time.Time, note string) (*models.StatusUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	su := models.StatusUpdate{ID: uint(len(s.updates) + 1), PlaySessionID: sessionID, Timestamp: at, Note: note}
	s.updates = append(s.updates, su)
	return &su, nil
}

func (s *fakeStore) UserAppRuntime(uint) (int64, error) { return s.appRuntime, s.err }
func (s *fakeStore) AppRuntime(uint) (int64, error)     { return s.appRuntime, s.err }

func (s *fakeStore) Updates() []models.StatusUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StatusUpdate(nil), s.updates...)
}

type fakeSettings struct {
	values map[string]string
	lists  map[string][]string
}

func (s *fakeSettings) GetString(key, fallback string) string {
	if v, ok := s.values[key]; ok {
		return v
	}
	return fallback
}

func (s *fakeSettings) GetInt(key string, fallback int64) (int64, error) {
	v, ok := s.values[key]
	if !ok {
		return fallback, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func (s *fakeSettings) GetBool(key string, fallback bool) bool {
	v, ok := s.values[key]
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func (s *fakeSettings) GetList(key string) ([]string, error) {
	return s.lists[key], nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Notify(_ context.Context, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

type testEnv struct {
	Env
	// mu plays the tracker's executor.
	mu       sync.Mutex
	clock    *clockwork.FakeClock
	store    *fakeStore
	notifier *recordingNotifier
	settings map[string]*fakeSettings
	current  *atomic.Bool
}

func newTestEnv() *testEnv {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC))
	te := &testEnv{
		clock:    clock,
		store:    &fakeStore{},
		notifier: &recordingNotifier{},
		settings: map[string]*fakeSettings{},
		current:  &atomic.Bool{},
	}
	te.current.Store(true)

	path := "/games/hades/Hades.exe"
	te.Env = Env{
		Session: &models.PlaySession{ID: 11, UserAppID: 3, Started: clock.Now()},
		UserApp: &models.UserApp{ID: 3, AppID: 2, Path: &path},
		AppName: "Hades",
		Store:   te.store,
		Settings: func(owner string) Settings {
			s, ok := te.settings[owner]
			if !ok {
				s = &fakeSettings{values: map[string]string{}, lists: map[string][]string{}}
				te.settings[owner] = s
			}
			return s
		},
		Notifiers: []NotificationService{te.notifier},
		Scheduler: NewScheduler(clock, te.exec),
		IsCurrent: func(id uint) bool { return id == 11 && te.current.Load() },
		Clock:     clock,
	}
	return te
}

func (te *testEnv) exec(fn func()) {
	te.mu.Lock()
	defer te.mu.Unlock()
	fn()
}

func (te *testEnv) check(cond func() bool) func() bool {
	return func() bool {
		var ok bool
		te.exec(func() { ok = cond() })
		return ok
	}
}

func (te *testEnv) set(owner, key, value string) {
	te.Settings(owner)
	te.settings[owner].values[key] = value
}

func (te *testEnv) setList(owner, key string, values ...string) {
	te.Settings(owner)
	te.settings[owner].lists[key] = values
}

type recordingPlugin struct {
	name       string
	startErr   error
	endErr     error
	panicOnEnd bool

	starts   int
	ends     int
	cleanups int
}

func (p *recordingPlugin) Name() string { return p.name }

func (p *recordingPlugin) OnSessionStart(context.Context) error {
	p.starts++
	return p.startErr
}

func (p *recordingPlugin) OnSessionEnd(context.Context) error {
	p.ends++
	if p.panicOnEnd {
		panic("end exploded")
	}
	return p.endErr
}

func (p *recordingPlugin) Cleanup() { p.cleanups++ }

func pluginFactory(p *recordingPlugin) Factory {
	return NewFactory(p.name, func(Env) (Plugin, error) { return p, nil })
}
