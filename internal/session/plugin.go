// Package session runs the observer plugins scoped to one play session.
//
// A Dispatcher creates a fresh Plugin from every registered Factory when a
// session starts and tears all of them down when it ends. Plugin failures
// are isolated: they are logged and never reach the tracker or other
// plugins.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playtrack/playtrack/internal/models"

	"github.com/jonboulle/clockwork"
)

// ErrUnsupportedApp is returned by a Factory that does not apply to the
// session's UserApp. It is expected and only debug-logged.
var ErrUnsupportedApp = errors.New("plugin does not support this app")

// InvalidConfigurationError means a plugin's persisted settings are malformed.
type InvalidConfigurationError struct {
	Plugin string
	Key    string
	Err    error
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s setting %q: %v", e.Plugin, e.Key, e.Err)
}

func (e *InvalidConfigurationError) Unwrap() error {
	return e.Err
}

// Plugin observes one play session.
type Plugin interface {
	Name() string
	OnSessionStart(ctx context.Context) error
	OnSessionEnd(ctx context.Context) error
	// Cleanup releases timers and other resources. It must be safe to call
	// more than once.
	Cleanup()
}

// Factory builds a Plugin for a session, or rejects it with
// ErrUnsupportedApp.
type Factory interface {
	Name() string
	New(env Env) (Plugin, error)
}

type factoryFunc struct {
	name string
	fn   func(env Env) (Plugin, error)
}

// NewFactory adapts a constructor function to Factory.
func NewFactory(name string, fn func(env Env) (Plugin, error)) Factory {
	return &factoryFunc{name: name, fn: fn}
}

func (f *factoryFunc) Name() string                { return f.name }
func (f *factoryFunc) New(env Env) (Plugin, error) { return f.fn(env) }

// Store is the storage a plugin may touch while its session is current.
type Store interface {
	AppendStatusUpdate(sessionID uint, at time.Time, note string) (*models.StatusUpdate, error)
	UserAppRuntime(userAppID uint) (int64, error)
	AppRuntime(appID uint) (int64, error)
}

// Settings is a plugin's view of its own configuration keys.
type Settings interface {
	GetString(key, fallback string) string
	GetInt(key string, fallback int64) (int64, error)
	GetBool(key string, fallback bool) bool
	GetList(key string) ([]string, error)
}

// Env is everything a Factory gets to build a plugin for one session.
type Env struct {
	// Session is owned by the tracker, which keeps Duration current.
	Session   *models.PlaySession
	UserApp   *models.UserApp
	AppName   string
	Store     Store
	Settings  func(owner string) Settings
	Notifiers []NotificationService
	Scheduler *Scheduler
	// IsCurrent reports whether the session with this id is still running.
	IsCurrent func(sessionID uint) bool
	Clock     clockwork.Clock
}

// Current reports whether env's session is still the running one.
func (e Env) Current() bool {
	return e.IsCurrent != nil && e.Session != nil && e.IsCurrent(e.Session.ID)
}

// Notify sends msg through every notification service. Failures are
// collected and returned together.
func (e Env) Notify(ctx context.Context, msg string) error {
	var errs []error
	for _, n := range e.Notifiers {
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Activation is the outcome of building one plugin for a session: one of
// Activated, Skipped or Failed.
type Activation interface {
	FactoryName() string
	isActivation()
}

type Activated struct {
	Plugin Plugin
}

type Skipped struct {
	Factory string
	Reason  error
}

type Failed struct {
	Factory string
	Err     error
}

func (a Activated) FactoryName() string { return a.Plugin.Name() }
func (s Skipped) FactoryName() string   { return s.Factory }
func (f Failed) FactoryName() string    { return f.Factory }

func (Activated) isActivation() {}
func (Skipped) isActivation()   {}
func (Failed) isActivation()    {}
