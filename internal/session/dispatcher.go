package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Dispatcher owns the plugins of the current session. It is not safe for
// concurrent use; the tracker calls it from its executor only.
type Dispatcher struct {
	factories []Factory
	active    []Plugin
	scheduler *Scheduler
}

// NewDispatcher registers the factories consulted on every session start.
func NewDispatcher(factories ...Factory) *Dispatcher {
	return &Dispatcher{factories: factories}
}

// Factories returns the registered factories.
func (d *Dispatcher) Factories() []Factory {
	return d.factories
}

// Active returns the plugins of the current session.
func (d *Dispatcher) Active() []Plugin {
	return d.active
}

// Activate builds and starts a plugin from every factory. A plugin that
// fails to build or start is left out; the others are unaffected. Plugins
// left over from a previous session are deactivated first.
func (d *Dispatcher) Activate(ctx context.Context, env Env) []Activation {
	if len(d.active) > 0 || d.scheduler != nil {
		log.Warn().Int("plugins", len(d.active)).Msg("previous session plugins still active, deactivating")
		d.Deactivate(ctx)
	}
	d.scheduler = env.Scheduler

	results := make([]Activation, 0, len(d.factories))
	for _, f := range d.factories {
		results = append(results, d.activate(ctx, f, env))
	}
	return results
}

func (d *Dispatcher) activate(ctx context.Context, f Factory, env Env) Activation {
	logger := log.With().Str("plugin", f.Name()).Logger()

	p, err := build(f, env)
	switch {
	case errors.Is(err, ErrUnsupportedApp):
		logger.Debug().Err(err).Msg("plugin skipped")
		return Skipped{Factory: f.Name(), Reason: err}
	case err != nil:
		var cfgErr *InvalidConfigurationError
		if errors.As(err, &cfgErr) {
			logger.Warn().Err(err).Msg("plugin misconfigured")
		} else {
			logger.Error().Err(err).Msg("failed to initialize session plugin")
		}
		return Failed{Factory: f.Name(), Err: err}
	}

	if err := safeCall(func() error { return p.OnSessionStart(ctx) }); err != nil {
		logger.Error().Err(err).Msg("plugin failed on session start")
		safeCleanup(p)
		return Failed{Factory: f.Name(), Err: err}
	}

	d.active = append(d.active, p)
	logger.Debug().Msg("plugin activated")
	return Activated{Plugin: p}
}

// Deactivate ends every active plugin, then cleans each one up even if
// ending it failed, and cancels whatever the session still has scheduled.
func (d *Dispatcher) Deactivate(ctx context.Context) {
	for _, p := range d.active {
		if err := safeCall(func() error { return p.OnSessionEnd(ctx) }); err != nil {
			log.Error().Stack().Err(err).Str("plugin", p.Name()).Msg("plugin failed on session end")
		}
		safeCleanup(p)
	}
	d.active = nil

	if d.scheduler != nil {
		d.scheduler.Close()
		d.scheduler = nil
	}
}

func build(f Factory, env Env) (p Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("panic in plugin constructor: %v", r)
		}
	}()
	p, err = f.New(env)
	if err == nil && p == nil {
		err = errors.New("plugin constructor returned nil")
	}
	return p, err
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func safeCleanup(p Plugin) {
	if err := safeCall(func() error { p.Cleanup(); return nil }); err != nil {
		log.Error().Stack().Err(err).Str("plugin", p.Name()).Msg("plugin cleanup failed")
	}
}
