package main

import (
	"io"

	"github.com/playtrack/playtrack/internal/config"
	"github.com/playtrack/playtrack/internal/database"
	"github.com/playtrack/playtrack/internal/identifier"
	"github.com/playtrack/playtrack/internal/logging"
	"github.com/playtrack/playtrack/internal/session"
	"github.com/playtrack/playtrack/internal/tracker"
	"github.com/playtrack/playtrack/pkg/procscan"
	"github.com/playtrack/playtrack/pkg/window"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// app is the wired tracker: storage, identifiers, plugins and controller.
type app struct {
	cfg        *config.Config
	db         *database.DB
	repo       *database.Repository
	settings   *database.Settings
	registry   *identifier.Registry
	controller *tracker.Controller
	windows    window.Lister
	clock      clockwork.Clock
}

func initLogging(cfg *config.Config, writers ...io.Writer) error {
	dir := cfg.Log.Dir
	if dir == "" {
		var err error
		dir, err = database.DefaultDataDir()
		if err != nil {
			return err
		}
	}
	return logging.Init(dir, cfg.Log.Debug, writers...)
}

// openStore connects to and migrates the database.
func openStore(cfg *config.Config) (*database.DB, error) {
	db, err := database.Connect(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := db.Initialize(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func openApp(cfg *config.Config) (*app, error) {
	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		db:       db,
		repo:     database.NewRepository(db),
		settings: database.NewSettings(db),
		clock:    clockwork.NewRealClock(),
	}

	identifiers := []identifier.Identifier{
		identifier.NewProcessIdentifier(
			procscan.NewSystemLister(),
			a.repo,
			a.settings.Scoped(identifier.ProcessIdentifierName),
			identifier.WithUsername(procscan.CurrentUsername()),
		),
	}

	if lister := window.New(); lister != nil {
		a.windows = lister
		identifiers = append(identifiers, identifier.NewWindowIdentifier(lister, a.repo))
	} else {
		log.Info().Str("display", window.DetectDisplayServer()).Msg("no window list available, window title matching disabled")
	}
	a.registry = identifier.NewRegistry(identifiers...)
	a.registry.ReloadSettings()

	userName := a.settings.GetString(tracker.ApplicationOwner, "user_name", "")
	dispatcher := session.NewDispatcher(
		session.NewPlaySessionNotifierFactory(),
		session.NewStatusReporterFactory(session.ElapsedReport),
	)

	a.controller = tracker.NewController(tracker.Options{
		Config:      cfg,
		Repo:        a.repo,
		Settings:    a.settings,
		Identifiers: a.registry,
		Dispatcher:  dispatcher,
		Notifiers:   []session.NotificationService{session.NewLogNotifier(userName)},
		Clock:       a.clock,
	})
	return a, nil
}

func (a *app) Close() {
	if a.windows != nil {
		if err := a.windows.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close window lister")
		}
	}
	if err := a.db.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}
}
