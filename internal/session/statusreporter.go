package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/playtrack/playtrack/pkg/utils"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	StatusReporterName = "StatusReporter"

	firstReportDelay      = 35 * time.Second
	defaultReportInterval = 30 * time.Minute
)

// ReportFunc produces the body of a status report. An empty body means
// nothing changed and no report is recorded.
type ReportFunc func(ctx context.Context, env Env) (string, error)

// ElapsedReport reports how long the session has been running.
func ElapsedReport(_ context.Context, env Env) (string, error) {
	clock := env.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	elapsed := int64(clock.Since(env.Session.Started) / time.Second)
	return "Session time: " + utils.FormatDuration(elapsed, true), nil
}

// NewStatusReporterFactory periodically records a status update for
// sessions of one configured UserApp.
//
// Settings: user_app_id restricts the reporter to that UserApp; when it is
// unset the UserApp path must end with an entry of path_suffixes. interval
// is the report period in milliseconds.
func NewStatusReporterFactory(report ReportFunc) Factory {
	if report == nil {
		report = ElapsedReport
	}
	return NewFactory(StatusReporterName, func(env Env) (Plugin, error) {
		return newStatusReporter(env, report)
	})
}

type statusReporter struct {
	env      Env
	report   ReportFunc
	interval time.Duration
	job      *Task
}

func newStatusReporter(env Env, report ReportFunc) (Plugin, error) {
	if env.Session == nil || env.UserApp == nil || env.Scheduler == nil {
		return nil, errors.New("status reporter needs a session, a user app and a scheduler")
	}
	if env.Clock == nil {
		env.Clock = clockwork.NewRealClock()
	}
	settings := settingsFor(env, StatusReporterName)
	if settings == nil {
		return nil, fmt.Errorf("%w: no settings", ErrUnsupportedApp)
	}

	userAppID, err := settings.GetInt("user_app_id", 0)
	if err != nil {
		return nil, &InvalidConfigurationError{Plugin: StatusReporterName, Key: "user_app_id", Err: err}
	}

	switch {
	case userAppID != 0 && uint(userAppID) != env.UserApp.ID:
		return nil, fmt.Errorf("%w: configured user app %d, session user app %d",
			ErrUnsupportedApp, userAppID, env.UserApp.ID)
	case userAppID == 0:
		suffixes, err := settings.GetList("path_suffixes")
		if err != nil {
			return nil, err
		}
		if !pathMatches(env.UserApp.Path, suffixes) {
			return nil, fmt.Errorf("%w: path does not match a supported path", ErrUnsupportedApp)
		}
	}

	ms, err := settings.GetInt("interval", defaultReportInterval.Milliseconds())
	if err != nil {
		return nil, &InvalidConfigurationError{Plugin: StatusReporterName, Key: "interval", Err: err}
	}
	if ms <= 0 {
		return nil, &InvalidConfigurationError{
			Plugin: StatusReporterName,
			Key:    "interval",
			Err:    errors.New("must be positive, got " + strconv.FormatInt(ms, 10)),
		}
	}

	return &statusReporter{
		env:      env,
		report:   report,
		interval: time.Duration(ms) * time.Millisecond,
	}, nil
}

func pathMatches(path *string, suffixes []string) bool {
	if path == nil || *path == "" {
		return false
	}
	for _, s := range suffixes {
		if s != "" && strings.HasSuffix(*path, s) {
			return true
		}
	}
	return false
}

func (r *statusReporter) Name() string {
	return StatusReporterName
}

func (r *statusReporter) OnSessionStart(context.Context) error {
	r.job = r.env.Scheduler.After(firstReportDelay, r.periodic)
	return nil
}

func (r *statusReporter) periodic() {
	if !r.env.Current() {
		return
	}
	r.update(context.Background(), false)
	if r.env.Current() {
		r.job = r.env.Scheduler.After(r.interval, r.periodic)
	}
}

func (r *statusReporter) update(ctx context.Context, final bool) {
	verb := "is playing"
	if final {
		verb = "played"
	}

	details, err := r.report(ctx, r.env)
	if err != nil {
		log.Error().Stack().Err(err).Msg("failed to build status report")
		return
	}
	if details == "" {
		log.Debug().Msg("no difference since last report")
		return
	}

	if _, err := r.env.Store.AppendStatusUpdate(r.env.Session.ID, r.env.Clock.Now(), details); err != nil {
		log.Error().Stack().Err(err).Uint("session_id", r.env.Session.ID).Msg("failed to record status update")
	}

	msg := fmt.Sprintf("%s %s **%s**:\n\n%s", UserNamePlaceholder, verb, r.env.AppName, details)
	if err := r.env.Notify(ctx, msg); err != nil {
		log.Warn().Err(err).Msg("failed to send status report")
	}
}

func (r *statusReporter) OnSessionEnd(ctx context.Context) error {
	defer r.Cleanup()
	r.update(ctx, true)
	return nil
}

func (r *statusReporter) Cleanup() {
	r.job.Cancel()
}
