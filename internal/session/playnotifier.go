package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playtrack/playtrack/pkg/utils"

	"github.com/rs/zerolog/log"
)

const (
	PlaySessionNotifierName = "PlaySessionNotifier"

	beginNoticeDelay = 30 * time.Second
	// Sessions shorter than this are not announced when they end.
	minAnnouncedDuration = 30
)

// NewPlaySessionNotifierFactory announces the start and end of sessions
// through the notification services. Settings: send_begin, send_end.
func NewPlaySessionNotifierFactory() Factory {
	return NewFactory(PlaySessionNotifierName, newPlaySessionNotifier)
}

type playSessionNotifier struct {
	env       Env
	settings  Settings
	startTask *Task
}

func newPlaySessionNotifier(env Env) (Plugin, error) {
	if env.Session == nil || env.Scheduler == nil {
		return nil, errors.New("play session notifier needs a session and a scheduler")
	}
	return &playSessionNotifier{
		env:      env,
		settings: settingsFor(env, PlaySessionNotifierName),
	}, nil
}

func (p *playSessionNotifier) Name() string {
	return PlaySessionNotifierName
}

func (p *playSessionNotifier) OnSessionStart(context.Context) error {
	p.startTask = p.env.Scheduler.After(beginNoticeDelay, func() {
		if !boolSetting(p.settings, "send_begin", true) || !p.env.Current() {
			return
		}
		msg := fmt.Sprintf("%s began playing **%s**.", UserNamePlaceholder, p.env.AppName)
		if err := p.env.Notify(context.Background(), msg); err != nil {
			log.Warn().Err(err).Msg("failed to send session start notice")
		}
	})
	return nil
}

func (p *playSessionNotifier) OnSessionEnd(ctx context.Context) error {
	defer p.Cleanup()

	duration := p.env.Session.Duration
	if !boolSetting(p.settings, "send_end", true) || duration < minAnnouncedDuration {
		return nil
	}

	total, err := p.env.Store.AppRuntime(p.env.UserApp.AppID)
	if err != nil {
		return fmt.Errorf("failed to load total runtime: %w", err)
	}

	msg := fmt.Sprintf("%s played **%s** for %s. Total: %s.",
		UserNamePlaceholder,
		p.env.AppName,
		utils.FormatDuration(duration, true),
		utils.FormatDuration(total, true))
	return p.env.Notify(ctx, msg)
}

func (p *playSessionNotifier) Cleanup() {
	p.startTask.Cancel()
}

func settingsFor(env Env, owner string) Settings {
	if env.Settings == nil {
		return nil
	}
	return env.Settings(owner)
}

func boolSetting(s Settings, key string, fallback bool) bool {
	if s == nil {
		return fallback
	}
	return s.GetBool(key, fallback)
}
