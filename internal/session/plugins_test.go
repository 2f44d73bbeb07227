package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startPlugin(t *testing.T, f Factory, te *testEnv) Plugin {
	t.Helper()
	p, err := f.New(te.Env)
	require.NoError(t, err)
	require.NoError(t, p.OnSessionStart(context.Background()))
	return p
}

func TestPlaySessionNotifierBeginNotice(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	startPlugin(t, NewPlaySessionNotifierFactory(), te)

	te.clock.Advance(29 * time.Second)
	assert.Empty(t, te.notifier.Messages())

	te.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return len(te.notifier.Messages()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "{user_name} began playing **Hades**.", te.notifier.Messages()[0])
}

func TestPlaySessionNotifierSkipsStaleSession(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	startPlugin(t, NewPlaySessionNotifierFactory(), te)
	te.current.Store(false)

	te.clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return te.Scheduler.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, te.notifier.Messages())
}

func TestPlaySessionNotifierSendBeginDisabled(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	te.set(PlaySessionNotifierName, "send_begin", "false")
	startPlugin(t, NewPlaySessionNotifierFactory(), te)

	te.clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return te.Scheduler.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, te.notifier.Messages())
}

func TestPlaySessionNotifierEnd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		duration int64
		sendEnd  string
		want     []string
	}{
		{
			name:     "announced",
			duration: 45,
			want:     []string{"{user_name} played **Hades** for 0 minutes, 45 seconds. Total: 1 hour, 0 minutes, 0 seconds."},
		},
		{name: "too short", duration: 29},
		{name: "disabled", duration: 45, sendEnd: "false"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			te := newTestEnv()
			te.store.appRuntime = 3600
			if tt.sendEnd != "" {
				te.set(PlaySessionNotifierName, "send_end", tt.sendEnd)
			}
			p := startPlugin(t, NewPlaySessionNotifierFactory(), te)

			te.Session.Duration = tt.duration
			require.NoError(t, p.OnSessionEnd(context.Background()))
			assert.Equal(t, tt.want, te.notifier.Messages())
			assert.Equal(t, 0, te.Scheduler.Pending(), "end cancels the pending begin notice")

			p.Cleanup()
			p.Cleanup()
		})
	}
}

func TestStatusReporterActivation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		values   map[string]string
		suffixes []string
		wantErr  error
		wantCfg  string
	}{
		{name: "matching user app", values: map[string]string{"user_app_id": "3"}},
		{name: "other user app", values: map[string]string{"user_app_id": "4"}, wantErr: ErrUnsupportedApp},
		{name: "matching path suffix", suffixes: []string{"Celeste.exe", "Hades.exe"}},
		{name: "no matching suffix", suffixes: []string{"Celeste.exe"}, wantErr: ErrUnsupportedApp},
		{name: "nothing configured", wantErr: ErrUnsupportedApp},
		{name: "user app id not a number", values: map[string]string{"user_app_id": "three"}, wantCfg: "user_app_id"},
		{name: "interval not a number", values: map[string]string{"user_app_id": "3", "interval": "soon"}, wantCfg: "interval"},
		{name: "interval not positive", values: map[string]string{"user_app_id": "3", "interval": "0"}, wantCfg: "interval"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			te := newTestEnv()
			for k, v := range tt.values {
				te.set(StatusReporterName, k, v)
			}
			te.setList(StatusReporterName, "path_suffixes", tt.suffixes...)

			p, err := NewStatusReporterFactory(nil).New(te.Env)
			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.wantCfg != "":
				var cfgErr *InvalidConfigurationError
				require.ErrorAs(t, err, &cfgErr)
				assert.Equal(t, tt.wantCfg, cfgErr.Key)
				assert.Equal(t, StatusReporterName, cfgErr.Plugin)
			default:
				require.NoError(t, err)
				assert.Equal(t, StatusReporterName, p.Name())
			}
		})
	}
}

func TestStatusReporterPeriodicReports(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	te.set(StatusReporterName, "user_app_id", "3")
	te.set(StatusReporterName, "interval", "60000")
	p := startPlugin(t, NewStatusReporterFactory(nil), te)

	te.clock.Advance(35 * time.Second)
	require.Eventually(t, te.check(func() bool {
		return len(te.store.Updates()) == 1 && te.Scheduler.Pending() == 1
	}), time.Second, 5*time.Millisecond)
	assert.Equal(t, "Session time: 0 minutes, 35 seconds", te.store.Updates()[0].Note)
	assert.Equal(t, uint(11), te.store.Updates()[0].PlaySessionID)

	te.clock.Advance(time.Minute)
	require.Eventually(t, te.check(func() bool {
		return len(te.store.Updates()) == 2 && te.Scheduler.Pending() == 1
	}), time.Second, 5*time.Millisecond)
	assert.Equal(t, "Session time: 1 minute, 35 seconds", te.store.Updates()[1].Note)

	te.exec(func() {
		require.NoError(t, p.OnSessionEnd(context.Background()))
	})
	updates := te.store.Updates()
	require.Len(t, updates, 3)
	assert.Equal(t, 0, te.Scheduler.Pending())

	msgs := te.notifier.Messages()
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0], "{user_name} is playing **Hades**:")
	assert.Contains(t, msgs[2], "{user_name} played **Hades**:")
}

func TestStatusReporterStopsWhenSessionEnds(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	te.set(StatusReporterName, "user_app_id", "3")
	startPlugin(t, NewStatusReporterFactory(nil), te)

	te.current.Store(false)
	te.clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return te.Scheduler.Pending() == 0 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, te.store.Updates())
}

func TestStatusReporterEmptyReport(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	te.set(StatusReporterName, "user_app_id", "3")
	quiet := func(context.Context, Env) (string, error) { return "", nil }
	p := startPlugin(t, NewStatusReporterFactory(quiet), te)

	require.NoError(t, p.OnSessionEnd(context.Background()))
	assert.Empty(t, te.store.Updates())
	assert.Empty(t, te.notifier.Messages())
}

func TestEnvNotifyJoinsErrors(t *testing.T) {
	t.Parallel()

	te := newTestEnv()
	te.Notifiers = append(te.Notifiers, failingNotifier{})

	err := te.Notify(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing")
	assert.Equal(t, []string{"hello"}, te.notifier.Messages())
}

func TestExpandUserName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Ana began playing", ExpandUserName("{user_name} began playing", "Ana"))
	assert.Equal(t, "Someone began playing", ExpandUserName("{user_name} began playing", ""))
	require.NoError(t, NewLogNotifier("Ana").Notify(context.Background(), "{user_name} hi"))
}

type failingNotifier struct{}

func (failingNotifier) Name() string                         { return "failing" }
func (failingNotifier) Notify(context.Context, string) error { return errors.New("offline") }
