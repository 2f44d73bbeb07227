package reporter

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/playtrack/playtrack/internal/config"
	"github.com/playtrack/playtrack/internal/models"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	apps []models.Application
	err  error
}

func (s stubSource) ReportData() ([]models.Application, error) { return s.apps, s.err }

func sampleApps() []models.Application {
	started := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	return []models.Application{
		{
			ID:             1,
			Name:           "Doom",
			Disambiguation: models.StringPtr("1993"),
			UserApps: []models.UserApp{
				{
					ID:             1,
					AppID:          1,
					Path:           models.StringPtr("/games/doom"),
					InitialRuntime: 100,
					PlaySessions: []models.PlaySession{
						{ID: 1, Started: started, Duration: 50, Note: models.StringPtr("E1M1")},
						{ID: 2, Started: started.Add(time.Hour), Duration: 25, StatusUpdates: []models.StatusUpdate{
							{Timestamp: started.Add(time.Hour + time.Minute), Note: "Level 2\nreached"},
						}},
					},
				},
				{ID: 2, AppID: 1, InitialRuntime: 3600},
			},
		},
		{
			ID:   2,
			Name: "Hades",
			UserApps: []models.UserApp{
				{ID: 3, AppID: 2, Note: models.StringPtr("steam"), PlaySessions: []models.PlaySession{
					{ID: 3, Started: started, Duration: 7200},
				}},
			},
		},
	}
}

func TestBuildComputesRuntimes(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	report := Build(sampleApps(), now)

	require.Len(t, report.Apps, 2)
	doom := report.Apps[0]
	assert.Equal(t, "Doom (1993)", doom.Name)
	require.Len(t, doom.UserApps, 2)
	assert.Equal(t, int64(175), doom.UserApps[0].Runtime)
	assert.Equal(t, "/games/doom", doom.UserApps[0].Note)
	assert.Equal(t, int64(3600), doom.UserApps[1].Runtime)
	assert.Equal(t, "manual", doom.UserApps[1].Note)
	assert.Equal(t, int64(3775), doom.Runtime)

	require.Len(t, doom.UserApps[0].Sessions, 2)
	assert.Equal(t, "E1M1", doom.UserApps[0].Sessions[0].Note)
	require.Len(t, doom.UserApps[0].Sessions[1].StatusUpdates, 1)

	assert.Equal(t, int64(7200), report.Apps[1].Runtime)
	assert.Equal(t, int64(3775+7200), report.TotalSeconds)
	assert.Equal(t, now, report.GeneratedAt)
}

func TestProjection(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Report.TimeZone = "UTC"
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC))

	report, err := New(cfg, stubSource{apps: sampleApps()}, clock).Projection()
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), report.GeneratedAt)
	assert.Len(t, report.Apps, 2)

	_, err = New(cfg, stubSource{err: errors.New("locked")}, clock).Projection()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
}

func TestFormatText(t *testing.T) {
	t.Parallel()

	r := New(nil, nil, nil)
	out := r.FormatText(Build(sampleApps(), time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)))

	assert.Contains(t, out, "Total Time: 3 hours, 2 minutes, 55 seconds")
	assert.Contains(t, out, "Doom (1993)")
	assert.Contains(t, out, "2024-05-01 18:00  0 minutes, 50 seconds  E1M1")
	assert.Contains(t, out, "Level 2 reached")
	assert.Contains(t, out, "steam (2 hours, 0 minutes, 0 seconds)")

	empty := r.FormatText(Build(nil, time.Now()))
	assert.Contains(t, empty, "No play sessions recorded.")
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()

	r := New(nil, nil, nil)
	out, err := r.FormatJSON(Build(sampleApps(), time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	var decoded models.Report
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, int64(10975), decoded.TotalSeconds)
	assert.Equal(t, "Hades", decoded.Apps[1].Name)
}
