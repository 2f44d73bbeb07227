package reporter

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/playtrack/playtrack/internal/config"
	"github.com/playtrack/playtrack/internal/models"
	"github.com/playtrack/playtrack/pkg/utils"

	"github.com/jonboulle/clockwork"
)

// Source supplies the play history to project.
type Source interface {
	ReportData() ([]models.Application, error)
}

// Reporter handles report generation
type Reporter struct {
	config *config.Config
	source Source
	clock  clockwork.Clock
}

// New creates a new reporter
func New(cfg *config.Config, source Source, clock clockwork.Clock) *Reporter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Reporter{
		config: cfg,
		source: source,
		clock:  clock,
	}
}

// Projection loads the play history and computes every runtime.
func (r *Reporter) Projection() (*models.Report, error) {
	apps, err := r.source.ReportData()
	if err != nil {
		return nil, fmt.Errorf("failed to load report data: %w", err)
	}

	loc := time.Local
	if r.config != nil {
		if l, err := r.config.Location(); err == nil {
			loc = l
		}
	}
	return Build(apps, r.clock.Now().In(loc)), nil
}

// Build projects loaded applications into a report. A UserApp's runtime is
// its initial runtime plus the durations of its sessions; an Application's
// runtime is the sum over its UserApps.
func Build(apps []models.Application, now time.Time) *models.Report {
	report := &models.Report{
		GeneratedAt: now,
		Apps:        make([]models.AppReport, 0, len(apps)),
	}

	for _, app := range apps {
		ar := models.AppReport{
			ID:       app.ID,
			Name:     app.String(),
			UserApps: make([]models.UserAppReport, 0, len(app.UserApps)),
		}

		for _, ua := range app.UserApps {
			uar := models.UserAppReport{
				ID:             ua.ID,
				Note:           userAppLabel(ua),
				InitialRuntime: ua.InitialRuntime,
				Runtime:        ua.InitialRuntime,
				Sessions:       make([]models.SessionReport, 0, len(ua.PlaySessions)),
			}

			for _, ps := range ua.PlaySessions {
				sr := models.SessionReport{
					ID:       ps.ID,
					Started:  ps.Started.In(now.Location()),
					Duration: ps.Duration,
				}
				if ps.Note != nil {
					sr.Note = *ps.Note
				}
				for _, su := range ps.StatusUpdates {
					sr.StatusUpdates = append(sr.StatusUpdates, models.StatusUpdateReport{
						Timestamp: su.Timestamp.In(now.Location()),
						Note:      su.Note,
					})
				}
				uar.Runtime += ps.Duration
				uar.Sessions = append(uar.Sessions, sr)
			}

			ar.Runtime += uar.Runtime
			ar.UserApps = append(ar.UserApps, uar)
		}

		report.TotalSeconds += ar.Runtime
		report.Apps = append(report.Apps, ar)
	}

	return report
}

func userAppLabel(ua models.UserApp) string {
	switch {
	case ua.Note != nil && *ua.Note != "":
		return *ua.Note
	case ua.Path != nil && *ua.Path != "":
		return *ua.Path
	case ua.WindowText != nil && *ua.WindowText != "":
		return *ua.WindowText
	case ua.IsManual():
		return "manual"
	}
	return ""
}

// FormatText formats the report as human-readable text
func (r *Reporter) FormatText(report *models.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Play Report - generated %s\n", report.GeneratedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Total Time: %s\n\n", utils.FormatDuration(report.TotalSeconds, true))

	if len(report.Apps) == 0 {
		b.WriteString("No play sessions recorded.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%-40s %10s %10s\n", "Application", "Sessions", "Runtime")
	b.WriteString(strings.Repeat("-", 62) + "\n")

	for _, app := range report.Apps {
		sessions := 0
		for _, ua := range app.UserApps {
			sessions += len(ua.Sessions)
		}
		fmt.Fprintf(&b, "%-40s %10d %10s\n",
			truncate(app.Name, 40),
			sessions,
			utils.FormatRoundedUnit(app.Runtime))

		for _, ua := range app.UserApps {
			if ua.Note != "" {
				fmt.Fprintf(&b, "  %s (%s)\n", truncate(ua.Note, 56), utils.FormatDuration(ua.Runtime, true))
			}
			for _, s := range ua.Sessions {
				fmt.Fprintf(&b, "    %s  %s", s.Started.Format("2006-01-02 15:04"), utils.FormatDuration(s.Duration, true))
				if s.Note != "" {
					fmt.Fprintf(&b, "  %s", s.Note)
				}
				b.WriteString("\n")
				for _, su := range s.StatusUpdates {
					fmt.Fprintf(&b, "      %s  %s\n", su.Timestamp.Format("15:04"), strings.ReplaceAll(su.Note, "\n", " "))
				}
			}
		}
	}

	return b.String()
}

// FormatJSON formats the report as JSON
func (r *Reporter) FormatJSON(report *models.Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

// truncate truncates a string to the specified length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
