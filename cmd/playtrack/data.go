package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/playtrack/playtrack/internal/database"
	"github.com/playtrack/playtrack/internal/identifier"
	"github.com/playtrack/playtrack/internal/reporter"
	"github.com/playtrack/playtrack/pkg/utils"

	"github.com/spf13/cobra"
)

func newReportCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the play time report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			rep := reporter.New(cfg, database.NewRepository(db), nil)
			report, err := rep.Projection()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				s, err := rep.FormatJSON(report)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, s)
				return nil
			}
			fmt.Fprint(out, rep.FormatText(report))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")
	return cmd
}

func newAppsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List applications and their tracked configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			db, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			apps, err := database.NewRepository(db).ReportData()
			if err != nil {
				return err
			}
			report := reporter.Build(apps, time.Now())

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tRUNTIME\tUSER APPS")
			for _, app := range report.Apps {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", app.ID, app.Name, utils.FormatRoundedUnit(app.Runtime), len(app.UserApps))
			}
			return w.Flush()
		},
	}
}

func newCandidatesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "candidates",
		Short: "List running programs that can be added",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			candidates := a.controller.Candidates(cmd.Context())
			if len(candidates) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No candidates found")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tIDENTIFIER\tNOTE")
			for i, c := range candidates {
				fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, c.IdentifierPlugin, c.Note)
			}
			return w.Flush()
		},
	}
}

type addOptions struct {
	name      string
	appID     uint
	note      string
	path      string
	exe       string
	cmdline   string
	window    string
	plugin    string
	data      string
	initial   time.Duration
	candidate int
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	o := &addOptions{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a program as a tracked application",
		Long: "Registers a UserApp. Match it by executable (--exe, optionally --cmdline), by window title (--window),\n" +
			"by a raw identifier (--plugin and --data) or by picking a running candidate (--candidate).",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			in, err := o.build(cmd.Context(), a)
			if err != nil {
				return err
			}
			if in.IdentifierPlugin == "" && in.Path == "" && in.WindowText == "" {
				return errors.New("nothing to match on: use --exe, --window, --plugin or --candidate")
			}

			ua, err := a.controller.RegisterUserApp(in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (application %d, user app %d)\n", ua.App.String(), ua.AppID, ua.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.name, "name", "", "application name (created when new)")
	f.UintVar(&o.appID, "app-id", 0, "existing application id")
	f.StringVar(&o.note, "note", "", "note shown in reports")
	f.StringVar(&o.path, "path", "", "install path of the program")
	f.StringVar(&o.exe, "exe", "", "executable path to match")
	f.StringVar(&o.cmdline, "cmdline", "", "command line prefix to match together with --exe")
	f.StringVar(&o.window, "window", "", "window title to match")
	f.StringVar(&o.plugin, "plugin", "", "identifier name")
	f.StringVar(&o.data, "data", "", "identifier data (JSON)")
	f.DurationVar(&o.initial, "initial", 0, "play time recorded before tracking, e.g. 12h30m")
	f.IntVar(&o.candidate, "candidate", 0, "number of a running candidate as listed by 'candidates'")
	return cmd
}

func (o *addOptions) build(ctx context.Context, a *app) (database.NewUserApp, error) {
	in := database.NewUserApp{
		AppName:          o.name,
		AppID:            o.appID,
		Note:             o.note,
		Path:             o.path,
		IdentifierPlugin: o.plugin,
		IdentifierData:   o.data,
		InitialRuntime:   int64(o.initial / time.Second),
	}
	if in.AppID == 0 && strings.TrimSpace(in.AppName) == "" {
		return in, errors.New("either --name or --app-id is required")
	}
	if o.initial < 0 {
		return in, errors.New("--initial must not be negative")
	}

	switch {
	case o.candidate > 0:
		candidates := a.registry.Candidates(ctx)
		if o.candidate > len(candidates) {
			return in, fmt.Errorf("no candidate %d, %d found", o.candidate, len(candidates))
		}
		c := candidates[o.candidate-1]
		in.IdentifierPlugin, in.IdentifierData = c.IdentifierPlugin, c.IdentifierData
		if in.Note == "" {
			in.Note = c.Note
		}

	case o.exe != "":
		data, err := json.Marshal(identifier.ProcessData{Exe: o.exe, Cmdline: o.cmdline})
		if err != nil {
			return in, err
		}
		in.IdentifierPlugin, in.IdentifierData = identifier.ProcessIdentifierName, string(data)

	case o.window != "":
		in.IdentifierPlugin = identifier.WindowIdentifierName
		in.WindowText = o.window
	}
	return in, nil
}

func newAddTimeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add-time <app-id> <duration>",
		Short: "Credit play time to an application, e.g. add-time 3 1h30m",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			appID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid application id %q", args[0])
			}
			seconds, err := parseSeconds(args[1])
			if err != nil {
				return err
			}

			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ua, err := a.controller.AddManualTime(uint(appID), seconds)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s to %s\n", utils.FormatDuration(seconds, false), ua.App.String())
			return nil
		},
	}
}

// parseSeconds accepts a Go duration ("1h30m") or a plain number of seconds.
func parseSeconds(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return int64(d / time.Second), nil
}
