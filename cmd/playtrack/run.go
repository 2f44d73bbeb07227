package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/playtrack/playtrack/internal/config"
	"github.com/playtrack/playtrack/internal/daemon"
	"github.com/playtrack/playtrack/internal/database"
	"github.com/playtrack/playtrack/internal/logging"
	"github.com/playtrack/playtrack/internal/models"
	"github.com/playtrack/playtrack/internal/web"
	"github.com/playtrack/playtrack/pkg/utils"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newStartCmd(opts *rootOptions) *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the tracking daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return launch(cmd, opts, foreground, false, 0)
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "run in the foreground and log to the console")
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		foreground bool
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tracking daemon with the web API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return launch(cmd, opts, foreground, true, port)
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "run in the foreground and log to the console")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "web API port (overrides the configured port)")
	return cmd
}

func launch(cmd *cobra.Command, opts *rootOptions, foreground, withWeb bool, port int) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running {
		return fmt.Errorf("daemon is already running (PID: %d)", pid)
	}

	if foreground || daemon.IsChild() {
		var extra []io.Writer
		if foreground {
			extra = append(extra, logging.Console())
		}
		if err := initLogging(cfg, extra...); err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		return runTracker(cmd, cfg, dm, withWeb, port)
	}

	pid, err = daemon.Spawn(os.Args[1:])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Daemon started successfully (PID: %d)\n", pid)
	if withWeb {
		webPort := cfg.Web.Port
		if port > 0 {
			webPort = port
		}
		fmt.Fprintf(out, "Web API available at: http://%s:%d\n", cfg.Web.Host, webPort)
	}
	return nil
}

// runTracker polls until SIGINT or SIGTERM, then saves the running session.
func runTracker(cmd *cobra.Command, cfg *config.Config, dm *daemon.Daemon, withWeb bool, port int) error {
	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := dm.WritePID(); err != nil {
		return err
	}
	defer func() {
		if err := dm.RemovePID(); err != nil {
			log.Warn().Err(err).Msg("failed to remove PID file")
		}
	}()

	log.Info().Str("version", Version).Msg("starting playtrack daemon")
	log.Info().Msgf("Configuration:\n%s", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.controller.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if withWeb {
		handler := web.NewHandler(cfg, a.controller, a.repo, a.settings, a.clock)
		server := web.NewServer(cfg, handler, port)

		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	runErr := g.Wait()
	if runErr != nil {
		log.Error().Err(runErr).Msg("tracker stopped with error")
	} else {
		log.Info().Msg("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.controller.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Failed to save the running session: %v\n", err)
	}

	log.Info().Msg("daemon stopped")
	return runErr
}

func newStopCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the tracking daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			dm := daemon.New(cfg.Daemon.PIDFile)
			running, pid, err := dm.IsRunning()
			if err != nil {
				return fmt.Errorf("failed to check daemon status: %w", err)
			}

			out := cmd.OutOrStdout()
			if !running {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}

			fmt.Fprintf(out, "Stopping daemon (PID: %d)...\n", pid)
			if err := dm.Stop(cmd.Context(), timeout); err != nil {
				return fmt.Errorf("failed to stop daemon: %w", err)
			}
			fmt.Fprintln(out, "Daemon stopped successfully")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "how long to wait for the daemon to exit")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and the running session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return runStatus(cmd, cfg)
		},
	}
}

func runStatus(cmd *cobra.Command, cfg *config.Config) error {
	out := cmd.OutOrStdout()

	running, pid, err := daemon.New(cfg.Daemon.PIDFile).IsRunning()
	if err != nil {
		return fmt.Errorf("failed to check daemon status: %w", err)
	}
	if running {
		fmt.Fprintf(out, "Status: Running (PID: %d)\n", pid)
		fmt.Fprintf(out, "Poll Interval: %v\n", cfg.Tracker.PollInterval)
	} else {
		fmt.Fprintln(out, "Status: Not running")
	}

	if view, state, err := fetchLiveStatus(cmd.Context(), cfg); err == nil {
		fmt.Fprintf(out, "State: %s\n", state)
		if view != nil {
			fmt.Fprintf(out, "\nPlaying: %s\n", view.AppName)
			fmt.Fprintf(out, "  Session: %s\n", utils.FormatDuration(view.Elapsed, false))
			fmt.Fprintf(out, "  Total:   %s\n", utils.FormatDuration(view.TotalRuntime, false))
		}
		return nil
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := database.NewRepository(db)
	latest, err := repo.LatestPlaySession()
	if err != nil {
		return err
	}
	if latest != nil {
		fmt.Fprintf(out, "\nLast session: %s\n", latest.UserApp.App.String())
		fmt.Fprintf(out, "  Started:  %s\n", latest.Started.Format(time.RFC1123))
		fmt.Fprintf(out, "  Duration: %s\n", utils.FormatDuration(latest.Duration, false))
	}
	return nil
}

type liveStatus struct {
	State   string              `json:"state"`
	Session *models.SessionView `json:"session"`
}

// fetchLiveStatus asks a serving daemon for its current session.
func fetchLiveStatus(ctx context.Context, cfg *config.Config) (*models.SessionView, string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s:%d/api/status", cfg.Web.Host, cfg.Web.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("status request failed: %s", resp.Status)
	}

	var status liveStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, "", err
	}
	return status.Session, status.State, nil
}
