package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/playtrack/playtrack/internal/config"
	"github.com/playtrack/playtrack/internal/logging"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const appName = "playtrack"

type rootOptions struct {
	configPath string
	debug      bool
}

// loadConfig builds the configuration: defaults, then the TOML file, then
// the environment.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg := config.Default()

	path := o.configPath
	if path == "" {
		path = defaultConfigPath()
	}
	if path != "" {
		if err := config.LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	config.LoadFromEnv(cfg)
	if o.debug {
		cfg.Log.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, appName, "config.toml")
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "playtrack - play time tracker",
		Long:          "playtrack watches running programs, recognizes registered games and records how long each one is played.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.InitConsole(opts.debug)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the TOML config file")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newStartCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newStopCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newReportCmd(opts))
	cmd.AddCommand(newAppsCmd(opts))
	cmd.AddCommand(newCandidatesCmd(opts))
	cmd.AddCommand(newAddCmd(opts))
	cmd.AddCommand(newAddTimeCmd(opts))
	cmd.AddCommand(newSettingsCmd(opts))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit: %s, built: %s)\n", appName, Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
