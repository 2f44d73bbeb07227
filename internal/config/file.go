package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig is the on-disk TOML layout. Unset keys keep their current
// values.
type fileConfig struct {
	Database struct {
		Path *string `toml:"path"`
	} `toml:"database"`
	Tracker struct {
		PollInterval    *string `toml:"poll_interval"`
		CommitThreshold *string `toml:"commit_threshold"`
		StartupDelay    *string `toml:"startup_delay"`
	} `toml:"tracker"`
	Daemon struct {
		PIDFile *string `toml:"pid_file"`
	} `toml:"daemon"`
	Report struct {
		TimeZone *string `toml:"time_zone"`
	} `toml:"report"`
	Web struct {
		Host *string `toml:"host"`
		Port *int    `toml:"port"`
	} `toml:"web"`
	Log struct {
		Dir   *string `toml:"dir"`
		Debug *bool   `toml:"debug"`
	} `toml:"log"`
}

// LoadFile overlays the TOML file at path onto cfg. A missing file is not
// an error.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return Decode(cfg, data)
}

// Decode overlays TOML data onto cfg.
func Decode(cfg *Config, data []byte) error {
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	setString(&cfg.Database.Path, fc.Database.Path)
	setString(&cfg.Daemon.PIDFile, fc.Daemon.PIDFile)
	setString(&cfg.Report.TimeZone, fc.Report.TimeZone)
	setString(&cfg.Web.Host, fc.Web.Host)
	setString(&cfg.Log.Dir, fc.Log.Dir)
	if fc.Web.Port != nil {
		cfg.Web.Port = *fc.Web.Port
	}
	if fc.Log.Debug != nil {
		cfg.Log.Debug = *fc.Log.Debug
	}

	durations := []struct {
		key string
		raw *string
		dst *time.Duration
	}{
		{"tracker.poll_interval", fc.Tracker.PollInterval, &cfg.Tracker.PollInterval},
		{"tracker.commit_threshold", fc.Tracker.CommitThreshold, &cfg.Tracker.CommitThreshold},
		{"tracker.startup_delay", fc.Tracker.StartupDelay, &cfg.Tracker.StartupDelay},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		v, err := time.ParseDuration(*d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	return nil
}

func setString(dst, src *string) {
	if src != nil {
		*dst = *src
	}
}
