package main

import (
	"fmt"

	"github.com/playtrack/playtrack/internal/database"

	"github.com/spf13/cobra"
)

func newSettingsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and change stored settings",
		Long: "Settings are stored per owner, e.g. Application, ProcessIdentifier or StatusReporter.\n" +
			"A running daemon picks up changes on its next poll.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <owner> <key>",
		Short: "Print every value of a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(opts, func(s *database.Settings) error {
				values, err := s.GetList(args[0], args[1])
				if err != nil {
					return err
				}
				if len(values) == 0 {
					return fmt.Errorf("setting %s.%s is not set", args[0], args[1])
				}
				for _, v := range values {
					fmt.Fprintln(cmd.OutOrStdout(), v)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <owner> <key> <value>",
		Short: "Store a single value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(opts, func(s *database.Settings) error {
				return s.Set(args[0], args[1], args[2])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "append <owner> <key> <value>",
		Short: "Add a value to a list setting",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(opts, func(s *database.Settings) error {
				return s.Append(args[0], args[1], args[2])
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <owner> <key>",
		Short: "Remove every value of a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(opts, func(s *database.Settings) error {
				return s.Delete(args[0], args[1])
			})
		},
	})

	return cmd
}

func withSettings(opts *rootOptions, fn func(s *database.Settings) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(database.NewSettings(db))
}
