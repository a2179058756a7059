package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/itohio/thrust/pkg/prefs"
)

func newPrefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Inspect or modify stored preferences",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List preference keys and values",
			Args:  cobra.NoArgs,
			RunE: withPrefs(func(ctx context.Context, s *prefs.Store, cmd *cobra.Command, _ []string) error {
				keys, err := s.Keys(ctx)
				if err != nil {
					return err
				}
				for _, k := range keys {
					v, err := s.GetString(ctx, k, "")
					if err != nil {
						return err
					}
					if k == prefs.KeyPassword {
						v = "********"
					}
					writeLine(cmd.OutOrStdout(), renderFields(k, v))
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "get KEY",
			Short: "Print one preference",
			Args:  cobra.ExactArgs(1),
			RunE: withPrefs(func(ctx context.Context, s *prefs.Store, cmd *cobra.Command, args []string) error {
				v, err := s.GetString(ctx, args[0], "")
				if err != nil {
					return err
				}
				writeLine(cmd.OutOrStdout(), v)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "Store one preference",
			Args:  cobra.ExactArgs(2),
			RunE: withPrefs(func(ctx context.Context, s *prefs.Store, _ *cobra.Command, args []string) error {
				return s.PutString(ctx, args[0], args[1])
			}),
		},
		&cobra.Command{
			Use:   "rm KEY",
			Short: "Remove one preference",
			Args:  cobra.ExactArgs(1),
			RunE: withPrefs(func(ctx context.Context, s *prefs.Store, _ *cobra.Command, args []string) error {
				return s.Delete(ctx, args[0])
			}),
		},
	)
	return cmd
}

func withPrefs(fn func(ctx context.Context, s *prefs.Store, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := prefs.Open(cfg.PrefsPath())
		if err != nil {
			return fmt.Errorf("failed to open preferences: %w", err)
		}
		defer func() {
			if cerr := s.Close(); cerr != nil {
				logErrf("failed to close preferences: %v\n", cerr)
			}
		}()
		return fn(cmd.Context(), s, cmd, args)
	}
}
