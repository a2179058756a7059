package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/itohio/thrust/pkg/engine"
)

var runNotes string

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Manage run configurations",
	}

	createCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create or replace a run configuration",
		Args:  cobra.ExactArgs(1),
		RunE: withOfflineEngine(func(e *engine.Engine, cmd *cobra.Command, args []string) error {
			if err := e.CreateRunConfig(args[0], runNotes); err != nil {
				return err
			}
			writeLine(cmd.OutOrStdout(), okStyle.Render("created ")+args[0])
			return nil
		}),
	}
	createCmd.Flags().StringVar(&runNotes, "notes", "", "run notes")

	notesCmd := &cobra.Command{
		Use:   "notes NAME NOTES",
		Short: "Replace the notes of a run",
		Args:  cobra.ExactArgs(2),
		RunE: withOfflineEngine(func(e *engine.Engine, _ *cobra.Command, args []string) error {
			return e.UpdateRunNotes(args[0], args[1])
		}),
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List run configurations as JSON",
			Args:  cobra.NoArgs,
			RunE: withOfflineEngine(func(e *engine.Engine, cmd *cobra.Command, _ []string) error {
				configs, err := e.ListRunConfigs()
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), configs)
			}),
		},
		createCmd,
		notesCmd,
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Delete a run configuration and all of its data files",
			Args:  cobra.ExactArgs(1),
			RunE: withOfflineEngine(func(e *engine.Engine, cmd *cobra.Command, args []string) error {
				if err := e.DeleteRun(args[0]); err != nil {
					return err
				}
				writeLine(cmd.OutOrStdout(), okStyle.Render("deleted ")+args[0])
				return nil
			}),
		},
		&cobra.Command{
			Use:   "files NAME",
			Short: "List the data files of a run as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: withOfflineEngine(func(e *engine.Engine, cmd *cobra.Command, args []string) error {
				files, err := e.ListRunDataFiles(args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), files)
			}),
		},
		&cobra.Command{
			Use:   "current",
			Short: "Show the current run state as JSON",
			Args:  cobra.NoArgs,
			RunE: withOfflineEngine(func(e *engine.Engine, cmd *cobra.Command, _ []string) error {
				return writeJSON(cmd.OutOrStdout(), e.CurrentRun())
			}),
		},
	)
	return cmd
}

// withOfflineEngine boots an offline engine around fn.
func withOfflineEngine(fn func(e *engine.Engine, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := bootOffline()
		if err != nil {
			return err
		}
		defer closeEngine(e)
		return fn(e, cmd, args)
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}
	writeLine(w, string(data))
	return nil
}
