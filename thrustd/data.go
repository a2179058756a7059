package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/itohio/thrust/pkg/engine"
)

func newDataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Access stored run data files",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "ls",
			Short: "List all data files",
			Args:  cobra.NoArgs,
			RunE: withOfflineEngine(func(e *engine.Engine, cmd *cobra.Command, _ []string) error {
				files, err := e.ListDataFiles()
				if err != nil {
					return err
				}
				for _, f := range files {
					writeLine(cmd.OutOrStdout(), fmt.Sprintf("%10d  %s", f.Size, f.Name))
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "cat FILE",
			Short: "Print a data file as CSV",
			Args:  cobra.ExactArgs(1),
			RunE: withOfflineEngine(func(e *engine.Engine, cmd *cobra.Command, args []string) error {
				content, err := e.ReadDataFile(args[0])
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(content)
				return err
			}),
		},
		&cobra.Command{
			Use:   "rm FILE",
			Short: "Delete a data file",
			Args:  cobra.ExactArgs(1),
			RunE: withOfflineEngine(func(e *engine.Engine, _ *cobra.Command, args []string) error {
				return e.DeleteDataFile(args[0])
			}),
		},
		&cobra.Command{
			Use:   "size FILE",
			Short: "Print the size of a data file in bytes",
			Args:  cobra.ExactArgs(1),
			RunE: withOfflineEngine(func(e *engine.Engine, cmd *cobra.Command, args []string) error {
				size, err := e.FileSize(args[0])
				if err != nil {
					return err
				}
				writeLine(cmd.OutOrStdout(), strconv.FormatInt(size, 10))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "stats FILE",
			Short: "Summarize the burn recorded in a data file",
			Args:  cobra.ExactArgs(1),
			RunE: withOfflineEngine(func(e *engine.Engine, cmd *cobra.Command, args []string) error {
				st, err := e.BurnStats(args[0])
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				writeLine(w, titleStyle.Render(args[0]))
				writeLine(w, renderFields(
					"samples", strconv.Itoa(st.Samples),
					"peak", fmt.Sprintf("%.2f g at %.0f ms", st.Peak, st.PeakMs),
					"average", fmt.Sprintf("%.2f g", st.Average),
					"burn time", fmt.Sprintf("%.3f s", st.BurnTime),
					"impulse", fmt.Sprintf("%.4f N·s", st.TotalImpulse),
					"burns", strconv.Itoa(len(st.Burns)),
				))
				return nil
			}),
		},
	)
	return cmd
}

func newChartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chart FILE...",
		Short: "Print chart datasets for up to 10 data files as JSON",
		Args:  cobra.RangeArgs(1, 10),
		RunE: withOfflineEngine(func(e *engine.Engine, cmd *cobra.Command, args []string) error {
			data, err := e.ChartData(args)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), data)
		}),
	}
}
