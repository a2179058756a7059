package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/itohio/thrust/pkg/calibrate"
)

var calibrateWeight float32

func newCalibrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Derive a new scale factor from a known reference weight",
		Args:  cobra.NoArgs,
		RunE:  runCalibrateCmd,
	}
	cmd.Flags().Float32Var(&calibrateWeight, "weight", 0, "reference weight in grams")
	_ = cmd.MarkFlagRequired("weight")
	return cmd
}

func runCalibrateCmd(cmd *cobra.Command, _ []string) error {
	e, err := bootHardware()
	if err != nil {
		return err
	}
	defer closeEngine(e)

	if err := e.StartCalibration(calibrateWeight); err != nil {
		return errors.New(calibrate.Message(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx)
	}()

	w := cmd.OutOrStdout()
	writeLine(w, titleStyle.Render(fmt.Sprintf("Calibrating with %.1fg", calibrateWeight)))

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var st calibrate.Status
	for !st.Complete {
		select {
		case <-ctx.Done():
			<-done
			return errors.New("calibration interrupted")
		case <-ticker.C:
			st = e.CalibrationStatus()
			renderStatus(w, st)
		}
	}

	cancel()
	<-done

	if !st.Success {
		return errors.New(st.Message)
	}
	writeLine(w, renderFields("factor", fmt.Sprintf("%.2f", st.CalibrationFactor)))
	return nil
}

func renderStatus(w io.Writer, st calibrate.Status) {
	msg := pendingStyle.Render(st.Message)
	switch {
	case st.Complete && st.Success:
		msg = okStyle.Render(st.Message)
	case st.Complete:
		msg = failStyle.Render(st.Message)
	}
	writeLine(w, renderProgress(st.Step, calibrate.StepLast)+"  "+msg)
}
