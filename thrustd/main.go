// Command thrustd runs the thrust meter and manages its runs, data files,
// calibration and preferences from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/itohio/thrust/pkg/config"
	"github.com/itohio/thrust/pkg/engine"
	"github.com/itohio/thrust/pkg/loadcell"
)

const defaultConfigPath = "thrust.yaml"

var (
	configPath string
	useMock    bool
	verbose    bool

	serveRun string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "thrustd",
		Short:        "Thrust meter acquisition daemon",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "configuration file path")
	rootCmd.PersistentFlags().BoolVar(&useMock, "mock", false, "use a simulated load cell instead of the configured driver")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log diagnostics of offline commands")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newRunsCmd())
	rootCmd.AddCommand(newDataCmd())
	rootCmd.AddCommand(newChartCmd())
	rootCmd.AddCommand(newCalibrateCmd())
	rootCmd.AddCommand(newPrefsCmd())

	return rootCmd
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Boot the instrument and acquire samples until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}
	cmd.Flags().StringVar(&serveRun, "run", "", "start the named run right after boot")
	return cmd
}

func runServeCmd(_ *cobra.Command, _ []string) error {
	e, err := bootHardware()
	if err != nil {
		return err
	}
	defer closeEngine(e)

	if serveRun != "" {
		if err := e.StartRun(serveRun); err != nil {
			return fmt.Errorf("failed to start run %q: %w", serveRun, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Acquiring. Press Ctrl+C to stop.")
	if err := e.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if st := e.CurrentRun(); st.CurrentFileName != "" {
		log.Printf("Last run: %s -> %s", st.Name, st.CurrentFileName)
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if useMock {
		cfg.Sensor.Driver = "mock"
	}
	return cfg, nil
}

// bootHardware boots the engine on the configured sensor driver.
func bootHardware() (*engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return engine.Boot(cfg)
}

// bootOffline boots the engine on a simulated amplifier, for commands that
// only touch stored runs and files.
func bootOffline() (*engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if !verbose {
		log.SetOutput(io.Discard)
	}
	return engine.Boot(cfg, engine.WithAmplifier(loadcell.NewMock(nil)))
}

func closeEngine(e *engine.Engine) {
	if err := e.Close(); err != nil {
		logErrf("failed to close engine: %v\n", err)
	}
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		_ = err
	}
}
