// Package engine bundles the sensor, sample store, run lifecycle, acquisition
// scheduler and calibration sequencer behind one serialized API.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/itohio/thrust/pkg/acquire"
	"github.com/itohio/thrust/pkg/burn"
	"github.com/itohio/thrust/pkg/calibrate"
	"github.com/itohio/thrust/pkg/chart"
	"github.com/itohio/thrust/pkg/config"
	"github.com/itohio/thrust/pkg/datalog"
	"github.com/itohio/thrust/pkg/loadcell"
	"github.com/itohio/thrust/pkg/prefs"
	"github.com/itohio/thrust/pkg/run"
)

var (
	// ErrCalibrating is returned when a run is started during calibration.
	ErrCalibrating = errors.New("calibration in progress")
	// ErrFileInUse is returned when deleting the file of the active run.
	ErrFileInUse = errors.New("file belongs to the active run")
	// ErrUnknownDriver is returned for an unsupported sensor driver.
	ErrUnknownDriver = errors.New("unknown sensor driver")
)

// Option customizes Boot.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithAmplifier uses amp instead of the driver selected in the configuration.
func WithAmplifier(amp loadcell.Amplifier) Option {
	return func(e *Engine) {
		e.amp = amp
	}
}

// Engine owns all mutable state of the instrument. Every exported method
// takes the same lock, so callers may use it from any goroutine.
type Engine struct {
	mu sync.Mutex

	cfg *config.Config
	now func() time.Time
	amp loadcell.Amplifier

	cell      *loadcell.Cell
	store     *datalog.Logger
	prefs     *prefs.Store
	runs      *run.Manager
	scheduler *acquire.Scheduler
	calib     *calibrate.Sequencer
}

// Boot wires every component from cfg. A missing load cell is logged but
// not fatal: readings are zero and calibration is rejected.
func Boot(cfg *config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.store = datalog.New(cfg.Storage.DataDir, cfg.RunsPath(), cfg.Sampling.FlushEvery)
	if err := e.store.Init(); err != nil {
		return nil, err
	}

	p, err := prefs.Open(cfg.PrefsPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open preferences: %w", err)
	}
	e.prefs = p

	factor, err := p.GetFloat(context.Background(), prefs.KeyCalFactor, cfg.Calibration.DefaultFactor)
	if err != nil {
		log.Printf("Failed to read calibration factor: %v", err)
	}
	if factor == 0 {
		factor = cfg.Calibration.DefaultFactor
	}
	log.Printf("Loaded calibration factor: %.2f", factor)

	loc := timezone(p, cfg)

	if e.amp == nil {
		amp, err := newAmplifier(cfg)
		if err != nil {
			p.Close()
			return nil, err
		}
		e.amp = amp
	}

	e.cell = loadcell.NewCell(e.amp, loadcell.Options{
		ReadyAttempts: cfg.Sensor.ReadyAttempts,
		ReadyPoll:     cfg.Sensor.ReadyPoll,
		TareSamples:   cfg.Sensor.AverageSamples,
		Scale:         factor,
	})
	if err := e.cell.Initialize(); err != nil {
		log.Printf("WARNING: Load cell initialization failed: %v", err)
	}

	e.runs = run.NewManager(cfg.ConfigsPath(), e.store, e.now, loc)
	if err := e.runs.Init(); err != nil {
		e.cell.Close()
		p.Close()
		return nil, err
	}

	e.scheduler = acquire.New(e.cell, e.store, e.runs, cfg.Sampling.Interval, cfg.Sampling.TrimThreshold)
	e.calib = calibrate.New(e.cell, e.prefs, cfg.Calibration)

	log.Printf("=== Thrust Meter Ready ===")
	return e, nil
}

// timezone returns the zone stored in preferences, falling back to the
// configured one when it is unset or unknown.
func timezone(p *prefs.Store, cfg *config.Config) *time.Location {
	name, err := p.GetString(context.Background(), prefs.KeyTimezone, "")
	if err != nil {
		log.Printf("Failed to read timezone: %v", err)
	}
	if name == "" {
		return cfg.Location()
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Printf("Unknown timezone %q, using %s: %v", name, cfg.Clock.Timezone, err)
		return cfg.Location()
	}
	log.Printf("Timezone set to: %s", name)
	return loc
}

func newAmplifier(cfg *config.Config) (loadcell.Amplifier, error) {
	switch cfg.Sensor.Driver {
	case "hx711":
		return loadcell.NewHX711(cfg.Sensor.DoutPin, cfg.Sensor.SckPin, cfg.Sensor.Gain, cfg.Sensor.ReadTimeout), nil
	case "serial":
		b := loadcell.NewBridge(cfg.Sensor.SerialPort, cfg.Sensor.BaudRate, loadcell.DefaultBufferSize, cfg.Sensor.ReadTimeout)
		if err := b.SetGain(cfg.Sensor.Gain); err != nil {
			return nil, err
		}
		return b, nil
	case "mock":
		return loadcell.NewMock(&cfg.Mock), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Sensor.Driver)
	}
}

// Close stops the active run and releases hardware and storage.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runs.IsActive() {
		_ = e.runs.Stop()
	}
	e.store.Close()

	var errs []error
	if err := e.cell.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.prefs.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Tick advances calibration and, while no calibration runs, acquisition.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calib.Tick(now)
	if !e.calib.InProgress() {
		e.scheduler.Tick(now)
	}
}

// Run drives Tick until ctx is cancelled, then stops the active run.
func (e *Engine) Run(ctx context.Context) error {
	poll := e.cfg.Sampling.Interval / 10
	if poll < time.Millisecond {
		poll = time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.mu.Lock()
			if e.runs.IsActive() {
				_ = e.runs.Stop()
			}
			e.mu.Unlock()
			return ctx.Err()
		case <-ticker.C:
			e.Tick(e.now())
		}
	}
}

// ListRunConfigs returns all stored run configs.
func (e *Engine) ListRunConfigs() ([]run.Config, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs.ListConfigs()
}

// CreateRunConfig stores a run config, replacing one with the same name.
func (e *Engine) CreateRunConfig(name, notes string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs.CreateConfig(name, notes)
}

// StartRun makes the named run active. It is rejected during calibration.
func (e *Engine) StartRun(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.calib.InProgress() {
		return ErrCalibrating
	}
	return e.runs.Start(name)
}

// StopRun stops the active run.
func (e *Engine) StopRun() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs.Stop()
}

// DeleteRun removes a run config and all of its data files.
func (e *Engine) DeleteRun(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs.Delete(name)
}

// UpdateRunNotes replaces the notes of a run.
func (e *Engine) UpdateRunNotes(name, notes string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs.UpdateNotes(name, notes)
}

// CurrentRun returns the current run state.
func (e *Engine) CurrentRun() run.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs.Current()
}

// ListRunDataFiles returns the data files of a run with their sizes.
func (e *Engine) ListRunDataFiles(name string) ([]datalog.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs.DataFiles(name)
}

// ListDataFiles returns every data file in the runs directory.
func (e *Engine) ListDataFiles() ([]datalog.Entry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Entries(e.store.RunsDir())
}

// ReadDataFile returns the CSV content of a data file.
func (e *Engine) ReadDataFile(name string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Read(name)
}

// DeleteDataFile removes a data file. The file of the active run cannot be removed.
func (e *Engine) DeleteDataFile(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if st := e.runs.Current(); st.IsActive && trimSlash(name) == st.CurrentFileName {
		return ErrFileInUse
	}
	return e.store.Delete(name)
}

// FileSize returns the size of a data file in bytes.
func (e *Engine) FileSize(name string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Size(name)
}

// StartCalibration begins calibration against knownWeight grams.
// It is rejected while a run is active.
func (e *Engine) StartCalibration(knownWeight float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runs.IsActive() {
		return run.ErrRunActive
	}
	return e.calib.Start(knownWeight, e.now())
}

// StartCalibrationJSON begins calibration from a {"knownWeight": grams} body.
func (e *Engine) StartCalibrationJSON(body []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.runs.IsActive() {
		return run.ErrRunActive
	}
	return e.calib.StartJSON(body, e.now())
}

// CalibrationStatus returns the calibration progress snapshot.
func (e *Engine) CalibrationStatus() calibrate.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calib.Status()
}

// CalibrationFactor returns the persisted scale factor, or 0 when none was saved.
func (e *Engine) CalibrationFactor(ctx context.Context) (float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prefs.GetFloat(ctx, prefs.KeyCalFactor, 0)
}

// ChartData returns plot datasets for up to chart.MaxFiles data files.
func (e *Engine) ChartData(files []string) (chart.Data, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return chart.Generate(e.store, files, e.cfg.Analysis.ChartMaxPoints)
}

// ChartDataJSON is ChartData for a {"files": [...]} body, returning JSON.
func (e *Engine) ChartDataJSON(body []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return chart.GenerateJSON(e.store, body, e.cfg.Analysis.ChartMaxPoints)
}

// BurnStats analyzes the thrust curve stored in a data file.
func (e *Engine) BurnStats(name string) (burn.Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := chart.Generate(e.store, []string{name}, 0)
	if err != nil {
		return burn.Stats{}, err
	}
	if len(data.Datasets) == 0 {
		return burn.Stats{}, datalog.ErrNotFound
	}
	return burn.Analyze(data.Datasets[0].Data, e.cfg.Analysis.BurnThreshold, e.cfg.Analysis.MinBurnDuration), nil
}

// Prefs exposes the preference store.
func (e *Engine) Prefs() *prefs.Store {
	return e.prefs
}

func trimSlash(name string) string {
	if len(name) > 0 && name[0] == '/' {
		return name[1:]
	}
	return name
}
