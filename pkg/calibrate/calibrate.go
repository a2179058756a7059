// Package calibrate derives a new load cell scale factor from a known
// reference weight in a sequence of timed, non-blocking steps.
package calibrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/thrust/pkg/config"
	"github.com/itohio/thrust/pkg/prefs"
)

// Steps of the sequence.
const (
	StepIdle     = 0
	StepUnloaded = 1
	StepLoaded   = 2
	StepMeasure  = 3 // first of Measurements measurement steps
	StepLast     = StepMeasure + Measurements - 1

	// Measurements is the number of averaged readings taken.
	Measurements = 5
)

var (
	ErrInProgress    = errors.New("calibration already in progress")
	ErrMissingBody   = errors.New("missing body")
	ErrInvalidJSON   = errors.New("invalid JSON")
	ErrInvalidWeight = errors.New("invalid weight")
	ErrNotReady      = errors.New("load cell not ready")
)

var messages = map[error]string{
	ErrInProgress:    "Calibration already in progress",
	ErrMissingBody:   "Missing body",
	ErrInvalidJSON:   "Invalid JSON",
	ErrInvalidWeight: "Invalid weight",
	ErrNotReady:      "Load cell not ready",
}

// Message returns the user-facing text for a start error.
func Message(err error) string {
	for e, msg := range messages {
		if errors.Is(err, e) {
			return msg
		}
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// Sensor is the part of the load cell the sequence drives.
type Sensor interface {
	IsReady() bool
	Tare() error
	Units(times int) (float32, error)
	SetScale(factor float32)
	Scale() float32
}

// FactorStore persists the resulting factor.
type FactorStore interface {
	PutFloat(ctx context.Context, key string, value float32) error
}

// Status is the snapshot reported while polling.
type Status struct {
	Step              int     `json:"step"`
	Message           string  `json:"message"`
	Complete          bool    `json:"complete"`
	Success           bool    `json:"success"`
	CalibrationFactor float32 `json:"calibrationFactor,omitempty"`
}

// Request is the JSON body accepted by StartJSON.
type Request struct {
	KnownWeight float32 `json:"knownWeight"`
}

// Sequencer runs one calibration at a time. All methods are expected to be
// called from a single control flow.
type Sequencer struct {
	sensor Sensor
	store  FactorStore
	cfg    config.CalibrationConfig

	inProgress  bool
	step        int
	message     string
	knownWeight float32
	accumulator float32
	result      float32
	stepStart   time.Time
	waitSince   time.Time
	prevScale   float32
}

// New creates an idle Sequencer.
func New(sensor Sensor, store FactorStore, cfg config.CalibrationConfig) *Sequencer {
	def := config.Default().Calibration
	if cfg.UnloadedDuration <= 0 {
		cfg.UnloadedDuration = def.UnloadedDuration
	}
	if cfg.LoadedDuration <= 0 {
		cfg.LoadedDuration = def.LoadedDuration
	}
	if cfg.MeasureInterval <= 0 {
		cfg.MeasureInterval = def.MeasureInterval
	}
	if cfg.AverageSamples <= 0 {
		cfg.AverageSamples = def.AverageSamples
	}
	return &Sequencer{
		sensor: sensor,
		store:  store,
		cfg:    cfg,
	}
}

// StartJSON parses a {"knownWeight": grams} body and starts the sequence.
func (s *Sequencer) StartJSON(body []byte, now time.Time) error {
	if s.inProgress {
		return ErrInProgress
	}
	if len(body) == 0 {
		return ErrMissingBody
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return s.Start(req.KnownWeight, now)
}

// Start begins a calibration against knownWeight grams.
func (s *Sequencer) Start(knownWeight float32, now time.Time) error {
	if s.inProgress {
		return ErrInProgress
	}
	if !(knownWeight > 0) || math32.IsInf(knownWeight, 0) {
		return ErrInvalidWeight
	}
	if !s.sensor.IsReady() {
		return ErrNotReady
	}

	s.inProgress = true
	s.step = StepUnloaded
	s.message = "Remove all weight..."
	s.knownWeight = knownWeight
	s.accumulator = 0
	s.result = 0
	s.stepStart = now
	s.waitSince = time.Time{}
	s.prevScale = s.sensor.Scale()

	log.Printf("Starting calibration with known weight: %.1fg", knownWeight)
	return nil
}

// InProgress reports whether a calibration is running.
func (s *Sequencer) InProgress() bool {
	return s.inProgress
}

// Status returns the current progress snapshot.
func (s *Sequencer) Status() Status {
	st := Status{
		Step:     s.step,
		Message:  s.message,
		Complete: !s.inProgress,
		Success:  s.result > 0,
	}
	if s.result > 0 {
		st.CalibrationFactor = s.result
	}
	return st
}

// Tick advances the sequence if the current step has expired.
func (s *Sequencer) Tick(now time.Time) {
	if !s.inProgress {
		return
	}

	elapsed := now.Sub(s.stepStart)

	switch {
	case s.step == StepUnloaded:
		if elapsed < s.cfg.UnloadedDuration {
			s.message = fmt.Sprintf("Step 1/2: Remove all weight... (%ds)", remaining(s.cfg.UnloadedDuration, elapsed))
			return
		}
		log.Printf("Taring scale...")
		s.sensor.SetScale(1)
		if err := s.sensor.Tare(); err != nil {
			log.Printf("Tare failed: %v", err)
			s.retry(now)
			return
		}
		s.waitSince = time.Time{}
		s.step = StepLoaded
		s.stepStart = now
		s.message = "Place known weight on scale..."
		log.Printf("Tare complete. Place weight on scale.")

	case s.step == StepLoaded:
		if elapsed < s.cfg.LoadedDuration {
			s.message = fmt.Sprintf("Step 2/2: Place %.1fg weight... (%ds)", s.knownWeight, remaining(s.cfg.LoadedDuration, elapsed))
			return
		}
		s.step = StepMeasure
		s.accumulator = 0
		s.stepStart = now
		s.message = fmt.Sprintf("Taking measurements (1/%d)...", Measurements)
		log.Printf("Starting measurements...")

	case s.step >= StepMeasure && s.step <= StepLast:
		n := s.step - StepMeasure + 1
		if elapsed < s.cfg.MeasureInterval {
			s.message = fmt.Sprintf("Taking measurement %d/%d...", n, Measurements)
			return
		}
		s.measure(n, now)
	}
}

func (s *Sequencer) measure(n int, now time.Time) {
	if !s.sensor.IsReady() {
		log.Printf("Warning: Load cell not ready during measurement")
		s.retry(now)
		return
	}
	reading, err := s.sensor.Units(s.cfg.AverageSamples)
	if err != nil {
		log.Printf("Warning: measurement %d failed: %v", n, err)
		s.retry(now)
		return
	}
	s.waitSince = time.Time{}

	reading = math32.Trunc(reading)
	s.accumulator += reading
	log.Printf("Measurement %d: %.0f", n, reading)

	if s.step < StepLast {
		s.step++
		s.stepStart = now
		return
	}

	average := s.accumulator / Measurements
	factor := average / s.knownWeight
	log.Printf("Average reading: %.2f", average)
	log.Printf("Calibration factor: %.2f", factor)

	s.inProgress = false
	if !(factor > 0) || math32.IsInf(factor, 0) {
		s.sensor.SetScale(s.prevScale)
		s.message = "Calibration failed: no load detected"
		return
	}

	s.result = factor
	s.sensor.SetScale(factor)
	if s.store != nil {
		if err := s.store.PutFloat(context.Background(), prefs.KeyCalFactor, factor); err != nil {
			log.Printf("Failed to save calibration factor: %v", err)
		} else {
			log.Printf("Calibration saved to preferences")
		}
	}
	s.message = "Calibration complete!"
}

// retry restarts the current step timer. Once the sensor has been
// unavailable for longer than ReadyTimeout the sequence fails.
func (s *Sequencer) retry(now time.Time) {
	if s.waitSince.IsZero() {
		s.waitSince = now
	}
	if s.cfg.ReadyTimeout > 0 && now.Sub(s.waitSince) >= s.cfg.ReadyTimeout {
		log.Printf("Calibration aborted: load cell not ready for %v", s.cfg.ReadyTimeout)
		s.sensor.SetScale(s.prevScale)
		s.inProgress = false
		s.result = 0
		s.message = "Calibration failed: load cell not ready"
		return
	}
	s.stepStart = now
}

func remaining(d, elapsed time.Duration) int {
	return int(d/time.Second) - int(elapsed/time.Second)
}
