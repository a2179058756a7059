// Package acquire samples the load cell at a fixed interval while a run is active.
package acquire

import (
	"log"
	"time"

	"github.com/itohio/thrust/pkg/run"
)

// Sensor provides one calibrated force reading.
type Sensor interface {
	Sample() (float32, bool)
}

// Store receives samples of the active run.
type Store interface {
	Append(thrust float32, timestampMs uint32) error
	SampleCount() int
}

// Run is the part of the run lifecycle the scheduler needs.
type Run interface {
	IsActive() bool
	Current() run.State
	ResetStartTime(t time.Time)
}

// Scheduler reads one sample per interval while a run is active.
// Readings at or below threshold are dropped until the first sample of a
// run is logged, moving the run origin forward instead.
type Scheduler struct {
	sensor    Sensor
	store     Store
	run       Run
	interval  time.Duration
	threshold float32

	last     time.Time
	notReady bool
}

// New creates a Scheduler.
func New(sensor Sensor, store Store, r Run, interval time.Duration, threshold float32) *Scheduler {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Scheduler{
		sensor:    sensor,
		store:     store,
		run:       r,
		interval:  interval,
		threshold: threshold,
	}
}

// Tick samples once if a run is active and at least one interval passed
// since the last logged sample. Missed intervals are not backfilled.
func (s *Scheduler) Tick(now time.Time) {
	if !s.run.IsActive() {
		return
	}
	if !s.last.IsZero() && now.Sub(s.last) < s.interval {
		return
	}

	thrust, ok := s.sensor.Sample()
	if !ok && !s.notReady {
		log.Printf("Load cell not ready, logging zero")
	}
	s.notReady = !ok

	if s.store.SampleCount() == 0 && thrust <= s.threshold {
		s.run.ResetStartTime(now)
		s.last = now
		return
	}

	elapsed := now.Sub(s.run.Current().StartTime)
	if elapsed < 0 {
		elapsed = 0
	}
	if err := s.store.Append(thrust, uint32(elapsed.Milliseconds())); err != nil {
		log.Printf("Failed to log sample: %v", err)
		return
	}
	s.last = now
}
