package loadcell

import (
	"math"
	"sync"
	"time"

	"github.com/itohio/thrust/pkg/config"
)

// Mock simulates an HX711 for testing and bench use. Without a fixed value it
// produces a periodic half-sine burn profile on top of the configured offset.
type Mock struct {
	cfg *config.MockConfig

	mu        sync.RWMutex
	started   bool
	ready     bool
	fixed     bool
	raw       int32
	reads     int
	startTime time.Time
	now       func() time.Time
}

// NewMock creates a new mocked amplifier instance.
func NewMock(cfg *config.MockConfig) *Mock {
	if cfg == nil {
		cfg = &config.MockConfig{
			Offset:        0,
			CountsPerGram: 1,
			PeakGrams:     0,
			BurnDuration:  2 * time.Second,
			Period:        10 * time.Second,
			NoiseCounts:   0,
		}
	}

	return &Mock{
		cfg:   cfg,
		ready: true,
		now:   time.Now,
	}
}

// Begin simulates powering up the amplifier.
func (m *Mock) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.started = true
	m.startTime = m.now()
	return nil
}

// IsReady reports the simulated data-ready line.
func (m *Mock) IsReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started && m.ready
}

// ReadRaw returns the fixed raw value if one is set, otherwise a simulated
// conversion.
func (m *Mock) ReadRaw() (int32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started || !m.ready {
		return 0, ErrNotReady
	}
	m.reads++
	if m.fixed {
		return m.raw, nil
	}
	return m.simulate(m.now().Sub(m.startTime)), nil
}

// Close simulates powering down.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = false
	return nil
}

// Set pins every subsequent conversion to raw.
func (m *Mock) Set(raw int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixed = true
	m.raw = raw
}

// SetReady toggles the simulated data-ready line.
func (m *Mock) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = ready
}

// Reads returns the number of conversions served.
func (m *Mock) Reads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads
}

// simulate generates the raw count at elapsed time since Begin.
func (m *Mock) simulate(elapsed time.Duration) int32 {
	thrust := 0.0
	if m.cfg.Period > 0 && m.cfg.BurnDuration > 0 {
		phase := elapsed % m.cfg.Period
		if phase < m.cfg.BurnDuration {
			x := float64(phase) / float64(m.cfg.BurnDuration)
			thrust = float64(m.cfg.PeakGrams) * math.Sin(math.Pi*x)
		}
	}

	noise := 0.0
	if m.cfg.NoiseCounts > 0 {
		ns := float64(elapsed.Nanoseconds())
		noise = (math.Sin(ns*0.001) + math.Cos(ns*0.0013)) * float64(m.cfg.NoiseCounts) * 0.25
	}

	return m.cfg.Offset + int32(thrust*float64(m.cfg.CountsPerGram)+noise)
}
