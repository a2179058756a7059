package loadcell

import (
	"fmt"
	"log"
	"time"

	"github.com/chewxy/math32"
)

// Options parameterizes a Cell.
type Options struct {
	ReadyAttempts int           // Polls before Initialize gives up
	ReadyPoll     time.Duration // Delay between polls
	TareSamples   int           // Raw reads averaged by Tare
	Scale         float32       // Initial counts-per-gram factor
}

// Cell converts raw amplifier counts into calibrated force.
// It owns the tare offset and the live scale factor.
type Cell struct {
	amp  Amplifier
	opts Options

	offset      float32
	scale       float32
	initialized bool

	sleep func(time.Duration)
}

// NewCell creates a Cell on top of amp. Zero options fall back to sane values.
func NewCell(amp Amplifier, opts Options) *Cell {
	if opts.ReadyAttempts <= 0 {
		opts.ReadyAttempts = 10
	}
	if opts.TareSamples <= 0 {
		opts.TareSamples = 10
	}
	if opts.Scale == 0 {
		opts.Scale = 1
	}

	return &Cell{
		amp:   amp,
		opts:  opts,
		scale: opts.Scale,
		sleep: time.Sleep,
	}
}

// Initialize starts the amplifier and waits a bounded number of polls for the
// first conversion. On success the cell is tared.
func (c *Cell) Initialize() error {
	if err := c.amp.Begin(); err != nil {
		return fmt.Errorf("failed to start amplifier: %w", err)
	}

	ready := false
	for i := 0; i < c.opts.ReadyAttempts; i++ {
		if c.amp.IsReady() {
			ready = true
			break
		}
		c.sleep(c.opts.ReadyPoll)
	}
	if !ready {
		log.Printf("Load cell not found after %d polls. Check wiring.", c.opts.ReadyAttempts)
		return ErrNotReady
	}

	c.initialized = true

	log.Printf("Taring load cell...")
	if err := c.Tare(); err != nil {
		c.initialized = false
		return err
	}

	log.Printf("Load cell ready (scale %.2f)", c.scale)
	return nil
}

// Initialized reports whether Initialize succeeded.
func (c *Cell) Initialized() bool {
	return c.initialized
}

// IsReady reports whether a conversion can be read right now.
func (c *Cell) IsReady() bool {
	return c.initialized && c.amp.IsReady()
}

// Read returns the absolute calibrated force of one conversion, or 0 when the
// amplifier is not ready or the cell is not initialized.
func (c *Cell) Read() float32 {
	v, _ := c.Sample()
	return v
}

// Sample is Read with an explicit availability flag, so callers can tell a
// zero force apart from an unavailable sensor.
func (c *Cell) Sample() (float32, bool) {
	if !c.IsReady() {
		return 0, false
	}
	raw, err := c.amp.ReadRaw()
	if err != nil {
		return 0, false
	}
	return math32.Abs((float32(raw) - c.offset) / c.scale), true
}

// Units returns the signed calibrated value averaged over times conversions.
func (c *Cell) Units(times int) (float32, error) {
	avg, err := c.average(times)
	if err != nil {
		return 0, err
	}
	return (avg - c.offset) / c.scale, nil
}

// Tare zeroes the offset using the average of TareSamples conversions.
func (c *Cell) Tare() error {
	avg, err := c.average(c.opts.TareSamples)
	if err != nil {
		return fmt.Errorf("tare failed: %w", err)
	}
	c.offset = avg
	return nil
}

// SetScale replaces the live scale factor. Zero is ignored.
func (c *Cell) SetScale(factor float32) {
	if factor == 0 {
		return
	}
	c.scale = factor
	log.Printf("Updated load cell calibration to: %.2f", factor)
}

// Scale returns the live scale factor.
func (c *Cell) Scale() float32 {
	return c.scale
}

// Offset returns the tare offset in raw counts.
func (c *Cell) Offset() float32 {
	return c.offset
}

// Close releases the amplifier.
func (c *Cell) Close() error {
	c.initialized = false
	return c.amp.Close()
}

func (c *Cell) average(times int) (float32, error) {
	if !c.initialized {
		return 0, ErrNotReady
	}
	if times <= 0 {
		times = 1
	}

	var sum float64
	for i := 0; i < times; i++ {
		raw, err := c.amp.ReadRaw()
		if err != nil {
			return 0, err
		}
		sum += float64(raw)
	}
	return float32(sum / float64(times)), nil
}
