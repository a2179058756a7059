package loadcell

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// HX711 bit-bangs an HX711 24-bit load cell amplifier over two GPIO lines.
type HX711 struct {
	doutName string
	sckName  string
	pulses   int
	timeout  time.Duration

	mu   sync.Mutex
	dout gpio.PinIO
	sck  gpio.PinIO
}

// NewHX711 creates an HX711 driver on the named pins. gain selects channel A
// at 128 or 64, or channel B at 32; anything else falls back to 128.
func NewHX711(doutPin, sckPin string, gain int, timeout time.Duration) *HX711 {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &HX711{
		doutName: doutPin,
		sckName:  sckPin,
		pulses:   gainPulses(gain),
		timeout:  timeout,
	}
}

// gainPulses returns the extra clock pulses after the 24 data bits that
// select the next conversion's channel and gain.
func gainPulses(gain int) int {
	switch gain {
	case 64:
		return 3
	case 32:
		return 2
	default:
		return 1
	}
}

// Begin initializes the host GPIO drivers and configures the pins.
func (h *HX711) Begin() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph host: %w", err)
	}

	dout := gpioreg.ByName(h.doutName)
	if dout == nil {
		return fmt.Errorf("unknown data pin %s", h.doutName)
	}
	sck := gpioreg.ByName(h.sckName)
	if sck == nil {
		return fmt.Errorf("unknown clock pin %s", h.sckName)
	}

	if err := dout.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return fmt.Errorf("failed to configure %s: %w", h.doutName, err)
	}
	if err := sck.Out(gpio.Low); err != nil {
		return fmt.Errorf("failed to configure %s: %w", h.sckName, err)
	}

	h.dout = dout
	h.sck = sck
	return nil
}

// IsReady reports whether DOUT is low, meaning a conversion is waiting.
func (h *HX711) IsReady() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dout != nil && h.dout.Read() == gpio.Low
}

// ReadRaw waits up to the read timeout for a conversion and shifts it out.
func (h *HX711) ReadRaw() (int32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.dout == nil {
		return 0, ErrNotReady
	}

	deadline := time.Now().Add(h.timeout)
	for h.dout.Read() != gpio.Low {
		if time.Now().After(deadline) {
			return 0, ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}

	var res int32
	for bit := 0; bit < 24; bit++ {
		res <<= 1
		if err := h.sck.Out(gpio.High); err != nil {
			return 0, err
		}
		if h.dout.Read() == gpio.High {
			res |= 1
		}
		if err := h.sck.Out(gpio.Low); err != nil {
			return 0, err
		}
	}
	for i := 0; i < h.pulses; i++ {
		if err := h.sck.Out(gpio.High); err != nil {
			return 0, err
		}
		if err := h.sck.Out(gpio.Low); err != nil {
			return 0, err
		}
	}

	return signExtend24(res), nil
}

// Close powers the amplifier down by holding SCK high.
func (h *HX711) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sck == nil {
		return nil
	}
	err := h.sck.Out(gpio.High)
	h.sck = nil
	h.dout = nil
	return err
}

// signExtend24 converts a 24-bit two's complement value to int32.
func signExtend24(v int32) int32 {
	v <<= 8
	return v >> 8
}
