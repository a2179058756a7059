package loadcell

import "errors"

var (
	// ErrNotReady is returned when the amplifier has no conversion available.
	ErrNotReady = errors.New("load cell not ready")
	// ErrTimeout is returned when a conversion did not arrive in time.
	ErrTimeout = errors.New("load cell read timeout")
)

// Amplifier defines the interface for load cell ADC front-ends (real or mocked).
type Amplifier interface {
	Begin() error
	IsReady() bool
	ReadRaw() (int32, error)
	Close() error
}

var _ Amplifier = (*HX711)(nil)

var _ Amplifier = (*Bridge)(nil)

var _ Amplifier = (*Mock)(nil)
