package loadcell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the bridge firmware UART rate.
	DefaultBaudRate = 115200
	// DefaultBufferSize is the default size for the conversions channel buffer.
	DefaultBufferSize = 16
)

// Bridge reads HX711 conversions streamed by the bridge MCU firmware over a
// serial port, one signed raw count per line.
type Bridge struct {
	port     string
	baudRate int
	bufSize  int
	timeout  time.Duration
	gain     int

	conn      serial.Port
	samples   chan int32
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	connected bool
}

// NewBridge creates a Bridge for the given port. Zero values use defaults.
func NewBridge(port string, baudRate int, bufSize int, timeout time.Duration) *Bridge {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Bridge{
		port:     port,
		baudRate: baudRate,
		bufSize:  bufSize,
		timeout:  timeout,
		samples:  make(chan int32, bufSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Begin opens the serial port and starts reading conversions.
func (b *Bridge) Begin() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected {
		return nil
	}

	port, err := serial.Open(b.port, &serial.Mode{BaudRate: b.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", b.port, err)
	}

	b.conn = port
	b.connected = true

	if b.gain != 0 {
		if err := b.sendGain(); err != nil {
			log.Printf("Failed to select gain %d: %v", b.gain, err)
		}
	}

	go b.readSamples(port)

	return nil
}

// SetGain selects the amplifier gain (128, 64 or 32). Before Begin the gain
// is only remembered and sent once the port opens.
func (b *Bridge) SetGain(gain int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.gain = gain
	if !b.connected {
		return nil
	}
	return b.sendGain()
}

func (b *Bridge) sendGain() error {
	cmd, err := gainCommand(b.gain)
	if err != nil {
		return err
	}
	if _, err := b.conn.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("failed to send gain command: %w", err)
	}
	return nil
}

// gainCommand builds the firmware command line for gain.
func gainCommand(gain int) (string, error) {
	switch gain {
	case 128, 64, 32:
		return strconv.Itoa(gain) + "\n", nil
	default:
		return "", fmt.Errorf("unsupported gain: %d", gain)
	}
}

// IsReady reports whether at least one conversion is buffered.
func (b *Bridge) IsReady() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected && len(b.samples) > 0
}

// ReadRaw returns the next buffered conversion, waiting up to the timeout.
func (b *Bridge) ReadRaw() (int32, error) {
	b.mu.RLock()
	connected := b.connected
	b.mu.RUnlock()
	if !connected {
		return 0, ErrNotReady
	}

	select {
	case v := <-b.samples:
		return v, nil
	case <-time.After(b.timeout):
		return 0, ErrTimeout
	case <-b.ctx.Done():
		return 0, ErrNotReady
	}
}

// Close stops the reader and closes the port.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return nil
	}

	b.cancel()
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			log.Printf("Error closing serial port: %v", err)
		}
		b.conn = nil
	}
	b.connected = false

	return nil
}

// readSamples reads lines from the port and queues parsed conversions. When
// the queue is full the oldest conversion is dropped so reads stay fresh.
func (b *Bridge) readSamples(r io.Reader) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("Panic in readSamples: %v", rec)
		}
	}()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		v, err := parseLine(line)
		if err != nil {
			log.Printf("Failed to parse line '%s': %v", line, err)
			continue
		}

		select {
		case b.samples <- v:
		default:
			select {
			case <-b.samples:
			default:
			}
			b.samples <- v
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		log.Printf("Error reading from serial port: %v", err)
	}
}

// parseLine parses one bridge line into a 24-bit signed count.
// Format: <signed decimal>, e.g. "-8388608" or "123456".
func parseLine(line string) (int32, error) {
	v, err := strconv.ParseInt(line, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid reading: %w", err)
	}
	if v < -(1<<23) || v > (1<<23)-1 {
		return 0, fmt.Errorf("reading out of range: %d", v)
	}
	return int32(v), nil
}
