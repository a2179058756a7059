//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"
)

var (
	uart = machine.UART0

	// Extra clock pulses after the 24 data bits: 1 = A/128, 3 = A/64, 2 = B/32
	gainPulses = DEFAULT_GAIN_PULSES

	// Timing
	lastRead time.Time

	// Serial buffer for reading gain commands
	serialBuffer [4]byte
	serialPos    int
)

func main() {
	PIN_HX711_DOUT.Configure(machine.PinConfig{Mode: machine.PinInput})
	PIN_HX711_SCK.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_HX711_SCK.Low()

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	lastRead = time.Now()

	for {
		now := time.Now()

		processSerial()

		if now.Sub(lastRead) >= time.Duration(SAMPLE_INTERVAL_MS)*time.Millisecond {
			if value, ok := readHX711(); ok {
				print(value)
				print("\n")
			}
			lastRead = now
		}

		time.Sleep(100 * time.Microsecond)
	}
}

// readHX711 clocks one conversion out of the amplifier. DOUT going low
// signals that a conversion is ready.
func readHX711() (int32, bool) {
	deadline := time.Now().Add(READY_TIMEOUT_MS * time.Millisecond)
	for PIN_HX711_DOUT.Get() {
		if time.Now().After(deadline) {
			return 0, false
		}
		time.Sleep(100 * time.Microsecond)
	}

	var value uint32
	for range 24 {
		PIN_HX711_SCK.High()
		PIN_HX711_SCK.Low()
		value <<= 1
		if PIN_HX711_DOUT.Get() {
			value |= 1
		}
	}

	// Select channel and gain of the next conversion
	for range gainPulses {
		PIN_HX711_SCK.High()
		PIN_HX711_SCK.Low()
	}

	// 24-bit two's complement
	if value&0x800000 != 0 {
		value |= 0xFF000000
	}
	return int32(value), true
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos > 0 {
				updateGain(string(serialBuffer[:serialPos]))
			}
			serialPos = 0
			continue
		}

		if data == ' ' || data == '\t' {
			continue
		}

		if data >= '0' && data <= '9' && serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		} else {
			// Invalid character - reset buffer
			serialPos = 0
		}
	}
}

// updateGain handles "128", "64" or "32" commands from the host.
func updateGain(cmd string) {
	switch cmd {
	case "128":
		gainPulses = 1
	case "64":
		gainPulses = 3
	case "32":
		gainPulses = 2
	}
}
