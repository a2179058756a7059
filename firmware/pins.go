//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS = 12  // HX711 at RATE=1 converts at ~80 Hz
	READY_TIMEOUT_MS   = 200 // Give up on a conversion after this long

	// HX711 pins
	PIN_HX711_DOUT = machine.D2
	PIN_HX711_SCK  = machine.D3

	// Default gain: 128 on channel A
	DEFAULT_GAIN_PULSES = 1

	// Serial configuration
	// Format: "<signed 24-bit count>\n", e.g. "-8388608\n" = 9 bytes max per line
	// 80 lines/sec * 9 bytes = 720 bytes/sec, 7,200 baud minimum with 8N1
	UART_BAUD_RATE = 115200
)
