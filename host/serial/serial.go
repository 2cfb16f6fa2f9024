// Package serial gives the Linux target its byte stream to the host: a
// real UART through tarm/serial, or a pseudo-terminal the host opens as
// if it were one.
package serial

import (
	"errors"
	"io"
	"time"
)

var ErrNoDevice = errors.New("serial: no device configured")

// Port is a byte stream to the host
type Port interface {
	io.ReadWriteCloser

	// Flush pushes out buffered output
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g. "/dev/ttyAMA0")
	Device string

	// Baud rate; ignored by USB CDC and pseudo-terminals
	Baud int

	// ReadTimeout bounds a Read; zero blocks
	ReadTimeout time.Duration
}

// DefaultConfig returns the usual Klipper settings for device
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100 * time.Millisecond,
	}
}
