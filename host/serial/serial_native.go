package serial

import (
	"fmt"

	"github.com/tarm/serial"
)

// NativePort is a serial device opened through tarm/serial
type NativePort struct {
	port *serial.Port
	cfg  Config
}

// Open opens a serial device
func Open(cfg *Config) (*NativePort, error) {
	if cfg == nil || cfg.Device == "" {
		return nil, ErrNoDevice
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}
	return &NativePort{port: port, cfg: *cfg}, nil
}

func (p *NativePort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *NativePort) Close() error {
	return p.port.Close()
}

// Flush is a no-op; writes go straight to the device
func (p *NativePort) Flush() error { return nil }

// Discard drops unread input and untransmitted output, e.g. stale bytes
// from a previous session
func (p *NativePort) Discard() error {
	return p.port.Flush()
}

// Device returns the configured device path
func (p *NativePort) Device() string { return p.cfg.Device }
