//go:build linux

// stepcore-linux runs the stepcore kernel as a Linux process, the way
// Klipper's "linux mcu" drives GPIO on a single board computer. The host
// connects to a pseudo-terminal or a serial device.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"runtime"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"stepcore/host/serial"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if errors.Is(err, ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}
	level, _ := log.ParseLevel(cfg.Log.Level)
	log.SetLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, unix.SIGTERM)
	defer func() {
		signal.Stop(c)
		cancel()
	}()
	go func() {
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
		}
	}()

	// the kernel and its timers stay on this thread
	runtime.LockOSThread()
	if cfg.Realtime.Enabled {
		if err := lockRealtime(cfg.Realtime.Priority); err != nil {
			log.WithError(err).Fatal("realtime scheduling")
		}
		log.WithField("priority", cfg.Realtime.Priority).Info("running with SCHED_FIFO")
	}

	port, err := openPort(cfg.Serial)
	if err != nil {
		log.WithError(err).Fatal("host link")
	}
	defer port.Close()

	pins, err := openPins(cfg.GPIO)
	if err != nil {
		log.WithError(err).Fatal("gpio")
	}
	defer pins.Close()

	p := newPlatform(cfg, port, pins, log.WithField("mcu", "linux"))
	log.WithFields(log.Fields{
		"clock_freq": cfg.Kernel.ClockFreq,
		"gpiochip":   cfg.GPIO.Chip,
	}).Info("kernel started")

	err = p.run(ctx)
	switch {
	case errors.Is(err, errResetRequested):
		log.Info("restarting")
		port.Close()
		pins.Close()
		restart()
	case errors.Is(err, context.Canceled):
		log.Info("stopped")
	default:
		log.WithError(err).Fatal("host link failed")
	}
}

func openPort(cfg SerialConfig) (serial.Port, error) {
	if cfg.Device != "" {
		port, err := serial.Open(&serial.Config{Device: cfg.Device, Baud: cfg.Baud})
		if err != nil {
			return nil, err
		}
		if err := port.Discard(); err != nil {
			log.WithError(err).Warn("discard stale input")
		}
		log.WithField("device", cfg.Device).Info("serial device open")
		return port, nil
	}
	pty, err := serial.OpenPTY(cfg.PTY)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"link": pty.Link(), "tty": pty.Name()}).Info("pseudo-terminal ready")
	return pty, nil
}

func openPins(cfg GPIOConfig) (pinBank, error) {
	if cfg.Chip == "" {
		return newVirtualPins(log.WithField("gpio", "virtual"), cfg.Lines), nil
	}
	return openChipPins(cfg.Chip, cfg.Lines)
}

// restart replaces the process with a fresh copy, as a board reset would
func restart() {
	exe, err := os.Executable()
	if err != nil {
		log.WithError(err).Fatal("restart")
	}
	if err := unix.Exec(exe, os.Args, os.Environ()); err != nil {
		log.WithError(err).Fatal("restart")
	}
}
