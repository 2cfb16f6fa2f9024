//go:build linux

package main

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	host "periph.io/x/host/v3"
	"periph.io/x/host/v3/gpioioctl"

	"stepcore/core"
)

// pinBank is the GPIO backend of the target
type pinBank interface {
	core.GPIODriver
	Close() error
}

// virtualPins keeps levels in memory; transitions are logged at trace level
type virtualPins struct {
	log    logrus.FieldLogger
	lines  int
	levels map[core.GPIOPin]bool
}

func newVirtualPins(log logrus.FieldLogger, lines int) *virtualPins {
	return &virtualPins{log: log, lines: lines, levels: make(map[core.GPIOPin]bool)}
}

func (v *virtualPins) check(pin core.GPIOPin) error {
	if int(pin) >= v.lines {
		return fmt.Errorf("pin %d out of range", pin)
	}
	return nil
}

func (v *virtualPins) ConfigureOutput(pin core.GPIOPin, value bool) error {
	if err := v.check(pin); err != nil {
		return err
	}
	v.levels[pin] = value
	return nil
}

func (v *virtualPins) ConfigureInput(pin core.GPIOPin, pullUp bool) error {
	if err := v.check(pin); err != nil {
		return err
	}
	v.levels[pin] = pullUp
	return nil
}

func (v *virtualPins) SetPin(pin core.GPIOPin, value bool) {
	if v.levels[pin] != value {
		v.levels[pin] = value
		v.log.WithFields(logrus.Fields{"pin": pin, "value": value}).Trace("set")
	}
}

func (v *virtualPins) TogglePin(pin core.GPIOPin) {
	v.SetPin(pin, !v.levels[pin])
}

func (v *virtualPins) ReadPin(pin core.GPIOPin) bool { return v.levels[pin] }

func (v *virtualPins) Close() error { return nil }

type chipLine struct {
	io    gpio.PinIO
	level gpio.Level
}

// chipPins drives lines of one gpiochip through the character device.
// Pin numbers are line offsets.
type chipPins struct {
	chip  *gpioioctl.GPIOChip
	lines []*gpioioctl.GPIOLine
	held  map[core.GPIOPin]*chipLine
}

// openChipPins finds the chip by device path ("/dev/gpiochip0") or name
func openChipPins(path string, lines int) (*chipPins, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host drivers: %w", err)
	}
	name := filepath.Base(path)
	for _, chip := range gpioioctl.Chips {
		if chip.Path() != path && chip.Name() != name {
			continue
		}
		all := chip.Lines()
		if lines < len(all) {
			all = all[:lines]
		}
		return &chipPins{chip: chip, lines: all, held: make(map[core.GPIOPin]*chipLine)}, nil
	}
	return nil, fmt.Errorf("gpiochip %s not found", path)
}

func (c *chipPins) line(pin core.GPIOPin) (gpio.PinIO, error) {
	if int(pin) >= len(c.lines) {
		return nil, fmt.Errorf("pin %d out of range", pin)
	}
	return c.lines[pin], nil
}

func (c *chipPins) ConfigureOutput(pin core.GPIOPin, value bool) error {
	l, err := c.line(pin)
	if err != nil {
		return err
	}
	if err := l.Out(gpio.Level(value)); err != nil {
		return fmt.Errorf("configure output %d: %w", pin, err)
	}
	c.held[pin] = &chipLine{io: l, level: gpio.Level(value)}
	return nil
}

func (c *chipPins) ConfigureInput(pin core.GPIOPin, pullUp bool) error {
	l, err := c.line(pin)
	if err != nil {
		return err
	}
	pull := gpio.Float
	if pullUp {
		pull = gpio.PullUp
	}
	if err := l.In(pull, gpio.NoEdge); err != nil {
		return fmt.Errorf("configure input %d: %w", pin, err)
	}
	c.held[pin] = &chipLine{io: l}
	return nil
}

func (c *chipPins) SetPin(pin core.GPIOPin, value bool) {
	l, ok := c.held[pin]
	if !ok {
		return
	}
	if l.io.Out(gpio.Level(value)) == nil {
		l.level = gpio.Level(value)
	}
}

func (c *chipPins) TogglePin(pin core.GPIOPin) {
	if l, ok := c.held[pin]; ok {
		c.SetPin(pin, !bool(l.level))
	}
}

func (c *chipPins) ReadPin(pin core.GPIOPin) bool {
	l, ok := c.held[pin]
	if !ok {
		return false
	}
	return bool(l.io.Read())
}

// Close releases every requested line along with the chip
func (c *chipPins) Close() error {
	clear(c.held)
	c.chip.Close()
	return nil
}
