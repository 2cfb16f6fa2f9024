//go:build linux

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the target configuration. Sources, strongest first: flags,
// STEPCORE_* environment variables, the YAML file, defaults.
type Config struct {
	Serial   SerialConfig   `mapstructure:"serial"`
	Kernel   KernelConfig   `mapstructure:"kernel"`
	GPIO     GPIOConfig     `mapstructure:"gpio"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Log      LogConfig      `mapstructure:"log"`
}

// SerialConfig selects the host link. An empty Device creates a
// pseudo-terminal linked at PTY.
type SerialConfig struct {
	Device string `mapstructure:"device"`
	Baud   int    `mapstructure:"baud"`
	PTY    string `mapstructure:"pty"`
}

type KernelConfig struct {
	ClockFreq       uint32 `mapstructure:"clock_freq"`
	MoveMemory      int    `mapstructure:"move_memory"`
	StepperBothEdge bool   `mapstructure:"stepper_both_edge"`
}

// GPIOConfig selects the pin backend: a gpiochip character device, or
// virtual pins when Chip is empty
type GPIOConfig struct {
	Chip  string `mapstructure:"chip"`
	Lines int    `mapstructure:"lines"`
}

type RealtimeConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Priority int  `mapstructure:"priority"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

var ErrHelp = pflag.ErrHelp

// flag name -> config key
var flagKeys = map[string]string{
	"device":            "serial.device",
	"baud":              "serial.baud",
	"pty":               "serial.pty",
	"clock-freq":        "kernel.clock_freq",
	"move-memory":       "kernel.move_memory",
	"stepper-both-edge": "kernel.stepper_both_edge",
	"gpiochip":          "gpio.chip",
	"gpio-lines":        "gpio.lines",
	"realtime":          "realtime.enabled",
	"priority":          "realtime.priority",
	"log-level":         "log.level",
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("stepcore-linux", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "YAML configuration file")
	fs.StringP("device", "d", "", "serial device; empty creates a pseudo-terminal")
	fs.Int("baud", 250000, "serial baud rate")
	fs.String("pty", "/tmp/stepcore_mcu", "pseudo-terminal symlink for the host")
	fs.Uint32("clock-freq", 50000000, "kernel tick frequency in Hz")
	fs.Int("move-memory", 16*1024, "bytes reserved for queued moves")
	fs.Bool("stepper-both-edge", false, "step on both edges of the step pin")
	fs.String("gpiochip", "", "GPIO character device, e.g. /dev/gpiochip0; empty for virtual pins")
	fs.Int("gpio-lines", 64, "number of usable GPIO lines")
	fs.BoolP("realtime", "r", false, "lock memory and run with SCHED_FIFO")
	fs.Int("priority", 50, "SCHED_FIFO priority")
	fs.String("log-level", "info", "log level")
	return fs
}

// LoadConfig parses args and merges every configuration source
func LoadConfig(args []string) (Config, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	for flag, key := range flagKeys {
		f := fs.Lookup(flag)
		v.SetDefault(key, f.DefValue)
		if err := v.BindPFlag(key, f); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	v.SetEnvPrefix("STEPCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks ranges the kernel and the OS would otherwise reject
// later and less clearly
func (c Config) Validate() error {
	var errs []error
	if c.Kernel.ClockFreq < 1000000 {
		errs = append(errs, fmt.Errorf("kernel.clock_freq %d below 1 MHz", c.Kernel.ClockFreq))
	}
	if c.Kernel.MoveMemory < 64 {
		errs = append(errs, fmt.Errorf("kernel.move_memory %d too small", c.Kernel.MoveMemory))
	}
	if c.Serial.Device != "" && c.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud %d invalid", c.Serial.Baud))
	}
	if c.Serial.Device == "" && c.Serial.PTY == "" {
		errs = append(errs, errors.New("need serial.device or serial.pty"))
	}
	if c.GPIO.Lines <= 0 || c.GPIO.Lines > 1024 {
		errs = append(errs, fmt.Errorf("gpio.lines %d out of range", c.GPIO.Lines))
	}
	if c.Realtime.Enabled && (c.Realtime.Priority < 1 || c.Realtime.Priority > 99) {
		errs = append(errs, fmt.Errorf("realtime.priority %d not in 1..99", c.Realtime.Priority))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}
