//go:build linux

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	c, err := LoadConfig(nil)
	require.NoError(t, err)
	require.Equal(t, "", c.Serial.Device)
	require.Equal(t, "/tmp/stepcore_mcu", c.Serial.PTY)
	require.Equal(t, 250000, c.Serial.Baud)
	require.Equal(t, uint32(50000000), c.Kernel.ClockFreq)
	require.Equal(t, 16*1024, c.Kernel.MoveMemory)
	require.False(t, c.Realtime.Enabled)
	require.Equal(t, 50, c.Realtime.Priority)
	require.Equal(t, 64, c.GPIO.Lines)
	require.Equal(t, "info", c.Log.Level)
}

func TestLoadConfigFlags(t *testing.T) {
	c, err := LoadConfig([]string{
		"-d", "/dev/ttyAMA0", "--baud", "115200",
		"--clock-freq", "20000000", "-r", "--priority", "80",
		"--gpiochip", "/dev/gpiochip0", "--log-level", "debug",
	})
	require.NoError(t, err)
	require.Equal(t, "/dev/ttyAMA0", c.Serial.Device)
	require.Equal(t, 115200, c.Serial.Baud)
	require.Equal(t, uint32(20000000), c.Kernel.ClockFreq)
	require.True(t, c.Realtime.Enabled)
	require.Equal(t, 80, c.Realtime.Priority)
	require.Equal(t, "/dev/gpiochip0", c.GPIO.Chip)
	require.Equal(t, "debug", c.Log.Level)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcu.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
serial:
  pty: /run/stepcore/mcu
kernel:
  move_memory: 4096
  stepper_both_edge: true
realtime:
  priority: 20
log:
  level: warn
`), 0o644))
	t.Setenv("STEPCORE_REALTIME_PRIORITY", "30")
	t.Setenv("STEPCORE_KERNEL_CLOCK_FREQ", "12000000")

	c, err := LoadConfig([]string{"--config", path})
	require.NoError(t, err)
	require.Equal(t, "/run/stepcore/mcu", c.Serial.PTY)
	require.Equal(t, 4096, c.Kernel.MoveMemory)
	require.True(t, c.Kernel.StepperBothEdge)
	require.Equal(t, "warn", c.Log.Level)
	// environment beats the file
	require.Equal(t, 30, c.Realtime.Priority)
	require.Equal(t, uint32(12000000), c.Kernel.ClockFreq)

	// and flags beat the environment
	c, err = LoadConfig([]string{"--config", path, "--priority", "40"})
	require.NoError(t, err)
	require.Equal(t, 40, c.Realtime.Priority)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	require.ErrorContains(t, err, "read config")

	_, err = LoadConfig([]string{"--no-such-flag"})
	require.Error(t, err)

	_, err = LoadConfig([]string{"--help"})
	require.ErrorIs(t, err, ErrHelp)
}

func TestConfigValidate(t *testing.T) {
	base, err := LoadConfig(nil)
	require.NoError(t, err)
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"slow clock", func(c *Config) { c.Kernel.ClockFreq = 1000 }, "below 1 MHz"},
		{"no move memory", func(c *Config) { c.Kernel.MoveMemory = 0 }, "move_memory"},
		{"no link", func(c *Config) { c.Serial.PTY = "" }, "need serial.device"},
		{"bad baud", func(c *Config) { c.Serial.Device = "/dev/ttyS0"; c.Serial.Baud = 0 }, "serial.baud"},
		{"gpio lines", func(c *Config) { c.GPIO.Lines = 0 }, "gpio.lines"},
		{"priority", func(c *Config) { c.Realtime.Enabled = true; c.Realtime.Priority = 100 }, "1..99"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			require.ErrorContains(t, c.Validate(), tt.want)
		})
	}

	c := base
	c.Kernel.MoveMemory = 0
	c.Log.Level = "loud"
	err = c.Validate()
	require.ErrorContains(t, err, "move_memory")
	require.ErrorContains(t, err, "log.level")
}
