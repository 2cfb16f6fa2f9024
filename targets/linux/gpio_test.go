//go:build linux

package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"stepcore/core"
)

func TestVirtualPins(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	v := newVirtualPins(log, 8)

	require.NoError(t, v.ConfigureOutput(3, true))
	require.True(t, v.ReadPin(3))
	v.TogglePin(3)
	require.False(t, v.ReadPin(3))
	v.SetPin(3, true)
	require.True(t, v.ReadPin(3))

	require.NoError(t, v.ConfigureInput(4, true))
	require.True(t, v.ReadPin(4))

	require.Error(t, v.ConfigureOutput(core.GPIOPin(8), false))
	require.NoError(t, v.Close())
}

func TestOpenChipPinsUnknownChip(t *testing.T) {
	_, err := openChipPins("/dev/gpiochip-stepcore-missing", 64)
	require.ErrorContains(t, err, "gpiochip-stepcore-missing")
}
