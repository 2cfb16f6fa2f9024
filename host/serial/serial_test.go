package serial

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyAMA0")
	require.Equal(t, "/dev/ttyAMA0", cfg.Device)
	require.Equal(t, 250000, cfg.Baud)
	require.Equal(t, 100*time.Millisecond, cfg.ReadTimeout)
}

func TestOpenNeedsDevice(t *testing.T) {
	_, err := Open(nil)
	require.ErrorIs(t, err, ErrNoDevice)
	_, err = Open(&Config{})
	require.ErrorIs(t, err, ErrNoDevice)
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open(DefaultConfig(filepath.Join(t.TempDir(), "nope")))
	require.Error(t, err)
	require.Contains(t, err.Error(), "open serial port")
}
