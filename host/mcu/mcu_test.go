package mcu_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"stepcore/core"
	"stepcore/host/mcu"
	"stepcore/sim"
)

func newMachine() *sim.Machine {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return sim.New(core.DefaultConfig(12000000), sim.WithLogger(l))
}

func TestRetrieveDictionaryFromMachine(t *testing.T) {
	m := newMachine()
	d, raw, err := mcu.RetrieveDictionary(m.Identify, 0)
	require.NoError(t, err)
	require.Equal(t, m.Kernel().Dictionary().Compressed(), raw)

	freq, ok := d.ConfigUint("CLOCK_FREQ")
	require.True(t, ok)
	require.Equal(t, uint32(12000000), freq)
	require.Equal(t, "stepcore", d.Config["MCU"])

	c, ok := m.Kernel().Commands().ByName("queue_step")
	require.True(t, ok)
	require.Equal(t, int(c.ID), d.Commands["queue_step oid=%c interval=%u count=%hu add=%hi"])
	require.Contains(t, d.Responses, "stepper_position oid=%c pos=%i")

	v, ok := d.Enumeration("static_string_id", core.ReasonStepperTooFarInPast.String())
	require.True(t, ok)
	require.Equal(t, int(core.ReasonStepperTooFarInPast), v)
}

func TestRetrieveDictionarySmallChunks(t *testing.T) {
	m := newMachine()
	calls := 0
	fetch := func(offset uint32, count uint8) ([]byte, error) {
		calls++
		return m.Identify(offset, count)
	}
	_, raw, err := mcu.RetrieveDictionary(fetch, 7)
	require.NoError(t, err)
	require.Equal(t, len(raw)/7+1, calls)
}

func TestRetrieveDictionaryErrors(t *testing.T) {
	boom := errors.New("boom")
	_, _, err := mcu.RetrieveDictionary(func(uint32, uint8) ([]byte, error) { return nil, boom }, 0)
	require.ErrorIs(t, err, boom)

	_, _, err = mcu.RetrieveDictionary(func(uint32, uint8) ([]byte, error) { return nil, nil }, 0)
	require.ErrorIs(t, err, mcu.ErrNoDictionary)

	_, err = mcu.ParseDictionary([]byte("not zlib"))
	require.Error(t, err)
}

func TestDictionaryPrint(t *testing.T) {
	d, _, err := mcu.RetrieveDictionary(newMachine().Identify, 0)
	require.NoError(t, err)
	var out bytes.Buffer
	d.Print(&out)
	require.Contains(t, out.String(), "CLOCK_FREQ = 12000000")
	require.Contains(t, out.String(), "] identify offset=%u count=%c")
}
