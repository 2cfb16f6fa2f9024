package sim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"stepcore/protocol"
)

func TestSendUnknownCommandSuggests(t *testing.T) {
	m := newMachine(t)
	err := m.Send("queue_stpe oid=0")
	require.ErrorIs(t, err, protocol.ErrUnknownCommand)
	require.Contains(t, err.Error(), `did you mean "queue_step"`)

	err = m.Send("xyzzy")
	require.ErrorIs(t, err, protocol.ErrUnknownCommand)
	require.NotContains(t, err.Error(), "did you mean")

	require.ErrorIs(t, m.Send("   "), protocol.ErrUnknownCommand)
}

func TestSendResponsesAreNotCommands(t *testing.T) {
	m := newMachine(t)
	require.ErrorIs(t, m.Send("stepper_position oid=0 pos=1"), protocol.ErrUnknownCommand)
}

func TestSendParameterErrors(t *testing.T) {
	m := newMachine(t)
	configStepper(t, m, 5)

	err := m.Send("queue_step oid=0 intreval=10 count=1 add=0")
	require.ErrorIs(t, err, ErrUnknownParam)
	require.Contains(t, err.Error(), `did you mean "interval"`)

	err = m.Send("queue_step oid=0 interval=10 add=0")
	require.ErrorIs(t, err, ErrMissingParam)
	require.Contains(t, err.Error(), `"count"`)

	require.ErrorIs(t, m.Send("queue_step oid=0 interval count=1 add=0"), ErrBadValue)
	require.ErrorIs(t, m.Send("queue_step oid=0 interval=ten count=1 add=0"), ErrBadValue)
	require.ErrorIs(t, m.Send("queue_step oid=0 interval=0x100000000 count=1 add=0"), ErrBadValue)
	require.NoError(t, m.Send("identify offset=0 count=40"))

	require.False(t, m.Kernel().IsShutdown())
}

func TestSendSignedAndHexValues(t *testing.T) {
	m := newMachine(t)
	configStepper(t, m, 5)
	mustSend(t, m,
		"reset_step_clock oid=0 clock=0x2710",
		"queue_step oid=0 interval=1000 count=3 add=-100",
	)
	m.RunUntil(20000)

	trace := m.PinTrace(stepPin)
	require.Len(t, trace, 6)
	require.Equal(t, uint32(11000), trace[0].Clock)
	require.Equal(t, uint32(11900), trace[2].Clock)
	require.Equal(t, uint32(12700), trace[4].Clock)
}
