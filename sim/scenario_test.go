package sim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScenarioFiles(t *testing.T) {
	for _, name := range []string{"homing", "late_step"} {
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario("testdata/" + name + ".yaml")
			require.NoError(t, err)
			_, err = s.Run(quietLogger())
			require.NoError(t, err)
		})
	}
}

func TestScenarioDefaults(t *testing.T) {
	s, err := ParseScenario([]byte("steps:\n  - send: get_clock\n"))
	require.NoError(t, err)
	require.Equal(t, uint32(1000000), s.ClockFreq)
	cfg := s.Config()
	require.Equal(t, 16*1024, cfg.MoveMemory)
	require.False(t, cfg.StepperBothEdge)
}

func TestScenarioKernelOptions(t *testing.T) {
	s, err := ParseScenario([]byte(`
clock_freq: 12000000
kernel:
  stepper_both_edge: true
  move_memory: 2048
  tight_pulse_ticks: 0
steps:
  - send: get_clock
`))
	require.NoError(t, err)
	cfg := s.Config()
	require.Equal(t, uint32(12000000), cfg.ClockFreq)
	require.True(t, cfg.StepperBothEdge)
	require.Equal(t, 2048, cfg.MoveMemory)
	require.Zero(t, cfg.TightPulseTicks)
}

func TestScenarioUnknownKeySuggests(t *testing.T) {
	_, err := ParseScenario([]byte(`
steps:
  - sned: get_clock
`))
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown key "sned"`)
	require.Contains(t, err.Error(), `did you mean "send"`)
	require.Contains(t, err.Error(), "line 3")

	_, err = ParseScenario([]byte(`
kernel:
  move_memroy: 10
steps:
  - send: get_clock
`))
	require.ErrorContains(t, err, `did you mean "move_memory"`)
}

func TestScenarioValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no steps", "name: x\n", "no steps"},
		{"two actions", "steps:\n  - {send: get_clock, run_for: 10}\n", "exactly one action"},
		{"empty step", "steps:\n  - {}\n", "exactly one action"},
		{"expect_error alone", "steps:\n  - {expect_error: x, run_for: 1}\n", "expect_error needs send"},
		{"two expectations", "steps:\n  - expect: {response: clock, shutdown: \"\"}\n", "exactly one of"},
		{"args without response", "steps:\n  - expect: {pin: 3, args: {a: 1}}\n", "args and count need response"},
		{"level without pin", "steps:\n  - expect: {shutdown: \"\", level: true}\n", "need pin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestScenarioExpectationFailure(t *testing.T) {
	s, err := ParseScenario([]byte(`
steps:
  - send: get_config
  - expect: {response: config, args: {is_config: 1}}
`))
	require.NoError(t, err)
	_, err = s.Run(quietLogger())
	require.ErrorIs(t, err, ErrExpectation)
	require.Contains(t, err.Error(), "step 2")
	require.Contains(t, err.Error(), "is_config=0")
}

func TestScenarioArgTypoSuggests(t *testing.T) {
	s, err := ParseScenario([]byte(`
steps:
  - send: get_config
  - expect: {response: config, args: {move_cuont: 0}}
`))
	require.NoError(t, err)
	_, err = s.Run(quietLogger())
	require.ErrorIs(t, err, ErrExpectation)
	require.Contains(t, err.Error(), `did you mean "move_count"`)
}

func TestScenarioExpectError(t *testing.T) {
	s, err := ParseScenario([]byte(`
steps:
  - send: get_clok
    expect_error: did you mean "get_clock"
  - send: get_clock
  - expect: {response: clock, count: 1}
  - expect: {response: stats, count: 0}
`))
	require.NoError(t, err)
	_, err = s.Run(quietLogger())
	require.NoError(t, err)

	s, err = ParseScenario([]byte(`
steps:
  - send: get_clock
    expect_error: anything
`))
	require.NoError(t, err)
	_, err = s.Run(quietLogger())
	require.ErrorIs(t, err, ErrExpectation)
}

func TestScenarioPinExpectations(t *testing.T) {
	s, err := ParseScenario([]byte(`
steps:
  - send: allocate_oids count=1
  - send: config_digital_out oid=0 pin=5 value=0 default_value=0 max_duration=0
  - send: finalize_config crc=0
  - send: queue_digital_out oid=0 clock=1000 on_ticks=1
  - run_until: 2000
  - expect: {pin: 5, transitions: 1, level: true}
`))
	require.NoError(t, err)
	m, err := s.Run(quietLogger())
	require.NoError(t, err)
	require.Equal(t, uint32(1000), m.PinTrace(5)[0].Clock)
}
