package sim

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"stepcore/core"
)

var ErrExpectation = errors.New("expectation failed")

// Scenario is a scripted session against a virtual MCU
type Scenario struct {
	Name      string        `yaml:"name"`
	ClockFreq uint32        `yaml:"clock_freq"`
	Kernel    KernelOptions `yaml:"kernel"`
	Steps     []Step        `yaml:"steps"`
}

type KernelOptions struct {
	StepperBothEdge bool    `yaml:"stepper_both_edge"`
	MoveMemory      int     `yaml:"move_memory"`
	TightPulseTicks *uint32 `yaml:"tight_pulse_ticks"`
	StartClock      uint32  `yaml:"start_clock"`
	Pulser          bool    `yaml:"pulser"`
}

// Step is one action. Exactly one of the action fields is set.
type Step struct {
	Send        string   `yaml:"send"`
	ExpectError string   `yaml:"expect_error"` // with send: the command must fail
	RunFor      *uint32  `yaml:"run_for"`
	RunUntil    *uint32  `yaml:"run_until"`
	SetPin      *PinStep `yaml:"set_pin"`
	Expect      *Expect  `yaml:"expect"`
}

type PinStep struct {
	Pin   uint32  `yaml:"pin"`
	Value bool    `yaml:"value"`
	At    *uint32 `yaml:"at"`
}

// Expect checks machine state. response checks the last message of that
// name; shutdown checks the reason ("" for running); pin checks a trace.
type Expect struct {
	Response string           `yaml:"response"`
	Args     map[string]int64 `yaml:"args"`
	Count    *int             `yaml:"count"`

	Shutdown *string `yaml:"shutdown"`

	Pin         *uint32 `yaml:"pin"`
	Transitions *int    `yaml:"transitions"`
	Level       *bool   `yaml:"level"`
}

// allowed keys per mapping, for typo suggestions
var scenarioKeys = map[string][]string{
	"":        {"name", "clock_freq", "kernel", "steps"},
	"kernel":  {"stepper_both_edge", "move_memory", "tight_pulse_ticks", "start_clock", "pulser"},
	"steps":   {"send", "expect_error", "run_for", "run_until", "set_pin", "expect"},
	"set_pin": {"pin", "value", "at"},
	"expect":  {"response", "args", "count", "shutdown", "pin", "transitions", "level"},
}

// LoadScenario reads and validates a scenario file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario decodes and validates a scenario
func ParseScenario(data []byte) (*Scenario, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if len(root.Content) > 0 {
		if err := checkKeys(root.Content[0], ""); err != nil {
			return nil, err
		}
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if s.ClockFreq == 0 {
		s.ClockFreq = 1000000
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// checkKeys walks the document and reports unknown keys with a suggestion
func checkKeys(n *yaml.Node, section string) error {
	switch n.Kind {
	case yaml.SequenceNode:
		for _, c := range n.Content {
			if err := checkKeys(c, section); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		allowed := scenarioKeys[section]
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			if !contains(allowed, key.Value) {
				return fmt.Errorf("line %d: unknown key %q%s", key.Line, key.Value, didYouMean(key.Value, allowed))
			}
			if _, nested := scenarioKeys[key.Value]; nested {
				if err := checkKeys(n.Content[i+1], key.Value); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Validate checks the scenario without running it
func (s *Scenario) Validate() error {
	if len(s.Steps) == 0 {
		return errors.New("scenario has no steps")
	}
	for i, st := range s.Steps {
		actions := 0
		if st.Send != "" {
			actions++
		}
		if st.RunFor != nil {
			actions++
		}
		if st.RunUntil != nil {
			actions++
		}
		if st.SetPin != nil {
			actions++
		}
		if st.Expect != nil {
			actions++
		}
		if actions != 1 {
			return fmt.Errorf("step %d: want exactly one action, got %d", i+1, actions)
		}
		if st.ExpectError != "" && st.Send == "" {
			return fmt.Errorf("step %d: expect_error needs send", i+1)
		}
		if e := st.Expect; e != nil {
			if err := e.validate(); err != nil {
				return fmt.Errorf("step %d: %w", i+1, err)
			}
		}
	}
	return nil
}

func (e *Expect) validate() error {
	kinds := 0
	if e.Response != "" {
		kinds++
	}
	if e.Shutdown != nil {
		kinds++
	}
	if e.Pin != nil {
		kinds++
	}
	if kinds != 1 {
		return errors.New("expect needs exactly one of response, shutdown or pin")
	}
	if (e.Args != nil || e.Count != nil) && e.Response == "" {
		return errors.New("args and count need response")
	}
	if (e.Transitions != nil || e.Level != nil) && e.Pin == nil {
		return errors.New("transitions and level need pin")
	}
	return nil
}

// Config derives the kernel configuration
func (s *Scenario) Config() core.Config {
	cfg := core.DefaultConfig(s.ClockFreq)
	cfg.StepperBothEdge = s.Kernel.StepperBothEdge
	if s.Kernel.MoveMemory > 0 {
		cfg.MoveMemory = s.Kernel.MoveMemory
	}
	if s.Kernel.TightPulseTicks != nil {
		cfg.TightPulseTicks = *s.Kernel.TightPulseTicks
	}
	return cfg
}

// Run executes every step on a fresh machine. The machine is returned even
// when a step fails so the caller can print the trace.
func (s *Scenario) Run(log logrus.FieldLogger) (*Machine, error) {
	opts := []Option{WithLogger(log), WithStartClock(s.Kernel.StartClock)}
	if s.Kernel.Pulser {
		opts = append(opts, WithPulser())
	}
	m := New(s.Config(), opts...)
	for i, st := range s.Steps {
		if err := m.runStep(st); err != nil {
			return m, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return m, nil
}

func (m *Machine) runStep(st Step) error {
	switch {
	case st.Send != "":
		err := m.Send(st.Send)
		if st.ExpectError != "" {
			if err == nil {
				return fmt.Errorf("%w: %q succeeded, want error %q", ErrExpectation, st.Send, st.ExpectError)
			}
			if !strings.Contains(err.Error(), st.ExpectError) {
				return fmt.Errorf("%w: error %q does not mention %q", ErrExpectation, err, st.ExpectError)
			}
			return nil
		}
		return err
	case st.RunFor != nil:
		m.RunFor(*st.RunFor)
	case st.RunUntil != nil:
		m.RunUntil(*st.RunUntil)
	case st.SetPin != nil:
		p := st.SetPin
		if p.At != nil {
			m.SetInputAt(core.GPIOPin(p.Pin), *p.At, p.Value)
		} else {
			m.SetInput(core.GPIOPin(p.Pin), p.Value)
		}
	case st.Expect != nil:
		return m.check(st.Expect)
	}
	return nil
}

func (m *Machine) check(e *Expect) error {
	switch {
	case e.Response != "":
		rs := m.ResponsesNamed(e.Response)
		if e.Count != nil && len(rs) != *e.Count {
			return fmt.Errorf("%w: %d %s responses, want %d", ErrExpectation, len(rs), e.Response, *e.Count)
		}
		if len(rs) == 0 {
			if e.Count != nil && *e.Count == 0 {
				return nil
			}
			return fmt.Errorf("%w: no %s response", ErrExpectation, e.Response)
		}
		last := rs[len(rs)-1]
		for k, want := range e.Args {
			got, ok := last.Args[k]
			if !ok {
				return fmt.Errorf("%w: %s has no %q%s", ErrExpectation, e.Response, k, didYouMean(k, argNames(last)))
			}
			if got != want {
				return fmt.Errorf("%w: %s: %s=%d, want %d", ErrExpectation, last.Text, k, got, want)
			}
		}
	case e.Shutdown != nil:
		got := ""
		if m.k.IsShutdown() {
			got = m.k.ShutdownReason().String()
		}
		if got != *e.Shutdown {
			return fmt.Errorf("%w: shutdown %q, want %q", ErrExpectation, got, *e.Shutdown)
		}
	case e.Pin != nil:
		pin := core.GPIOPin(*e.Pin)
		if e.Transitions != nil {
			if n := len(m.PinTrace(pin)); n != *e.Transitions {
				return fmt.Errorf("%w: pin %d: %d transitions, want %d", ErrExpectation, pin, n, *e.Transitions)
			}
		}
		if e.Level != nil && m.Output(pin) != *e.Level {
			return fmt.Errorf("%w: pin %d at %v, want %v", ErrExpectation, pin, m.Output(pin), *e.Level)
		}
	}
	return nil
}

func argNames(r Response) []string {
	names := make([]string, 0, len(r.Args))
	for k := range r.Args {
		names = append(names, k)
	}
	return names
}
