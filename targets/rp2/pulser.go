//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

var errNoStateMachine = errors.New("no free PIO state machine")

// stepPulser emits one fixed-width step pulse per FIFO word, so a tight
// mode stepper costs a single register write per step
type stepPulser struct {
	sm  rp2pio.StateMachine
	pin machine.Pin
}

// pulse program: wait for a word, drive the pin to its active level for
// 32 cycles, return it to rest
func pulseProgram(activeHigh bool) []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	active, rest := uint8(1), uint8(0)
	if !activeHigh {
		active, rest = 0, 1
	}
	return []uint16{
		asm.Pull(false, true).Encode(),
		asm.Set(rp2pio.SetDestPins, active).Delay(31).Encode(),
		asm.Set(rp2pio.SetDestPins, rest).Encode(),
	}
}

// claimStateMachine takes the first free state machine of either block
func claimStateMachine() (rp2pio.StateMachine, error) {
	for _, block := range []*rp2pio.PIO{rp2pio.PIO0, rp2pio.PIO1} {
		for i := uint8(0); i < 4; i++ {
			sm := block.StateMachine(i)
			if sm.TryClaim() {
				return sm, nil
			}
		}
	}
	return rp2pio.StateMachine{}, errNoStateMachine
}

// newStepPulser hands pin to a PIO state machine. rest is the idle level
// of the pin; the pulse goes the other way.
func newStepPulser(pin machine.Pin, rest bool) (*stepPulser, error) {
	sm, err := claimStateMachine()
	if err != nil {
		return nil, err
	}
	block := sm.PIO()
	program := pulseProgram(!rest)
	offset, err := block.AddProgram(program, -1)
	if err != nil {
		return nil, err
	}

	pin.Configure(machine.PinConfig{Mode: block.PinMode()})
	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(pin, 1)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	// 32 cycles at sys_clk/4 is about 1us at 125MHz
	cfg.SetClkDivIntFrac(4, 0)
	sm.Init(offset, cfg)
	sm.SetPindirsConsecutive(pin, 1, true)
	sm.SetPinsConsecutive(pin, 1, rest)
	sm.SetEnabled(true)
	return &stepPulser{sm: sm, pin: pin}, nil
}

// pulse queues one pulse. The FIFO holds four; a full one drains within
// a few microseconds.
func (p *stepPulser) pulse() {
	for p.sm.IsTxFIFOFull() {
	}
	p.sm.TxPut(0)
}

// set forces the pin level through the state machine
func (p *stepPulser) set(value bool) {
	p.sm.SetPinsConsecutive(p.pin, 1, value)
}
