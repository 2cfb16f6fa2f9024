//go:build linux

package main

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"stepcore/core"
	"stepcore/host/serial"
	"stepcore/protocol"
)

var errResetRequested = errors.New("host requested a reset")

// platform runs the kernel on one goroutine. The timer "interrupt" is
// delivered from Idle, which sleeps until the alarm or the next input.
type platform struct {
	pinBank
	clock monotonicClock
	log   logrus.FieldLogger

	k         *core.Kernel
	port      serial.Port
	transport *protocol.Transport
	input     *protocol.FifoBuffer
	output    *protocol.ScratchOutput

	alarm  uint32
	timer  *time.Timer
	rx     chan []byte
	rxErr  chan error
	done   <-chan struct{}
	cancel context.CancelCauseFunc
}

func newPlatform(cfg Config, port serial.Port, pins pinBank, log logrus.FieldLogger) *platform {
	p := &platform{
		pinBank: pins,
		clock:   monotonicClock{freq: uint64(cfg.Kernel.ClockFreq)},
		log:     log,
		port:    port,
		input:   protocol.NewFifoBuffer(protocol.MessageMax * 16),
		output:  protocol.NewScratchOutput(),
		timer:   time.NewTimer(time.Hour),
		rx:      make(chan []byte, 16),
		rxErr:   make(chan error, 1),
	}
	p.timer.Stop()

	kc := core.DefaultConfig(cfg.Kernel.ClockFreq)
	kc.MCU = "linux"
	kc.MoveMemory = cfg.Kernel.MoveMemory
	kc.StepperBothEdge = cfg.Kernel.StepperBothEdge
	p.k = core.New(p, kc)
	p.k.SetDebugWriter(func(s string) { log.Debug(s) })

	p.transport = protocol.NewTransport(p.output, p.k.Dispatch)
	p.transport.Flush = p.flush
	p.transport.OnHostReset = func() { log.Info("host restarted its sequence") }
	p.transport.OnError = func(err error) {
		log.WithError(err).Warn("dropped command block")
	}
	p.k.AddTask(p.consoleTask)
	return p
}

func (p *platform) Now() uint32 { return p.clock.now() }

func (p *platform) SetAlarm(wake uint32) { p.alarm = wake }

// SendPayload frames a kernel message and writes it out
func (p *platform) SendPayload(payload []byte) {
	if err := p.transport.SendPayload(payload); err != nil {
		p.log.WithError(err).Error("response not sent")
		return
	}
	p.flush()
}

func (p *platform) flush() {
	out := p.output.Result()
	if len(out) == 0 {
		return
	}
	if p.output.Overflowed() {
		p.log.Warn("output overflow, messages lost")
	}
	if _, err := p.port.Write(out); err != nil {
		p.log.WithError(err).Error("write to host")
	} else if err := p.port.Flush(); err != nil {
		p.log.WithError(err).Error("flush to host")
	}
	p.output.Reset()
}

// readLoop feeds host bytes to Idle until the port fails
func (p *platform) readLoop(ctx context.Context) {
	buf := make([]byte, 4096)
	for {
		n, err := p.port.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			select {
			case p.rx <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil && !errors.Is(err, io.EOF) {
			p.rxErr <- err
			return
		}
	}
}

// Idle services the alarm or waits for input, whichever comes first
func (p *platform) Idle() {
	if p.k.ResetRequested() {
		p.cancel(errResetRequested)
		return
	}
	diff := int32(p.alarm - p.Now())
	if diff <= 0 {
		p.k.TimerIRQ()
		return
	}
	p.timer.Reset(p.clock.duration(uint32(diff)))
	select {
	case <-p.timer.C:
		p.k.TimerIRQ()
	case chunk := <-p.rx:
		p.stopTimer()
		p.receive(chunk)
	case err := <-p.rxErr:
		p.stopTimer()
		p.cancel(err)
	case <-p.done:
		p.stopTimer()
	}
}

func (p *platform) stopTimer() {
	if !p.timer.Stop() {
		select {
		case <-p.timer.C:
		default:
		}
	}
}

func (p *platform) receive(chunk []byte) {
	if n := p.input.Write(chunk); n < len(chunk) {
		p.log.WithField("lost", len(chunk)-n).Warn("input buffer full")
	}
	p.k.WakeTasks()
}

// consoleTask processes complete blocks from the host
func (p *platform) consoleTask() {
	if p.input.Available() == 0 {
		return
	}
	p.transport.Receive(p.input)
}

// run drives the kernel until ctx ends, the port fails or the host asks
// for a reset. The returned error is the cause.
func (p *platform) run(ctx context.Context) error {
	ctx, p.cancel = context.WithCancelCause(ctx)
	p.done = ctx.Done()
	go p.readLoop(ctx)
	p.k.Run(ctx)
	return context.Cause(ctx)
}
