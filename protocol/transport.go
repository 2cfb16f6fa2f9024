package protocol

import (
	"errors"
	"sync/atomic"
)

const (
	posLen = 0
	posSeq = 1
)

var ErrPayloadTooLarge = errors.New("payload exceeds message size")

// CommandHandler consumes one command's arguments from the front of *data
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport frames host traffic: it validates and acknowledges incoming
// blocks, feeds their commands to the handler and wraps outgoing payloads.
// Receive and the encoders must run in the same context; only the
// synchronization flag is touched from elsewhere.
type Transport struct {
	synced  atomic.Bool
	nextSeq uint8
	output  OutputBuffer
	handler CommandHandler

	// OnHostReset runs when the host restarts its sequence numbering
	OnHostReset func()
	// Flush runs after each ack so it reaches the host ahead of responses
	Flush func()
	// OnError reports handler and decode failures; the frame is dropped
	OnError func(err error)
}

func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		nextSeq: MessageDest,
		output:  output,
		handler: handler,
	}
	t.synced.Store(true)
	return t
}

// Receive consumes every complete block available in input. Partial blocks
// are left for the next call.
func (t *Transport) Receive(input InputBuffer) {
	data := input.Data()
	total := len(data)

	for len(data) > 0 {
		if !t.synced.Load() {
			i := indexByte(data, MessageSync)
			if i < 0 {
				data = nil
				break
			}
			data = data[i+1:]
			t.synced.Store(true)
			t.sendAck()
			continue
		}
		if data[0] == MessageSync {
			data = data[1:]
			continue
		}
		if len(data) < MessageMin {
			break
		}
		n := int(data[posLen])
		seq := data[posSeq]
		if n < MessageMin || n > MessageMax || seq&^MessageSeqMask != MessageDest {
			t.synced.Store(false)
			continue
		}
		if len(data) < n {
			break
		}
		if data[n-1] != MessageSync {
			t.synced.Store(false)
			continue
		}
		crc := uint16(data[n-3])<<8 | uint16(data[n-2])
		if crc != CRC16(data[:n-MessageTrailer]) {
			t.synced.Store(false)
			continue
		}
		frame := data[MessageHeader : n-MessageTrailer]
		data = data[n:]

		if seq == MessageDest && t.nextSeq != MessageDest {
			t.nextSeq = MessageDest
			if t.OnHostReset != nil {
				t.OnHostReset()
			}
		}
		if seq == t.nextSeq {
			t.nextSeq = (seq+1)&MessageSeqMask | MessageDest
			t.dispatch(frame)
		}
		// a mismatched sequence still gets an ack, which the host reads as a nak
		t.sendAck()
	}

	if consumed := total - len(data); consumed > 0 {
		input.Pop(consumed)
	}
}

func (t *Transport) dispatch(frame []byte) {
	for len(frame) > 0 {
		id, err := DecodeVLQUint(&frame)
		if err == nil && t.handler != nil {
			err = t.handler(uint16(id), &frame)
		}
		if err != nil {
			if t.OnError != nil {
				t.OnError(err)
			}
			return
		}
	}
}

func (t *Transport) sendAck() {
	hdr := [2]byte{MessageMin, t.nextSeq}
	crc := CRC16(hdr[:])
	t.output.Output([]byte{hdr[0], hdr[1], byte(crc >> 8), byte(crc), MessageSync})
	if t.Flush != nil {
		t.Flush()
	}
}

// SendPayload wraps an already encoded message (id followed by arguments)
// in a block and writes it to the output.
func (t *Transport) SendPayload(payload []byte) error {
	if len(payload) > MessagePayload {
		return ErrPayloadTooLarge
	}
	start := t.output.CurPosition()
	t.output.Output([]byte{byte(len(payload) + MessageHeader + MessageTrailer), t.nextSeq})
	t.output.Output(payload)
	crc := CRC16(t.output.DataSince(start))
	t.output.Output([]byte{byte(crc >> 8), byte(crc), MessageSync})
	return nil
}

// Reset forgets the sequence state, as after a USB reconnect
func (t *Transport) Reset() {
	t.synced.Store(true)
	t.nextSeq = MessageDest
	if t.OnHostReset != nil {
		t.OnHostReset()
	}
}

// Synchronized reports whether the receiver is aligned on block boundaries
func (t *Transport) Synchronized() bool { return t.synced.Load() }

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
