package protocol

import (
	"errors"
	"testing"
)

// hostBlock builds a block the way the host's serial queue does
func hostBlock(seq uint8, payload []byte) []byte {
	msg := []byte{byte(len(payload) + MessageMin), MessageDest | seq&MessageSeqMask}
	msg = append(msg, payload...)
	crc := CRC16(msg)
	return append(msg, byte(crc>>8), byte(crc), MessageSync)
}

type recordedCmd struct {
	id   uint16
	args []uint32
}

func newTestTransport() (*Transport, *ScratchOutput, *[]recordedCmd) {
	out := NewScratchOutput()
	var got []recordedCmd
	mf, _ := ParseFormat("cmd a=%u b=%i")
	tr := NewTransport(out, func(id uint16, data *[]byte) error {
		vals, _, err := mf.Decode(data, nil)
		if err != nil {
			return err
		}
		got = append(got, recordedCmd{id, append([]uint32(nil), vals...)})
		return nil
	})
	return tr, out, &got
}

func cmdPayload(id uint16, a uint32, b int32) []byte {
	p := AppendVLQ(nil, int32(id))
	p = AppendVLQ(p, int32(a))
	return AppendVLQ(p, b)
}

func TestTransportReceive(t *testing.T) {
	tr, out, got := newTestTransport()

	payload := append(cmdPayload(5, 1000, -3), cmdPayload(6, 1, 2)...)
	in := NewSliceInputBuffer(hostBlock(0, payload))
	tr.Receive(in)

	if in.Available() != 0 {
		t.Errorf("expected block consumed, %d bytes left", in.Available())
	}
	if len(*got) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(*got))
	}
	if (*got)[0].id != 5 || (*got)[0].args[0] != 1000 || int32((*got)[0].args[1]) != -3 {
		t.Errorf("first command = %+v", (*got)[0])
	}

	ack := out.Result()
	if len(ack) != MessageMin || ack[posSeq] != MessageDest|1 {
		t.Errorf("expected ack for seq 1, got %v", ack)
	}
}

func TestTransportPartialBlock(t *testing.T) {
	tr, _, got := newTestTransport()
	block := hostBlock(0, cmdPayload(1, 2, 3))

	fifo := NewFifoBuffer(128)
	fifo.Write(block[:4])
	tr.Receive(fifo)
	if len(*got) != 0 || fifo.Available() != 4 {
		t.Fatalf("partial block must wait, got %d cmds, %d bytes", len(*got), fifo.Available())
	}

	fifo.Write(block[4:])
	tr.Receive(fifo)
	if len(*got) != 1 || fifo.Available() != 0 {
		t.Errorf("expected 1 command after completion, got %d", len(*got))
	}
}

func TestTransportBadCRCResyncs(t *testing.T) {
	tr, _, got := newTestTransport()
	bad := hostBlock(0, cmdPayload(1, 2, 3))
	bad[3] ^= 0xFF
	good := hostBlock(0, cmdPayload(4, 5, 6))

	tr.Receive(NewSliceInputBuffer(append(bad, good...)))
	if len(*got) != 1 || (*got)[0].id != 4 {
		t.Errorf("expected only the good block dispatched, got %+v", *got)
	}
	if !tr.Synchronized() {
		t.Error("transport should be synchronized after a valid block")
	}
}

func TestTransportSequenceMismatch(t *testing.T) {
	tr, out, got := newTestTransport()
	tr.Receive(NewSliceInputBuffer(hostBlock(3, cmdPayload(1, 2, 3))))

	if len(*got) != 0 {
		t.Errorf("out of sequence block must not be dispatched")
	}
	if ack := out.Result(); ack[posSeq] != MessageDest {
		t.Errorf("nak should carry expected seq 0x10, got %#x", ack[posSeq])
	}
}

func TestTransportHostReset(t *testing.T) {
	tr, _, got := newTestTransport()
	resets := 0
	tr.OnHostReset = func() { resets++ }

	tr.Receive(NewSliceInputBuffer(hostBlock(0, cmdPayload(1, 0, 0))))
	tr.Receive(NewSliceInputBuffer(hostBlock(1, cmdPayload(1, 0, 0))))
	tr.Receive(NewSliceInputBuffer(hostBlock(0, cmdPayload(1, 0, 0))))

	if resets != 1 {
		t.Errorf("expected 1 host reset, got %d", resets)
	}
	if len(*got) != 3 {
		t.Errorf("expected 3 commands, got %d", len(*got))
	}
}

func TestTransportHandlerError(t *testing.T) {
	out := NewScratchOutput()
	boom := errors.New("boom")
	var reported error
	calls := 0
	tr := NewTransport(out, func(id uint16, data *[]byte) error {
		calls++
		return boom
	})
	tr.OnError = func(err error) { reported = err }

	payload := append(cmdPayload(1, 0, 0), cmdPayload(2, 0, 0)...)
	tr.Receive(NewSliceInputBuffer(hostBlock(0, payload)))
	if calls != 1 {
		t.Errorf("remaining commands of a failed frame must be dropped, got %d calls", calls)
	}
	if !errors.Is(reported, boom) {
		t.Errorf("expected error to be reported, got %v", reported)
	}
}

func TestTransportSendPayload(t *testing.T) {
	out := NewScratchOutput()
	tr := NewTransport(out, nil)

	payload := cmdPayload(9, 1, 2)
	if err := tr.SendPayload(payload); err != nil {
		t.Fatalf("SendPayload failed: %v", err)
	}
	msg := out.Result()
	if int(msg[posLen]) != len(msg) || msg[len(msg)-1] != MessageSync {
		t.Fatalf("malformed block %v", msg)
	}
	crc := uint16(msg[len(msg)-3])<<8 | uint16(msg[len(msg)-2])
	if crc != CRC16(msg[:len(msg)-MessageTrailer]) {
		t.Errorf("bad crc in %v", msg)
	}

	if err := tr.SendPayload(make([]byte, MessagePayload+1)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
}
