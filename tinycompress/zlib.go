// Package tinycompress produces zlib streams without the deflate encoder
// tables, which do not fit comfortably in microcontroller RAM. Data is
// emitted as stored (uncompressed) deflate blocks, which any zlib reader
// accepts.
package tinycompress

import (
	"errors"
	"hash"
	"hash/adler32"
	"io"
)

// maxStored is the largest payload of a single stored deflate block
const maxStored = 0xFFFF

var ErrClosed = errors.New("tinycompress: write after close")

// Writer buffers its input and writes the zlib stream on Close
type Writer struct {
	w      io.Writer
	buf    []byte
	adler  hash.Hash32
	closed bool
}

// NewWriter returns a Writer with room for sizeHint bytes before it has to
// grow. Growing allocates, so callers on constrained targets should size
// the hint to the whole payload.
func NewWriter(w io.Writer, sizeHint int) *Writer {
	return &Writer{
		w:     w,
		buf:   make([]byte, 0, sizeHint),
		adler: adler32.New(),
	}
}

func (z *Writer) Write(p []byte) (int, error) {
	if z.closed {
		return 0, ErrClosed
	}
	z.buf = append(z.buf, p...)
	z.adler.Write(p)
	return len(p), nil
}

// Close writes the header, the stored blocks and the Adler-32 trailer
func (z *Writer) Close() error {
	if z.closed {
		return nil
	}
	z.closed = true

	// CMF=0x78 (deflate, 32K window), FLG=0x01 (no dict, fastest, FCHECK)
	if _, err := z.w.Write([]byte{0x78, 0x01}); err != nil {
		return err
	}
	data := z.buf
	for {
		n := len(data)
		final := byte(0)
		if n <= maxStored {
			final = 1
		} else {
			n = maxStored
		}
		hdr := [5]byte{final, byte(n), byte(n >> 8), byte(^n), byte(^n >> 8)}
		if _, err := z.w.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := z.w.Write(data[:n]); err != nil {
			return err
		}
		data = data[n:]
		if final == 1 {
			break
		}
	}
	sum := z.adler.Sum32()
	_, err := z.w.Write([]byte{byte(sum >> 24), byte(sum >> 16), byte(sum >> 8), byte(sum)})
	return err
}

// Compress is a convenience wrapper returning the zlib stream for data
func Compress(data []byte) []byte {
	out := &sliceWriter{b: make([]byte, 0, len(data)+len(data)/maxStored*5+11)}
	z := NewWriter(out, 0)
	z.buf = data
	z.adler.Write(data)
	z.Close()
	return out.b
}

type sliceWriter struct{ b []byte }

func (s *sliceWriter) Write(p []byte) (int, error) {
	s.b = append(s.b, p...)
	return len(p), nil
}
