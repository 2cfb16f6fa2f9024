package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrBadFormat      = errors.New("bad message format")
	ErrArgCount       = errors.New("argument count mismatch")
)

// ParamType is the wire type of one message parameter
type ParamType uint8

const (
	ParamUint32 ParamType = iota // %u
	ParamInt32                   // %i
	ParamUint16                  // %hu
	ParamInt16                   // %hi
	ParamByte                    // %c
	ParamBuffer                  // %*s or %.*s
)

var paramTypes = map[string]ParamType{
	"%u":   ParamUint32,
	"%i":   ParamInt32,
	"%hu":  ParamUint16,
	"%hi":  ParamInt16,
	"%c":   ParamByte,
	"%*s":  ParamBuffer,
	"%.*s": ParamBuffer,
}

func (p ParamType) String() string {
	switch p {
	case ParamUint32:
		return "%u"
	case ParamInt32:
		return "%i"
	case ParamUint16:
		return "%hu"
	case ParamInt16:
		return "%hi"
	case ParamByte:
		return "%c"
	case ParamBuffer:
		return "%*s"
	}
	return "?"
}

// Signed reports whether values of this type are sign extended
func (p ParamType) Signed() bool {
	return p == ParamInt32 || p == ParamInt16
}

type Param struct {
	Name string
	Type ParamType
}

// MessageFormat is a parsed "name key=%x key=%y" declaration. A format may
// carry at most one buffer parameter.
type MessageFormat struct {
	Name   string
	Format string
	Params []Param
}

// ParseFormat parses a message declaration such as
// "queue_step oid=%c interval=%u count=%hu add=%hi".
func ParseFormat(format string) (*MessageFormat, error) {
	fields := strings.Fields(format)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrBadFormat)
	}
	mf := &MessageFormat{Name: fields[0], Format: format}
	buffers := 0
	for _, f := range fields[1:] {
		name, spec, ok := strings.Cut(f, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q in %q", ErrBadFormat, f, format)
		}
		pt, ok := paramTypes[spec]
		if !ok {
			return nil, fmt.Errorf("%w: unknown type %q in %q", ErrBadFormat, spec, format)
		}
		if pt == ParamBuffer {
			buffers++
			if buffers > 1 {
				return nil, fmt.Errorf("%w: more than one buffer in %q", ErrBadFormat, format)
			}
		}
		mf.Params = append(mf.Params, Param{Name: name, Type: pt})
	}
	return mf, nil
}

// Decode reads the parameters from the front of *data into vals, which is
// reused when large enough. Signed values are sign extended. The slot of a
// buffer parameter holds its length and the buffer itself is returned.
func (mf *MessageFormat) Decode(data *[]byte, vals []uint32) ([]uint32, []byte, error) {
	vals = vals[:0]
	var buf []byte
	for _, p := range mf.Params {
		if p.Type == ParamBuffer {
			b, err := DecodeVLQBytes(data)
			if err != nil {
				return vals, nil, fmt.Errorf("%s %s: %w", mf.Name, p.Name, err)
			}
			buf = b
			vals = append(vals, uint32(len(b)))
			continue
		}
		v, err := DecodeVLQInt(data)
		if err != nil {
			return vals, nil, fmt.Errorf("%s %s: %w", mf.Name, p.Name, err)
		}
		vals = append(vals, p.Type.truncate(v))
	}
	return vals, buf, nil
}

func (p ParamType) truncate(v int32) uint32 {
	switch p {
	case ParamUint16:
		return uint32(uint16(v))
	case ParamInt16:
		return uint32(int32(int16(v)))
	case ParamByte:
		return uint32(uint8(v))
	}
	return uint32(v)
}

// Encode appends id and args to dst. args must hold one value per
// parameter; the value in a buffer slot is ignored in favour of buf.
func (mf *MessageFormat) Encode(dst []byte, id uint16, args []uint32, buf []byte) ([]byte, error) {
	if len(args) != len(mf.Params) {
		return dst, fmt.Errorf("%s: %w: want %d got %d", mf.Name, ErrArgCount, len(mf.Params), len(args))
	}
	dst = AppendVLQ(dst, int32(id))
	for i, p := range mf.Params {
		if p.Type == ParamBuffer {
			dst = AppendVLQ(dst, int32(len(buf)))
			dst = append(dst, buf...)
			continue
		}
		dst = AppendVLQ(dst, int32(p.Type.truncate(int32(args[i]))))
	}
	return dst, nil
}

// Text renders decoded values in the "name key=value" form used by the
// host's logs. Buffers print as quoted strings.
func (mf *MessageFormat) Text(vals []uint32, buf []byte) string {
	var sb strings.Builder
	sb.WriteString(mf.Name)
	for i, p := range mf.Params {
		if i >= len(vals) {
			break
		}
		sb.WriteByte(' ')
		sb.WriteString(p.Name)
		sb.WriteByte('=')
		switch {
		case p.Type == ParamBuffer:
			sb.WriteString(strconv.Quote(string(buf)))
		case p.Type.Signed():
			sb.WriteString(strconv.FormatInt(int64(int32(vals[i])), 10))
		default:
			sb.WriteString(strconv.FormatUint(uint64(vals[i]), 10))
		}
	}
	return sb.String()
}

// Index returns the position of the named parameter or -1
func (mf *MessageFormat) Index(name string) int {
	for i, p := range mf.Params {
		if p.Name == name {
			return i
		}
	}
	return -1
}
