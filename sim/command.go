package sim

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"stepcore/core"
	"stepcore/protocol"
)

var (
	ErrUnknownParam = errors.New("unknown parameter")
	ErrMissingParam = errors.New("missing parameter")
	ErrBadValue     = errors.New("bad parameter value")
)

// Send parses a command in the host's text form, e.g.
// "queue_step oid=0 interval=1000 count=10 add=0", encodes it and hands
// it to the kernel exactly as the transport would.
func (m *Machine) Send(text string) error {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty command", protocol.ErrUnknownCommand)
	}
	name := fields[0]
	c, ok := m.k.Commands().ByName(name)
	if !ok || c.Handler == nil {
		return fmt.Errorf("%w: %q%s", protocol.ErrUnknownCommand, name, didYouMean(name, commandNames(m.k)))
	}

	args := make([]uint32, len(c.Format.Params))
	seen := make([]bool, len(c.Format.Params))
	for _, f := range fields[1:] {
		key, val, ok := strings.Cut(f, "=")
		if !ok {
			return fmt.Errorf("%s: %w: %q is not key=value", name, ErrBadValue, f)
		}
		i := c.Format.Index(key)
		if i < 0 {
			return fmt.Errorf("%s: %w %q%s", name, ErrUnknownParam, key, didYouMean(key, paramNames(c)))
		}
		v, err := parseValue(c.Format.Params[i], val)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		args[i], seen[i] = v, true
	}
	for i, p := range c.Format.Params {
		if !seen[i] {
			return fmt.Errorf("%s: %w %q", name, ErrMissingParam, p.Name)
		}
	}

	payload, err := c.Format.Encode(nil, c.ID, args, nil)
	if err != nil {
		return err
	}
	if _, err := protocol.DecodeVLQUint(&payload); err != nil {
		return err
	}
	return m.k.Dispatch(c.ID, &payload)
}

func parseValue(p protocol.Param, s string) (uint32, error) {
	if p.Type == protocol.ParamBuffer {
		return 0, fmt.Errorf("%w: %s: buffers can not be sent as text", ErrBadValue, p.Name)
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrBadValue, p.Name, s)
	}
	if v < math.MinInt32 || v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %s=%d out of range", ErrBadValue, p.Name, v)
	}
	return uint32(v), nil
}

func commandNames(k *core.Kernel) []string {
	var names []string
	for _, c := range k.Commands().Messages() {
		if c.Handler != nil {
			names = append(names, c.Name())
		}
	}
	return names
}

func paramNames(c *core.Command) []string {
	names := make([]string, len(c.Format.Params))
	for i, p := range c.Format.Params {
		names[i] = p.Name
	}
	return names
}

// didYouMean suggests the closest candidate when one is near enough
func didYouMean(word string, candidates []string) string {
	best, bestDist := "", len(word)/2+2
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(word, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	if best == "" {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}

// Identify fetches one chunk of the compressed data dictionary the way a
// host does at connect time
func (m *Machine) Identify(offset uint32, count uint8) ([]byte, error) {
	if err := m.Send(fmt.Sprintf("identify offset=%d count=%d", offset, count)); err != nil {
		return nil, err
	}
	r, ok := m.Last("identify_response")
	if !ok {
		return nil, errors.New("no identify_response")
	}
	if got := uint32(r.Args["offset"]); got != offset {
		return nil, fmt.Errorf("identify_response for offset %d, want %d", got, offset)
	}
	return r.Data, nil
}
