package core

import (
	"bytes"
	"sort"

	"stepcore/protocol"
	"stepcore/tinycompress"
)

// Constant represents a firmware constant exposed to the host. Value is a
// string or an integer type.
type Constant struct {
	Name  string
	Value any
}

// enumRange is a single value, or a run rendered as "gpio0": [0, 30]
type enumRange struct {
	Value int
	Count int
}

// Dictionary is the data dictionary the host fetches with identify. It is
// built and compressed on first use; later additions are not seen.
type Dictionary struct {
	reg           *CommandRegistry
	constants     map[string]any
	enumerations  map[string]map[string]enumRange
	version       string
	buildVersions string
	cached        []byte
}

func newDictionary(reg *CommandRegistry) *Dictionary {
	return &Dictionary{
		reg:          reg,
		constants:    make(map[string]any),
		enumerations: make(map[string]map[string]enumRange),
		version:      protocol.Version,
	}
}

// AddConstant adds or replaces a constant
func (d *Dictionary) AddConstant(name string, value any) {
	d.constants[name] = value
}

// AddEnumeration maps each name to its index in values. Empty names are
// skipped.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	e := d.enum(name)
	for i, v := range values {
		if v != "" {
			e[v] = enumRange{Value: i, Count: 1}
		}
	}
}

// AddEnumerationRange declares count consecutive values starting at value.
// The host derives the names by incrementing the trailing number of first.
func (d *Dictionary) AddEnumerationRange(name, first string, value, count int) {
	d.enum(name)[first] = enumRange{Value: value, Count: count}
}

func (d *Dictionary) enum(name string) map[string]enumRange {
	e, ok := d.enumerations[name]
	if !ok {
		e = make(map[string]enumRange)
		d.enumerations[name] = e
	}
	return e
}

func (d *Dictionary) SetVersion(version string) {
	d.version = version
}

func (d *Dictionary) SetBuildVersions(versions string) {
	d.buildVersions = versions
}

// JSON renders the uncompressed dictionary
func (d *Dictionary) JSON() []byte {
	out := make([]byte, 0, 2048)
	out = append(out, `{"version":`...)
	out = appendJSONString(out, d.version)
	out = append(out, `,"build_versions":`...)
	out = appendJSONString(out, d.buildVersions)

	out = append(out, `,"config":{`...)
	for i, name := range sortedKeys(d.constants) {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendJSONString(out, name)
		out = append(out, ':')
		out = appendJSONValue(out, d.constants[name])
	}

	var cmds, resps []*Command
	for _, c := range d.reg.Messages() {
		if c.Handler != nil {
			cmds = append(cmds, c)
		} else {
			resps = append(resps, c)
		}
	}
	out = append(out, `},"commands":`...)
	out = appendMessageMap(out, cmds)
	out = append(out, `,"responses":`...)
	out = appendMessageMap(out, resps)

	out = append(out, `,"enumerations":{`...)
	for i, name := range sortedKeys(d.enumerations) {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendJSONString(out, name)
		out = append(out, ":{"...)
		e := d.enumerations[name]
		for j, v := range sortedKeys(e) {
			if j > 0 {
				out = append(out, ',')
			}
			out = appendJSONString(out, v)
			out = append(out, ':')
			r := e[v]
			if r.Count > 1 {
				out = append(out, '[')
				out = append(out, itoa(r.Value)...)
				out = append(out, ',')
				out = append(out, itoa(r.Count)...)
				out = append(out, ']')
			} else {
				out = append(out, itoa(r.Value)...)
			}
		}
		out = append(out, '}')
	}
	return append(out, "}}"...)
}

func appendMessageMap(out []byte, msgs []*Command) []byte {
	out = append(out, '{')
	for i, c := range msgs {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendJSONString(out, c.Format.Format)
		out = append(out, ':')
		out = append(out, itoa(int(c.ID))...)
	}
	return append(out, '}')
}

func appendJSONValue(out []byte, v any) []byte {
	switch val := v.(type) {
	case string:
		return appendJSONString(out, val)
	case int:
		return append(out, itoa(val)...)
	case int32:
		return append(out, itoa(int(val))...)
	case uint32:
		return append(out, utoa(val)...)
	case uint16:
		return append(out, utoa(uint32(val))...)
	case uint8:
		return append(out, utoa(uint32(val))...)
	case bool:
		if val {
			return append(out, '1')
		}
		return append(out, '0')
	}
	return append(out, "null"...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Compressed returns the zlib-compressed dictionary, building it once
func (d *Dictionary) Compressed() []byte {
	if d.cached == nil {
		data := d.JSON()
		var buf bytes.Buffer
		w := tinycompress.NewWriter(&buf, len(data))
		w.Write(data)
		w.Close()
		d.cached = buf.Bytes()
	}
	return d.cached
}

// Chunk returns up to count bytes of the compressed dictionary from
// offset. Past the end it returns an empty chunk, which ends the host's
// download.
func (d *Dictionary) Chunk(offset, count uint32) []byte {
	data := d.Compressed()
	if offset >= uint32(len(data)) {
		return nil
	}
	end := offset + count
	if end > uint32(len(data)) || end < offset {
		end = uint32(len(data))
	}
	return data[offset:end]
}

// publishKernelConstants adds what every build reports
func (k *Kernel) publishKernelConstants() {
	d := k.dict
	d.SetBuildVersions(k.cfg.BuildVersions)
	d.AddConstant("CLOCK_FREQ", k.cfg.ClockFreq)
	d.AddConstant("MCU", k.cfg.MCU)
	d.AddConstant("STATS_SUMSQ_BASE", uint32(STATS_SUMSQ_BASE))
	if k.cfg.StepperBothEdge {
		d.AddConstant("STEPPER_BOTH_EDGE", uint32(1))
	}
	reasons := make([]string, reasonCount)
	for r := ReasonNone + 1; r < reasonCount; r++ {
		reasons[r] = r.String()
	}
	d.AddEnumeration("static_string_id", reasons)
}
