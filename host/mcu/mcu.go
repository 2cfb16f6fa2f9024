// Package mcu reads the data dictionary an MCU reports about itself: the
// command and response formats with their ids, build constants and
// enumerations.
package mcu

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// DefaultChunkSize matches what Klipper's host requests per identify
const DefaultChunkSize = 40

// maxChunks bounds a retrieval from a misbehaving MCU
const maxChunks = 4096

var ErrNoDictionary = errors.New("mcu sent an empty dictionary")

// Dictionary is the parsed data dictionary
type Dictionary struct {
	Version       string                                `json:"version"`
	BuildVersions string                                `json:"build_versions"`
	Config        map[string]any                        `json:"config"`
	Commands      map[string]int                        `json:"commands"`
	Responses     map[string]int                        `json:"responses"`
	Enumerations  map[string]map[string]json.RawMessage `json:"enumerations,omitempty"`
}

// ChunkFunc fetches up to count bytes of the compressed dictionary starting
// at offset. An empty chunk marks the end.
type ChunkFunc func(offset uint32, count uint8) ([]byte, error)

// RetrieveDictionary downloads the compressed dictionary chunk by chunk and
// parses it. The raw compressed bytes are returned alongside.
func RetrieveDictionary(fetch ChunkFunc, chunkSize uint8) (*Dictionary, []byte, error) {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	var buf bytes.Buffer
	for i := 0; ; i++ {
		if i == maxChunks {
			return nil, nil, fmt.Errorf("dictionary larger than %d chunks", maxChunks)
		}
		offset := uint32(buf.Len())
		chunk, err := fetch(offset, chunkSize)
		if err != nil {
			return nil, nil, fmt.Errorf("dictionary chunk at offset %d: %w", offset, err)
		}
		buf.Write(chunk)
		if len(chunk) < int(chunkSize) {
			break
		}
	}
	raw := buf.Bytes()
	d, err := ParseDictionary(raw)
	if err != nil {
		return nil, raw, err
	}
	return d, raw, nil
}

// ParseDictionary inflates and decodes a compressed dictionary
func ParseDictionary(compressed []byte) (*Dictionary, error) {
	if len(compressed) == 0 {
		return nil, ErrNoDictionary
	}
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("inflate dictionary: %w", err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("inflate dictionary: %w", err)
	}
	d := &Dictionary{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("decode dictionary: %w", err)
	}
	return d, nil
}

// ConfigUint returns a numeric build constant such as CLOCK_FREQ
func (d *Dictionary) ConfigUint(name string) (uint32, bool) {
	v, ok := d.Config[name].(float64)
	if !ok || v < 0 {
		return 0, false
	}
	return uint32(v), true
}

// Enumeration returns the value of one enumeration entry. Ranges report
// their first value.
func (d *Dictionary) Enumeration(name, entry string) (int, bool) {
	raw, ok := d.Enumerations[name][entry]
	if !ok {
		return 0, false
	}
	var v int
	if json.Unmarshal(raw, &v) == nil {
		return v, true
	}
	var r [2]int
	if json.Unmarshal(raw, &r) == nil {
		return r[0], true
	}
	return 0, false
}

// Print writes a human readable summary
func (d *Dictionary) Print(w io.Writer) {
	fmt.Fprintf(w, "Version: %s\n", d.Version)
	fmt.Fprintf(w, "Build: %s\n", d.BuildVersions)

	fmt.Fprintln(w, "\nConfig:")
	for _, k := range sortedKeys(d.Config) {
		fmt.Fprintf(w, "  %s = %s\n", k, formatValue(d.Config[k]))
	}
	printMessages(w, "Commands", d.Commands)
	printMessages(w, "Responses", d.Responses)

	if len(d.Enumerations) > 0 {
		fmt.Fprintf(w, "\nEnumerations (%d):\n", len(d.Enumerations))
		for _, name := range sortedKeys(d.Enumerations) {
			fmt.Fprintf(w, "  %s: %d values\n", name, len(d.Enumerations[name]))
		}
	}
}

func printMessages(w io.Writer, title string, msgs map[string]int) {
	fmt.Fprintf(w, "\n%s (%d):\n", title, len(msgs))
	formats := sortedKeys(msgs)
	sort.SliceStable(formats, func(i, j int) bool { return msgs[formats[i]] < msgs[formats[j]] })
	for _, f := range formats {
		fmt.Fprintf(w, "  [%d] %s\n", msgs[f], f)
	}
}

// JSON numbers decode as float64; constants are integers
func formatValue(v any) string {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return fmt.Sprint(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
