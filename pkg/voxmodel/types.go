package voxmodel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Model is a sparse voxel model. Colours are either hex values ("ff8800",
// "0xff8800") or "#name" references into Palette, resolved through parents.
type Model struct {
	Parent  string            `json:"parent,omitempty"`
	Size    [3]int            `json:"size"`
	Palette map[string]string `json:"palette,omitempty"`
	Boxes   []Box             `json:"boxes,omitempty"`
	Voxels  []Voxel           `json:"voxels,omitempty"`
}

// Box fills From (inclusive) to To (exclusive) with one colour.
type Box struct {
	From  [3]int `json:"from"`
	To    [3]int `json:"to"`
	Color string `json:"color"`
}

type Voxel struct {
	X, Y, Z int
	Color   string
}

// Voxels are stored compactly as [x, y, z, "color"].
func (v Voxel) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{v.X, v.Y, v.Z, v.Color})
}

func (v *Voxel) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// also accept the long form
		var long struct {
			X, Y, Z int
			Color   string `json:"c"`
		}
		if err2 := json.Unmarshal(data, &long); err2 != nil {
			return err
		}
		*v = Voxel{X: long.X, Y: long.Y, Z: long.Z, Color: long.Color}
		return nil
	}
	if len(raw) != 4 {
		return fmt.Errorf("voxel needs 4 fields, got %d", len(raw))
	}
	for i, dst := range []*int{&v.X, &v.Y, &v.Z} {
		if err := json.Unmarshal(raw[i], dst); err != nil {
			return fmt.Errorf("voxel field %d: %w", i, err)
		}
	}
	return json.Unmarshal(raw[3], &v.Color)
}

// ResolveColor follows "#name" palette references and parses the final value.
func (m *Model) ResolveColor(name string) (uint32, error) {
	orig := name
	for i := 0; i < 10 && strings.HasPrefix(name, "#"); i++ {
		resolved, ok := m.Palette[strings.TrimPrefix(name, "#")]
		if !ok {
			return 0, fmt.Errorf("unknown palette entry %q", orig)
		}
		name = resolved
	}
	if strings.HasPrefix(name, "#") {
		return 0, fmt.Errorf("palette reference %q does not terminate", orig)
	}
	return ParseColor(name)
}

// ParseColor reads a 24-bit hex colour with an optional 0x prefix.
func ParseColor(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 6 {
		return 0, fmt.Errorf("colour %q is not 6 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("colour %q: %w", s, err)
	}
	return uint32(v), nil
}

// FormatColor is the inverse of ParseColor.
func FormatColor(rgb uint32) string {
	return fmt.Sprintf("%06x", rgb&0xFFFFFF)
}
