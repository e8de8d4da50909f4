package chunk

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Dims are chunk dimensions in blocks; each must be a power of two.
type Dims struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	Depth  int `yaml:"depth"`
}

func (d Dims) Validate() error {
	for _, v := range []struct {
		name string
		n    int
	}{{"width", d.Width}, {"height", d.Height}, {"depth", d.Depth}} {
		if v.n <= 0 || v.n&(v.n-1) != 0 {
			return fmt.Errorf("chunk: %s %d is not a power of two", v.name, v.n)
		}
	}
	return nil
}

func (d Dims) String() string {
	return fmt.Sprintf("%dx%dx%d", d.Width, d.Height, d.Depth)
}

func (d Dims) Volume() int {
	return d.Width * d.Height * d.Depth
}

// WordsPerColumn is the number of occupancy words per column in the light encoding.
func (d Dims) WordsPerColumn() int {
	return (d.Height + 31) >> 5
}

func (d Dims) Contains(x, y, z int) bool {
	return x >= 0 && x < d.Width && y >= 0 && y < d.Height && z >= 0 && z < d.Depth
}

// WidthShift and DepthShift convert block to chunk coordinates by right shift.
func (d Dims) WidthShift() int { return bits.TrailingZeros(uint(d.Width)) }
func (d Dims) DepthShift() int { return bits.TrailingZeros(uint(d.Depth)) }

// Coord addresses a chunk column in the world.
type Coord struct {
	X, Z int
}

// Key is the registry key, "<x>|<z>".
func (c Coord) Key() string {
	return strconv.Itoa(c.X) + "|" + strconv.Itoa(c.Z)
}

func (c Coord) String() string {
	return c.Key()
}

// FileName follows the fetch naming convention chunk-<x>-<z>.<ext>.
func (c Coord) FileName(ext string) string {
	return fmt.Sprintf("chunk-%d-%d.%s", c.X, c.Z, strings.TrimPrefix(ext, "."))
}

// ParseKey is the inverse of Key.
func ParseKey(key string) (Coord, error) {
	xs, zs, ok := strings.Cut(key, "|")
	if !ok {
		return Coord{}, fmt.Errorf("chunk: malformed key %q", key)
	}
	x, err := strconv.Atoi(xs)
	if err != nil {
		return Coord{}, fmt.Errorf("chunk: malformed key %q: %w", key, err)
	}
	z, err := strconv.Atoi(zs)
	if err != nil {
		return Coord{}, fmt.Errorf("chunk: malformed key %q: %w", key, err)
	}
	return Coord{X: x, Z: z}, nil
}

// PackRGB builds a 0xRRGGBB colour.
func PackRGB(r, g, b uint8) uint32 {
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// RGB extracts the colour of a heavy block word.
func RGB(word uint32) uint32 {
	return word >> colorShift
}

// ColorFloats converts a block word to normalized vertex colour channels.
func ColorFloats(word uint32) (float32, float32, float32) {
	rgb := RGB(word)
	return float32(rgb>>16&0xFF) / 255, float32(rgb>>8&0xFF) / 255, float32(rgb&0xFF) / 255
}

// Occupied reports whether a heavy block word holds a block.
func Occupied(word uint32) bool {
	return word&colorMask != 0
}

// HeavyIndex is the buffer offset of a block for the given dims.
func HeavyIndex(d Dims, x, y, z int) int {
	return (x*d.Depth+z)*d.Height + y
}

// ColorBits masks a block word down to its colour field, still shifted.
func ColorBits(word uint32) uint32 {
	return word & colorMask
}
