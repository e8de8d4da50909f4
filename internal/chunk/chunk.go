package chunk

import (
	"errors"
	"fmt"
)

// Face flags live in the low six bits of a heavy block word. A flag is set
// once the mesher has dealt with that face (emitted or occluded).
const (
	FaceFront uint32 = 1 << iota // +Z
	FaceBack                     // -Z
	FaceLeft                     // -X
	FaceRight                    // +X
	FaceAbove                    // +Y
	FaceBelow                    // -Y
)

const (
	FaceMask = FaceFront | FaceBack | FaceLeft | FaceRight | FaceAbove | FaceBelow

	colorShift        = 8
	colorMask  uint32 = 0xFFFFFF00

	// MinColor replaces pure black, which would otherwise read as empty.
	MinColor uint32 = 0x010101
	// OccupiedColor is what GetBlock reports for blocks of an occupancy-only chunk.
	OccupiedColor uint32 = 0xFFFFFF
)

var (
	ErrNoColorData   = errors.New("chunk: occupancy-only chunk has no colour data")
	ErrUninitialized = errors.New("chunk: buffer not initialized")
)

// Encoding tags which buffer backs a chunk.
type Encoding uint8

const (
	// EncodingHeavy stores one word per block: RGB in [31:8], face flags in [5:0].
	EncodingHeavy Encoding = iota
	// EncodingLight stores one occupancy bit per block, 32 Y levels per word.
	EncodingLight
)

func (e Encoding) String() string {
	switch e {
	case EncodingHeavy:
		return "heavy"
	case EncodingLight:
		return "light"
	default:
		return fmt.Sprintf("Encoding(%d)", uint8(e))
	}
}

// Kind tells the mesher how to treat chunk borders and the bottom face.
type Kind uint8

const (
	KindMap Kind = iota
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindMap:
		return "map"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Chunk is a fixed-size cuboid of blocks. Columns (all Y levels of one x,z)
// are contiguous in both encodings.
type Chunk struct {
	Coord Coord
	Kind  Kind

	dims     Dims
	encoding Encoding
	words    []uint32
	bits     []uint32
}

// New allocates a heavy chunk. Dims must be valid.
func New(coord Coord, kind Kind, dims Dims) *Chunk {
	if err := dims.Validate(); err != nil {
		panic(err)
	}
	return &Chunk{
		Coord: coord,
		Kind:  kind,
		dims:  dims,
		words: make([]uint32, dims.Volume()),
	}
}

func (c *Chunk) Dims() Dims         { return c.dims }
func (c *Chunk) Encoding() Encoding { return c.encoding }

// HasColor reports whether the chunk still carries colour data.
func (c *Chunk) HasColor() bool {
	return c.encoding == EncodingHeavy && c.words != nil
}

// Initialized reports whether the active buffer exists.
func (c *Chunk) Initialized() bool {
	if c.encoding == EncodingLight {
		return c.bits != nil
	}
	return c.words != nil
}

func (c *Chunk) column(x, z int) int {
	return x*c.dims.Depth + z
}

func (c *Chunk) heavyIndex(x, y, z int) int {
	return c.column(x, z)*c.dims.Height + y
}

func (c *Chunk) lightIndex(x, y, z int) (int, uint32) {
	return c.column(x, z)*c.dims.WordsPerColumn() + y>>5, 1 << (uint(y) & 31)
}

func (c *Chunk) occupied(col, y int) bool {
	if c.encoding == EncodingLight {
		return c.bits[col*c.dims.WordsPerColumn()+y>>5]&(1<<(uint(y)&31)) != 0
	}
	return c.words[col*c.dims.Height+y]&colorMask != 0
}

// HasBlock reports whether a block is present at local coordinates.
func (c *Chunk) HasBlock(x, y, z int) bool {
	if !c.dims.Contains(x, y, z) || !c.Initialized() {
		return false
	}
	return c.occupied(c.column(x, z), y)
}

// GetBlock returns the RGB colour at local coordinates, 0 when empty.
func (c *Chunk) GetBlock(x, y, z int) uint32 {
	if !c.dims.Contains(x, y, z) || !c.Initialized() {
		return 0
	}
	if c.encoding == EncodingLight {
		i, m := c.lightIndex(x, y, z)
		if c.bits[i]&m != 0 {
			return OccupiedColor
		}
		return 0
	}
	return RGB(c.words[c.heavyIndex(x, y, z)])
}

// AddBlock stores a block and reports whether the buffer changed.
// Face flags of the written word are cleared.
func (c *Chunk) AddBlock(x, y, z int, color uint32) bool {
	if !c.dims.Contains(x, y, z) || !c.Initialized() {
		return false
	}
	if c.encoding == EncodingLight {
		i, m := c.lightIndex(x, y, z)
		if c.bits[i]&m != 0 {
			return false
		}
		c.bits[i] |= m
		return true
	}
	color &= 0xFFFFFF
	if color == 0 {
		color = MinColor
	}
	i := c.heavyIndex(x, y, z)
	if c.words[i]&colorMask == color<<colorShift {
		return false
	}
	c.words[i] = color << colorShift
	return true
}

// RemoveBlock clears a block and reports whether the buffer changed.
func (c *Chunk) RemoveBlock(x, y, z int) bool {
	if !c.dims.Contains(x, y, z) || !c.Initialized() {
		return false
	}
	if c.encoding == EncodingLight {
		i, m := c.lightIndex(x, y, z)
		if c.bits[i]&m == 0 {
			return false
		}
		c.bits[i] &^= m
		return true
	}
	i := c.heavyIndex(x, y, z)
	if c.words[i]&colorMask == 0 {
		return false
	}
	c.words[i] = 0
	return true
}

// FillBox adds blocks over the inclusive local box, clipped to the chunk.
func (c *Chunk) FillBox(x0, y0, z0, x1, y1, z1 int, color uint32) int {
	n := 0
	for x := max(x0, 0); x <= min(x1, c.dims.Width-1); x++ {
		for z := max(z0, 0); z <= min(z1, c.dims.Depth-1); z++ {
			for y := max(y0, 0); y <= min(y1, c.dims.Height-1); y++ {
				if c.AddBlock(x, y, z, color) {
					n++
				}
			}
		}
	}
	return n
}

// Column returns the packed occupancy words of one column, bit y%32 of word
// y/32 set for each present block. Out of bounds yields nil.
func (c *Chunk) Column(x, z int) []uint32 {
	if x < 0 || x >= c.dims.Width || z < 0 || z >= c.dims.Depth || !c.Initialized() {
		return nil
	}
	wpc := c.dims.WordsPerColumn()
	col := c.column(x, z)
	out := make([]uint32, wpc)
	if c.encoding == EncodingLight {
		copy(out, c.bits[col*wpc:(col+1)*wpc])
		return out
	}
	base := col * c.dims.Height
	for y := 0; y < c.dims.Height; y++ {
		if c.words[base+y]&colorMask != 0 {
			out[y>>5] |= 1 << (uint(y) & 31)
		}
	}
	return out
}

// MinMaxY returns the topmost contiguous run of blocks in a column.
func (c *Chunk) MinMaxY(x, z int) (int, int, bool) {
	return c.MinMaxYRange(x, z, 0, c.dims.Height-1)
}

// MinMaxYRange scans a column top-down from toY to fromY and returns the
// bottom and top of the first occupied run it meets. The scan stops at the
// first empty level below that run.
func (c *Chunk) MinMaxYRange(x, z, fromY, toY int) (int, int, bool) {
	if x < 0 || x >= c.dims.Width || z < 0 || z >= c.dims.Depth || !c.Initialized() {
		return 0, 0, false
	}
	fromY = max(fromY, 0)
	toY = min(toY, c.dims.Height-1)
	if fromY > toY {
		return 0, 0, false
	}

	col := c.column(x, z)
	wpc := c.dims.WordsPerColumn()
	maxY := -1
	for y := toY; y >= fromY; y-- {
		// whole empty words are skipped while still looking for the top
		if maxY < 0 && c.encoding == EncodingLight && y&31 == 31 && c.bits[col*wpc+y>>5] == 0 {
			y -= 31
			continue
		}
		if c.occupied(col, y) {
			if maxY < 0 {
				maxY = y
			}
		} else if maxY >= 0 {
			return y + 1, maxY, true
		}
	}
	if maxY < 0 {
		return 0, 0, false
	}
	return fromY, maxY, true
}

// ResetFaces clears every face flag. Must run before a rebuild.
func (c *Chunk) ResetFaces() {
	for i := range c.words {
		c.words[i] &^= FaceMask
	}
}

// Snapshot copies the heavy buffer for a mesh request.
func (c *Chunk) Snapshot() ([]uint32, error) {
	if c.encoding == EncodingLight {
		return nil, ErrNoColorData
	}
	if c.words == nil {
		return nil, ErrUninitialized
	}
	out := make([]uint32, len(c.words))
	copy(out, c.words)
	return out, nil
}

// Lighten drops colour data and keeps occupancy only. Offsets stay
// column-major so queries behave the same afterwards.
func (c *Chunk) Lighten() {
	if c.encoding == EncodingLight || c.words == nil {
		return
	}
	wpc := c.dims.WordsPerColumn()
	columns := c.dims.Width * c.dims.Depth
	bits := make([]uint32, columns*wpc)
	for col := 0; col < columns; col++ {
		base := col * c.dims.Height
		for y := 0; y < c.dims.Height; y++ {
			if c.words[base+y]&colorMask != 0 {
				bits[col*wpc+y>>5] |= 1 << (uint(y) & 31)
			}
		}
	}
	c.bits = bits
	c.words = nil
	c.encoding = EncodingLight
}

// Release drops both buffers; the chunk reads as empty afterwards.
func (c *Chunk) Release() {
	c.words = nil
	c.bits = nil
}

// Count returns the number of present blocks.
func (c *Chunk) Count() int {
	n := 0
	if c.encoding == EncodingLight {
		for _, w := range c.bits {
			for ; w != 0; w &= w - 1 {
				n++
			}
		}
		return n
	}
	for _, w := range c.words {
		if w&colorMask != 0 {
			n++
		}
	}
	return n
}

// MemoryBytes is the size of the active buffer.
func (c *Chunk) MemoryBytes() int {
	return 4 * (len(c.words) + len(c.bits))
}

// ForEachBlock visits present blocks column by column.
func (c *Chunk) ForEachBlock(fn func(x, y, z int, color uint32)) {
	if !c.Initialized() {
		return
	}
	for x := 0; x < c.dims.Width; x++ {
		for z := 0; z < c.dims.Depth; z++ {
			col := c.column(x, z)
			for y := 0; y < c.dims.Height; y++ {
				if !c.occupied(col, y) {
					continue
				}
				if c.encoding == EncodingLight {
					fn(x, y, z, OccupiedColor)
				} else {
					fn(x, y, z, RGB(c.words[col*c.dims.Height+y]))
				}
			}
		}
	}
}
