package world

import (
	"math"

	"github.com/aquilax/go-perlin"

	"voxelcore/internal/chunk"
)

// Column is the procedural description of one world column: blocks fill
// y = 0..Height inclusive, Top colours the surface block and Fill the rest.
type Column struct {
	Height int
	Top    uint32
	Fill   uint32
}

// ColumnFunc is the procedural terrain contract. It must be deterministic and
// safe for concurrent use.
type ColumnFunc func(bx, bz int) Column

// Generate builds a map chunk from fn. Heights are clamped to the chunk.
func Generate(coord chunk.Coord, dims chunk.Dims, fn ColumnFunc) *chunk.Chunk {
	c := chunk.New(coord, chunk.KindMap, dims)
	baseX, baseZ := coord.X*dims.Width, coord.Z*dims.Depth
	for lx := 0; lx < dims.Width; lx++ {
		for lz := 0; lz < dims.Depth; lz++ {
			col := fn(baseX+lx, baseZ+lz)
			top := min(col.Height, dims.Height-1)
			if top < 0 {
				continue
			}
			if top > 0 {
				c.FillBox(lx, 0, lz, lx, top-1, lz, col.Fill)
			}
			c.AddBlock(lx, top, lz, col.Top)
		}
	}
	return c
}

// PlaceholderColor is the grey of the fallback floor.
const PlaceholderColor = 0x7F7F7F

// Placeholder is the deterministic stand-in for a chunk that could not be
// fetched: a single flat layer at y=0.
func Placeholder(coord chunk.Coord, dims chunk.Dims) *chunk.Chunk {
	c := chunk.New(coord, chunk.KindMap, dims)
	c.FillBox(0, 0, 0, dims.Width-1, 0, dims.Depth-1, PlaceholderColor)
	return c
}

// Generator produces rolling perlin terrain with value-noise colour jitter.
type Generator struct {
	seed       int64
	scale      float64
	baseHeight int
	amp        float64
	maxHeight  int

	height *perlin.Perlin
	jitter valueNoise
}

// NewGenerator creates a generator whose terrain stays below maxHeight.
func NewGenerator(seed int64, maxHeight int) *Generator {
	return &Generator{
		seed:       seed,
		scale:      1.0 / 64.0,
		baseHeight: maxHeight / 4,
		amp:        float64(maxHeight) / 4,
		maxHeight:  maxHeight,
		height:     perlin.NewPerlin(2, 2, 3, seed),
		jitter:     valueNoise{seed: seed ^ 0x5DEECE66D, octaves: 3, persistence: 0.5, lacunarity: 2},
	}
}

// HeightAt computes the surface block Y at world X,Z.
func (g *Generator) HeightAt(bx, bz int) int {
	n := g.height.Noise2D(float64(bx)*g.scale, float64(bz)*g.scale) // [-1,1]
	h := float64(g.baseHeight) + (n+1)/2*g.amp*2
	return min(max(int(math.Floor(h)), 0), g.maxHeight-1)
}

// Column is the generator's ColumnFunc.
func (g *Generator) Column(bx, bz int) Column {
	h := g.HeightAt(bx, bz)
	j := g.jitter.at(float64(bx)/8, float64(bz)/8)
	shade := uint8(30 * j)
	return Column{
		Height: h,
		Top:    chunk.PackRGB(0x4A+shade, 0x9B+shade, 0x3A),
		Fill:   chunk.PackRGB(0x6B+shade/2, 0x4F+shade/2, 0x2F),
	}
}

// Chunk generates the chunk at coord.
func (g *Generator) Chunk(coord chunk.Coord, dims chunk.Dims) *chunk.Chunk {
	return Generate(coord, dims, g.Column)
}
