package world

import (
	"testing"

	"voxelcore/internal/chunk"
)

func TestPlaceholderIsFlatLayer(t *testing.T) {
	c := Placeholder(chunk.Coord{X: 4, Z: -2}, testDims)
	if c.Count() != testDims.Width*testDims.Depth {
		t.Fatalf("Count = %d, want %d", c.Count(), testDims.Width*testDims.Depth)
	}
	for x := 0; x < testDims.Width; x++ {
		for z := 0; z < testDims.Depth; z++ {
			lo, hi, ok := c.MinMaxY(x, z)
			if !ok || lo != 0 || hi != 0 {
				t.Fatalf("column (%d,%d) = %d..%d", x, z, lo, hi)
			}
		}
	}
	if c.Kind != chunk.KindMap || c.GetBlock(0, 0, 0) != PlaceholderColor {
		t.Fatal("placeholder has wrong kind or colour")
	}
}

func TestGenerateFromColumnFunc(t *testing.T) {
	flat := func(bx, bz int) Column {
		return Column{Height: 3, Top: 0x00FF00, Fill: 0x8B4513}
	}
	c := Generate(chunk.Coord{}, testDims, flat)
	if got := c.GetBlock(1, 3, 1); got != 0x00FF00 {
		t.Fatalf("top = %06x", got)
	}
	if got := c.GetBlock(1, 0, 1); got != 0x8B4513 {
		t.Fatalf("fill = %06x", got)
	}
	if c.HasBlock(1, 4, 1) {
		t.Fatal("block above the surface")
	}

	tall := func(bx, bz int) Column { return Column{Height: 1000, Top: 1, Fill: 1} }
	if _, hi, _ := Generate(chunk.Coord{}, testDims, tall).MinMaxY(0, 0); hi != testDims.Height-1 {
		t.Fatalf("tall column not clamped: top %d", hi)
	}
}

func TestGeneratorDeterministic(t *testing.T) {
	a := NewGenerator(42, testDims.Height)
	b := NewGenerator(42, testDims.Height)
	coord := chunk.Coord{X: 3, Z: -7}
	ca, cb := a.Chunk(coord, testDims), b.Chunk(coord, testDims)

	ca.ForEachBlock(func(x, y, z int, color uint32) {
		if cb.GetBlock(x, y, z) != color {
			t.Fatalf("generators with one seed differ at (%d,%d,%d)", x, y, z)
		}
	})
	if ca.Count() != cb.Count() {
		t.Fatal("block counts differ")
	}
	for bx := -100; bx < 100; bx += 7 {
		if h := a.HeightAt(bx, bx*3); h < 0 || h >= testDims.Height {
			t.Fatalf("HeightAt(%d) = %d out of range", bx, h)
		}
	}
}

func TestValueNoiseRange(t *testing.T) {
	n := valueNoise{seed: 7, octaves: 4, persistence: 0.5, lacunarity: 2}
	for i := 0; i < 500; i++ {
		v := n.at(float64(i)*0.37, float64(i)*-0.11)
		if v < 0 || v > 1 {
			t.Fatalf("noise %v out of [0,1]", v)
		}
	}
}

func BenchmarkGeneratorChunk(b *testing.B) {
	g := NewGenerator(1, testDims.Height)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.Chunk(chunk.Coord{X: i % 32, Z: i / 32}, testDims)
	}
}
