package streaming

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelcore/internal/chunk"
	"voxelcore/internal/world"
)

func TestVisibleBox(t *testing.T) {
	box := VisibleBox(chunk.Coord{X: 2, Z: -1}, 2, Bounds{})
	assert.Equal(t, Box{MinX: 0, MinZ: -3, MaxX: 4, MaxZ: 1}, box)
	assert.Equal(t, 25, box.Len())
	assert.True(t, box.Contains(chunk.Coord{X: 4, Z: -3}))
	assert.False(t, box.Contains(chunk.Coord{X: 5, Z: 0}))

	clipped := VisibleBox(chunk.Coord{X: 2, Z: -1}, 2, Bounds{Enabled: true, MinX: 1, MinZ: -1, MaxX: 10, MaxZ: 10})
	assert.Equal(t, Box{MinX: 1, MinZ: -1, MaxX: 4, MaxZ: 1}, clipped)
	assert.Equal(t, 12, clipped.Len())

	outside := VisibleBox(chunk.Coord{X: 50}, 1, Bounds{Enabled: true, MaxX: 3, MaxZ: 3})
	assert.True(t, outside.Empty())
	assert.Zero(t, outside.Len())
	assert.Empty(t, outside.Coords())
}

func TestBoxCoordsXMajor(t *testing.T) {
	got := Box{MinX: 0, MinZ: 0, MaxX: 1, MaxZ: 1}.Coords()
	assert.Equal(t, []chunk.Coord{{X: 0, Z: 0}, {X: 0, Z: 1}, {X: 1, Z: 0}, {X: 1, Z: 1}}, got)
}

func TestChunkOf(t *testing.T) {
	dims := chunk.Dims{Width: 16, Height: 32, Depth: 16}
	tests := []struct {
		pos   mgl32.Vec3
		shift int
		want  chunk.Coord
	}{
		{mgl32.Vec3{0, 0, 0}, 0, chunk.Coord{}},
		{mgl32.Vec3{15.9, 3, 15.9}, 0, chunk.Coord{}},
		{mgl32.Vec3{16, 0, 0}, 0, chunk.Coord{X: 1}},
		{mgl32.Vec3{-0.5, 0, -17}, 0, chunk.Coord{X: -1, Z: -2}},
		{mgl32.Vec3{33, 0, 31}, 1, chunk.Coord{X: 1, Z: 0}},
		{mgl32.Vec3{-1, 0, 64}, 1, chunk.Coord{X: -1, Z: 2}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ChunkOf(tt.pos, dims, tt.shift), "pos %v shift %d", tt.pos, tt.shift)
	}
}

func TestDiff(t *testing.T) {
	visible := Box{MinX: 0, MinZ: 0, MaxX: 1, MaxZ: 0}
	loaded := []world.Registered{
		{Coord: chunk.Coord{X: 5}, Seq: 1},
		{Coord: chunk.Coord{X: 1}, Seq: 2},
		{Coord: chunk.Coord{X: -3}, Seq: 3},
	}
	toLoad, toUnload := Diff(visible, loaded)
	assert.Equal(t, []chunk.Coord{{X: 0}}, toLoad)
	assert.Equal(t, []chunk.Coord{{X: 5}, {X: -3}}, toUnload, "unload keeps registration order")

	toLoad, toUnload = Diff(visible, nil)
	assert.Len(t, toLoad, 2)
	assert.Empty(t, toUnload)
}

func TestPrioritize(t *testing.T) {
	ref := chunk.Coord{}
	coords := VisibleBox(ref, 2, Bounds{}).Coords()
	groups := Prioritize(ref, coords)
	require.Len(t, groups, 2)

	// distances 0 and 1 are merged into the first batch
	assert.Equal(t, []chunk.Coord{
		{X: 0, Z: 0},
		{X: -1, Z: 0}, {X: 0, Z: -1}, {X: 0, Z: 1}, {X: 1, Z: 0},
		{X: -1, Z: -1}, {X: -1, Z: 1}, {X: 1, Z: -1}, {X: 1, Z: 1},
	}, groups[0])
	assert.Len(t, groups[1], 16)
	for _, c := range groups[1] {
		assert.Equal(t, 2, Distance(ref, c))
	}
	for i := 1; i < len(groups[1]); i++ {
		assert.LessOrEqual(t, distSq(ref, groups[1][i-1]), distSq(ref, groups[1][i]))
	}

	assert.Empty(t, Prioritize(ref, nil))
	single := Prioritize(ref, []chunk.Coord{{X: 3}})
	assert.Equal(t, [][]chunk.Coord{{{X: 3}}}, single)
}

func TestDistance(t *testing.T) {
	assert.Equal(t, 0, Distance(chunk.Coord{X: 1, Z: 1}, chunk.Coord{X: 1, Z: 1}))
	assert.Equal(t, 1, Distance(chunk.Coord{}, chunk.Coord{X: 1, Z: 1}))
	assert.Equal(t, 5, Distance(chunk.Coord{}, chunk.Coord{X: -3, Z: 4}))
}
