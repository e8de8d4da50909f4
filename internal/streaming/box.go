package streaming

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"voxelcore/internal/chunk"
	"voxelcore/internal/world"
)

// Bounds optionally clips the visible box to an inclusive chunk range.
type Bounds struct {
	Enabled    bool
	MinX, MinZ int
	MaxX, MaxZ int
}

// Box is an inclusive chunk-coordinate range. It is empty when Min > Max.
type Box struct {
	MinX, MinZ int
	MaxX, MaxZ int
}

// VisibleBox is the square of chunks within viewDistance of ref, clipped to b.
func VisibleBox(ref chunk.Coord, viewDistance int, b Bounds) Box {
	box := Box{
		MinX: ref.X - viewDistance, MinZ: ref.Z - viewDistance,
		MaxX: ref.X + viewDistance, MaxZ: ref.Z + viewDistance,
	}
	if b.Enabled {
		box.MinX, box.MinZ = max(box.MinX, b.MinX), max(box.MinZ, b.MinZ)
		box.MaxX, box.MaxZ = min(box.MaxX, b.MaxX), min(box.MaxZ, b.MaxZ)
	}
	return box
}

func (b Box) Empty() bool {
	return b.MinX > b.MaxX || b.MinZ > b.MaxZ
}

func (b Box) Len() int {
	if b.Empty() {
		return 0
	}
	return (b.MaxX - b.MinX + 1) * (b.MaxZ - b.MinZ + 1)
}

func (b Box) Contains(c chunk.Coord) bool {
	return c.X >= b.MinX && c.X <= b.MaxX && c.Z >= b.MinZ && c.Z <= b.MaxZ
}

// Coords lists the box X-major.
func (b Box) Coords() []chunk.Coord {
	out := make([]chunk.Coord, 0, b.Len())
	for x := b.MinX; x <= b.MaxX; x++ {
		for z := b.MinZ; z <= b.MaxZ; z++ {
			out = append(out, chunk.Coord{X: x, Z: z})
		}
	}
	return out
}

// ChunkOf returns the chunk holding a world position.
func ChunkOf(pos mgl32.Vec3, dims chunk.Dims, blockShift int) chunk.Coord {
	bx := int(math.Floor(float64(pos.X()))) >> blockShift
	bz := int(math.Floor(float64(pos.Z()))) >> blockShift
	return chunk.Coord{X: bx >> dims.WidthShift(), Z: bz >> dims.DepthShift()}
}

// Diff splits the work needed to make the loaded set equal the visible box.
// toUnload keeps the order of loaded, which is oldest registration first.
func Diff(visible Box, loaded []world.Registered) (toLoad, toUnload []chunk.Coord) {
	have := make(map[chunk.Coord]struct{}, len(loaded))
	for _, r := range loaded {
		have[r.Coord] = struct{}{}
		if !visible.Contains(r.Coord) {
			toUnload = append(toUnload, r.Coord)
		}
	}
	for _, c := range visible.Coords() {
		if _, ok := have[c]; !ok {
			toLoad = append(toLoad, c)
		}
	}
	return toLoad, toUnload
}

func distSq(ref, c chunk.Coord) int {
	dx, dz := c.X-ref.X, c.Z-ref.Z
	return dx*dx + dz*dz
}

// Distance is the floored euclidean chunk distance.
func Distance(ref, c chunk.Coord) int {
	return int(math.Floor(math.Sqrt(float64(distSq(ref, c)))))
}

// Prioritize groups coords by floored distance to ref, nearest group first.
// The first two groups are merged so the initial batch is never tiny. Within
// a group coords are ordered by exact distance.
func Prioritize(ref chunk.Coord, coords []chunk.Coord) [][]chunk.Coord {
	sorted := append([]chunk.Coord(nil), coords...)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := distSq(ref, sorted[i]), distSq(ref, sorted[j])
		if di != dj {
			return di < dj
		}
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Z < sorted[j].Z
	})

	var groups [][]chunk.Coord
	last := -1
	for _, c := range sorted {
		if d := Distance(ref, c); d != last || len(groups) == 0 {
			groups = append(groups, nil)
			last = d
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], c)
	}
	if len(groups) >= 2 {
		merged := append(groups[0], groups[1]...)
		groups = append([][]chunk.Coord{merged}, groups[2:]...)
	}
	return groups
}
