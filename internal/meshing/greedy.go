package meshing

import (
	"fmt"

	"voxelcore/internal/chunk"
)

// VerticesPerQuad is two triangles, non-indexed.
const VerticesPerQuad = 6

// Options select the boundary policy and output scale of a build.
type Options struct {
	BlockScale       float32
	Kind             chunk.Kind
	RenderBottomFace bool
}

// DefaultOptions returns the usual policy for a chunk kind: map chunks never
// show their underside, objects do.
func DefaultOptions(kind chunk.Kind) Options {
	return Options{
		BlockScale:       1,
		Kind:             kind,
		RenderBottomFace: kind == chunk.KindObject,
	}
}

// EdgeSnapshot carries the occupancy of the neighbour planes touching a map
// chunk's four sides, captured when the request is built. A nil plane means
// the neighbour is not loaded; that side is treated as closed.
// Left/Right planes are indexed z*Height+y, Back/Front planes x*Height+y.
type EdgeSnapshot struct {
	Left, Right []bool
	Back, Front []bool
}

// Request is a self-contained mesh task. Buffer is owned by the request and
// its face bits are used as scratch space.
type Request struct {
	ID      uint64
	Coord   chunk.Coord
	Version uint64
	Buffer  []uint32
	Dims    chunk.Dims
	Options
	Edges *EdgeSnapshot
}

// Result holds flat xyz positions and matching rgb colours.
type Result struct {
	ID        uint64
	Coord     chunk.Coord
	Version   uint64
	Positions []float32
	Colors    []float32
	Quads     int
	Err       error
}

// VertexCount is the number of emitted vertices.
func (r Result) VertexCount() int {
	return len(r.Positions) / 3
}

type direction struct {
	flag       uint32
	dx, dy, dz int
	// u and v span the face plane; flip reverses winding so faces stay CCW
	// seen from outside.
	u, v [3]int
	flip bool
}

var directions = func() [6]direction {
	ds := [6]direction{
		{flag: chunk.FaceFront, dz: 1, u: [3]int{1, 0, 0}, v: [3]int{0, 1, 0}},
		{flag: chunk.FaceBack, dz: -1, u: [3]int{1, 0, 0}, v: [3]int{0, 1, 0}},
		{flag: chunk.FaceLeft, dx: -1, u: [3]int{0, 0, 1}, v: [3]int{0, 1, 0}},
		{flag: chunk.FaceRight, dx: 1, u: [3]int{0, 0, 1}, v: [3]int{0, 1, 0}},
		{flag: chunk.FaceAbove, dy: 1, u: [3]int{1, 0, 0}, v: [3]int{0, 0, 1}},
		{flag: chunk.FaceBelow, dy: -1, u: [3]int{1, 0, 0}, v: [3]int{0, 0, 1}},
	}
	for i := range ds {
		d := &ds[i]
		cx := d.u[1]*d.v[2] - d.u[2]*d.v[1]
		cy := d.u[2]*d.v[0] - d.u[0]*d.v[2]
		cz := d.u[0]*d.v[1] - d.u[1]*d.v[0]
		d.flip = cx*d.dx+cy*d.dy+cz*d.dz < 0
	}
	return ds
}()

type builder struct {
	req       Request
	buf       []uint32
	d         chunk.Dims
	sx, sz    int // index strides; sy is 1
	scale     float32
	positions []float32
	colors    []float32
	quads     int
}

// Build turns a block buffer into a greedy-merged triangle list. It is a pure
// function of the request apart from the face bits of req.Buffer, which it
// resets first and leaves set for every handled face.
func Build(req Request) Result {
	if req.Buffer == nil || len(req.Buffer) != req.Dims.Volume() {
		panic(fmt.Sprintf("meshing: buffer for chunk %s has %d words, dims %dx%dx%d need %d",
			req.Coord, len(req.Buffer), req.Dims.Width, req.Dims.Height, req.Dims.Depth, req.Dims.Volume()))
	}
	scale := req.BlockScale
	if scale == 0 {
		scale = 1
	}

	b := &builder{
		req:   req,
		buf:   req.Buffer,
		d:     req.Dims,
		sx:    req.Dims.Depth * req.Dims.Height,
		sz:    req.Dims.Height,
		scale: scale,
	}
	for i := range b.buf {
		b.buf[i] &^= chunk.FaceMask
	}

	b.markOccluded()
	b.emitExposed()

	return Result{
		ID:        req.ID,
		Coord:     req.Coord,
		Version:   req.Version,
		Positions: b.positions,
		Colors:    b.colors,
		Quads:     b.quads,
	}
}

// markOccluded sets the face bit of every face hidden by a neighbour, so that
// afterwards an unset bit on an occupied block means "exposed, not emitted".
func (b *builder) markOccluded() {
	for x := 0; x < b.d.Width; x++ {
		for z := 0; z < b.d.Depth; z++ {
			base := x*b.sx + z*b.sz
			for y := 0; y < b.d.Height; y++ {
				i := base + y
				if !chunk.Occupied(b.buf[i]) {
					continue
				}
				var faces uint32
				if !b.req.RenderBottomFace {
					faces |= chunk.FaceBelow
				}
				for _, dir := range directions {
					if faces&dir.flag == 0 && b.neighborOccupied(x+dir.dx, y+dir.dy, z+dir.dz) {
						faces |= dir.flag
					}
				}
				b.buf[i] |= faces
			}
		}
	}
}

// neighborOccupied applies the boundary policy for cells outside the buffer.
func (b *builder) neighborOccupied(x, y, z int) bool {
	if b.d.Contains(x, y, z) {
		return chunk.Occupied(b.buf[x*b.sx+z*b.sz+y])
	}
	if y < 0 || y >= b.d.Height || b.req.Kind == chunk.KindObject {
		return false
	}
	e := b.req.Edges
	if e == nil {
		return true
	}
	var plane []bool
	var i int
	switch {
	case x < 0:
		plane, i = e.Left, z*b.d.Height+y
	case x >= b.d.Width:
		plane, i = e.Right, z*b.d.Height+y
	case z < 0:
		plane, i = e.Back, x*b.d.Height+y
	default:
		plane, i = e.Front, x*b.d.Height+y
	}
	if plane == nil {
		return true
	}
	return plane[i]
}

func (b *builder) emitExposed() {
	for x := 0; x < b.d.Width; x++ {
		for z := 0; z < b.d.Depth; z++ {
			base := x*b.sx + z*b.sz
			for y := 0; y < b.d.Height; y++ {
				w := b.buf[base+y]
				if !chunk.Occupied(w) || w&chunk.FaceMask == chunk.FaceMask {
					continue // empty or fully interior
				}
				for di := range directions {
					if b.buf[base+y]&directions[di].flag == 0 {
						b.expand(x, y, z, &directions[di])
					}
				}
			}
		}
	}
}

func (b *builder) qualifies(x, y, z int, color, flag uint32) bool {
	if !b.d.Contains(x, y, z) {
		return false
	}
	w := b.buf[x*b.sx+z*b.sz+y]
	return chunk.ColorBits(w) == color && w&flag == 0
}

// expand grows a rectangle from (x,y,z) along u, then along v while the whole
// row qualifies, marks it and emits one quad.
func (b *builder) expand(x, y, z int, dir *direction) {
	start := b.buf[x*b.sx+z*b.sz+y]
	color := chunk.ColorBits(start)
	u, v := dir.u, dir.v

	w := 1
	for b.qualifies(x+u[0]*w, y+u[1]*w, z+u[2]*w, color, dir.flag) {
		w++
	}
	h := 1
grow:
	for {
		ox, oy, oz := x+v[0]*h, y+v[1]*h, z+v[2]*h
		for k := 0; k < w; k++ {
			if !b.qualifies(ox+u[0]*k, oy+u[1]*k, oz+u[2]*k, color, dir.flag) {
				break grow
			}
		}
		h++
	}

	for j := 0; j < h; j++ {
		for k := 0; k < w; k++ {
			cx := x + u[0]*k + v[0]*j
			cy := y + u[1]*k + v[1]*j
			cz := z + u[2]*k + v[2]*j
			b.buf[cx*b.sx+cz*b.sz+cy] |= dir.flag
		}
	}
	b.emitQuad(x, y, z, w, h, dir, color)
}

func (b *builder) emitQuad(x, y, z, w, h int, dir *direction, color uint32) {
	// the face plane sits on the far side of the block for positive normals
	ox, oy, oz := float32(x), float32(y), float32(z)
	if dir.dx > 0 {
		ox++
	}
	if dir.dy > 0 {
		oy++
	}
	if dir.dz > 0 {
		oz++
	}
	fw, fh := float32(w), float32(h)
	uw := [3]float32{float32(dir.u[0]) * fw, float32(dir.u[1]) * fw, float32(dir.u[2]) * fw}
	vh := [3]float32{float32(dir.v[0]) * fh, float32(dir.v[1]) * fh, float32(dir.v[2]) * fh}

	p0 := [3]float32{ox, oy, oz}
	p1 := [3]float32{ox + uw[0], oy + uw[1], oz + uw[2]}
	p2 := [3]float32{ox + uw[0] + vh[0], oy + uw[1] + vh[1], oz + uw[2] + vh[2]}
	p3 := [3]float32{ox + vh[0], oy + vh[1], oz + vh[2]}
	if dir.flip {
		p1, p3 = p3, p1
	}

	s := b.scale
	for _, p := range [VerticesPerQuad][3]float32{p0, p1, p2, p2, p3, p0} {
		b.positions = append(b.positions, p[0]*s, p[1]*s, p[2]*s)
	}
	r, g, bl := chunk.ColorFloats(color)
	for i := 0; i < VerticesPerQuad; i++ {
		b.colors = append(b.colors, r, g, bl)
	}
	b.quads++
}
