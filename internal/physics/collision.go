package physics

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"voxelcore/internal/profiling"
)

// Epsilon keeps resolved positions off block planes so the next query does
// not start inside the obstacle.
const Epsilon float32 = 1e-3

// Occupancy answers block queries in world block coordinates.
type Occupancy interface {
	HasBlock(bx, by, bz int) bool
}

// Footprint is an entity's collision size, in blocks. Position is the centre
// of its base.
type Footprint struct {
	Radius float32
	Height float32
}

// Query is a single collision request.
type Query struct {
	Position  mgl32.Vec3
	Shift     mgl32.Vec3
	Footprint Footprint
}

// Response carries the clamped displacement.
type Response struct {
	Shift   mgl32.Vec3
	Changed bool
}

// Resolver clamps displacements against block occupancy. It never mutates
// the world or the entity.
type Resolver struct {
	occ   Occupancy
	shift uint
	bs    float32
	prof  *profiling.Profiler
}

// NewResolver creates a resolver for blocks of edge 1<<blockShift world units.
func NewResolver(occ Occupancy, blockShift int, prof *profiling.Profiler) *Resolver {
	return &Resolver{
		occ:   occ,
		shift: uint(blockShift),
		bs:    float32(int(1) << blockShift),
		prof:  prof,
	}
}

// BlockSize is the edge of one block in world units.
func (r *Resolver) BlockSize() float32 { return r.bs }

// toBlock floors toward negative infinity, matching chunk indexing.
func (r *Resolver) toBlock(v float32) int {
	return int(math.Floor(float64(v))) >> r.shift
}

func (r *Resolver) ResolveQuery(q Query) Response {
	shift, changed := r.Resolve(q.Position, q.Shift, q.Footprint)
	return Response{Shift: shift, Changed: changed}
}

// Resolve clamps shift so an entity at pos does not enter occupied blocks.
// X is resolved first, then Z from the X-resolved position, then Y.
func (r *Resolver) Resolve(pos, shift mgl32.Vec3, fp Footprint) (mgl32.Vec3, bool) {
	defer r.prof.Track("physics.Resolve")()
	rw, hw := fp.Radius*r.bs, fp.Height*r.bs
	changed := false

	if dx := shift.X(); dx != 0 {
		nd, hit := r.horizontal(pos.X(), dx, rw, func(b int) bool {
			return r.wall(b, pos.Z(), rw, pos.Y(), hw, true)
		})
		shift[0] = nd
		changed = changed || hit
	}
	x := pos.X() + shift.X()

	if dz := shift.Z(); dz != 0 {
		nd, hit := r.horizontal(pos.Z(), dz, rw, func(b int) bool {
			return r.wall(b, x, rw, pos.Y(), hw, false)
		})
		shift[2] = nd
		changed = changed || hit
	}
	z := pos.Z() + shift.Z()

	if dy := shift.Y(); dy != 0 {
		nd, hit := r.vertical(x, pos.Y(), z, dy, rw, hw)
		shift[1] = nd
		changed = changed || hit
	}

	if floor := r.bs; pos.Y()+shift.Y() < floor {
		shift[1] = floor - pos.Y()
		changed = true
	}
	return shift, changed
}

// horizontal walks blocks from the leading edge toward the target and stops
// at the first blocked step.
func (r *Resolver) horizontal(c, d, rw float32, blocked func(b int) bool) (float32, bool) {
	dir := 1
	if d < 0 {
		dir = -1
	}
	lead := c + float32(dir)*rw
	// first block whose near plane is at or ahead of the leading edge; an
	// edge resting on a boundary going +X/+Z faces toBlock(lead) itself
	start := r.toBlock(lead) - 1
	if dir > 0 {
		start = r.toBlock(lead-Epsilon) + 1
	}
	end := r.toBlock(lead + d)
	for b := start; b*dir <= end*dir; b += dir {
		if !blocked(b) {
			continue
		}
		plane := float32(b) * r.bs
		if dir < 0 {
			plane = float32(b+1) * r.bs
		}
		nd := plane - float32(dir)*Epsilon - lead
		if nd*float32(dir) < 0 {
			nd = 0
		}
		return nd, true
	}
	return d, false
}

// wall tests the slab at block b of the moving axis across the footprint
// width on the other horizontal axis and the full height.
func (r *Resolver) wall(b int, other, rw, y, hw float32, movingX bool) bool {
	o0, o1 := r.toBlock(other-rw), r.toBlock(other+rw-Epsilon)
	y0, y1 := r.toBlock(y), r.toBlock(y+hw-Epsilon)
	for o := o0; o <= o1; o++ {
		for by := y0; by <= y1; by++ {
			bx, bz := b, o
			if !movingX {
				bx, bz = o, b
			}
			if r.occ.HasBlock(bx, by, bz) {
				return true
			}
		}
	}
	return false
}

func (r *Resolver) layer(by int, x, z, rw float32) bool {
	x0, x1 := r.toBlock(x-rw), r.toBlock(x+rw-Epsilon)
	z0, z1 := r.toBlock(z-rw), r.toBlock(z+rw-Epsilon)
	for bx := x0; bx <= x1; bx++ {
		for bz := z0; bz <= z1; bz++ {
			if r.occ.HasBlock(bx, by, bz) {
				return true
			}
		}
	}
	return false
}

func (r *Resolver) vertical(x, y, z, dy, rw, hw float32) (float32, bool) {
	if dy < 0 {
		for by := r.toBlock(y); by >= r.toBlock(y+dy); by-- {
			top := float32(by+1) * r.bs
			if top > y+Epsilon {
				continue // the layer we stand in
			}
			if r.layer(by, x, z, rw) {
				return top + Epsilon - y, true
			}
		}
		return dy, false
	}

	head := y + hw
	for by := r.toBlock(head-Epsilon) + 1; by <= r.toBlock(head+dy-Epsilon); by++ {
		if r.layer(by, x, z, rw) {
			nd := float32(by)*r.bs - hw - Epsilon - y
			return max(nd, 0), true
		}
	}
	return dy, false
}

// GroundLevel returns the world Y of the highest block top under the
// footprint at or below fromY. Without ground it returns the safety floor
// and false.
func (r *Resolver) GroundLevel(x, z, fromY float32, fp Footprint) (float32, bool) {
	rw := fp.Radius * r.bs
	for by := r.toBlock(fromY); by >= 0; by-- {
		if r.layer(by, x, z, rw) {
			return float32(by+1) * r.bs, true
		}
	}
	return r.bs, false
}
