package physics

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

type blocks map[[3]int]bool

func (b blocks) HasBlock(x, y, z int) bool { return b[[3]int{x, y, z}] }

func (b blocks) fill(x0, y0, z0, x1, y1, z1 int) blocks {
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			for z := z0; z <= z1; z++ {
				b[[3]int{x, y, z}] = true
			}
		}
	}
	return b
}

type counting struct {
	Occupancy
	n int
}

func (c *counting) HasBlock(x, y, z int) bool {
	c.n++
	return c.Occupancy.HasBlock(x, y, z)
}

var player = Footprint{Radius: 0.3, Height: 1.8}

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 2e-3
}

func groundWorld() blocks {
	return blocks{}.fill(-20, 0, -20, 20, 0, 20)
}

func TestOpenSpaceUnchanged(t *testing.T) {
	r := NewResolver(groundWorld(), 0, nil)
	pos := mgl32.Vec3{5.5, 1 + Epsilon, 5.5}
	shift := mgl32.Vec3{0.7, 0, -0.4}
	got, changed := r.Resolve(pos, shift, player)
	if changed || got != shift {
		t.Fatalf("open space: got %v changed=%v", got, changed)
	}
}

func TestZeroShiftSkipsQueries(t *testing.T) {
	occ := &counting{Occupancy: groundWorld()}
	r := NewResolver(occ, 0, nil)
	got, changed := r.Resolve(mgl32.Vec3{0.5, 2, 0.5}, mgl32.Vec3{}, player)
	if changed || got != (mgl32.Vec3{}) || occ.n != 0 {
		t.Fatalf("zero shift: got %v changed=%v queries=%d", got, changed, occ.n)
	}
}

func TestWallClampsLeadingEdge(t *testing.T) {
	w := groundWorld().fill(7, 1, -5, 7, 3, 10)
	r := NewResolver(w, 0, nil)
	pos := mgl32.Vec3{5.5, 1 + Epsilon, 5.5}

	got, changed := r.Resolve(pos, mgl32.Vec3{3, 0, 0}, player)
	if !changed {
		t.Fatal("wall hit not reported")
	}
	if x := pos.X() + got.X(); !near(x, 7-player.Radius) {
		t.Fatalf("stopped at x=%v, want %v", x, 7-player.Radius)
	}

	w = groundWorld().fill(2, 1, -5, 2, 3, 10)
	r = NewResolver(w, 0, nil)
	got, changed = r.Resolve(pos, mgl32.Vec3{-5, 0, 0}, player)
	if x := pos.X() + got.X(); !changed || !near(x, 3+player.Radius) {
		t.Fatalf("negative wall: x=%v changed=%v", x, changed)
	}
}

func TestWallAtAlignedEdge(t *testing.T) {
	cube := Footprint{Radius: 0.5, Height: 1.8}
	pos := mgl32.Vec3{1.5, 1 + Epsilon, 0.5}

	r := NewResolver(groundWorld().fill(2, 1, -5, 2, 3, 10), 0, nil)
	got, changed := r.Resolve(pos, mgl32.Vec3{0.5, 0, 0}, cube)
	if lead := pos.X() + got.X() + cube.Radius; !changed || lead > 2 {
		t.Fatalf("+X: lead=%v changed=%v", lead, changed)
	}

	pos = mgl32.Vec3{0.5, 1 + Epsilon, 1.5}
	r = NewResolver(groundWorld().fill(-5, 1, 2, 10, 3, 2), 0, nil)
	got, changed = r.Resolve(pos, mgl32.Vec3{0, 0, 0.9}, cube)
	if lead := pos.Z() + got.Z() + cube.Radius; !changed || lead > 2 {
		t.Fatalf("+Z: lead=%v changed=%v", lead, changed)
	}

	pos = mgl32.Vec3{3.5, 1 + Epsilon, 0.5}
	r = NewResolver(groundWorld().fill(2, 1, -5, 2, 3, 10), 0, nil)
	got, changed = r.Resolve(pos, mgl32.Vec3{-0.5, 0, 0}, cube)
	if lead := pos.X() + got.X() - cube.Radius; !changed || lead < 3 {
		t.Fatalf("-X: lead=%v changed=%v", lead, changed)
	}
}

func TestWallBeyondReachIgnored(t *testing.T) {
	w := groundWorld().fill(9, 1, -5, 9, 3, 10)
	r := NewResolver(w, 0, nil)
	got, changed := r.Resolve(mgl32.Vec3{5.5, 1 + Epsilon, 5.5}, mgl32.Vec3{1, 0, 0}, player)
	if changed || got.X() != 1 {
		t.Fatalf("got %v changed=%v", got, changed)
	}
}

func TestZUsesResolvedX(t *testing.T) {
	w := groundWorld()
	w[[3]int{8, 1, 7}] = true
	r := NewResolver(w, 0, nil)
	pos := mgl32.Vec3{5.5, 1 + Epsilon, 5.5}

	got, changed := r.Resolve(pos, mgl32.Vec3{3, 0, 3}, player)
	if !changed {
		t.Fatal("expected the Z sweep at the new X to hit")
	}
	if got.X() != 3 {
		t.Fatalf("X should pass unmodified, got %v", got.X())
	}
	if z := pos.Z() + got.Z(); !near(z, 7-player.Radius) {
		t.Fatalf("stopped at z=%v", z)
	}
}

func TestLanding(t *testing.T) {
	r := NewResolver(groundWorld(), 0, nil)
	pos := mgl32.Vec3{0.5, 3, 0.5}
	got, changed := r.Resolve(pos, mgl32.Vec3{0, -5, 0}, player)
	if !changed || !near(pos.Y()+got.Y(), 1) || pos.Y()+got.Y() < 1 {
		t.Fatalf("landed at y=%v changed=%v", pos.Y()+got.Y(), changed)
	}

	// a short fall that does not reach the ground passes
	got, changed = r.Resolve(pos, mgl32.Vec3{0, -1, 0}, player)
	if changed || got.Y() != -1 {
		t.Fatalf("short fall: %v changed=%v", got, changed)
	}
}

func TestCeiling(t *testing.T) {
	w := groundWorld().fill(-2, 5, -2, 2, 5, 2)
	r := NewResolver(w, 0, nil)
	pos := mgl32.Vec3{0.5, 1 + Epsilon, 0.5}
	got, changed := r.Resolve(pos, mgl32.Vec3{0, 4, 0}, player)
	if head := pos.Y() + got.Y() + player.Height; !changed || !near(head, 5) || head > 5 {
		t.Fatalf("head at %v changed=%v", head, changed)
	}
}

func TestSafetyFloor(t *testing.T) {
	r := NewResolver(blocks{}, 0, nil)
	got, changed := r.Resolve(mgl32.Vec3{0, 3, 0}, mgl32.Vec3{0, -10, 0}, player)
	if !changed || 3+got.Y() != 1 {
		t.Fatalf("fell to %v changed=%v", 3+got.Y(), changed)
	}
}

func TestBlockShift(t *testing.T) {
	// blocks are 2 units wide; wall block 3 spans x 6..8
	w := blocks{}.fill(3, 1, -3, 3, 2, 3)
	r := NewResolver(w, 1, nil)
	fp := Footprint{Radius: 0.25, Height: 1}
	pos := mgl32.Vec3{2, 2 + Epsilon, 1}
	got, changed := r.Resolve(pos, mgl32.Vec3{10, 0, 0}, fp)
	if x := pos.X() + got.X(); !changed || !near(x, 6-0.5) {
		t.Fatalf("x=%v changed=%v", x, changed)
	}
	if r.toBlock(-0.5) != -1 || r.toBlock(-2) != -1 || r.toBlock(-2.5) != -2 {
		t.Fatal("toBlock must floor toward negative infinity")
	}
}

func TestResolveQuery(t *testing.T) {
	r := NewResolver(groundWorld(), 0, nil)
	res := r.ResolveQuery(Query{Position: mgl32.Vec3{0.5, 4, 0.5}, Shift: mgl32.Vec3{0, -10, 0}, Footprint: player})
	if !res.Changed || !near(4+res.Shift.Y(), 1) {
		t.Fatalf("query response %+v", res)
	}
}

func TestGroundLevel(t *testing.T) {
	w := groundWorld().fill(3, 1, 3, 3, 4, 3)
	r := NewResolver(w, 0, nil)
	if y, ok := r.GroundLevel(3.5, 3.5, 10, player); !ok || y != 5 {
		t.Fatalf("pillar ground = %v,%v", y, ok)
	}
	if y, ok := r.GroundLevel(3.5, 3.5, 2, player); !ok || y != 3 {
		t.Fatalf("ground below 2 = %v,%v", y, ok)
	}
	if y, ok := r.GroundLevel(100, 100, 10, player); ok || y != 1 {
		t.Fatalf("no ground = %v,%v", y, ok)
	}
}

func BenchmarkResolve(b *testing.B) {
	r := NewResolver(groundWorld().fill(7, 1, -5, 7, 3, 10), 0, nil)
	pos := mgl32.Vec3{5.5, 1 + Epsilon, 5.5}
	shift := mgl32.Vec3{0.2, -0.1, 0.15}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Resolve(pos, shift, player)
	}
}
