package session

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelcore/internal/physics"
)

// Movement constants, in blocks and seconds.
const (
	Gravity          = 32.0
	TerminalVelocity = -78.4
	JumpVelocity     = 9.4
)

// Body is a free-falling entity with a collision footprint. Position is in
// world units at the centre of its base; Velocity is in blocks per second.
type Body struct {
	Position  mgl32.Vec3
	Velocity  mgl32.Vec3
	Footprint physics.Footprint
	OnGround  bool
}

func (b *Body) Jump() {
	if b.OnGround {
		b.Velocity[1] = JumpVelocity
		b.OnGround = false
	}
}

// Step integrates gravity over dt seconds and moves the body through the
// resolver. Any axis that was clamped loses its velocity.
func (s *Session) Step(b *Body, dt float64) {
	defer s.Profiler.Track("session.Step")()
	b.Velocity[1] -= float32(Gravity * dt)
	if b.Velocity[1] < TerminalVelocity {
		b.Velocity[1] = TerminalVelocity
	}

	want := b.Velocity.Mul(float32(dt) * s.Resolver.BlockSize())
	got, _ := s.Resolver.Resolve(b.Position, want, b.Footprint)
	b.Position = b.Position.Add(got)

	for axis := 0; axis < 3; axis++ {
		if got[axis] != want[axis] {
			b.Velocity[axis] = 0
		}
	}
	b.OnGround = want.Y() < 0 && got.Y() > want.Y()+physics.Epsilon
}
