package physics

import "github.com/go-gl/mathgl/mgl32"

const (
	MinReachDistance = 0.1
	MaxReachDistance = 5.0
)

// RaycastResult is the first block hit along a ray, in block coordinates.
type RaycastResult struct {
	HitPosition      [3]int
	AdjacentPosition [3]int
	Distance         float32
	Hit              bool
}

// Raycast marches from start along direction (normalized by the caller) and
// reports the first occupied block between minDist and maxDist. Distances
// are in blocks; AdjacentPosition is the last empty block before the hit.
func (r *Resolver) Raycast(start, direction mgl32.Vec3, minDist, maxDist float32) RaycastResult {
	defer r.prof.Track("physics.Raycast")()
	const stepSize = 0.02
	steps := int(maxDist / stepSize)

	result := RaycastResult{}
	last := [3]int{r.toBlock(start.X()), r.toBlock(start.Y()), r.toBlock(start.Z())}
	for i := 0; i <= steps; i++ {
		dist := float32(i) * stepSize
		if dist < minDist {
			continue
		}
		pos := start.Add(direction.Mul(dist * r.bs))
		block := [3]int{r.toBlock(pos.X()), r.toBlock(pos.Y()), r.toBlock(pos.Z())}
		if r.occ.HasBlock(block[0], block[1], block[2]) {
			result.HitPosition = block
			result.AdjacentPosition = last
			result.Distance = dist
			result.Hit = true
			return result
		}
		last = block
	}
	return result
}
