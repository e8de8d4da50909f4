package physics

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestRaycast(t *testing.T) {
	w := blocks{}
	w[[3]int{5, 0, 0}] = true
	r := NewResolver(w, 0, nil)

	result := r.Raycast(mgl32.Vec3{0.5, 0.5, 0.5}, mgl32.Vec3{1, 0, 0}, MinReachDistance, 10)
	if !result.Hit {
		t.Fatalf("Expected hit, got miss")
	}
	if result.HitPosition != [3]int{5, 0, 0} {
		t.Errorf("Expected hit at {5,0,0}, got %v", result.HitPosition)
	}
	if result.AdjacentPosition != [3]int{4, 0, 0} {
		t.Errorf("Expected adjacent at {4,0,0}, got %v", result.AdjacentPosition)
	}
	// enters x=5 after 4.5 blocks
	if result.Distance < 4.49 || result.Distance > 4.53 {
		t.Errorf("Expected distance 4.5, got %f", result.Distance)
	}

	miss := r.Raycast(mgl32.Vec3{0.5, 0.5, 0.5}, mgl32.Vec3{-1, 0, 0}, MinReachDistance, MaxReachDistance)
	if miss.Hit {
		t.Errorf("Expected miss, got hit at %v", miss.HitPosition)
	}

	short := r.Raycast(mgl32.Vec3{0.5, 0.5, 0.5}, mgl32.Vec3{1, 0, 0}, MinReachDistance, 3)
	if short.Hit {
		t.Error("Expected miss beyond reach")
	}
}

func BenchmarkRaycast(b *testing.B) {
	w := blocks{}
	for x := 0; x < 16; x++ {
		for y := 0; y < 16; y++ {
			w[[3]int{x, y, 5}] = true
		}
	}
	r := NewResolver(w, 0, nil)
	start := mgl32.Vec3{0, 8, 0}
	dir := mgl32.Vec3{0, 0, 1}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Raycast(start, dir, MinReachDistance, 10.0)
	}
}
